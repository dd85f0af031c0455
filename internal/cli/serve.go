package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimdesk/internal/http/handler"
	"github.com/ppiankov/claimdesk/internal/http/router"
	"github.com/ppiankov/claimdesk/internal/wizard"
	"github.com/ppiankov/claimdesk/internal/worker"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the claim review wizard as an HTTP API",
	Long: `Serve exposes the wizard over HTTP. Each session is one claim under
review; sessions live in memory and expire after server.session_ttl of
inactivity.

Example:
  claimdesk serve
  claimdesk serve --addr :9090
  CLAIMDESK_BACKEND_MODE=llm claimdesk serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	sessions := wizard.NewRegistry(cfg.Server.SessionTTL, a.newController)
	var limiter *worker.Limiter
	if cfg.Server.RequestsPerSecond > 0 {
		limiter = worker.NewLimiter(cfg.Server.RequestsPerSecond, cfg.Server.BurstSize)
	}
	router.SetupRoutes(engine, handler.NewSessionHandler(sessions, cfg.Server.MaxUploadBytes, a.log), router.RouterConfig{
		Limiter: limiter,
		Logger:  a.log,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server starting", "addr", cfg.Server.Addr, "backend", cfg.Backend.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "http server shutdown: %v\n", err)
	}
	return nil
}

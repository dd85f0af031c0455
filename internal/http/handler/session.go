package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/claimdesk/internal/http/dto"
	"github.com/ppiankov/claimdesk/internal/http/response"
	"github.com/ppiankov/claimdesk/internal/intake"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

const sessionKey = "session"

// DefaultMaxUploadBytes bounds a single uploaded document
const DefaultMaxUploadBytes = 25 << 20

type SessionHandler struct {
	sessions  *wizard.Registry
	maxUpload int64
	log       *logging.Logger
}

func NewSessionHandler(sessions *wizard.Registry, maxUpload int64, log *logging.Logger) *SessionHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logging.Nop()
	}
	return &SessionHandler{sessions: sessions, maxUpload: maxUpload, log: log}
}

// LoadSession resolves the :id parameter and aborts with 404 when the
// session does not exist or expired.
func (h *SessionHandler) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := h.sessions.Get(c.Param("id"))
		if !ok {
			response.RespondMessage(c, http.StatusNotFound, response.CodeNotFound, "Session not found.")
			return
		}
		c.Set(sessionKey, ctrl)
		c.Next()
	}
}

func session(c *gin.Context) *wizard.Controller {
	return c.MustGet(sessionKey).(*wizard.Controller)
}

// Health reports liveness and the number of open sessions
func (h *SessionHandler) Health(c *gin.Context) {
	response.RespondOK(c, dto.HealthResponse{Status: "ok", Sessions: h.sessions.Count()})
}

func (h *SessionHandler) Create(c *gin.Context) {
	ctrl := h.sessions.Create()
	h.log.Info("session created", "session", ctrl.ID())
	c.JSON(http.StatusCreated, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) Get(c *gin.Context) {
	response.RespondOK(c, dto.SessionResponse{Session: session(c).View()})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	h.sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// UploadFile adds a document to the session. Multipart uploads go through
// intake; a JSON body is taken as an already parsed document.
func (h *SessionHandler) UploadFile(c *gin.Context) {
	var (
		file model.UploadedFile
		err  error
	)
	if strings.HasPrefix(c.ContentType(), "application/json") {
		file, err = h.decodeParsed(c)
	} else {
		file, err = h.readMultipart(c)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondMessage(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge,
				fmt.Sprintf("File is larger than %d bytes.", h.maxUpload))
			return
		}
		response.RespondMessage(c, http.StatusBadRequest, wizard.CodeInvalidFile, err.Error())
		return
	}

	ctrl := session(c)
	if err := ctrl.AddFile(file); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FileResponse{File: dto.FileView(file), Session: ctrl.View()})
}

func (h *SessionHandler) readMultipart(c *gin.Context) (model.UploadedFile, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadedFile{}, err
		}
		return model.UploadedFile{}, errors.New("No file provided.")
	}
	if fh.Size > h.maxUpload {
		return model.UploadedFile{}, &http.MaxBytesError{Limit: h.maxUpload}
	}

	f, err := fh.Open()
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("read upload: %w", err)
	}

	file, err := intake.Parse(fh.Filename, data)
	if err != nil {
		return model.UploadedFile{}, err
	}
	return withSlot(file, c.PostForm("expected_file_name"))
}

func (h *SessionHandler) decodeParsed(c *gin.Context) (model.UploadedFile, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	var file model.UploadedFile
	if err := c.ShouldBindJSON(&file); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadedFile{}, err
		}
		return model.UploadedFile{}, fmt.Errorf("invalid document: %w", err)
	}
	if file.PayloadBytes() > h.maxUpload {
		return model.UploadedFile{}, &http.MaxBytesError{Limit: h.maxUpload}
	}
	if err := intake.Validate(file); err != nil {
		return model.UploadedFile{}, err
	}
	intake.Classify(&file)
	return file, nil
}

// withSlot pins file to an expected slot named by the client.
func withSlot(file model.UploadedFile, slot string) (model.UploadedFile, error) {
	if slot == "" {
		return file, nil
	}
	for _, e := range model.ExpectedFiles {
		if e.Name == slot {
			file.ExpectedFileName = slot
			file.OriginalFilename = file.Filename
			file.IsMiscellaneous = false
			return file, nil
		}
	}
	return model.UploadedFile{}, fmt.Errorf("unknown expected file %q", slot)
}

func (h *SessionHandler) Next(c *gin.Context) {
	ctrl := session(c)
	if err := ctrl.Next(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) Previous(c *gin.Context) {
	ctrl := session(c)
	if err := ctrl.Previous(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) GoTo(c *gin.Context) {
	step, err := model.ParseStep(c.Param("step"))
	if err != nil {
		response.RespondMessage(c, http.StatusBadRequest, wizard.CodeUnknownStep, err.Error())
		return
	}
	ctrl := session(c)
	if err := ctrl.GoTo(c.Request.Context(), step); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) Reextract(c *gin.Context) {
	ctrl := session(c)
	if err := ctrl.Reextract(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) AcceptConflict(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req dto.AcceptConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}

	ctrl := session(c)
	res, err := ctrl.AcceptConflict(c.Request.Context(), index, *req.VariantIndex, req.Value)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.AcceptConflictResponse{Result: res, Session: ctrl.View()})
}

func (h *SessionHandler) Acknowledge(c *gin.Context) {
	ctrl := session(c)
	ctrl.Acknowledge()
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) AnalyzeSignals(c *gin.Context) {
	signals, err := session(c).AnalyzeSignals(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SignalsResponse{Signals: signals})
}

func (h *SessionHandler) CheckEvidence(c *gin.Context) {
	report, err := session(c).CheckEvidence(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.EvidenceResponse{Evidence: report})
}

func (h *SessionHandler) GenerateRecommendation(c *gin.Context) {
	rec, err := session(c).GenerateRecommendation(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.RecommendationResponse{Recommendation: *rec})
}

func (h *SessionHandler) AdjustRecommendation(c *gin.Context) {
	var req dto.AdjustRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	rec, err := session(c).AdjustRecommendation(*req.ClaimantLiabilityPercent)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.RecommendationResponse{Recommendation: rec})
}

func (h *SessionHandler) EditTimelineEvent(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req dto.EditTimelineEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	ctrl := session(c)
	if err := ctrl.EditTimelineEvent(index, req.Description); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) MoveTimelineEvent(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req dto.MoveTimelineEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	ctrl := session(c)
	if err := ctrl.MoveTimelineEvent(index, req.Direction); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) SaveTimeline(c *gin.Context) {
	ctrl := session(c)
	if err := ctrl.SaveTimeline(c.Request.Context()); err != nil {
		var verr *wizard.ValidationError
		if errors.As(err, &verr) {
			response.RespondFromError(c, err)
			return
		}
		h.log.Error("failed to save timeline", "session", ctrl.ID(), "error", err)
		response.RespondMessage(c, http.StatusInternalServerError, response.CodeInternal, "Failed to save timeline.")
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) GenerateRationale(c *gin.Context) {
	r, err := session(c).GenerateRationale(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.RationaleResponse{Rationale: r})
}

func (h *SessionHandler) EditRationale(c *gin.Context) {
	var r model.Rationale
	if err := c.ShouldBindJSON(&r); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	ctrl := session(c)
	if err := ctrl.EditRationale(r); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

func (h *SessionHandler) GenerateEscalation(c *gin.Context) {
	pkg, err := session(c).GenerateEscalation(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, dto.EscalationResponse{Escalation: pkg})
}

func (h *SessionHandler) SendEscalation(c *gin.Context) {
	var req dto.SendEscalationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
			return
		}
	}
	ctrl := session(c)
	if err := ctrl.SendToSupervisor(req.Package); err != nil {
		response.RespondFromError(c, err)
		return
	}
	h.log.Info("claim escalated", "session", ctrl.ID())
	response.RespondOK(c, dto.SessionResponse{Session: ctrl.View()})
}

// Export downloads the fact matrix with its accepted resolutions.
func (h *SessionHandler) Export(c *gin.Context) {
	ctrl := session(c)
	snap, err := ctrl.ExportMatrix()
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="fact_matrix_%s.json"`, ctrl.ID()))
	c.IndentedJSON(http.StatusOK, snap)
}

// Events streams session events as server-sent events. The stream opens with
// the current view and ends when the client leaves or the session closes.
func (h *SessionHandler) Events(c *gin.Context) {
	ctrl := session(c)
	events, cancel := ctrl.Events().Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("session", ctrl.View())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.RespondMessage(c, http.StatusBadRequest, response.CodeInvalidRequest, "Index must be a non-negative integer.")
		return 0, false
	}
	return index, true
}

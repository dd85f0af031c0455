package model

import "time"

// Config holds all claimdesk configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Backend     BackendConfig     `yaml:"backend" mapstructure:"backend"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Wizard      WizardConfig      `yaml:"wizard" mapstructure:"wizard"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the wizard HTTP API
type ServerConfig struct {
	Addr              string        `yaml:"addr" mapstructure:"addr"`
	Mode              string        `yaml:"mode" mapstructure:"mode"`               // gin mode: debug, release, test
	SessionTTL        time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"` // Idle sessions are evicted after this
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // Per client IP, 0 disables
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size"`
}

// EndpointPaths are the claims backend routes, relative to BaseURL
type EndpointPaths struct {
	ExtractFacts         string `yaml:"extract_facts" mapstructure:"extract_facts"`
	AnalyzeSignals       string `yaml:"analyze_signals" mapstructure:"analyze_signals"`
	GenerateTimeline     string `yaml:"generate_timeline" mapstructure:"generate_timeline"`
	Recommendation       string `yaml:"recommendation" mapstructure:"recommendation"`
	ClaimRationale       string `yaml:"claim_rationale" mapstructure:"claim_rationale"`
	EvidenceCompleteness string `yaml:"evidence_completeness" mapstructure:"evidence_completeness"`
	EscalationPackage    string `yaml:"escalation_package" mapstructure:"escalation_package"`
}

// BackendConfig configures how the wizard reaches the claims backend
type BackendConfig struct {
	Mode              string        `yaml:"mode" mapstructure:"mode"` // http or llm
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Paths             EndpointPaths `yaml:"paths" mapstructure:"paths"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size"`
}

// LLMConfig configures the in-process backend
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// WizardConfig tunes the wizard state machine
type WizardConfig struct {
	SignalDelay         time.Duration `yaml:"signal_delay" mapstructure:"signal_delay"`         // Pause before automatic signal analysis
	RequireEvidence     bool          `yaml:"require_evidence" mapstructure:"require_evidence"` // Gate timeline and rationale on the evidence check
	SnippetMinLength    int           `yaml:"snippet_min_length" mapstructure:"snippet_min_length"`
	SnippetPrefixLength int           `yaml:"snippet_prefix_length" mapstructure:"snippet_prefix_length"`
	Matcher             string        `yaml:"matcher" mapstructure:"matcher"` // substring or edit_distance
	MatchThreshold      float64       `yaml:"match_threshold" mapstructure:"match_threshold"`
}

// CacheConfig configures timeline persistence
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisURL  string        `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	Profile   string        `yaml:"profile" mapstructure:"profile"`
}

// AuditConfig configures the decision log
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// ConcurrencyConfig configures batch reviews
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"` // development or production
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			Mode:              "release",
			SessionTTL:        2 * time.Hour,
			MaxUploadBytes:    25 << 20,
			RequestsPerSecond: 20,
			BurstSize:         40,
		},
		Backend: BackendConfig{
			Mode:    "http",
			BaseURL: "http://localhost:5000",
			Paths: EndpointPaths{
				ExtractFacts:         "/extract-facts",
				AnalyzeSignals:       "/analyze-liability-signals",
				GenerateTimeline:     "/generate-timeline",
				Recommendation:       "/get-liability-recommendation",
				ClaimRationale:       "/generate-claim-rationale",
				EvidenceCompleteness: "/check-evidence-completeness",
				EscalationPackage:    "/generate-escalation-package",
			},
			Timeout:           2 * time.Minute,
			MaxRetries:        2,
			MaxBodyBytes:      10 << 20,
			UserAgent:         "claimdesk/0.1",
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			Timeout:   120,
			MaxTokens: 4000,
		},
		Wizard: WizardConfig{
			SignalDelay:         500 * time.Millisecond,
			SnippetMinLength:    20,
			SnippetPrefixLength: 50,
			Matcher:             "substring",
			MatchThreshold:      0.8,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "~/.claimdesk/cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
			Profile:   "default",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "~/.claimdesk/audit.db",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}

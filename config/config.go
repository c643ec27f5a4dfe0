package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/engine"
)

// Defaults for the built-in ceiling-lights target.
const (
	DefaultBaseURL  = "https://www.bunnings.com.au/search/products?&q=ceiling+lights&sort=BoostOrder"
	DefaultSelector = "[class^='sc-b1b63609-1 ceDNej productTileTitle'], [class^='span-review-container'], [class^='sc-bbcf7fe4-3 ebtUXu']"
	DefaultMarker   = "No Results Found"
	DefaultOutput   = "complete_lights.csv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Engine    EngineConfig
	LLM       LLMConfig
	Crawl     CrawlConfig
	Export    ExportConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions caps the number of open session tabs.
	MaxSessions int // default: 8

	// DefaultProxy is the proxy URL for browser and HTTP traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	ViewportWidth  int // default: 1400
	ViewportHeight int // default: 1000
}

// ScraperConfig controls page loading.
type ScraperConfig struct {
	// DefaultTimeout is the per-page fetch timeout.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout caps any timeout requested through the API.
	MaxTimeout time.Duration // default: 120s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 15s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true
}

// EngineConfig controls the fetch engine chain.
type EngineConfig struct {
	// Engines lists engine names in escalation order ("http", "rod").
	Engines []string // default: ["rod"]

	// DomainMemoryTTL is how long a domain's working engine is remembered.
	DomainMemoryTTL time.Duration // default: 24h
}

// LLMConfig controls the extraction model endpoint.
type LLMConfig struct {
	APIKey  string
	Model   string        // default: "deepseek-r1-distill-llama-70b"
	BaseURL string        // default: Groq's OpenAI-compatible endpoint
	Timeout time.Duration // default: 60s

	Temperature float64 // default: 0

	// MaxInputTokens truncates page content sent to the model. 0 disables.
	MaxInputTokens int // default: 24000
}

// CrawlConfig describes the target listing and run limits.
type CrawlConfig struct {
	// TargetFile is an optional YAML file overriding the fields below.
	TargetFile string

	BaseURL         string
	PageParam       string // default: "page"
	Selector        string
	RequiredKeys    []string
	IdentityField   string // default: "title"
	Instruction     string
	Schema          crawl.Schema
	NoResultsMarker string // default: "No Results Found"

	MaxPages      int // default: 50; <= 0 is unbounded
	MaxEmptyPages int // default: 3; <= 0 is unbounded
	StartPage     int // default: 0

	// SessionID pins the browser session id; empty generates one per run.
	SessionID string

	ExtractMode string // "raw" or "readability"; default: "raw"
	InputFormat string // "markdown", "html" or "text"; default: "markdown"

	WaitFor string
	Actions []engine.Action
}

// ExportConfig controls the output file.
type ExportConfig struct {
	// Output path; the extension selects csv, json or sqlite.
	Output string // default: "complete_lights.csv"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// JobsConfig controls the in-memory crawl job store.
type JobsConfig struct {
	MaxEntries int           // default: 100
	TTL        time.Duration // default: 1h

	// MaxConcurrent caps crawl jobs running at once.
	MaxConcurrent int // default: 2
}

// WebhookConfig controls outgoing job notifications.
type WebhookConfig struct {
	// Secret signs payloads when a request does not bring its own.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LISTCRAWL_HOST", "0.0.0.0"),
			Port: envIntOr("LISTCRAWL_PORT", 8080),
			Mode: envOr("LISTCRAWL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("LISTCRAWL_HEADLESS", true),
			MaxSessions:    envIntOr("LISTCRAWL_MAX_SESSIONS", 8),
			DefaultProxy:   os.Getenv("LISTCRAWL_PROXY"),
			NoSandbox:      envBoolOr("LISTCRAWL_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("LISTCRAWL_BROWSER_BIN"),
			ViewportWidth:  envIntOr("LISTCRAWL_VIEWPORT_WIDTH", 1400),
			ViewportHeight: envIntOr("LISTCRAWL_VIEWPORT_HEIGHT", 1000),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:    envDurationOr("LISTCRAWL_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:        envDurationOr("LISTCRAWL_MAX_TIMEOUT", 120*time.Second),
			NavigationTimeout: envDurationOr("LISTCRAWL_NAV_TIMEOUT", 15*time.Second),
			BlockedResourceTypes: envSliceOr("LISTCRAWL_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("LISTCRAWL_BLOCK_ADS", true),
		},
		Engine: EngineConfig{
			Engines:         envSliceOr("LISTCRAWL_ENGINES", []string{"rod"}),
			DomainMemoryTTL: envDurationOr("LISTCRAWL_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			APIKey:         envOr("LISTCRAWL_LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
			Model:          envOr("LISTCRAWL_LLM_MODEL", "deepseek-r1-distill-llama-70b"),
			BaseURL:        envOr("LISTCRAWL_LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Timeout:        envDurationOr("LISTCRAWL_LLM_TIMEOUT", 60*time.Second),
			Temperature:    envFloatOr("LISTCRAWL_LLM_TEMPERATURE", 0),
			MaxInputTokens: envIntOr("LISTCRAWL_LLM_MAX_INPUT_TOKENS", 24000),
		},
		Crawl: CrawlConfig{
			TargetFile:      os.Getenv("LISTCRAWL_TARGET_FILE"),
			BaseURL:         envOr("LISTCRAWL_BASE_URL", DefaultBaseURL),
			PageParam:       envOr("LISTCRAWL_PAGE_PARAM", crawl.DefaultPageParam),
			Selector:        envOr("LISTCRAWL_CSS_SELECTOR", DefaultSelector),
			RequiredKeys:    envSliceOr("LISTCRAWL_REQUIRED_KEYS", append([]string(nil), crawl.DefaultRequiredKeys...)),
			IdentityField:   envOr("LISTCRAWL_IDENTITY_FIELD", crawl.DefaultIdentityField),
			Instruction:     envOr("LISTCRAWL_INSTRUCTION", crawl.DefaultInstruction),
			Schema:          crawl.DefaultSchema(),
			NoResultsMarker: envOr("LISTCRAWL_NO_RESULTS_MARKER", DefaultMarker),
			MaxPages:        envIntOr("LISTCRAWL_MAX_PAGES", 50),
			MaxEmptyPages:   envIntOr("LISTCRAWL_MAX_EMPTY_PAGES", 3),
			StartPage:       envIntOr("LISTCRAWL_START_PAGE", 0),
			SessionID:       os.Getenv("LISTCRAWL_SESSION_ID"),
			ExtractMode:     envOr("LISTCRAWL_EXTRACT_MODE", "raw"),
			InputFormat:     envOr("LISTCRAWL_INPUT_FORMAT", "markdown"),
			WaitFor:         os.Getenv("LISTCRAWL_WAIT_FOR"),
		},
		Export: ExportConfig{
			Output: envOr("LISTCRAWL_OUTPUT", DefaultOutput),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LISTCRAWL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("LISTCRAWL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LISTCRAWL_RATE_RPS", 5.0),
			Burst:             envIntOr("LISTCRAWL_RATE_BURST", 10),
		},
		Jobs: JobsConfig{
			MaxEntries:    envIntOr("LISTCRAWL_JOBS_MAX_ENTRIES", 100),
			TTL:           envDurationOr("LISTCRAWL_JOBS_TTL", time.Hour),
			MaxConcurrent: envIntOr("LISTCRAWL_JOBS_MAX_CONCURRENT", 2),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("LISTCRAWL_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("LISTCRAWL_LOG_LEVEL", "info"),
			Format: envOr("LISTCRAWL_LOG_FORMAT", "json"),
		},
	}
}

// Target converts the crawl section into a crawl.Target.
func (c *CrawlConfig) Target() crawl.Target {
	return crawl.Target{
		BaseURL:       c.BaseURL,
		PageParam:     c.PageParam,
		Selector:      c.Selector,
		Schema:        c.Schema,
		Instruction:   c.Instruction,
		RequiredKeys:  c.RequiredKeys,
		IdentityField: c.IdentityField,
	}
}

// Limits converts the crawl section into crawl.Limits.
func (c *CrawlConfig) Limits() crawl.Limits {
	return crawl.Limits{
		MaxPages:            c.MaxPages,
		MaxConsecutiveEmpty: c.MaxEmptyPages,
		StartPage:           c.StartPage,
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

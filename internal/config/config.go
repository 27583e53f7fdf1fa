// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Executor backends.
const (
	ExecutorHTTP = "http"
	ExecutorDB   = "db"
)

// Config is built once at startup and passed to every component.
type Config struct {
	Addr           string
	RequestTimeout time.Duration

	Executor        string // "http" or "db"
	APIURL          string // remote execute-sql endpoint
	ExecutorTimeout time.Duration
	DBDriver        string
	DBDSN           string

	LLMProvider  string
	LLMAPIKey    string
	LLMModel     string
	LLMBaseURL   string
	LLMMaxTokens int
	LLMTimeout   time.Duration

	CatalogPath   string // empty uses the embedded catalog
	ReportDir     string
	ReportFont    string
	PublicBaseURL string

	LogLevel  string
	LogFormat string // "json" or "console"

	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool
}

// LoadEnvFile loads variables from path into the environment without
// overriding variables that are already set. A missing default file is not
// an error; a missing explicit file is.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	requestTimeout, err := envDuration("HRM_REQUEST_TIMEOUT", 120*time.Second)
	collect(err)
	executorTimeout, err := envDuration("HRM_EXECUTOR_TIMEOUT", 15*time.Second)
	collect(err)
	maxTokens, err := envInt("LLM_MAX_TOKENS", 600)
	collect(err)
	llmTimeout, err := envDuration("LLM_TIMEOUT", 60*time.Second)
	collect(err)
	insecure, err := envBool("OTEL_INSECURE", false)
	collect(err)

	provider := strings.ToLower(envStr("LLM_PROVIDER", "openai"))

	cfg := Config{
		Addr:            envStr("HRM_ADDR", ":8000"),
		RequestTimeout:  requestTimeout,
		Executor:        strings.ToLower(envStr("HRM_EXECUTOR", ExecutorHTTP)),
		APIURL:          envStr("HRM_API_URL", "http://localhost:5000/api/execute-sql"),
		ExecutorTimeout: executorTimeout,
		DBDriver:        envStr("DB_DRIVER", "postgres"),
		DBDSN:           envStr("DB_DSN", ""),
		LLMProvider:     provider,
		LLMAPIKey:       apiKey(provider),
		LLMModel:        envStr("LLM_MODEL", ""),
		LLMBaseURL:      envStr("LLM_BASE_URL", ""),
		LLMMaxTokens:    maxTokens,
		LLMTimeout:      llmTimeout,
		CatalogPath:     envStr("HRM_CATALOG_PATH", ""),
		ReportDir:       envStr("HRM_REPORT_DIR", "reports"),
		ReportFont:      envStr("HRM_REPORT_FONT", ""),
		PublicBaseURL:   envStr("HRM_PUBLIC_BASE_URL", ""),
		LogLevel:        envStr("HRM_LOG_LEVEL", "info"),
		LogFormat:       strings.ToLower(envStr("HRM_LOG_FORMAT", "json")),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "hrmchat"),
		OTELInsecure:    insecure,
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	switch c.Executor {
	case ExecutorHTTP:
		if c.APIURL == "" {
			errs = append(errs, fmt.Errorf("config: HRM_API_URL is required for the http executor"))
		}
	case ExecutorDB:
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("config: DB_DSN is required for the db executor"))
		}
		if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
			errs = append(errs, fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("config: HRM_EXECUTOR must be http or db, got %q", c.Executor))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("config: LLM_MAX_TOKENS must be positive"))
	}
	if c.RequestTimeout <= 0 || c.ExecutorTimeout <= 0 || c.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: timeouts must be positive"))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("config: HRM_LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// providerKeyVars names the provider-specific key consulted when LLM_API_KEY is unset.
var providerKeyVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func apiKey(provider string) string {
	if v := envStr("LLM_API_KEY", ""); v != "" {
		return v
	}
	if name, ok := providerKeyVars[provider]; ok {
		return envStr(name, "")
	}
	return ""
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

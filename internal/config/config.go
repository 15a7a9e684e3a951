// Package config loads the pipeline configuration: built-in defaults, then
// an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// AnalyzerConfig describes one analyzer branch
type AnalyzerConfig struct {
	// Name is the branch name and the aggregated feature slot it fills
	Name string `yaml:"name"`

	// URL is the analyzer base URL
	URL string `yaml:"url"`

	// Path is the analyze endpoint path. Optional. Defaults to "/analyze"
	Path string `yaml:"path"`
}

// Config holds runtime configuration for every tier
type Config struct {
	// ServiceName identifies this process in logs, health and User-Agent.
	// Optional. Each command supplies its own default.
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// HTTPAddr is the listen address. Optional. Each command supplies its own default.
	HTTPAddr string `yaml:"http_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MaxRequestSize bounds the uploaded image in bytes
	MaxRequestSize int64 `yaml:"max_request_size"`
	MaxImageWidth  int   `yaml:"max_image_width"`
	MaxImageHeight int   `yaml:"max_image_height"`

	// RequestTimeout is the deadline for a whole inbound request
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ServiceTimeout is the deadline for one outbound call
	ServiceTimeout time.Duration `yaml:"service_timeout"`

	// AnalysisTimeout is the gateway's deadline for the remote stage-1 call.
	// Zero derives it from ServiceTimeout, see AnalysisDeadline.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`

	// HealthTimeout is the deadline for one health ping
	HealthTimeout time.Duration `yaml:"health_timeout"`

	// MaxConcurrentRequests bounds in-flight analyzer calls per fan-out
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	ImageProcessingOrchestratorURL string `yaml:"image_processing_orchestrator_url"`
	LLMInferencerURL               string `yaml:"llm_inferencer_url"`

	Analyzers []AnalyzerConfig `yaml:"analyzers"`

	// SceneTokenBudget caps the scene description sent to generation. 0 disables it.
	SceneTokenBudget int `yaml:"scene_token_budget"`
}

// analyzerEnv maps branch names to their URL override variable
var analyzerEnv = map[string]string{
	pipeline.BranchFaceAnalysis:      "FACE_ANALYSIS_URL",
	pipeline.BranchBodyAnalysis:      "BODY_ANALYSIS_URL",
	pipeline.BranchDemographics:      "DEMOGRAPHICS_URL",
	pipeline.BranchObjectScene:       "OBJECT_SCENE_URL",
	pipeline.BranchQualityAesthetics: "QUALITY_AESTHETICS_URL",
	pipeline.BranchSceneDescription:  "VLM_SCENE_ANALYSIS_URL",
}

// AnalysisMargin is added to the stage-1 fan-out time when AnalysisTimeout is derived
const AnalysisMargin = 5 * time.Second

// Default returns the built-in configuration of a local deployment
func Default() *Config {
	return &Config{
		ServiceVersion:                 "1.0.0",
		LogLevel:                       "info",
		LogFormat:                      "text",
		MaxRequestSize:                 10 << 20,
		MaxImageWidth:                  1920,
		MaxImageHeight:                 1080,
		RequestTimeout:                 60 * time.Second,
		ServiceTimeout:                 30 * time.Second,
		HealthTimeout:                  5 * time.Second,
		MaxConcurrentRequests:          5,
		ImageProcessingOrchestratorURL: "http://localhost:8001",
		LLMInferencerURL:               "http://localhost:8007",
		Analyzers: []AnalyzerConfig{
			{Name: pipeline.BranchFaceAnalysis, URL: "http://localhost:8002", Path: "/api/v1/analyze"},
			{Name: pipeline.BranchBodyAnalysis, URL: "http://localhost:8003", Path: "/analyze"},
			{Name: pipeline.BranchDemographics, URL: "http://localhost:8004", Path: "/analyze"},
			{Name: pipeline.BranchObjectScene, URL: "http://localhost:8005", Path: "/analyze"},
			{Name: pipeline.BranchQualityAesthetics, URL: "http://localhost:8006", Path: "/analyze"},
		},
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; a missing CONFIG_FILE means defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithDefaults fills in the per-command identity when nothing configured it
func (c *Config) WithDefaults(serviceName, httpAddr string) {
	if c.ServiceName == "" {
		c.ServiceName = serviceName
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = httpAddr
	}
}

// UserAgent is sent on every outbound call
func (c *Config) UserAgent() string {
	return fmt.Sprintf("roast-pipeline/%s/%s", c.ServiceName, c.ServiceVersion)
}

// AnalysisDeadline returns the timeout for the remote stage-1 call. Unless set
// explicitly it is one ServiceTimeout per admission wave of the analyzers plus
// AnalysisMargin, so branch timeouts inside stage 1 expire first.
func (c *Config) AnalysisDeadline() time.Duration {
	if c.AnalysisTimeout > 0 {
		return c.AnalysisTimeout
	}
	waves := 1
	if c.MaxConcurrentRequests > 0 && len(c.Analyzers) > c.MaxConcurrentRequests {
		waves = (len(c.Analyzers) + c.MaxConcurrentRequests - 1) / c.MaxConcurrentRequests
	}
	return time.Duration(waves)*c.ServiceTimeout + AnalysisMargin
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.MaxConcurrentRequests < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_requests must be at least 1, got %d", c.MaxConcurrentRequests))
	}
	if c.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Errorf("max_request_size must be positive, got %d", c.MaxRequestSize))
	}
	for name, d := range map[string]time.Duration{
		"request_timeout": c.RequestTimeout,
		"service_timeout": c.ServiceTimeout,
		"health_timeout":  c.HealthTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.AnalysisTimeout < 0 {
		errs = append(errs, fmt.Errorf("analysis_timeout must not be negative, got %s", c.AnalysisTimeout))
	} else if c.AnalysisTimeout > 0 && c.AnalysisTimeout <= c.ServiceTimeout {
		errs = append(errs, fmt.Errorf("analysis_timeout (%s) must exceed service_timeout (%s)", c.AnalysisTimeout, c.ServiceTimeout))
	}
	if c.SceneTokenBudget < 0 {
		errs = append(errs, fmt.Errorf("scene_token_budget must not be negative, got %d", c.SceneTokenBudget))
	}

	if err := checkURL("image_processing_orchestrator_url", c.ImageProcessingOrchestratorURL); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("llm_inferencer_url", c.LLMInferencerURL); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(c.Analyzers))
	for i, a := range c.Analyzers {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("analyzers[%d]: name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("analyzers[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if err := checkURL("analyzers."+a.Name+".url", a.URL); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	setString(&c.ServiceName, "SERVICE_NAME")
	setString(&c.ServiceVersion, "SERVICE_VERSION")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.ImageProcessingOrchestratorURL, "IMAGE_PROCESSING_ORCHESTRATOR_URL")
	setString(&c.LLMInferencerURL, "LLM_INFERENCER_URL")

	if port := os.Getenv("PORT"); port != "" {
		c.HTTPAddr = ":" + port
	}
	setString(&c.HTTPAddr, "HTTP_ADDR")

	var errs []error
	if v := os.Getenv("MAX_REQUEST_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_REQUEST_SIZE: %w", err))
		}
		c.MaxRequestSize = n
	}
	for env, dst := range map[string]*int{
		"MAX_CONCURRENT_REQUESTS": &c.MaxConcurrentRequests,
		"SCENE_TOKEN_BUDGET":      &c.SceneTokenBudget,
	} {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
			}
			*dst = n
		}
	}
	for env, dst := range map[string]*time.Duration{
		"REQUEST_TIMEOUT":  &c.RequestTimeout,
		"SERVICE_TIMEOUT":  &c.ServiceTimeout,
		"ANALYSIS_TIMEOUT": &c.AnalysisTimeout,
		"HEALTH_TIMEOUT":   &c.HealthTimeout,
	} {
		if v := os.Getenv(env); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
			}
			*dst = d
		}
	}

	for name, env := range analyzerEnv {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if i := c.analyzerIndex(name); i >= 0 {
			c.Analyzers[i].URL = v
			continue
		}
		c.Analyzers = append(c.Analyzers, AnalyzerConfig{Name: name, URL: v, Path: "/api/v1/analyze"})
	}

	return errors.Join(errs...)
}

func (c *Config) analyzerIndex(name string) int {
	for i, a := range c.Analyzers {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// parseDuration accepts a Go duration ("30s") or whole seconds ("30")
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

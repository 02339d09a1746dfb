package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists known model backend names. Used by [Validate] to
// warn about unrecognised names without rejecting them.
var ValidBackendNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider
	if cfg.Provider.Primary.Name == "" {
		errs = append(errs, errors.New("provider.primary.name is required"))
	} else {
		validateBackendName("provider.primary", cfg.Provider.Primary.Name)
	}
	for i, fb := range cfg.Provider.Fallbacks {
		prefix := fmt.Sprintf("provider.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			validateBackendName(prefix, fb.Name)
		}
	}

	// Pipeline
	if cfg.Pipeline.AttemptBudget < 0 {
		errs = append(errs, fmt.Errorf("pipeline.attempt_budget %d must not be negative", cfg.Pipeline.AttemptBudget))
	}
	if cfg.Pipeline.ModelCallTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.model_call_timeout %s must not be negative", cfg.Pipeline.ModelCallTimeout))
	}
	if cfg.Pipeline.ToolCallTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.tool_call_timeout %s must not be negative", cfg.Pipeline.ToolCallTimeout))
	}

	// Tool servers
	serverNamesSeen := make(map[string]int, len(cfg.Tools.Servers))
	for i, srv := range cfg.Tools.Servers {
		prefix := fmt.Sprintf("tools.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
			continue
		}
		switch {
		case srv.Transport == "stdio" && srv.Command == "":
			errs = append(errs, fmt.Errorf("%s.command is required for stdio transport", prefix))
		case srv.Transport == "streamable-http" && srv.URL == "":
			errs = append(errs, fmt.Errorf("%s.url is required for streamable-http transport", prefix))
		}
	}

	// Aliases must not map a name to itself or to an empty target.
	for raw, canonical := range cfg.Tools.Aliases {
		if canonical == "" {
			errs = append(errs, fmt.Errorf("tools.aliases[%q] has an empty target", raw))
		}
		if raw == canonical {
			errs = append(errs, fmt.Errorf("tools.aliases[%q] maps to itself", raw))
		}
	}

	// History
	if cfg.History.Backend != "" && !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required for the postgres backend"))
	}

	if cfg.AgentsFile == "" {
		slog.Warn("agents_file is empty; only requests with inline history will resolve an agent")
	}
	if len(cfg.Tools.Servers) == 0 {
		slog.Warn("no tool servers configured; every request will be answered without tools")
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning when name is not a known backend. An
// unknown name is not an error so new backends can be tried without a code
// change here.
func validateBackendName(field, name string) {
	if !slices.Contains(ValidBackendNames, name) {
		slog.Warn("unrecognised model backend name",
			"field", field, "name", name, "known", ValidBackendNames)
	}
}

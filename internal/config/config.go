package config

import (
	"os"
	"strconv"

	"neurosig/internal/engine"
	"neurosig/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Paths    PathConfig
	Analysis engine.Config
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. The database is
// optional; an empty URL runs the service without persistence.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	// ExportDir is where XLSX workbooks get written.
	ExportDir string
}

// Load reads configuration from environment variables. Out-of-range analysis
// values are coerced to defaults rather than rejected.
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Paths: PathConfig{
			ExportDir: getEnvOrDefault("EXPORT_DIR", "./exports"),
		},
		Analysis: loadAnalysisConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadAnalysisConfig() engine.Config {
	d := engine.DefaultConfig()

	cfg := engine.Config{
		Alpha:              getEnvFloatOrDefault("ALPHA", d.Alpha),
		FDRAlpha:           getEnvFloatOrDefault("FDR_ALPHA", d.FDRAlpha),
		Mode:               engine.Mode(getEnvOrDefault("ANALYSIS_MODE", string(d.Mode))),
		Dependence:         engine.Correction(getEnvOrDefault("DEPENDENCE_CORRECTION", string(d.Dependence))),
		UsePermutation:     getEnvBoolOrDefault("USE_PERMUTATION", d.UsePermutation),
		NPerm:              getEnvIntOrDefault("N_PERM", d.NPerm),
		DiscretizationBins: getEnvIntOrDefault("DISCRETIZATION_BINS", d.DiscretizationBins),
		EffectMeasure:      engine.EffectMeasure(getEnvOrDefault("EFFECT_MEASURE", string(d.EffectMeasure))),
		OmnibusMethod:      engine.OmnibusMethod(getEnvOrDefault("OMNIBUS_METHOD", string(d.OmnibusMethod))),
		BlockSeconds:       getEnvFloatOrDefault("BLOCK_SECONDS", d.BlockSeconds),
		WindowSeconds:      getEnvFloatOrDefault("WINDOW_SECONDS", d.WindowSeconds),
		NminSessions:       getEnvIntOrDefault("NMIN_SESSIONS", d.NminSessions),
		MinEffectSize:      getEnvFloatOrDefault("MIN_EFFECT_SIZE", d.MinEffectSize),
		MinPercentChange:   getEnvFloatOrDefault("MIN_PERCENT_CHANGE", d.MinPercentChange),
		CorrelationGuard:   getEnvBoolOrDefault("CORRELATION_GUARD", d.CorrelationGuard),
		ExactDistributions: getEnvBoolOrDefault("EXACT_DISTRIBUTIONS", d.ExactDistributions),
	}

	if value := os.Getenv("ANALYSIS_SEED"); value != "" {
		if seed, err := strconv.ParseInt(value, 10, 64); err == nil {
			cfg.Seed = &seed
		}
	}

	return cfg.Normalized()
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Paths.ExportDir == "" {
		return errors.ConfigInvalid("export directory is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

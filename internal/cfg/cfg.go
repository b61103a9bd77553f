// Package cfg loads trainer configuration from a YAML file and/or
// environment variables, with validation before anything runs.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved trainer configuration.
type Settings struct {
	DataPath    string // dataset store directory
	DatasetName string // name of the feature table to train on
	ArtifactDir string // model artifact directory

	ModelType       string // model-type token; unknown tokens resolve to the documented default
	CutoffTime      time.Time
	CensorWindow    time.Duration
	CensorPolicy    string // "drop" or "relabel"
	NonFailureLabel string

	FeatureColumns []string // explicit feature list; empty means schema minus exclusions
	ExcludeColumns []string // identifier/raw columns excluded from the feature set
	MaxCategories  int      // distinct-value threshold for categorical detection
	UnseenPolicy   string   // "reject" or "other"

	MetricsPort int // 0 disables the metrics endpoint
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Dataset struct {
		Path string `yaml:"path"`
		Name string `yaml:"name"`
	} `yaml:"dataset"`

	Training struct {
		ModelType       string `yaml:"modelType"`
		CutoffTime      string `yaml:"cutoffTime"`
		CensorWindow    string `yaml:"censorWindow"`
		CensorPolicy    string `yaml:"censorPolicy"`
		NonFailureLabel string `yaml:"nonFailureLabel"`
	} `yaml:"training"`

	Features struct {
		Include       []string `yaml:"include"`
		Exclude       []string `yaml:"exclude"`
		MaxCategories int      `yaml:"maxCategories"`
		UnseenPolicy  string   `yaml:"unseenPolicy"`
	} `yaml:"features"`

	System struct {
		ArtifactDir string `yaml:"artifactDir"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads settings from the file named by CONFIG_FILE when set,
// otherwise from environment variables alone.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cutoff, err := parseCutoff(getEnvOrDefault("CUTOFF_TIME", config.Training.CutoffTime))
	if err != nil {
		return Settings{}, err
	}

	window := 7 * 24 * time.Hour
	if w := getEnvOrDefault("CENSOR_WINDOW", config.Training.CensorWindow); w != "" {
		window, err = time.ParseDuration(w)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid censor window %q: %w", w, err)
		}
	}

	settings := Settings{
		DataPath:        getEnvOrDefault("DATA_PATH", defaultString(config.Dataset.Path, "data")),
		DatasetName:     getEnvOrDefault("DATASET_NAME", config.Dataset.Name),
		ArtifactDir:     getEnvOrDefault("ARTIFACT_DIR", defaultString(config.System.ArtifactDir, "artifacts")),
		ModelType:       getEnvOrDefault("MODEL_TYPE", config.Training.ModelType),
		CutoffTime:      cutoff,
		CensorWindow:    window,
		CensorPolicy:    getEnvOrDefault("CENSOR_POLICY", defaultString(config.Training.CensorPolicy, "drop")),
		NonFailureLabel: getEnvOrDefault("NON_FAILURE_LABEL", defaultString(config.Training.NonFailureLabel, "none")),
		FeatureColumns:  splitOrDefault(os.Getenv("FEATURE_COLUMNS"), config.Features.Include),
		ExcludeColumns:  splitOrDefault(os.Getenv("EXCLUDE_COLUMNS"), config.Features.Exclude),
		MaxCategories:   getIntFromEnvOrConfig("MAX_CATEGORIES", config.Features.MaxCategories, 10),
		UnseenPolicy:    getEnvOrDefault("UNSEEN_POLICY", defaultString(config.Features.UnseenPolicy, "reject")),
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	name, err := getEnvRequired("DATASET_NAME")
	if err != nil {
		return Settings{}, err
	}

	cutoff, err := parseCutoff(os.Getenv("CUTOFF_TIME"))
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPath:        getEnvOrDefault("DATA_PATH", "data"),
		DatasetName:     name,
		ArtifactDir:     getEnvOrDefault("ARTIFACT_DIR", "artifacts"),
		ModelType:       getEnvOrDefault("MODEL_TYPE", "RandomForest"),
		CutoffTime:      cutoff,
		CensorWindow:    getDurationOrDefault("CENSOR_WINDOW", 7*24*time.Hour),
		CensorPolicy:    getEnvOrDefault("CENSOR_POLICY", "drop"),
		NonFailureLabel: getEnvOrDefault("NON_FAILURE_LABEL", "none"),
		FeatureColumns:  splitOrDefault(os.Getenv("FEATURE_COLUMNS"), nil),
		ExcludeColumns:  splitOrDefault(os.Getenv("EXCLUDE_COLUMNS"), nil),
		MaxCategories:   getIntOrDefault("MAX_CATEGORIES", 10),
		UnseenPolicy:    getEnvOrDefault("UNSEEN_POLICY", "reject"),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func parseCutoff(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("cutoff time is required (CUTOFF_TIME or training.cutoffTime, RFC3339)")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff time %q: %w", v, err)
	}
	return t, nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

// validateSettings performs validation of configuration values before any
// data is touched.
func validateSettings(settings *Settings) error {
	if settings.DatasetName == "" {
		return fmt.Errorf("dataset name is required")
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ArtifactDir == "" {
		return fmt.Errorf("artifact directory cannot be empty")
	}
	if settings.CutoffTime.IsZero() {
		return fmt.Errorf("cutoff time is required")
	}
	if settings.CensorWindow < 0 || settings.CensorWindow > 365*24*time.Hour {
		return fmt.Errorf("censor window must be between 0 and 8760h, got %v", settings.CensorWindow)
	}
	if settings.CensorPolicy != "drop" && settings.CensorPolicy != "relabel" {
		return fmt.Errorf("censor policy must be drop or relabel, got %q", settings.CensorPolicy)
	}
	if settings.NonFailureLabel == "" {
		return fmt.Errorf("non-failure label cannot be empty")
	}
	if settings.MaxCategories < 2 || settings.MaxCategories > 1000 {
		return fmt.Errorf("max categories must be between 2 and 1000, got %d", settings.MaxCategories)
	}
	if settings.UnseenPolicy != "reject" && settings.UnseenPolicy != "other" {
		return fmt.Errorf("unseen policy must be reject or other, got %q", settings.UnseenPolicy)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 or between 1024 and 65535, got %d", settings.MetricsPort)
	}
	return nil
}

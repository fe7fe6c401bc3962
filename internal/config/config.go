// Package config loads service settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/liamcoop/studentrisk/models"
)

// DatasetPostgres selects the student store as the metrics dataset.
const DatasetPostgres = "postgres"

type Config struct {
	Port            string
	DatabaseURL     string
	ArtifactsDir    string
	MetricsDataset  string
	CacheTTL        time.Duration
	UnknownSelector models.UnknownSelectorPolicy
	Required        []models.Selector
	TopN            int
	AllowedOrigins  []string
	LogLevel        string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.url", "")
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("metrics.dataset", "")
	v.SetDefault("metrics.cache_ttl", 5*time.Minute)
	v.SetDefault("models.unknown_selector", "fallback")
	v.SetDefault("models.required", []string{string(models.Baseline), string(models.Mitigated)})
	v.SetDefault("explain.top_n", 6)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "INFO")
}

// New returns a viper instance with defaults and environment bindings. Keys
// map to upper snake case variables (explain.top_n -> EXPLAIN_TOP_N); the
// historical PORT and DATABASE_URL names are bound explicitly.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	return v
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional .env and config files, then resolves every key.
func Load(configFile, dotEnvFile string) (*Config, error) {
	return Read(New(), configFile, dotEnvFile)
}

// Read is Load over a caller supplied viper instance, typically one with
// command line flags bound to it.
func Read(v *viper.Viper, configFile, dotEnvFile string) (*Config, error) {
	if err := LoadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return FromViper(v)
}

// FromViper converts resolved viper settings into a validated Config.
func FromViper(v *viper.Viper) (*Config, error) {
	policy, err := models.ParseUnknownSelectorPolicy(v.GetString("models.unknown_selector"))
	if err != nil {
		return nil, err
	}

	required, err := parseSelectors(v.GetStringSlice("models.required"))
	if err != nil {
		return nil, err
	}

	topN := v.GetInt("explain.top_n")
	if topN <= 0 {
		return nil, fmt.Errorf("explain.top_n must be positive, got %d", topN)
	}

	ttl := v.GetDuration("metrics.cache_ttl")
	if ttl < 0 {
		return nil, fmt.Errorf("metrics.cache_ttl must not be negative, got %s", ttl)
	}

	cfg := &Config{
		Port:            v.GetString("server.port"),
		DatabaseURL:     v.GetString("database.url"),
		ArtifactsDir:    v.GetString("artifacts.dir"),
		MetricsDataset:  v.GetString("metrics.dataset"),
		CacheTTL:        ttl,
		UnknownSelector: policy,
		Required:        required,
		TopN:            topN,
		AllowedOrigins:  splitList(v.GetStringSlice("cors.allowed_origins")),
		LogLevel:        v.GetString("log.level"),
	}

	if cfg.MetricsDataset == DatasetPostgres && cfg.DatabaseURL == "" {
		return nil, errors.New("metrics.dataset is postgres but database.url is empty")
	}
	return cfg, nil
}

func parseSelectors(names []string) ([]models.Selector, error) {
	var out []models.Selector
	for _, name := range splitList(names) {
		sel := models.Selector(name)
		known := false
		for _, s := range models.Selectors {
			if s == sel {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("models.required: unknown selector %q", name)
		}
		out = append(out, sel)
	}
	return out, nil
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stays flat and comparable: app.validate compares it against the zero value.
type Config struct {
	ServerPort  int    `mapstructure:"SERVER_PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DatabaseDbPath       string `mapstructure:"DATABASE_DB_PATH"`
	DatabaseCacheAddress string `mapstructure:"DATABASE_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DATABASE_CACHE_PORT"`

	RulesPath                string        `mapstructure:"RULES_PATH"`
	RequirementsCacheBackend string        `mapstructure:"REQUIREMENTS_CACHE_BACKEND"`
	RequirementsCacheTTL     time.Duration `mapstructure:"REQUIREMENTS_CACHE_TTL"`
	RequirementsCacheSize    int           `mapstructure:"REQUIREMENTS_CACHE_SIZE"`

	CompletionThreshold float64       `mapstructure:"COMPLETION_THRESHOLD"`
	RequiredSections    string        `mapstructure:"REQUIRED_SECTIONS"`
	AutosaveWindow      time.Duration `mapstructure:"AUTOSAVE_WINDOW"`

	DACServiceURL            string        `mapstructure:"DAC_SERVICE_URL"`
	DACSubmitTimeout         time.Duration `mapstructure:"DAC_SUBMIT_TIMEOUT"`
	DACMaxAttempts           int           `mapstructure:"DAC_MAX_ATTEMPTS"`
	PendingSubmissionTimeout time.Duration `mapstructure:"PENDING_SUBMISSION_TIMEOUT"`
}

const (
	CacheBackendMemory = "memory"
	CacheBackendValkey = "valkey"
	CacheBackendNone   = "none"
)

var defaults = map[string]any{
	"SERVER_PORT":                8280,
	"ENVIRONMENT":                "development",
	"LOG_LEVEL":                  "info",
	"DATABASE_DB_PATH":           "data/entryready.db",
	"DATABASE_CACHE_ADDRESS":     "",
	"DATABASE_CACHE_PORT":        0,
	"RULES_PATH":                 "rules.json",
	"REQUIREMENTS_CACHE_BACKEND": CacheBackendMemory,
	"REQUIREMENTS_CACHE_TTL":     5 * time.Minute,
	"REQUIREMENTS_CACHE_SIZE":    512,
	"COMPLETION_THRESHOLD":       70.0,
	"REQUIRED_SECTIONS":          "passport,personalInfo,travelInfo",
	"AUTOSAVE_WINDOW":            1500 * time.Millisecond,
	"DAC_SERVICE_URL":            "",
	"DAC_SUBMIT_TIMEOUT":         30 * time.Second,
	"DAC_MAX_ATTEMPTS":           3,
	"PENDING_SUBMISSION_TIMEOUT": 10 * time.Minute,
}

func InitConfig() (Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, envFile string) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) validate() error {
	switch c.RequirementsCacheBackend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendValkey:
		if c.DatabaseCacheAddress == "" || c.DatabaseCachePort == 0 {
			return errors.New("valkey requirements cache requires DATABASE_CACHE_ADDRESS and DATABASE_CACHE_PORT")
		}
	default:
		return errors.New("unknown REQUIREMENTS_CACHE_BACKEND: " + c.RequirementsCacheBackend)
	}

	if c.CompletionThreshold <= 0 || c.CompletionThreshold > 100 {
		return errors.New("COMPLETION_THRESHOLD must be within (0, 100]")
	}

	if c.DACMaxAttempts < 1 {
		return errors.New("DAC_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// Sections splits REQUIRED_SECTIONS into its trimmed, non-empty entries.
func (c Config) Sections() []string {
	var sections []string
	for _, section := range strings.Split(c.RequiredSections, ",") {
		if section = strings.TrimSpace(section); section != "" {
			sections = append(sections, section)
		}
	}
	return sections
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

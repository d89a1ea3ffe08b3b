// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like RECAPTCHA_SECRET_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if not found
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credentials from well-known environment
// variables when the config files leave them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Recaptcha.SiteKey == "" {
		if val := os.Getenv("RECAPTCHA_SITE_KEY"); val != "" {
			cfg.Recaptcha.SiteKey = val
		}
	}
	if cfg.Recaptcha.SecretKey == "" {
		if val := os.Getenv("RECAPTCHA_SECRET_KEY"); val != "" {
			cfg.Recaptcha.SecretKey = val
		}
	}
	if cfg.Replay.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Replay.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Recaptcha.ScoreThreshold == 0 {
		cfg.Recaptcha.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.Recaptcha.VerifyURL == "" {
		cfg.Recaptcha.VerifyURL = DefaultVerifyURL
	}
	if cfg.Recaptcha.ScriptURL == "" {
		cfg.Recaptcha.ScriptURL = DefaultScriptURL
	}
	if cfg.Recaptcha.Timeout == 0 {
		cfg.Recaptcha.Timeout = DefaultTimeoutMs
	}
	if cfg.Recaptcha.FreshTokenTTL == 0 {
		cfg.Recaptcha.FreshTokenTTL = DefaultFreshTokenTTLs
	}

	if cfg.Replay.TTLSeconds == 0 {
		cfg.Replay.TTLSeconds = DefaultFreshTokenTTLs
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields. Credential checks
// run through Resolve so the failure mode is identical to per-call
// resolution: fatal at startup, never deferred to first use.
func validateConfig(cfg *Config) error {
	resolved, err := cfg.Recaptcha.Resolve(nil)
	if err != nil {
		return err
	}
	cfg.Recaptcha = resolved

	if cfg.Recaptcha.ScoreThreshold < 0 || cfg.Recaptcha.ScoreThreshold > 1 {
		return fmt.Errorf("recaptcha.score_threshold must be within [0.0, 1.0]")
	}

	if cfg.Replay.Enabled && cfg.Replay.Redis.Address == "" {
		return fmt.Errorf("replay.redis.address is required when replay.enabled is true")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// internal/common/config/config.go
package config

import (
	"recaptcha-gate/internal/common/errors"
)

// Hard defaults for fields the deployment may omit.
const (
	DefaultScoreThreshold = 0.5
	DefaultVerifyURL      = "https://www.google.com/recaptcha/api/siteverify"
	DefaultScriptURL      = "https://www.google.com/recaptcha/api.js"
	DefaultTimeoutMs      = 10000
	DefaultFreshTokenTTLs = 120
)

// Config is the main application configuration struct. It is constructed
// once at startup and read-only thereafter.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Recaptcha RecaptchaConfig `mapstructure:"recaptcha"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// RecaptchaConfig holds the shared verification settings. SiteKey is public
// and embedded in served markup; SecretKey never leaves the server.
type RecaptchaConfig struct {
	SiteKey        string  `mapstructure:"site_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	VerifyURL      string  `mapstructure:"verify_url"`
	ScriptURL      string  `mapstructure:"script_url"`
	VerifyHostname bool    `mapstructure:"verify_hostname"`
	Timeout        int     `mapstructure:"timeout"`         // milliseconds
	FreshTokenTTL  int     `mapstructure:"fresh_token_ttl"` // seconds
}

// ReplayConfig controls the optional single-use token guard.
type ReplayConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
	Redis      RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Overrides carries optional per-call settings. Nil fields fall back to the
// shared configuration, which in turn falls back to hard defaults.
type Overrides struct {
	SiteKey        *string
	SecretKey      *string
	ScoreThreshold *float64
	VerifyURL      *string
	ScriptURL      *string
	VerifyHostname *bool
	Timeout        *int
}

// Resolve merges explicit overrides over the shared configuration and fills
// remaining gaps with hard defaults. It fails with MISSING_CREDENTIAL when
// siteKey or secret is still absent afterwards; callers are expected to run
// this at initialization so misconfiguration never reaches a live request.
func (r RecaptchaConfig) Resolve(o *Overrides) (RecaptchaConfig, error) {
	eff := r
	if o != nil {
		if o.SiteKey != nil {
			eff.SiteKey = *o.SiteKey
		}
		if o.SecretKey != nil {
			eff.SecretKey = *o.SecretKey
		}
		if o.ScoreThreshold != nil {
			eff.ScoreThreshold = *o.ScoreThreshold
		}
		if o.VerifyURL != nil {
			eff.VerifyURL = *o.VerifyURL
		}
		if o.ScriptURL != nil {
			eff.ScriptURL = *o.ScriptURL
		}
		if o.VerifyHostname != nil {
			eff.VerifyHostname = *o.VerifyHostname
		}
		if o.Timeout != nil {
			eff.Timeout = *o.Timeout
		}
	}

	if eff.ScoreThreshold == 0 {
		eff.ScoreThreshold = DefaultScoreThreshold
	}
	if eff.VerifyURL == "" {
		eff.VerifyURL = DefaultVerifyURL
	}
	if eff.ScriptURL == "" {
		eff.ScriptURL = DefaultScriptURL
	}
	if eff.Timeout == 0 {
		eff.Timeout = DefaultTimeoutMs
	}
	if eff.FreshTokenTTL == 0 {
		eff.FreshTokenTTL = DefaultFreshTokenTTLs
	}

	if eff.SiteKey == "" {
		return RecaptchaConfig{}, errors.NewMissingCredentialError("recaptcha.site_key")
	}
	if eff.SecretKey == "" {
		return RecaptchaConfig{}, errors.NewMissingCredentialError("recaptcha.secret_key")
	}

	return eff, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the host:port the message API binds to.
	Listen string `koanf:"listen" validate:"required"`

	// DBPath is the bolt database file holding the persisted policy record.
	DBPath string `koanf:"db_path" validate:"required"`

	// SeedDir optionally points at a directory of policy seed files
	// (JSON/YAML/TOML) loaded into an empty database on first run.
	SeedDir string `koanf:"seed_dir"`

	// SweepIntervalSeconds is how often expired overrides are swept.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds" validate:"required,gte=1"`

	// CacheSize bounds the list-match decision cache (entries).
	CacheSize int `koanf:"cache_size" validate:"required,gte=1"`

	// BloomFPRate is the target false-positive rate for the list prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"required,fp_rate"`

	// KDFIterations is the PBKDF2 work factor. Values below 100000 are rejected.
	KDFIterations int `koanf:"kdf_iterations" validate:"required,gte=100000"`

	// LockoutThreshold is the consecutive-failure count that trips the login throttle.
	LockoutThreshold int `koanf:"lockout_threshold" validate:"required,gte=1"`

	// LockoutSeconds is how long verify attempts are rejected once throttled.
	LockoutSeconds int `koanf:"lockout_seconds" validate:"required,gte=1"`

	// InternalURLPrefixes are URL prefixes classified as the engine's own
	// pages (block page, options, popup); always allowed to avoid redirect loops.
	InternalURLPrefixes []string `koanf:"internal_url_prefixes"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                  "prod",
	LogLevel:             "info",
	Listen:               "127.0.0.1:8317",
	DBPath:               "/var/lib/shieldd/policy.db",
	SeedDir:              "",
	SweepIntervalSeconds: 60,
	CacheSize:            1000,
	BloomFPRate:          0.01,
	KDFIterations:        150000,
	LockoutThreshold:     5,
	LockoutSeconds:       300,
	InternalURLPrefixes:  []string{"moz-extension://", "chrome-extension://", "about:"},
}

// validFPRate accepts false-positive rates strictly between 0 and 1.
func validFPRate(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return p > 0 && p < 1
}

// envLoader loads environment variables with the prefix "SHIELD_", lowercasing
// keys and splitting space/comma separated values into lists. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SHIELD_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "SHIELD_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads default values using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "fp_rate" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("fp_rate", validFPRate)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

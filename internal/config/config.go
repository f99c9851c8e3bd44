// Package config provides functionality for managing configuration options
// for the client using defaults, a config file, a .env file, environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Register policies decide whether registration logs the user in.
const (
	// RegisterPolicySession persists the session returned by registration.
	RegisterPolicySession = "session"
	// RegisterPolicyLogin requires a separate login after registration.
	RegisterPolicyLogin = "login"
)

// Store drivers supported for the durable session state.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const envPrefix = "PHOTOKEEPER_"

// Options holds the configuration values for the client.
type Options struct {
	// APIURL is the base URL of the photo API, e.g. http://localhost:8080/api.
	APIURL string `yaml:"api_url"`

	// StoreDriver selects the session backend: file, sqlite3 or postgres.
	StoreDriver string `yaml:"store_driver"`

	// StoreDSN is the file path (file, sqlite3) or connection string (postgres).
	StoreDSN string `yaml:"store_dsn"`

	// CAFile is an optional PEM bundle trusted for HTTPS API endpoints.
	CAFile string `yaml:"ca_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// RegisterPolicy is RegisterPolicySession or RegisterPolicyLogin.
	RegisterPolicy string `yaml:"register_policy"`

	// LandingView is where authenticated users go by default.
	LandingView string `yaml:"landing_view"`

	// BlobDir holds the image files materialized by the gallery.
	BlobDir string `yaml:"blob_dir"`

	// RequestTimeout bounds each API call. Zero means no timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Config is the path to the config file.
	Config string `yaml:"-"`

	// EnvFile is the path to an optional .env file.
	EnvFile string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		APIURL:         "http://localhost:8080/api",
		StoreDriver:    DriverFile,
		StoreDSN:       defaultStorePath(),
		LogLevel:       "warn",
		RegisterPolicy: RegisterPolicySession,
		LandingView:    "/dashboard",
		BlobDir:        filepath.Join(os.TempDir(), "photokeeper-blobs"),
		Config:         "photokeeper.yaml",
		EnvFile:        ".env",
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(dir, "photokeeper", "session.json")
}

// binding ties a flag to its environment variable and Options field.
type binding struct {
	flag  string
	env   string
	usage string
	field func(*Options) *string
}

var bindings = []binding{
	{"api-url", "API_URL", "photo API base URL", func(o *Options) *string { return &o.APIURL }},
	{"store", "STORE_DRIVER", "session store driver: file | sqlite3 | postgres", func(o *Options) *string { return &o.StoreDriver }},
	{"store-dsn", "STORE_DSN", "session store path or connection string", func(o *Options) *string { return &o.StoreDSN }},
	{"ca", "CA_FILE", "path to a CA bundle for HTTPS APIs", func(o *Options) *string { return &o.CAFile }},
	{"log-level", "LOG_LEVEL", "log level: debug | info | warn | error", func(o *Options) *string { return &o.LogLevel }},
	{"register-policy", "REGISTER_POLICY", "after registration: session | login", func(o *Options) *string { return &o.RegisterPolicy }},
	{"landing", "LANDING_VIEW", "default view after login", func(o *Options) *string { return &o.LandingView }},
	{"blob-dir", "BLOB_DIR", "directory for downloaded gallery images", func(o *Options) *string { return &o.BlobDir }},
}

// RegisterFlags declares the configuration flags on fs and returns the
// Options the flags are bound to. Pass the result to Load after parsing.
func RegisterFlags(fs *pflag.FlagSet) *Options {
	flags := Default()
	for _, b := range bindings {
		p := b.field(flags)
		fs.StringVar(p, b.flag, *p, b.usage)
	}
	fs.DurationVar(&flags.RequestTimeout, "timeout", flags.RequestTimeout, "per-request timeout (0 disables)")
	fs.StringVarP(&flags.Config, "config", "c", flags.Config, "path to config file")
	fs.StringVar(&flags.EnvFile, "env-file", flags.EnvFile, "path to .env file")
	return flags
}

// Load resolves the effective configuration. Values come from defaults,
// then the config file, then the environment (after loading the .env
// file), then flags explicitly set on fs.
func Load(fs *pflag.FlagSet, flags *Options) (*Options, error) {
	options := Default()

	envFile := options.EnvFile
	if fs != nil && fs.Changed("env-file") {
		envFile = flags.EnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error while reading env file: %w", err)
	}
	options.EnvFile = envFile

	options.Config = resolveConfigPath(fs, flags)
	if err := loadFile(options.Config, options); err != nil {
		return nil, err
	}

	if err := applyEnv(options); err != nil {
		return nil, err
	}

	if fs != nil && flags != nil {
		for _, b := range bindings {
			if fs.Changed(b.flag) {
				*b.field(options) = *b.field(flags)
			}
		}
		if fs.Changed("timeout") {
			options.RequestTimeout = flags.RequestTimeout
		}
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func resolveConfigPath(fs *pflag.FlagSet, flags *Options) string {
	if fs != nil && fs.Changed("config") {
		return flags.Config
	}
	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return configPath
	}
	return Default().Config
}

// loadFile reads a YAML (or JSON) config file. A missing file is not an error.
func loadFile(path string, options *Options) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, options); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func applyEnv(options *Options) error {
	for _, b := range bindings {
		if v := os.Getenv(envPrefix + b.env); v != "" {
			*b.field(options) = v
		}
	}
	if v := os.Getenv(envPrefix + "REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		options.RequestTimeout = d
	}
	return nil
}

// Validate checks option values that have a fixed set of choices.
func (o *Options) Validate() error {
	if o.APIURL == "" {
		return errors.New("api url must not be empty")
	}
	o.APIURL = strings.TrimRight(o.APIURL, "/")

	switch o.StoreDriver {
	case DriverFile, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", o.StoreDriver)
	}
	if o.StoreDSN == "" {
		return errors.New("store dsn must not be empty")
	}

	switch o.RegisterPolicy {
	case RegisterPolicySession, RegisterPolicyLogin:
	default:
		return fmt.Errorf("unknown register policy %q", o.RegisterPolicy)
	}

	if !strings.HasPrefix(o.LandingView, "/") {
		return fmt.Errorf("landing view %q must start with /", o.LandingView)
	}
	if o.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	return nil
}

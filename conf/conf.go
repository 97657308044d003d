package conf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type configKey struct{}

// EnvPrefix prefixes every environment variable that overrides the config.
const EnvPrefix = "QUERINO_"

// A Config holds options for the running service.
type Config struct {
	Debug      bool
	ListenAddr string `validate:"required,hostname_port"`
	// BaseURL is the public URL of the site, used in feeds
	BaseURL string `validate:"omitempty,url"`

	SessionSecret string `validate:"required,min=16"`

	// DatabaseURI is a connectable URI string
	DatabaseURI string `validate:"required"`

	LogLevel string `validate:"loglevel"`
	// LogFile, if set, receives JSON logs and is rotated at LogMaxSizeMB
	LogFile      string
	LogMaxSizeMB int `validate:"gte=0"`

	// AutosaveDelay is the quiet period before an edited draft is saved
	AutosaveDelay string `validate:"duration"`
	// AutosaveKeep is the number of autosave snapshots kept per document
	AutosaveKeep int `validate:"min=1,max=1000"`

	// GatewayURL is the LLM webhook used for suggestions; empty disables them
	GatewayURL string `validate:"omitempty,url"`
}

// String returns the config as a string.
func (c *Config) String() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	err := enc.Encode(c)
	if err != nil {
		panic(err)
	}
	return buf.String()
}

// FromPath loads a config from path and merges it into c.
func (c *Config) FromPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.FromReader(f)
}

// FromReader loads a config from the reader r.
func (c *Config) FromReader(r io.Reader) error {
	return json.NewDecoder(r).Decode(c)
}

// FromEnv overrides fields with QUERINO_* environment variables, eg.
// QUERINO_LISTEN_ADDR or QUERINO_AUTOSAVE_KEEP.  lookup is usually
// os.LookupEnv.
func (c *Config) FromEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LISTEN_ADDR":    &c.ListenAddr,
		"BASE_URL":       &c.BaseURL,
		"SESSION_SECRET": &c.SessionSecret,
		"DATABASE_URI":   &c.DatabaseURI,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FILE":       &c.LogFile,
		"AUTOSAVE_DELAY": &c.AutosaveDelay,
		"GATEWAY_URL":    &c.GatewayURL,
	}
	for name, dest := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dest = v
		}
	}

	ints := map[string]*int{
		"AUTOSAVE_KEEP":   &c.AutosaveKeep,
		"LOG_MAX_SIZE_MB": &c.LogMaxSizeMB,
	}
	for name, dest := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dest = n
		}
	}

	if v, ok := lookup(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", EnvPrefix, err)
		}
		c.Debug = b
	}
	return nil
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	validate := validator.New()

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := parseLevel(fl.Field().String())
		return err == nil
	})

	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		d, err := time.ParseDuration(s)
		return err == nil && d > 0
	})

	if err := validate.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Delay returns the autosave quiet period.
func (c *Config) Delay() time.Duration {
	d, err := time.ParseDuration(c.AutosaveDelay)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// AddConfigMiddleware adds this config to the request contxt.
func (c *Config) AddConfigMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(c.WithConfig(r.Context())))
	})
}

// WithConfig adds this config to the context. Get it back out with
// conf.ConfigFromContext(ctx).
func (c *Config) WithConfig(ctx context.Context) context.Context {
	return context.WithValue(ctx, configKey{}, c)
}

// ConfigFromContext returns the config embedded within the context.
func ConfigFromContext(ctx context.Context) *Config {
	return ctx.Value(configKey{}).(*Config)
}

// Default returns a sensible default config.
func Default() *Config {
	c := &Config{}
	c.ListenAddr = "0.0.0.0:7000"
	c.SessionSecret = "SET-IN-CONFIG-FILE"
	c.DatabaseURI = "./querino.db"
	c.LogLevel = "info"
	c.LogMaxSizeMB = 50
	c.AutosaveDelay = "2s"
	c.AutosaveKeep = 10
	return c
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Target is one probed path.
type Target struct {
	Name string `validate:"required,printascii"`
	Path string `validate:"required,startswith=/"`
}

// Config holds application configuration values.
type Config struct {
	Env   string `validate:"required,oneof=dev prod"`
	Probe struct {
		Endpoint    string        `validate:"required,url"`
		Tries       int           `validate:"gte=1,lte=10"`
		Targets     []Target      `validate:"required,min=1,dive"`
		Schedule    string        `validate:"required"`
		UserAgent   string
		BearerToken string
		Username    string
		Password    string
		Rate        float64       `validate:"gte=0"`
		Timeout     time.Duration `validate:"gt=0"`
	}
	Journal struct {
		DSN string `validate:"required"`
	}
	Telegram struct {
		Token    string
		ChatID   int64
		Cooldown time.Duration `validate:"gte=0"`
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var err error
	c.Env = getenv("ENV", "prod")

	c.Probe.Endpoint = os.Getenv("PROBE_ENDPOINT")
	if c.Probe.Tries, err = getint("PROBE_TRIES", 2); err != nil {
		return Config{}, err
	}
	if c.Probe.Targets, err = ParseTargets(getenv("PROBE_TARGETS", "root=/")); err != nil {
		return Config{}, err
	}
	c.Probe.Schedule = getenv("PROBE_SCHEDULE", "@every 1m")
	c.Probe.UserAgent = os.Getenv("PROBE_USER_AGENT")
	c.Probe.BearerToken = os.Getenv("PROBE_BEARER_TOKEN")
	c.Probe.Username = os.Getenv("PROBE_USERNAME")
	c.Probe.Password = os.Getenv("PROBE_PASSWORD")
	if c.Probe.Rate, err = getfloat("PROBE_RATE", 0); err != nil {
		return Config{}, err
	}
	if c.Probe.Timeout, err = getduration("PROBE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	c.Journal.DSN = getenv("JOURNAL_DSN", "sqlite://data/journal.db")

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if c.Telegram.ChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
	}

	if c.Telegram.Cooldown, err = getduration("TELEGRAM_COOLDOWN", 10*time.Minute); err != nil {
		return Config{}, err
	}

	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/probe.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == 0) {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return c, nil
}

// ParseTargets reads "name=/path,name2=/other". A bare path is named after
// itself.
func ParseTargets(s string) ([]Target, error) {
	var out []Target
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, path, ok := strings.Cut(part, "=")
		if !ok {
			path = name
			name = strings.Trim(strings.ReplaceAll(name, "/", "-"), "-")
			if name == "" {
				name = "root"
			}
		}
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("PROBE_TARGETS: duplicate target %q", name)
		}
		seen[name] = struct{}{}
		out = append(out, Target{Name: name, Path: path})
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getfloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

// Package config loads environment variables and provides a typed Config used across the service.
// It applies defaults so the bot runs with only the two Slack tokens set. Anything malformed is
// reported as ErrInvalid and the process must not start.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// MaxConfirmCap is the largest supported vote threshold.
const MaxConfirmCap = 10

type Config struct {
	// Slack
	BotToken string
	AppToken string

	// Voting
	ConfirmCap       int
	PinCooldown      time.Duration
	SessionMaxAge    time.Duration
	SweepInterval    time.Duration
	ApproveEmoji     string
	RejectEmoji      string
	NotifyPinFailure bool

	// Ops
	HTTPAddr string
	DBDsn    string // empty disables pin history
}

// Load reads environment variables and applies defaults. All problems are collected and
// returned together, wrapped in ErrInvalid.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:         strings.TrimSpace(os.Getenv("TOKEN")),
		AppToken:         strings.TrimSpace(os.Getenv("APP_TOKEN")),
		ApproveEmoji:     emojiEnv("APPROVE_EMOJI", "white_check_mark"),
		RejectEmoji:      emojiEnv("REJECT_EMOJI", "x"),
		NotifyPinFailure: boolEnv("NOTIFY_PIN_FAILURE"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		DBDsn:            os.Getenv("DB_DSN"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var problems []string
	if cfg.BotToken == "" {
		problems = append(problems, "TOKEN is required")
	}
	if cfg.AppToken == "" {
		problems = append(problems, "APP_TOKEN is required (Socket Mode app-level token)")
	}

	cfg.ConfirmCap = 3
	if v := strings.TrimSpace(os.Getenv("CONFIRM_CAP")); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("CONFIRM_CAP must be an integer, got %q", v))
		case n < 0 || n > MaxConfirmCap:
			problems = append(problems, fmt.Sprintf("CONFIRM_CAP must be between 0 and %d, got %d", MaxConfirmCap, n))
		default:
			cfg.ConfirmCap = n
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
		def time.Duration
	}{
		{"PIN_COOLDOWN", &cfg.PinCooldown, 5 * time.Second},
		{"SESSION_MAX_AGE", &cfg.SessionMaxAge, time.Hour},
		{"SWEEP_INTERVAL", &cfg.SweepInterval, 5 * time.Minute},
	}
	for _, d := range durations {
		v, err := durationEnv(d.env, d.def)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		*d.dst = v
	}

	if cfg.ApproveEmoji == cfg.RejectEmoji {
		problems = append(problems, "APPROVE_EMOJI and REJECT_EMOJI must differ")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// HistoryEnabled reports whether pin outcomes are persisted.
func (c *Config) HistoryEnabled() bool { return c.DBDsn != "" }

// durationEnv parses a Go duration ("90s", "1h") or a bare number of seconds. Zero and negative
// values are rejected.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		secs, nerr := strconv.Atoi(v)
		if nerr != nil {
			return 0, fmt.Errorf("%s must be a duration or a number of seconds, got %q", key, v)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

func emojiEnv(key, def string) string {
	v := strings.Trim(strings.TrimSpace(os.Getenv(key)), ":")
	if v == "" {
		return def
	}
	return v
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

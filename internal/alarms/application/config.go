package application

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	alarms "refundtrack/internal/alarms/domain"
)

// Config defines alarm engine configuration: system default thresholds,
// the daily schedule, and notification delivery settings. WebhookURL may
// hold a comma-separated list; every endpoint receives each notification.
type Config struct {
	Defaults       alarms.Defaults `yaml:"defaults"`
	DailyAt        string          `yaml:"daily_at"`
	WebhookURL     string          `yaml:"webhook_url"`
	NotifyTemplate string          `yaml:"notify_template"`
}

// WebhookURLs returns the configured webhook endpoints.
func (c Config) WebhookURLs() []string {
	var urls []string
	for _, part := range strings.Split(c.WebhookURL, ",") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

// LoadConfig loads alarm configuration from yaml (ALARM_CONFIG path) with
// env overrides and built-in defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: alarms.Defaults{
			FederalInProcessDays:    21,
			StateInProcessDays:      30,
			VerificationTimeoutDays: 30,
			LetterSentTimeoutDays:   45,
		},
		DailyAt:    "06:00",
		WebhookURL: os.Getenv("ALARM_WEBHOOK_URL"),
	}

	if path := os.Getenv("ALARM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Defaults.FederalInProcessDays = getenvIntDefault("ALARM_FEDERAL_IN_PROCESS_DAYS", cfg.Defaults.FederalInProcessDays)
	cfg.Defaults.StateInProcessDays = getenvIntDefault("ALARM_STATE_IN_PROCESS_DAYS", cfg.Defaults.StateInProcessDays)
	cfg.Defaults.VerificationTimeoutDays = getenvIntDefault("ALARM_VERIFICATION_TIMEOUT_DAYS", cfg.Defaults.VerificationTimeoutDays)
	cfg.Defaults.LetterSentTimeoutDays = getenvIntDefault("ALARM_LETTER_SENT_TIMEOUT_DAYS", cfg.Defaults.LetterSentTimeoutDays)
	if v := os.Getenv("ALARM_DAILY_AT"); v != "" {
		cfg.DailyAt = v
	}
	if v := os.Getenv("ALARM_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("ALARM_NOTIFY_TEMPLATE"); v != "" {
		cfg.NotifyTemplate = v
	}
	if _, _, err := parseDailyAt(cfg.DailyAt); err != nil {
		return cfg, fmt.Errorf("daily_at %q: %w", cfg.DailyAt, err)
	}
	return cfg, nil
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

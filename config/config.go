package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/classifier"

	"github.com/joho/godotenv"
)

// DefaultConfigName is the optional dotenv file read before the environment.
const DefaultConfigName = "settings.env"

type Configuration struct {
	LDAPURL            string
	BaseDN             string
	BindDN             string
	Password           string
	PasswordSSMKey     string
	InsecureSkipVerify bool
	PageSize           uint32

	Thresholds []int
	HandsOff   []string

	ArtifactsBucket string
	S3Endpoint      string
	S3Region        string

	SlackSigningSecret string
	SlackAPIToken      string
	SlackChannelID     string
	WebhookMaxSkew     time.Duration

	SFNArn      string
	SFNEndpoint string

	Timezone       string
	ScanSchedule   string
	DatabaseURL    string
	DisableActor   string
	ListenAddr     string
	LogLevel       string
	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadEnvConfig loads configName if it exists, then reads the environment.
// Variables already set in the environment win over the file.
func LoadEnvConfig(configName string) (*Configuration, error) {
	if configName != "" {
		if _, err := os.Stat(configName); err == nil {
			if err := godotenv.Load(configName); err != nil {
				return nil, fmt.Errorf("error loading %s: %w", configName, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading %s: %w", configName, err)
		}
	}

	cfg := &Configuration{
		LDAPURL:            os.Getenv("LDAP_URL"),
		BaseDN:             os.Getenv("LDAP_SEARCH_BASE"),
		BindDN:             os.Getenv("LDAP_BIND_DN"),
		Password:           os.Getenv("LDAP_PASSWORD"),
		PasswordSSMKey:     os.Getenv("LDAP_PASSWORD_SSM_KEY"),
		ArtifactsBucket:    os.Getenv("ARTIFACTS_BUCKET"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3Region:           getenv("S3_REGION", "us-east-1"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		SlackAPIToken:      os.Getenv("SLACK_API_TOKEN"),
		SlackChannelID:     os.Getenv("SLACK_CHANNEL_ID"),
		SFNArn:             os.Getenv("SFN_ARN"),
		SFNEndpoint:        os.Getenv("SFN_ENDPOINT"),
		Timezone:           getenv("TIMEZONE", "UTC"),
		ScanSchedule:       getenv("SCAN_SCHEDULE", "@weekly"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DisableActor:       getenv("DISABLE_ACTOR", "ldapmaintbot"),
		ListenAddr:         getenv("LISTEN_ADDR", ":8080"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.InsecureSkipVerify, err = parseBool("LDAP_INSECURE_SKIP_VERIFY", false); err != nil {
		return nil, err
	}
	pageSize, err := parseInt("LDAP_PAGE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("LDAP_PAGE_SIZE must be positive, got %d", pageSize)
	}
	cfg.PageSize = uint32(pageSize)

	if cfg.Thresholds, err = parseThresholds(getenv("DAYS_SINCE_PWDLASTSET", "120")); err != nil {
		return nil, err
	}
	if raw := os.Getenv("HANDS_OFF_ACCOUNTS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.HandsOff); err != nil {
			return nil, fmt.Errorf("HANDS_OFF_ACCOUNTS must be a JSON list of patterns: %w", err)
		}
	}
	if cfg.WebhookMaxSkew, err = parseDuration("WEBHOOK_MAX_SKEW", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = parseFloat("RATE_LIMIT_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = parseInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing value a directory scan needs.
func (c *Configuration) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"LDAP_URL":         c.LDAPURL,
		"LDAP_SEARCH_BASE": c.BaseDN,
		"LDAP_BIND_DN":     c.BindDN,
		"ARTIFACTS_BUCKET": c.ArtifactsBucket,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if c.Password == "" && c.PasswordSSMKey == "" {
		missing = append(missing, "LDAP_PASSWORD or LDAP_PASSWORD_SSM_KEY")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid stale policy: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateChat reports missing values the chat integration needs.
func (c *Configuration) ValidateChat() error {
	var missing []string
	if c.SlackSigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if c.SlackAPIToken == "" {
		missing = append(missing, "SLACK_API_TOKEN")
	}
	if c.SlackChannelID == "" {
		missing = append(missing, "SLACK_CHANNEL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Configuration) DirectorySettings() activedirectory.Settings {
	return activedirectory.Settings{
		URL:                c.LDAPURL,
		BaseDN:             c.BaseDN,
		BindDN:             c.BindDN,
		Password:           c.Password,
		PageSize:           c.PageSize,
		InsecureSkipVerify: c.InsecureSkipVerify,

		ExcludedControlCodes: classifier.ExcludedControlCodes(),
	}
}

func (c *Configuration) Policy() classifier.Policy {
	return classifier.Policy{Thresholds: c.Thresholds, HandsOff: c.HandsOff}
}

// Location resolves Timezone for report timestamps.
func (c *Configuration) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: failed to parse boolean: %w", key, err)
	}
	return v, nil
}

func parseInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse integer: %w", key, err)
	}
	return v, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse number: %w", key, err)
	}
	return v, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse duration: %w", key, err)
	}
	return v, nil
}

// parseThresholds reads a comma separated list of day counts.
func parseThresholds(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("DAYS_SINCE_PWDLASTSET: failed to parse integer %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Package supplier implements the HTTP integrations with external voucher suppliers.
package supplier

import (
	"errors"
	"strings"
	"time"
)

// Defaults shared by both supplier integrations
const (
	DefaultTimeoutSeconds = 30
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = 500 * time.Millisecond
)

// Errors for supplier configuration
var (
	ErrConfigMissingBaseURL     = errors.New("supplier: base url is required")
	ErrConfigMissingAPIKey      = errors.New("supplier: api key is required")
	ErrConfigMissingAccessToken = errors.New("supplier: access token is required")
	ErrConfigMissingAPISecret   = errors.New("supplier: api secret is required")
)

// RetryPolicy bounds retries of a single supplier request. Only connectivity
// failures and 5xx responses are retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = DefaultRetryDelay
	}
}

// EzCardsConfig holds configuration for the asynchronous supplier
type EzCardsConfig struct {
	BaseURL        string
	APIKey         string
	AccessToken    string
	TimeoutSeconds int
	Retry          RetryPolicy
}

// Validate validates the configuration and fills defaults
func (c *EzCardsConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrConfigMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.AccessToken == "" {
		return ErrConfigMissingAccessToken
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	c.Retry.applyDefaults()
	return nil
}

// Gift2GamesConfig holds configuration for the synchronous supplier
type Gift2GamesConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	TimeoutSeconds int
	Retry          RetryPolicy
}

// Validate validates the configuration and fills defaults
func (c *Gift2GamesConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrConfigMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.APISecret == "" {
		return ErrConfigMissingAPISecret
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	c.Retry.applyDefaults()
	return nil
}

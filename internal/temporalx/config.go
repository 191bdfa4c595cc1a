package temporalx

import (
	"strings"
	"time"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	// AutoRegisterNamespace creates the namespace when it is missing. Only
	// meant for local and self-hosted clusters.
	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout    time.Duration
	DialMaxWait    time.Duration
	StartMaxWait   time.Duration
	Backoff        time.Duration
	BackoffMax     time.Duration
	MaxConcurrency int
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	c.Namespace = stringsOr(c.Namespace, "study-companion")
	c.TaskQueue = stringsOr(c.TaskQueue, "study-companion")
	if c.RetentionDays < 1 {
		c.RetentionDays = 7
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.StartMaxWait < 0 {
		c.StartMaxWait = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 4
	}
	return c
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

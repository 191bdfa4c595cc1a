package qdrant

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	URL             string
	Collection      string
	NamespacePrefix string
	VectorDim       int
	// Distance is used only when AutoCreate creates the collection.
	Distance   string
	AutoCreate bool
	Timeout    time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c Config) distance() string {
	switch strings.ToLower(strings.TrimSpace(c.Distance)) {
	case "dot":
		return "Dot"
	case "euclid":
		return "Euclid"
	default:
		return "Cosine"
	}
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorMissingVectorDim  ConfigErrorCode = "missing_vector_dim"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

var configErrorText = map[ConfigErrorCode]string{
	ConfigErrorMissingURL:        "QDRANT_URL is required",
	ConfigErrorInvalidURL:        "QDRANT_URL must be an absolute URL like http://qdrant:6333",
	ConfigErrorMissingCollection: "QDRANT_COLLECTION is required",
	ConfigErrorMissingVectorDim:  "QDRANT_VECTOR_DIM is required",
	ConfigErrorInvalidVectorDim:  "QDRANT_VECTOR_DIM must be a positive integer",
}

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	msg, ok := configErrorText[e.Code]
	if !ok {
		msg = "invalid qdrant config"
	}
	if e.Value != "" {
		msg = fmt.Sprintf("%s (got %q)", msg, e.Value)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ValidateConfig reports the first missing or malformed field.
func ValidateConfig(cfg Config) error {
	switch {
	case cfg.URL == "":
		return &ConfigError{Code: ConfigErrorMissingURL}
	case !validURL(cfg.URL):
		return invalidURL(cfg.URL)
	case strings.TrimSpace(cfg.Collection) == "":
		return &ConfigError{Code: ConfigErrorMissingCollection}
	case cfg.VectorDim == 0:
		return &ConfigError{Code: ConfigErrorMissingVectorDim}
	case cfg.VectorDim < 0:
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: fmt.Sprint(cfg.VectorDim)}
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func invalidURL(raw string) error {
	_, err := url.Parse(raw)
	return &ConfigError{Code: ConfigErrorInvalidURL, Value: raw, Cause: err}
}

package domain

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// Config sections and keys read by the engine.
const (
	SectionBuild       = "build"
	SectionCache       = "cache"
	SectionEvents      = "events"
	SectionDaemon      = "daemon"
	SectionWorkerPools = "worker_pools"

	KeyThreads          = "threads"
	KeyNoCache          = "no_cache"
	KeyMode             = "mode"
	KeyDir              = "dir"
	KeyRedisAddr        = "redis_addr"
	KeyRedisTTL         = "redis_ttl"
	KeyTimeout          = "timeout"
	KeyRuleKeyCacheSize = "rulekey_cache_size"
	KeyStore            = "store"
	KeyQueryTimeout     = "query_timeout"
	KeyPollInterval     = "poll_interval"
	KeyIdleTimeout      = "idle_timeout"
	KeyMetricsAddr      = "metrics_addr"
)

// Config is a read-only set of sections, each a string to string mapping.
type Config struct {
	sections map[string]map[string]string
}

// NewConfig copies sections into a Config.
func NewConfig(sections map[string]map[string]string) Config {
	c := Config{sections: make(map[string]map[string]string, len(sections))}
	for name, kv := range sections {
		c.sections[name] = maps.Clone(kv)
	}
	return c
}

// Value returns the raw value of a key.
func (c Config) Value(section, key string) (string, bool) {
	v, ok := c.sections[section][key]
	return v, ok
}

// String returns a value or def when it is unset.
func (c Config) String(section, key, def string) string {
	if v, ok := c.Value(section, key); ok {
		return v
	}
	return def
}

// Bool returns a boolean value or def when it is unset.
func (c Config) Bool(section, key string, def bool) (bool, error) {
	v, ok := c.Value(section, key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, invalidConfigValue(section, key, v)
	}
	return b, nil
}

// Int returns an integer value or def when it is unset.
func (c Config) Int(section, key string, def int) (int, error) {
	v, ok := c.Value(section, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, invalidConfigValue(section, key, v)
	}
	return n, nil
}

// Duration returns a duration value such as "250ms" or def when it is unset.
func (c Config) Duration(section, key string, def time.Duration) (time.Duration, error) {
	v, ok := c.Value(section, key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, invalidConfigValue(section, key, v)
	}
	return d, nil
}

// List returns a space separated value as a list.
func (c Config) List(section, key string) []string {
	v, ok := c.Value(section, key)
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// Section returns a copy of a section.
func (c Config) Section(name string) map[string]string {
	return maps.Clone(c.sections[name])
}

// Sections returns the section names in sorted order.
func (c Config) Sections() []string {
	return slices.Sorted(maps.Keys(c.sections))
}

// With returns a copy of c with one value overridden.
func (c Config) With(section, key, value string) Config {
	out := NewConfig(c.sections)
	if out.sections[section] == nil {
		out.sections[section] = make(map[string]string)
	}
	out.sections[section][key] = value
	return out
}

func invalidConfigValue(section, key, value string) error {
	err := zerr.With(ErrInvalidConfigValue, "section", section)
	err = zerr.With(err, "key", key)
	return zerr.With(err, "value", value)
}

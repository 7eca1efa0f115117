package config

import "sync/atomic"

// Holder publishes the current configuration to readers while allowing an
// administrative operation to replace it atomically. Requests snapshot the
// pointer once (Get) and never observe a half-applied reload.
type Holder struct {
	p atomic.Pointer[Config]
}

func NewHolder(c *Config) *Holder {
	h := &Holder{}
	h.p.Store(c)
	return h
}

// Get returns the current configuration snapshot.
func (h *Holder) Get() *Config { return h.p.Load() }

// Swap installs a new configuration.
func (h *Holder) Swap(c *Config) { h.p.Store(c) }

// Reload rebuilds the configuration from the environment and optional
// config file and installs it.
func (h *Holder) Reload() (*Config, error) {
	c, err := Load()
	if err != nil {
		return nil, err
	}
	h.p.Store(c)
	return c, nil
}

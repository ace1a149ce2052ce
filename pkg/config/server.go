package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDServer is the identifier for the HTTP server section
	SectionIDServer = "server"

	defaultAddr              = ":3000"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

// ServerSection configures the HTTP listener.
type ServerSection struct {
	Addr              string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	mu                sync.RWMutex
}

// NewServerSection creates a server section with default settings.
func NewServerSection() *ServerSection {
	s := &ServerSection{}
	s.Reset()
	return s
}

func (s *ServerSection) ID() string    { return SectionIDServer }
func (s *ServerSection) Title() string { return "Server" }
func (s *ServerSection) Description() string {
	return "HTTP listener address, timeouts and allowed CORS origins."
}

// Data returns the current configuration data.
func (s *ServerSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"addr":                s.Addr,
		"read_header_timeout": s.ReadHeaderTimeout.String(),
		"shutdown_timeout":    s.ShutdownTimeout.String(),
		"allowed_origins":     append([]string(nil), s.AllowedOrigins...),
	}
}

// SetData updates the configuration from the provided data.
func (s *ServerSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for key, value := range data {
		switch key {
		case "addr":
			s.Addr, err = asString(key, value)
		case "read_header_timeout":
			s.ReadHeaderTimeout, err = asDuration(key, value)
		case "shutdown_timeout":
			s.ShutdownTimeout, err = asDuration(key, value)
		case "allowed_origins":
			s.AllowedOrigins, err = asStringSlice(key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *ServerSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if s.ReadHeaderTimeout <= 0 || s.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ServerSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Addr = defaultAddr
	s.ReadHeaderTimeout = defaultReadHeaderTimeout
	s.ShutdownTimeout = defaultShutdownTimeout
	s.AllowedOrigins = nil
}

// Snapshot returns a copy of the current values without the lock.
func (s *ServerSection) Snapshot() ServerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerSettings{
		Addr:              s.Addr,
		AllowedOrigins:    append([]string(nil), s.AllowedOrigins...),
		ReadHeaderTimeout: s.ReadHeaderTimeout,
		ShutdownTimeout:   s.ShutdownTimeout,
	}
}

// ServerSettings is a lock-free copy of ServerSection.
type ServerSettings struct {
	Addr              string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

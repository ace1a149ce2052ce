package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDAgent is the identifier for the agent run section
	SectionIDAgent = "agent"

	defaultMaxSteps          = 20
	defaultRunTimeout        = 5 * time.Minute
	defaultLagMsMin          = 35
	defaultLagMsMax          = 140
	defaultLagMsCap          = 2000
	defaultScriptTimeoutSec  = 60
	defaultHeartbeatInterval = 15 * time.Second
)

// AgentSection configures agent runs and stream pacing.
type AgentSection struct {
	RunTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxSteps          int
	LagMsMin          int
	LagMsMax          int
	LagMsCap          int
	ScriptTimeoutSec  int
	AttachScreenshots bool
	mu                sync.RWMutex
}

// NewAgentSection creates an agent section with default settings.
func NewAgentSection() *AgentSection {
	s := &AgentSection{}
	s.Reset()
	return s
}

func (s *AgentSection) ID() string          { return SectionIDAgent }
func (s *AgentSection) Title() string       { return "Agent" }
func (s *AgentSection) Description() string { return "Step limits, timeouts and stream pacing for agent runs." }

// Data returns the current configuration data.
func (s *AgentSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"max_steps":          s.MaxSteps,
		"run_timeout":        s.RunTimeout.String(),
		"lag_ms_min":         s.LagMsMin,
		"lag_ms_max":         s.LagMsMax,
		"lag_ms_cap":         s.LagMsCap,
		"script_timeout_sec": s.ScriptTimeoutSec,
		"attach_screenshots": s.AttachScreenshots,
		"heartbeat_interval": s.HeartbeatInterval.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *AgentSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for key, value := range data {
		switch key {
		case "max_steps":
			s.MaxSteps, err = asInt(key, value)
		case "run_timeout":
			s.RunTimeout, err = asDuration(key, value)
		case "lag_ms_min":
			s.LagMsMin, err = asInt(key, value)
		case "lag_ms_max":
			s.LagMsMax, err = asInt(key, value)
		case "lag_ms_cap":
			s.LagMsCap, err = asInt(key, value)
		case "script_timeout_sec":
			s.ScriptTimeoutSec, err = asInt(key, value)
		case "attach_screenshots":
			s.AttachScreenshots, err = asBool(key, value)
		case "heartbeat_interval":
			s.HeartbeatInterval, err = asDuration(key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *AgentSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", s.MaxSteps)
	}
	if s.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %v", s.RunTimeout)
	}
	if s.LagMsCap < 0 {
		return fmt.Errorf("lag_ms_cap must not be negative, got %d", s.LagMsCap)
	}
	if s.ScriptTimeoutSec <= 0 {
		return fmt.Errorf("script_timeout_sec must be positive, got %d", s.ScriptTimeoutSec)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *AgentSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.MaxSteps = defaultMaxSteps
	s.RunTimeout = defaultRunTimeout
	s.LagMsMin = defaultLagMsMin
	s.LagMsMax = defaultLagMsMax
	s.LagMsCap = defaultLagMsCap
	s.ScriptTimeoutSec = defaultScriptTimeoutSec
	s.AttachScreenshots = true
	s.HeartbeatInterval = defaultHeartbeatInterval
}

// Snapshot returns a copy of the current values.
func (s *AgentSection) Snapshot() AgentSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return AgentSettings{
		RunTimeout:        s.RunTimeout,
		HeartbeatInterval: s.HeartbeatInterval,
		MaxSteps:          s.MaxSteps,
		LagMsMin:          s.LagMsMin,
		LagMsMax:          s.LagMsMax,
		LagMsCap:          s.LagMsCap,
		ScriptTimeoutSec:  s.ScriptTimeoutSec,
		AttachScreenshots: s.AttachScreenshots,
	}
}

// AgentSettings is a lock-free copy of AgentSection.
type AgentSettings struct {
	RunTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxSteps          int
	LagMsMin          int
	LagMsMax          int
	LagMsCap          int
	ScriptTimeoutSec  int
	AttachScreenshots bool
}

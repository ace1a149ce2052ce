package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser provider section
	SectionIDBrowser = "browser"

	// ProviderKernel drives remote sessions through the Kernel HTTP API
	ProviderKernel = "kernel"
	// ProviderLocal drives a locally launched Chromium via playwright
	ProviderLocal = "local"

	defaultKernelBaseURL       = "https://api.onkernel.com"
	defaultRecentWindow        = 15 * time.Second
	defaultCoalesceWait        = 20 * time.Second
	defaultNormalizeTimeoutSec = 20
)

var defaultIgnoredPagePatterns = []string{"chrome-extension://*", "about:blank", "devtools://*"}

// BrowserSection configures the session provider and provisioning policy.
type BrowserSection struct {
	Provider            string
	KernelBaseURL       string
	IgnoredPagePatterns []string
	RecentWindow        time.Duration
	CoalesceWait        time.Duration
	NormalizeTimeoutSec int
	Stealth             bool
	Headless            bool
	mu                  sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

func (s *BrowserSection) ID() string    { return SectionIDBrowser }
func (s *BrowserSection) Title() string { return "Browser" }
func (s *BrowserSection) Description() string {
	return "Browser session provider, creation options and page normalization."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"provider":              s.Provider,
		"kernel_base_url":       s.KernelBaseURL,
		"stealth":               s.Stealth,
		"headless":              s.Headless,
		"recent_window":         s.RecentWindow.String(),
		"coalesce_wait":         s.CoalesceWait.String(),
		"normalize_timeout_sec": s.NormalizeTimeoutSec,
		"ignored_page_patterns": append([]string(nil), s.IgnoredPagePatterns...),
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for key, value := range data {
		switch key {
		case "provider":
			s.Provider, err = asString(key, value)
		case "kernel_base_url":
			s.KernelBaseURL, err = asString(key, value)
		case "stealth":
			s.Stealth, err = asBool(key, value)
		case "headless":
			s.Headless, err = asBool(key, value)
		case "recent_window":
			s.RecentWindow, err = asDuration(key, value)
		case "coalesce_wait":
			s.CoalesceWait, err = asDuration(key, value)
		case "normalize_timeout_sec":
			s.NormalizeTimeoutSec, err = asInt(key, value)
		case "ignored_page_patterns":
			s.IgnoredPagePatterns, err = asStringSlice(key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Provider {
	case ProviderKernel, ProviderLocal:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderKernel, ProviderLocal, s.Provider)
	}
	if s.RecentWindow < 0 || s.CoalesceWait < 0 {
		return fmt.Errorf("recent_window and coalesce_wait must not be negative")
	}
	if s.NormalizeTimeoutSec <= 0 {
		return fmt.Errorf("normalize_timeout_sec must be positive, got %d", s.NormalizeTimeoutSec)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Provider = ProviderKernel
	s.KernelBaseURL = defaultKernelBaseURL
	s.Stealth = true
	s.Headless = false
	s.RecentWindow = defaultRecentWindow
	s.CoalesceWait = defaultCoalesceWait
	s.NormalizeTimeoutSec = defaultNormalizeTimeoutSec
	s.IgnoredPagePatterns = append([]string(nil), defaultIgnoredPagePatterns...)
}

// Snapshot returns a copy of the current values.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BrowserSettings{
		Provider:            s.Provider,
		KernelBaseURL:       s.KernelBaseURL,
		IgnoredPagePatterns: append([]string(nil), s.IgnoredPagePatterns...),
		RecentWindow:        s.RecentWindow,
		CoalesceWait:        s.CoalesceWait,
		NormalizeTimeoutSec: s.NormalizeTimeoutSec,
		Stealth:             s.Stealth,
		Headless:            s.Headless,
	}
}

// BrowserSettings is a lock-free copy of BrowserSection.
type BrowserSettings struct {
	Provider            string
	KernelBaseURL       string
	IgnoredPagePatterns []string
	RecentWindow        time.Duration
	CoalesceWait        time.Duration
	NormalizeTimeoutSec int
	Stealth             bool
	Headless            bool
}

package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Config bundles the typed sections registered with a manager.
type Config struct {
	Manager *Manager
	Server  *ServerSection
	Browser *BrowserSection
	Agent   *AgentSection
}

// Load creates a manager over the YAML file at configPath, registers the
// default sections and applies persisted values. An empty path selects
// ~/.browserpilot/config.yaml.
func Load(configPath string) (*Config, error) {
	store, err := NewFileStore(configPath)
	if err != nil {
		return nil, err
	}
	return LoadFrom(store)
}

// LoadFrom is Load over an arbitrary store.
func LoadFrom(store Store) (*Config, error) {
	cfg := &Config{
		Manager: NewManager(store),
		Server:  NewServerSection(),
		Browser: NewBrowserSection(),
		Agent:   NewAgentSection(),
	}
	for _, section := range []Section{cfg.Server, cfg.Browser, cfg.Agent} {
		if err := cfg.Manager.RegisterSection(section); err != nil {
			return nil, err
		}
	}
	if err := cfg.Manager.LoadAll(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a configuration with every section at its defaults and
// no backing file.
func Defaults() *Config {
	cfg, _ := LoadFrom(newMemoryStore())
	return cfg
}

// Initialize loads the configuration and installs it as the global manager.
// This should be called once at application startup.
func Initialize(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = cfg.Manager
	return cfg, nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetBrowser returns the browser section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDBrowser)
	if !ok {
		return nil
	}
	browser, _ := section.(*BrowserSection)
	return browser
}

// GetAgent returns the agent section from global config.
// Returns nil if config is not initialized.
func GetAgent() *AgentSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDAgent)
	if !ok {
		return nil
	}
	agent, _ := section.(*AgentSection)
	return agent
}

// memoryStore keeps sections in memory only.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[string]interface{})}
}

func (m *memoryStore) Load() error { return nil }
func (m *memoryStore) Save() error { return nil }

func (m *memoryStore) GetSection(id string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySection(m.data[id]), nil
}

func (m *memoryStore) SetSection(id string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = copySection(data)
	return nil
}

func (m *memoryStore) GetAll() (map[string]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make(map[string]map[string]interface{}, len(m.data))
	for id, data := range m.data {
		all[id] = copySection(data)
	}
	return all, nil
}

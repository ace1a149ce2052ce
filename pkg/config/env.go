package config

import (
	"os"
	"strconv"
)

// Env is a snapshot of the process environment settings the server uses.
// Lookup is injectable so tests never touch the real environment.
type Env struct {
	lookup func(string) (string, bool)
}

// OSEnv reads from the process environment.
func OSEnv() Env {
	return Env{lookup: os.LookupEnv}
}

// MapEnv reads from a fixed map.
func MapEnv(values map[string]string) Env {
	return Env{lookup: func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}}
}

// Get returns the value of key, treating empty as unset.
func (e Env) Get(key string) string {
	if e.lookup == nil {
		return ""
	}
	v, _ := e.lookup(key)
	return v
}

// GetDefault returns the value of key or def when it is unset or empty.
func (e Env) GetDefault(key, def string) string {
	if v := e.Get(key); v != "" {
		return v
	}
	return def
}

// KernelAPIKey is the browser provider credential.
func (e Env) KernelAPIKey() string { return e.Get("KERNEL_API_KEY") }

// DeployToken guards the remote command endpoint.
func (e Env) DeployToken() string { return e.Get("VPS_DEPLOY_TOKEN") }

// SSHSettings holds the remote command target.
type SSHSettings struct {
	Host     string
	User     string
	Password string
	HostKey  string
	Port     int
}

// Complete reports whether host, user and password are all present.
func (s SSHSettings) Complete() bool {
	return s.Host != "" && s.User != "" && s.Password != ""
}

// SSH returns the remote command target. The port defaults to 22.
func (e Env) SSH() SSHSettings {
	port, err := strconv.Atoi(e.Get("VPS_SSH_PORT"))
	if err != nil || port <= 0 {
		port = 22
	}
	return SSHSettings{
		Host:     e.Get("VPS_SSH_HOST"),
		User:     e.Get("VPS_SSH_USER"),
		Password: e.Get("VPS_SSH_PASSWORD"),
		HostKey:  e.Get("VPS_SSH_HOST_KEY"),
		Port:     port,
	}
}

// SkillsWorkspace is the working directory for the skills listing, if set.
func (e Env) SkillsWorkspace() string { return e.Get("OPENCLAW_WORKSPACE_DIR") }

// SkillsBinary is the explicit skills binary override, if set.
func (e Env) SkillsBinary() string { return e.Get("OPENCLAW_BIN") }

package stratum

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// ConnectionParams identifies one pool connection. Immutable once handed to
// Connect.
type ConnectionParams struct {
	Hostname   string
	Port       int
	WorkerName string
	Password   string

	// UserAgent is sent as the mining.subscribe parameter.
	UserAgent string
	// ResponseTimeout bounds each tracked call; zero means the default.
	ResponseTimeout time.Duration
}

func (p *ConnectionParams) applyDefaults() {
	if p.Port == 0 {
		p.Port = defaultPort
	}
	if p.UserAgent == "" {
		p.UserAgent = defaultUserAgent
	}
	if p.ResponseTimeout <= 0 {
		p.ResponseTimeout = defaultResponseTimeout
	}
}

func (p *ConnectionParams) validate() error {
	if strings.TrimSpace(p.Hostname) == "" {
		return fmt.Errorf("hostname is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}
	if strings.TrimSpace(p.WorkerName) == "" {
		return fmt.Errorf("worker_name is required")
	}
	return nil
}

type paramsFile struct {
	Pool poolSection `toml:"pool"`
}

type poolSection struct {
	Hostname        string `toml:"hostname"`
	Port            int    `toml:"port"`
	WorkerName      string `toml:"worker_name"`
	Password        string `toml:"password"`
	UserAgent       string `toml:"user_agent"`
	ResponseTimeout string `toml:"response_timeout"`
}

// LoadConnectionParams reads a [pool] section from a TOML file, applies
// defaults and validates the result.
func LoadConnectionParams(path string) (ConnectionParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConnectionParams{}, fmt.Errorf("read config: %w", err)
	}
	var file paramsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return ConnectionParams{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	params := ConnectionParams{
		Hostname:   strings.TrimSpace(file.Pool.Hostname),
		Port:       file.Pool.Port,
		WorkerName: strings.TrimSpace(file.Pool.WorkerName),
		Password:   file.Pool.Password,
		UserAgent:  strings.TrimSpace(file.Pool.UserAgent),
	}
	if raw := strings.TrimSpace(file.Pool.ResponseTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ConnectionParams{}, fmt.Errorf("response_timeout %q: %w", raw, err)
		}
		if d <= 0 {
			return ConnectionParams{}, fmt.Errorf("response_timeout %q must be positive", raw)
		}
		params.ResponseTimeout = d
	}

	params.applyDefaults()
	if err := params.validate(); err != nil {
		return ConnectionParams{}, fmt.Errorf("config %s: %w", path, err)
	}
	return params, nil
}

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   string    `yaml:"listen"`
	Defaults Defaults  `yaml:"defaults"`
	Report   Report    `yaml:"report"`
	Services []Service `yaml:"services"`
}

type Defaults struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
}

// Report configures the optional NATS status-reporting sink. Leaving URL
// empty disables reporting.
type Report struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

type Service struct {
	Name        string            `yaml:"name"`
	Cmd         string            `yaml:"cmd"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Port        int               `yaml:"port"`
	Echo        bool              `yaml:"echo"`
	HealthCheck *HealthCheck      `yaml:"health_check"`
}

type HealthCheck struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
	Path     string        `yaml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Defaults.HealthCheckInterval == 0 {
		cfg.Defaults.HealthCheckInterval = 5 * time.Second
	}
	if cfg.Defaults.HealthCheckTimeout == 0 {
		cfg.Defaults.HealthCheckTimeout = 2 * time.Second
	}
	if cfg.Report.ConnectTimeout == 0 {
		cfg.Report.ConnectTimeout = 5 * time.Second
	}
	if cfg.Report.ReconnectWait == 0 {
		cfg.Report.ReconnectWait = 2 * time.Second
	}
	if cfg.Report.MaxReconnects == 0 {
		cfg.Report.MaxReconnects = -1 // infinite
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Cmd == "" {
			svc.Cmd = svc.Name
		}
		if hc := svc.HealthCheck; hc != nil {
			if hc.Interval == 0 {
				hc.Interval = cfg.Defaults.HealthCheckInterval
			}
			if hc.Timeout == 0 {
				hc.Timeout = cfg.Defaults.HealthCheckTimeout
			}
			if hc.Retries == 0 {
				hc.Retries = 1
			}
			if hc.Path == "" {
				hc.Path = "/"
			}
		}
	}
}

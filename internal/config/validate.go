package config

import "fmt"

func validate(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return fmt.Errorf("config: no services defined")
	}

	names := make(map[string]bool)
	for _, svc := range cfg.Services {
		if svc.Name == "" {
			return fmt.Errorf("config: service with empty name")
		}
		if names[svc.Name] {
			return fmt.Errorf("config: duplicate service name %q", svc.Name)
		}
		names[svc.Name] = true

		if svc.Port < 0 || svc.Port > 65535 {
			return fmt.Errorf("config: service %q invalid port %d", svc.Name, svc.Port)
		}

		if hc := svc.HealthCheck; hc != nil {
			if svc.Port == 0 {
				return fmt.Errorf("config: service %q has a health check but no port", svc.Name)
			}
			if hc.Interval <= 0 {
				return fmt.Errorf("config: service %q health check interval must be > 0", svc.Name)
			}
			if hc.Timeout <= 0 {
				return fmt.Errorf("config: service %q health check timeout must be > 0", svc.Name)
			}
			if hc.Retries < 1 {
				return fmt.Errorf("config: service %q health check retries must be >= 1", svc.Name)
			}
		}
	}

	return nil
}

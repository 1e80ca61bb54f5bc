package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevOps(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDevOps() error {
	if c.DevOps.Organization == "" {
		return errors.New("devops.organization must be set")
	}
	if c.DevOps.PAT == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/adowatch/config.toml"
		}
		return fmt.Errorf("devops.pat is required. Set ADOWATCH_PAT env var or edit %s (create with 'adowatch config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollInterval <= 0 {
		return errors.New("monitor.poll_interval must be positive")
	}
	if c.Monitor.Workers <= 0 {
		return errors.New("monitor.workers must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateEvents() error {
	for i, ev := range c.Events {
		label := ev.Label()
		if label == "" {
			label = fmt.Sprintf("events[%d]", i)
		}
		if ev.Kind == "" {
			return fmt.Errorf("event %q: kind must be set", label)
		}
		if len(ev.Jobs) == 0 {
			return fmt.Errorf("event %q: at least one job is required", label)
		}
		for j, job := range ev.Jobs {
			if len(job.Args) == 0 {
				return fmt.Errorf("event %q: jobs[%d] has no args", label, j)
			}
			if strings.TrimSpace(job.Args[0]) == "" {
				return fmt.Errorf("event %q: jobs[%d] has an empty program path", label, j)
			}
			if job.Timeout <= 0 {
				return fmt.Errorf("event %q: jobs[%d] timeout must be positive", label, j)
			}
		}
	}
	return nil
}

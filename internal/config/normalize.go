package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDevOps(); err != nil {
		return err
	}
	if err := c.normalizeEvents(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDevOps() error {
	c.DevOps.Organization = strings.TrimSpace(c.DevOps.Organization)
	if pat := strings.TrimSpace(os.Getenv("ADOWATCH_PAT")); pat != "" {
		c.DevOps.PAT = pat
	}
	c.DevOps.PAT = strings.TrimSpace(c.DevOps.PAT)
	if c.DevOps.RequestTimeout <= 0 {
		c.DevOps.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func (c *Config) normalizeEvents() error {
	for i := range c.Events {
		ev := &c.Events[i]
		ev.Kind = strings.ToLower(strings.TrimSpace(ev.Kind))
		ev.Name = strings.TrimSpace(ev.Name)
		for j := range ev.Jobs {
			job := &ev.Jobs[j]
			if job.Timeout == 0 {
				job.Timeout = DefaultJobTimeout
			}
			if dir := strings.TrimSpace(job.RunDir); dir != "" {
				expanded, err := expandPath(dir)
				if err != nil {
					return fmt.Errorf("events[%d].jobs[%d].run_dir: %w", i, j, err)
				}
				job.RunDir = expanded
			}
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = defaultLogMaxBackups
	}
}

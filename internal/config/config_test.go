package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adowatch/internal/config"
)

func TestLoadDefaultsUseEnvPATAndExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ADOWATCH_PAT", "test-pat")
	t.Setenv("ADOWATCH_CONFIG", "")

	path := filepath.Join(tempHome, "config.toml")
	body := `
[devops]
organization = "myorg"

[[events]]
kind = "pr_create"
project = "proj"
repository = "repo"

[[events.jobs]]
args = ["/bin/true"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" || !exists {
		t.Fatalf("expected resolved existing path, got %q exists=%v", resolved, exists)
	}
	if cfg.DevOps.PAT != "test-pat" {
		t.Fatalf("expected PAT from env, got %q", cfg.DevOps.PAT)
	}
	if cfg.Monitor.PollInterval != 60 || cfg.Monitor.Workers != 4 {
		t.Fatalf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "adowatch")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if len(cfg.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(cfg.Events))
	}
	if got := cfg.Events[0].Jobs[0].Timeout; got != config.DefaultJobTimeout {
		t.Fatalf("expected defaulted job timeout, got %d", got)
	}
}

func TestLoadParsesEventFilters(t *testing.T) {
	t.Setenv("ADOWATCH_PAT", "test-pat")
	t.Setenv("ADOWATCH_CONFIG", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[devops]
organization = "myorg"

[[events]]
kind = "pr_create"
project = "proj"
repository = "repo"

[[events.filters]]
field = "title"
pattern = "hotfix"

[[events.filters]]
field = "author"
pattern = "bot-*"

[[events.jobs]]
args = ["/bin/true"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	filters := cfg.Events[0].Filters
	if len(filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(filters))
	}
	if got, _ := filters[0]["field"].(string); got != "title" {
		t.Errorf("first filter field = %q, want title", got)
	}
	if got, _ := filters[1]["pattern"].(string); got != "bot-*" {
		t.Errorf("second filter pattern = %q, want bot-*", got)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.DevOps.Organization = "myorg"
		cfg.DevOps.PAT = "pat"
		cfg.Events = []config.Event{{
			Kind:       "pr_create",
			Project:    "proj",
			Repository: "repo",
			Jobs:       []config.Job{{Args: []string{"/bin/true"}, Timeout: 120}},
		}}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing organization",
			mutate:  func(c *config.Config) { c.DevOps.Organization = "" },
			wantErr: "devops.organization",
		},
		{
			name:    "missing pat",
			mutate:  func(c *config.Config) { c.DevOps.PAT = "" },
			wantErr: "devops.pat",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *config.Config) { c.Monitor.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "negative worker count",
			mutate:  func(c *config.Config) { c.Monitor.Workers = -1 },
			wantErr: "workers",
		},
		{
			name:    "event without jobs",
			mutate:  func(c *config.Config) { c.Events[0].Jobs = nil },
			wantErr: "at least one job",
		},
		{
			name:    "job without args",
			mutate:  func(c *config.Config) { c.Events[0].Jobs[0].Args = nil },
			wantErr: "no args",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestEventLabelFallsBackToKind(t *testing.T) {
	ev := config.Event{Kind: "pr_create"}
	if ev.Label() != "pr_create" {
		t.Fatalf("unexpected label: %q", ev.Label())
	}
	ev.Name = "my-event"
	if ev.Label() != "my-event" {
		t.Fatalf("unexpected label: %q", ev.Label())
	}
}

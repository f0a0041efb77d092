package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"HERD_PROJECT_PATH", "HERD_API_HOST", "HERD_API_PORT", "HERD_API_TOKEN",
		"HERD_AGENT_NAME", "HERD_INSTANCE_ID", "HERD_TEAM", "HERD_IDLE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.ProjectPath != "." {
		t.Errorf("ProjectPath = %q, want .", cfg.ProjectPath)
	}
	if cfg.APIPort != 8420 {
		t.Errorf("APIPort = %d, want 8420", cfg.APIPort)
	}
	if cfg.IdleTimeout != 180*time.Second {
		t.Errorf("IdleTimeout = %v, want 180s", cfg.IdleTimeout)
	}
	if cfg.APIToken != "" || cfg.AgentName != "" {
		t.Errorf("unset secrets should stay empty: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HERD_PROJECT_PATH", "/srv/herd")
	t.Setenv("HERD_API_PORT", "9000")
	t.Setenv("HERD_AGENT_NAME", "mason")
	t.Setenv("HERD_TEAM", "avalon")
	t.Setenv("HERD_IDLE_TIMEOUT", "60")

	cfg := FromEnv()
	if cfg.ProjectPath != "/srv/herd" || cfg.APIPort != 9000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AgentName != "mason" || cfg.Team != "avalon" {
		t.Errorf("identity = %q/%q", cfg.AgentName, cfg.Team)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("HERD_API_PORT", "not-a-port")
	t.Setenv("HERD_IDLE_TIMEOUT", "soon")

	cfg := FromEnv()
	if cfg.APIPort != 8420 {
		t.Errorf("APIPort = %d, want default on parse failure", cfg.APIPort)
	}
	if cfg.IdleTimeout != 180*time.Second {
		t.Errorf("IdleTimeout = %v, want default on parse failure", cfg.IdleTimeout)
	}
}

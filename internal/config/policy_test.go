package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy should validate: %v", err)
	}
}

func TestPolicyValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"zero tab switch limit", func(p *Policy) { p.TabSwitchLimit = 0 }},
		{"focus above 100", func(p *Policy) { p.MinimumFocusPercentage = 120 }},
		{"critical warning after warning", func(p *Policy) { p.CriticalTimeWarningAtSeconds = p.TimeWarningAtSeconds + 1 }},
		{"zero grace period", func(p *Policy) { p.WarningGracePeriodSeconds = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPolicy()
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadPolicy_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	body := "tab_switch_limit: 5\nfullscreen_required: false\nwarning_grace_period_seconds: 15\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	t.Setenv("PROCTOR_TAB_SWITCH_LIMIT", "7")

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.TabSwitchLimit != 7 {
		t.Errorf("env should override file: got %d", p.TabSwitchLimit)
	}
	if p.FullscreenRequired {
		t.Errorf("file should disable fullscreen requirement")
	}
	if p.WarningGracePeriodSeconds != 15 {
		t.Errorf("grace period = %d, want 15", p.WarningGracePeriodSeconds)
	}
	if p.MaxIdleTimeSeconds != 60 {
		t.Errorf("unset fields keep defaults: got %d", p.MaxIdleTimeSeconds)
	}
}

func TestLoadPolicy_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("PROCTOR_SUSPICIOUS_THRESHOLD", "abc")

	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.SuspiciousActivityThreshold != 5 {
		t.Errorf("expected default 5, got %d", p.SuspiciousActivityThreshold)
	}
}

func TestParseOrigins(t *testing.T) {
	got := parseOrigins(" https://a.test , ,https://b.test")
	if len(got) != 2 || got[0] != "https://a.test" || got[1] != "https://b.test" {
		t.Errorf("unexpected origins: %v", got)
	}
	if parseOrigins("") != nil {
		t.Errorf("empty input should allow all (nil)")
	}
}

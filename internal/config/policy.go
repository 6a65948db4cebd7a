package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Policy is the externally supplied proctoring configuration.
// Every threshold used by the violation policy lives here.
type Policy struct {
	TabSwitchLimit               int     `json:"tab_switch_limit" yaml:"tab_switch_limit" validate:"min=1"`
	MaxIdleTimeSeconds           int     `json:"max_idle_time_seconds" yaml:"max_idle_time_seconds" validate:"min=1"`
	TimeWarningAtSeconds         int     `json:"time_warning_at_seconds" yaml:"time_warning_at_seconds" validate:"min=0,gtefield=CriticalTimeWarningAtSeconds"`
	CriticalTimeWarningAtSeconds int     `json:"critical_time_warning_at_seconds" yaml:"critical_time_warning_at_seconds" validate:"min=0"`
	SuspiciousActivityThreshold  int     `json:"suspicious_activity_threshold" yaml:"suspicious_activity_threshold" validate:"min=1"`
	MinimumFocusPercentage       float64 `json:"minimum_focus_percentage" yaml:"minimum_focus_percentage" validate:"min=0,max=100"`
	WarningGracePeriodSeconds    int     `json:"warning_grace_period_seconds" yaml:"warning_grace_period_seconds" validate:"min=1"`
	FullscreenRequired           bool    `json:"fullscreen_required" yaml:"fullscreen_required"`
	CopyPasteDisabled            bool    `json:"copy_paste_disabled" yaml:"copy_paste_disabled"`
	RightClickDisabled           bool    `json:"right_click_disabled" yaml:"right_click_disabled"`

	AuditIntervalSeconds       int `json:"audit_interval_seconds" yaml:"audit_interval_seconds" validate:"min=1"`
	MinimumAuditElapsedSeconds int `json:"minimum_audit_elapsed_seconds" yaml:"minimum_audit_elapsed_seconds" validate:"min=0"`
	// IdleStrikesPerSuspicion converts every N idle events into one suspicious-activity strike.
	// Zero disables the conversion.
	IdleStrikesPerSuspicion int `json:"idle_strikes_per_suspicion" yaml:"idle_strikes_per_suspicion" validate:"min=0"`
	// EnforceFocusRatio makes a failed focus audit count as a suspicious-activity strike.
	EnforceFocusRatio bool `json:"enforce_focus_ratio" yaml:"enforce_focus_ratio"`
}

// DefaultPolicy returns the stock proctoring thresholds.
func DefaultPolicy() Policy {
	return Policy{
		TabSwitchLimit:               3,
		MaxIdleTimeSeconds:           60,
		TimeWarningAtSeconds:         300,
		CriticalTimeWarningAtSeconds: 60,
		SuspiciousActivityThreshold:  5,
		MinimumFocusPercentage:       60,
		WarningGracePeriodSeconds:    10,
		FullscreenRequired:           true,
		CopyPasteDisabled:            true,
		RightClickDisabled:           true,
		AuditIntervalSeconds:         30,
		MinimumAuditElapsedSeconds:   60,
		IdleStrikesPerSuspicion:      3,
		EnforceFocusRatio:            false,
	}
}

// MaxIdle returns the idle window as a duration.
func (p Policy) MaxIdle() time.Duration {
	return time.Duration(p.MaxIdleTimeSeconds) * time.Second
}

// GracePeriod returns the fullscreen grace window as a duration.
func (p Policy) GracePeriod() time.Duration {
	return time.Duration(p.WarningGracePeriodSeconds) * time.Second
}

// AuditInterval returns the focus audit cadence as a duration.
func (p Policy) AuditInterval() time.Duration {
	return time.Duration(p.AuditIntervalSeconds) * time.Second
}

// Validate checks the struct constraints.
func (p Policy) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid proctoring policy: %w", err)
	}
	return nil
}

// LoadPolicy builds the effective policy: defaults, then the optional YAML
// file, then PROCTOR_* environment overrides.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Policy{}, fmt.Errorf("parse policy file: %w", err)
		}
	}

	p.TabSwitchLimit = getEnvInt("PROCTOR_TAB_SWITCH_LIMIT", p.TabSwitchLimit)
	p.MaxIdleTimeSeconds = getEnvInt("PROCTOR_MAX_IDLE_SECONDS", p.MaxIdleTimeSeconds)
	p.TimeWarningAtSeconds = getEnvInt("PROCTOR_TIME_WARNING_SECONDS", p.TimeWarningAtSeconds)
	p.CriticalTimeWarningAtSeconds = getEnvInt("PROCTOR_CRITICAL_TIME_WARNING_SECONDS", p.CriticalTimeWarningAtSeconds)
	p.SuspiciousActivityThreshold = getEnvInt("PROCTOR_SUSPICIOUS_THRESHOLD", p.SuspiciousActivityThreshold)
	p.MinimumFocusPercentage = getEnvFloat("PROCTOR_MIN_FOCUS_PERCENT", p.MinimumFocusPercentage)
	p.WarningGracePeriodSeconds = getEnvInt("PROCTOR_GRACE_PERIOD_SECONDS", p.WarningGracePeriodSeconds)
	p.FullscreenRequired = getEnvBool("PROCTOR_FULLSCREEN_REQUIRED", p.FullscreenRequired)
	p.CopyPasteDisabled = getEnvBool("PROCTOR_COPY_PASTE_DISABLED", p.CopyPasteDisabled)
	p.RightClickDisabled = getEnvBool("PROCTOR_RIGHT_CLICK_DISABLED", p.RightClickDisabled)
	p.AuditIntervalSeconds = getEnvInt("PROCTOR_AUDIT_INTERVAL_SECONDS", p.AuditIntervalSeconds)
	p.MinimumAuditElapsedSeconds = getEnvInt("PROCTOR_MIN_AUDIT_ELAPSED_SECONDS", p.MinimumAuditElapsedSeconds)
	p.IdleStrikesPerSuspicion = getEnvInt("PROCTOR_IDLE_STRIKES_PER_SUSPICION", p.IdleStrikesPerSuspicion)
	p.EnforceFocusRatio = getEnvBool("PROCTOR_ENFORCE_FOCUS_RATIO", p.EnforceFocusRatio)

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

package alarms

import "time"

// Defaults are the system-wide threshold values applied when a case
// carries no override.
type Defaults struct {
	FederalInProcessDays    int `yaml:"federal_in_process_days"`
	StateInProcessDays      int `yaml:"state_in_process_days"`
	VerificationTimeoutDays int `yaml:"verification_timeout_days"`
	LetterSentTimeoutDays   int `yaml:"letter_sent_timeout_days"`
}

// Override holds per-case threshold values. Nil fields fall back to the
// system defaults. At most one override exists per case (upsert by case ID).
type Override struct {
	CaseID                  string    `json:"case_id"`
	FederalInProcessDays    *int      `json:"federal_in_process_days,omitempty"`
	StateInProcessDays      *int      `json:"state_in_process_days,omitempty"`
	VerificationTimeoutDays *int      `json:"verification_timeout_days,omitempty"`
	LetterSentTimeoutDays   *int      `json:"letter_sent_timeout_days,omitempty"`
	DisableFederal          bool      `json:"disable_federal"`
	DisableState            bool      `json:"disable_state"`
	Reason                  string    `json:"reason,omitempty"`
	CreatedBy               string    `json:"created_by,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Effective is the merged threshold set the calculator consumes.
type Effective struct {
	FederalInProcessDays    int  `json:"federal_in_process_days"`
	StateInProcessDays      int  `json:"state_in_process_days"`
	VerificationTimeoutDays int  `json:"verification_timeout_days"`
	LetterSentTimeoutDays   int  `json:"letter_sent_timeout_days"`
	DisableFederal          bool `json:"disable_federal"`
	DisableState            bool `json:"disable_state"`
}

// Merge applies an override on top of the defaults. A nil override
// returns the defaults unchanged; absence is the common case, not an error.
func Merge(defaults Defaults, override *Override) Effective {
	eff := Effective{
		FederalInProcessDays:    defaults.FederalInProcessDays,
		StateInProcessDays:      defaults.StateInProcessDays,
		VerificationTimeoutDays: defaults.VerificationTimeoutDays,
		LetterSentTimeoutDays:   defaults.LetterSentTimeoutDays,
	}
	if override == nil {
		return eff
	}
	if override.FederalInProcessDays != nil {
		eff.FederalInProcessDays = *override.FederalInProcessDays
	}
	if override.StateInProcessDays != nil {
		eff.StateInProcessDays = *override.StateInProcessDays
	}
	if override.VerificationTimeoutDays != nil {
		eff.VerificationTimeoutDays = *override.VerificationTimeoutDays
	}
	if override.LetterSentTimeoutDays != nil {
		eff.LetterSentTimeoutDays = *override.LetterSentTimeoutDays
	}
	eff.DisableFederal = override.DisableFederal
	eff.DisableState = override.DisableState
	return eff
}

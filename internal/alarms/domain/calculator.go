package alarms

import (
	"fmt"
	"time"

	cases "refundtrack/internal/cases/domain"
)

// CriticalEscalationRatio is the multiple of the threshold at which a
// warning alarm escalates to critical.
const CriticalEscalationRatio = 1.5

// Calculate derives the currently-applicable alarms for one case from its
// per-track statuses, last-change timestamps, and effective thresholds.
// Pure and deterministic; output order is not significant.
func Calculate(federalStatus cases.TrackStatus, federalChangedAt *time.Time,
	stateStatus cases.TrackStatus, stateChangedAt *time.Time,
	eff Effective, now time.Time) []Computed {

	var out []Computed
	if !eff.DisableFederal {
		out = append(out, calculateTrack(cases.TrackFederal, federalStatus, federalChangedAt, eff.FederalInProcessDays, eff, now)...)
	}
	if !eff.DisableState {
		out = append(out, calculateTrack(cases.TrackState, stateStatus, stateChangedAt, eff.StateInProcessDays, eff, now)...)
	}
	return out
}

func calculateTrack(track cases.Track, status cases.TrackStatus, changedAt *time.Time,
	inProcessDays int, eff Effective, now time.Time) []Computed {

	if changedAt == nil {
		// Cannot compute elapsed time without a change timestamp.
		return nil
	}
	elapsed := elapsedDays(*changedAt, now)

	var out []Computed
	switch {
	case status.IsInProcess():
		if elapsed > inProcessDays {
			out = append(out, build(TypePossibleVerification, track, status, inProcessDays, elapsed))
		}
	case status.IsVerificationInProgress():
		if elapsed > eff.VerificationTimeoutDays {
			out = append(out, build(TypeVerificationTimeout, track, status, eff.VerificationTimeoutDays, elapsed))
		}
	case status.IsLetterSent():
		if elapsed > eff.LetterSentTimeoutDays {
			out = append(out, build(TypeLetterSentTimeout, track, status, eff.LetterSentTimeoutDays, elapsed))
		}
	}
	return out
}

func build(alarmType Type, track cases.Track, status cases.TrackStatus, threshold, elapsed int) Computed {
	return Computed{
		Type:          alarmType,
		Severity:      SeverityFor(threshold, elapsed),
		Track:         track,
		Message:       MessageFor(alarmType, track, status, threshold, elapsed),
		ThresholdDays: threshold,
		ActualDays:    elapsed,
	}
}

// SeverityFor escalates warning to critical once elapsed days exceed
// CriticalEscalationRatio times the threshold.
func SeverityFor(thresholdDays, actualDays int) Severity {
	if float64(actualDays) > float64(thresholdDays)*CriticalEscalationRatio {
		return SeverityCritical
	}
	return SeverityWarning
}

// MessageFor renders the operator-facing alarm message.
func MessageFor(alarmType Type, track cases.Track, status cases.TrackStatus, thresholdDays, actualDays int) string {
	switch alarmType {
	case TypePossibleVerification:
		return fmt.Sprintf("%s track in %q for %d days (threshold %d); refund may be held for verification", track, status, actualDays, thresholdDays)
	case TypeVerificationTimeout:
		return fmt.Sprintf("%s track verification pending for %d days (threshold %d)", track, actualDays, thresholdDays)
	case TypeLetterSentTimeout:
		return fmt.Sprintf("%s track letter outstanding for %d days (threshold %d)", track, actualDays, thresholdDays)
	default:
		return fmt.Sprintf("%s track alarm after %d days (threshold %d)", track, actualDays, thresholdDays)
	}
}

func elapsedDays(changedAt, now time.Time) int {
	if now.Before(changedAt) {
		return 0
	}
	return int(now.Sub(changedAt).Hours() / 24)
}

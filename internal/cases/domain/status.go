package cases

// Status is the case-level workflow status.
type Status string

const (
	StatusIntake            Status = "intake"
	StatusAwaitingDocuments Status = "awaiting_documents"
	StatusDocumentsReceived Status = "documents_received"
	StatusFiled             Status = "filed"
	StatusIssueRaised       Status = "issue_raised"
	StatusAmended           Status = "amended"
	StatusCompleted         Status = "completed"
	StatusClosed            Status = "closed"
)

// TrackStatus is the per-track processing status. Federal and state
// tracks share the same vocabulary and topology but advance independently.
type TrackStatus string

const (
	TrackNotFiled               TrackStatus = "not_filed"
	TrackInProcess              TrackStatus = "in_process"
	TrackVerification           TrackStatus = "verification"
	TrackVerificationInProgress TrackStatus = "verification_in_progress"
	TrackLetterSent             TrackStatus = "letter_sent"
	TrackRefundApproved         TrackStatus = "refund_approved"
	TrackRefundSent             TrackStatus = "refund_sent"
	TrackTaxesCompleted         TrackStatus = "taxes_completed"
)

// Track identifies one of the two processing pipelines.
type Track string

const (
	TrackFederal Track = "federal"
	TrackState   Track = "state"
)

// Valid returns true when the track is known.
func (t Track) Valid() bool {
	return t == TrackFederal || t == TrackState
}

// IsInProcess reports whether the status belongs to the in-process family.
func (s TrackStatus) IsInProcess() bool {
	return s == TrackInProcess
}

// IsVerificationInProgress reports whether the status belongs to the
// verification family (verification requested or underway).
func (s TrackStatus) IsVerificationInProgress() bool {
	return s == TrackVerification || s == TrackVerificationInProgress
}

// IsLetterSent reports whether a physical letter is outstanding.
func (s TrackStatus) IsLetterSent() bool {
	return s == TrackLetterSent
}

// IsAlarmEligible reports whether elapsed-time alarms are meaningful
// for the status.
func (s TrackStatus) IsAlarmEligible() bool {
	return s.IsInProcess() || s.IsVerificationInProgress() || s.IsLetterSent()
}

// IsCompleted reports whether the track has reached a terminal completed state.
func (s TrackStatus) IsCompleted() bool {
	return s == TrackRefundSent || s == TrackTaxesCompleted
}

// AlarmEligibleTrackStatuses lists every status for which elapsed-time
// alarms apply. Storage queries pre-filter the case population on this set.
func AlarmEligibleTrackStatuses() []TrackStatus {
	return []TrackStatus{
		TrackInProcess,
		TrackVerification,
		TrackVerificationInProgress,
		TrackLetterSent,
	}
}

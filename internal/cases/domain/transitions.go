package cases

import (
	"fmt"
	"sort"
	"strings"
)

// Family identifies one of the three independently validated status workflows.
type Family string

const (
	FamilyCase         Family = "case"
	FamilyFederalTrack Family = "federal_track"
	FamilyStateTrack   Family = "state_track"
)

// caseTransitions is the case workflow adjacency map. A case never jumps
// backwards without passing through an explicit issue state.
var caseTransitions = map[Status][]Status{
	StatusIntake:            {StatusAwaitingDocuments},
	StatusAwaitingDocuments: {StatusDocumentsReceived, StatusClosed},
	StatusDocumentsReceived: {StatusFiled, StatusIssueRaised},
	StatusFiled:             {StatusIssueRaised, StatusCompleted},
	StatusIssueRaised:       {StatusAwaitingDocuments, StatusAmended, StatusClosed},
	StatusAmended:           {StatusFiled},
	StatusCompleted:         {StatusClosed},
	StatusClosed:            {},
}

// trackTransitions is shared by the federal and state tracks; each track
// is evaluated against it independently.
var trackTransitions = map[TrackStatus][]TrackStatus{
	TrackNotFiled:               {TrackInProcess},
	TrackInProcess:              {TrackVerification, TrackLetterSent, TrackRefundApproved, TrackTaxesCompleted},
	TrackVerification:           {TrackVerificationInProgress, TrackInProcess, TrackLetterSent},
	TrackVerificationInProgress: {TrackInProcess, TrackLetterSent, TrackRefundApproved},
	TrackLetterSent:             {TrackInProcess, TrackVerification, TrackTaxesCompleted},
	TrackRefundApproved:         {TrackRefundSent},
	TrackRefundSent:             {TrackTaxesCompleted},
	TrackTaxesCompleted:         {},
}

// TransitionError reports a rejected status move. The message is suitable
// for direct display to an operator.
type TransitionError struct {
	Family  Family
	From    string
	To      string
	Allowed []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %q to %q (allowed: %s)",
		e.Family, e.From, e.To, strings.Join(e.Allowed, ", "))
}

// IsValidTransition reports whether from -> to is permitted in the family's
// workflow. An empty from (no prior status) permits any known to; from == to
// is always a valid no-op; an unknown from permits only staying the same.
func IsValidTransition(family Family, from, to string) bool {
	if to == "" {
		return false
	}
	if from == "" {
		return statusKnown(family, to)
	}
	if from == to {
		return true
	}
	for _, next := range adjacency(family, from) {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when the move is rejected.
func ValidateTransition(family Family, from, to string) error {
	if IsValidTransition(family, from, to) {
		return nil
	}
	return &TransitionError{
		Family:  family,
		From:    from,
		To:      to,
		Allowed: ValidNextStatuses(family, from),
	}
}

// ValidNextStatuses returns {from} plus the adjacency list for from,
// deduplicated and sorted. An empty from returns every known status.
func ValidNextStatuses(family Family, from string) []string {
	set := make(map[string]struct{})
	if from == "" {
		for _, status := range knownStatuses(family) {
			set[status] = struct{}{}
		}
	} else {
		set[from] = struct{}{}
		for _, next := range adjacency(family, from) {
			set[next] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for status := range set {
		out = append(out, status)
	}
	sort.Strings(out)
	return out
}

func adjacency(family Family, from string) []string {
	switch family {
	case FamilyCase:
		next := caseTransitions[Status(from)]
		out := make([]string, len(next))
		for i, status := range next {
			out[i] = string(status)
		}
		return out
	case FamilyFederalTrack, FamilyStateTrack:
		next := trackTransitions[TrackStatus(from)]
		out := make([]string, len(next))
		for i, status := range next {
			out[i] = string(status)
		}
		return out
	default:
		return nil
	}
}

func knownStatuses(family Family) []string {
	switch family {
	case FamilyCase:
		out := make([]string, 0, len(caseTransitions))
		for status := range caseTransitions {
			out = append(out, string(status))
		}
		return out
	case FamilyFederalTrack, FamilyStateTrack:
		out := make([]string, 0, len(trackTransitions))
		for status := range trackTransitions {
			out = append(out, string(status))
		}
		return out
	default:
		return nil
	}
}

func statusKnown(family Family, status string) bool {
	for _, known := range knownStatuses(family) {
		if known == status {
			return true
		}
	}
	return false
}

// TrackFamily maps a track to its transition family.
func TrackFamily(track Track) Family {
	if track == TrackState {
		return FamilyStateTrack
	}
	return FamilyFederalTrack
}

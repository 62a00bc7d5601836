package cases

import (
	"errors"
	"strings"
	"testing"
)

func TestIsValidTransition_TrackAdjacency(t *testing.T) {
	tests := []struct {
		from  TrackStatus
		to    TrackStatus
		valid bool
	}{
		{TrackNotFiled, TrackInProcess, true},
		{TrackNotFiled, TrackRefundSent, false},
		{TrackInProcess, TrackVerification, true},
		{TrackInProcess, TrackLetterSent, true},
		{TrackInProcess, TrackRefundApproved, true},
		{TrackInProcess, TrackTaxesCompleted, true},
		{TrackInProcess, TrackRefundSent, false},
		{TrackVerification, TrackVerificationInProgress, true},
		{TrackVerification, TrackInProcess, true},
		{TrackVerification, TrackRefundApproved, false},
		{TrackVerificationInProgress, TrackRefundApproved, true},
		{TrackVerificationInProgress, TrackNotFiled, false},
		{TrackLetterSent, TrackVerification, true},
		{TrackLetterSent, TrackTaxesCompleted, true},
		{TrackRefundApproved, TrackRefundSent, true},
		{TrackRefundApproved, TrackTaxesCompleted, false},
		{TrackRefundSent, TrackTaxesCompleted, true},
		{TrackTaxesCompleted, TrackInProcess, false},
	}
	for _, tt := range tests {
		got := IsValidTransition(FamilyFederalTrack, string(tt.from), string(tt.to))
		if got != tt.valid {
			t.Errorf("federal %s -> %s: got %v, want %v", tt.from, tt.to, got, tt.valid)
		}
		// Both tracks share the same topology.
		got = IsValidTransition(FamilyStateTrack, string(tt.from), string(tt.to))
		if got != tt.valid {
			t.Errorf("state %s -> %s: got %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestIsValidTransition_CaseAdjacency(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		valid bool
	}{
		{StatusIntake, StatusAwaitingDocuments, true},
		{StatusIntake, StatusFiled, false},
		{StatusAwaitingDocuments, StatusDocumentsReceived, true},
		{StatusAwaitingDocuments, StatusClosed, true},
		{StatusDocumentsReceived, StatusFiled, true},
		{StatusFiled, StatusIssueRaised, true},
		{StatusFiled, StatusCompleted, true},
		{StatusIssueRaised, StatusAmended, true},
		{StatusAmended, StatusFiled, true},
		{StatusAmended, StatusCompleted, false},
		{StatusCompleted, StatusClosed, true},
		{StatusClosed, StatusIntake, false},
	}
	for _, tt := range tests {
		got := IsValidTransition(FamilyCase, string(tt.from), string(tt.to))
		if got != tt.valid {
			t.Errorf("case %s -> %s: got %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestIsValidTransition_SameStatusIsNoOp(t *testing.T) {
	for from := range trackTransitions {
		if !IsValidTransition(FamilyFederalTrack, string(from), string(from)) {
			t.Errorf("expected %s -> %s to be a valid no-op", from, from)
		}
	}
	for from := range caseTransitions {
		if !IsValidTransition(FamilyCase, string(from), string(from)) {
			t.Errorf("expected %s -> %s to be a valid no-op", from, from)
		}
	}
}

func TestIsValidTransition_EmptyFromPermitsKnownStatuses(t *testing.T) {
	if !IsValidTransition(FamilyStateTrack, "", string(TrackLetterSent)) {
		t.Error("expected empty from to permit a known status")
	}
	if IsValidTransition(FamilyStateTrack, "", "bogus") {
		t.Error("expected empty from to reject an unknown status")
	}
	if IsValidTransition(FamilyCase, "", "") {
		t.Error("expected empty to to be rejected")
	}
}

func TestIsValidTransition_UnknownFromPermitsSelfOnly(t *testing.T) {
	if !IsValidTransition(FamilyCase, "legacy_state", "legacy_state") {
		t.Error("expected unknown from to permit staying the same")
	}
	if IsValidTransition(FamilyCase, "legacy_state", string(StatusFiled)) {
		t.Error("expected unknown from to reject any move")
	}
}

func TestValidateTransition_ErrorDetails(t *testing.T) {
	err := ValidateTransition(FamilyFederalTrack, string(TrackRefundApproved), string(TrackInProcess))
	if err == nil {
		t.Fatal("expected a rejection")
	}
	var transitionErr *TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if transitionErr.Family != FamilyFederalTrack {
		t.Errorf("family: got %s", transitionErr.Family)
	}
	if transitionErr.From != string(TrackRefundApproved) || transitionErr.To != string(TrackInProcess) {
		t.Errorf("from/to: got %s -> %s", transitionErr.From, transitionErr.To)
	}
	want := []string{string(TrackRefundApproved), string(TrackRefundSent)}
	if len(transitionErr.Allowed) != len(want) {
		t.Fatalf("allowed: got %v, want %v", transitionErr.Allowed, want)
	}
	for i, status := range want {
		if transitionErr.Allowed[i] != status {
			t.Errorf("allowed[%d]: got %s, want %s", i, transitionErr.Allowed[i], status)
		}
	}
	if !strings.Contains(err.Error(), "refund_approved") {
		t.Errorf("message should name the from status: %s", err.Error())
	}
}

func TestValidNextStatuses_SortedAndIncludesSelf(t *testing.T) {
	got := ValidNextStatuses(FamilyStateTrack, string(TrackVerification))
	want := []string{
		string(TrackInProcess),
		string(TrackLetterSent),
		string(TrackVerification),
		string(TrackVerificationInProgress),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidNextStatuses_EmptyFromListsAll(t *testing.T) {
	got := ValidNextStatuses(FamilyFederalTrack, "")
	if len(got) != len(trackTransitions) {
		t.Fatalf("got %d statuses, want %d", len(got), len(trackTransitions))
	}
}

func TestTrackFamily(t *testing.T) {
	if TrackFamily(TrackFederal) != FamilyFederalTrack {
		t.Error("federal track family mismatch")
	}
	if TrackFamily(TrackState) != FamilyStateTrack {
		t.Error("state track family mismatch")
	}
}

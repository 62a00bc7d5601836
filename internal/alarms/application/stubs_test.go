package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubCaseStore struct {
	mu      sync.Mutex
	states  map[string]*cases.State
	failIDs map[string]bool
	listErr error
}

func newStubCaseStore() *stubCaseStore {
	return &stubCaseStore{states: make(map[string]*cases.State), failIDs: make(map[string]bool)}
}

func (s *stubCaseStore) put(state cases.State) {
	s.mu.Lock()
	copied := state
	s.states[state.ID] = &copied
	s.mu.Unlock()
}

func (s *stubCaseStore) GetCase(ctx context.Context, id string) (*cases.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return nil, fmt.Errorf("case store: read failure for %s", id)
	}
	state, ok := s.states[id]
	if !ok {
		return nil, cases.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (s *stubCaseStore) ListAlarmEligible(ctx context.Context, cursor string, limit int) ([]cases.State, bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, false, "", s.listErr
	}
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var page []cases.State
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		page = append(page, *s.states[id])
		if len(page) == limit {
			break
		}
	}
	hasMore := false
	nextCursor := ""
	if len(page) > 0 {
		last := page[len(page)-1].ID
		for _, id := range ids {
			if id > last {
				hasMore = true
				nextCursor = last
				break
			}
		}
	}
	return page, hasMore, nextCursor, nil
}

type stubAlarmStore struct {
	mu          sync.Mutex
	records     map[string]*alarms.Record
	order       []string
	createCalls int
	updateCalls int
}

func newStubAlarmStore() *stubAlarmStore {
	return &stubAlarmStore{records: make(map[string]*alarms.Record)}
}

func (s *stubAlarmStore) seed(record alarms.Record) {
	s.mu.Lock()
	copied := record
	s.records[record.ID] = &copied
	s.order = append(s.order, record.ID)
	s.mu.Unlock()
}

func (s *stubAlarmStore) get(id string) alarms.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *stubAlarmStore) GetByID(ctx context.Context, id string) (*alarms.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *stubAlarmStore) FindOpen(ctx context.Context, caseID string) ([]alarms.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alarms.Record
	for _, id := range s.order {
		record := s.records[id]
		if record.CaseID == caseID && record.Resolution.IsOpen() {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (s *stubAlarmStore) FindOpenByTypeTrack(ctx context.Context, caseID string, alarmType alarms.Type, track cases.Track) (*alarms.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		record := s.records[id]
		if record.CaseID == caseID && record.Type == alarmType && record.Track == track && record.Resolution.IsOpen() {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubAlarmStore) Create(ctx context.Context, record *alarms.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return errors.New("alarm store: duplicate id")
	}
	copied := *record
	s.records[record.ID] = &copied
	s.order = append(s.order, record.ID)
	s.createCalls++
	return nil
}

func (s *stubAlarmStore) UpdateObserved(ctx context.Context, id string, actualDays int, message string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return alarms.ErrNotFound
	}
	if record.Resolution.IsTerminal() {
		return nil
	}
	record.ActualDays = actualDays
	record.Message = message
	record.UpdatedAt = updatedAt
	s.updateCalls++
	return nil
}

func (s *stubAlarmStore) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	return s.mark(id, func(record *alarms.Record) {
		record.Resolution = alarms.ResolutionAcknowledged
		record.UpdatedAt = at
	})
}

func (s *stubAlarmStore) MarkResolved(ctx context.Context, id, resolvedBy, note string, at time.Time) error {
	return s.mark(id, func(record *alarms.Record) {
		record.Resolution = alarms.ResolutionResolved
		record.ResolvedAt = &at
		record.ResolvedBy = resolvedBy
		record.ResolutionNote = note
		record.UpdatedAt = at
	})
}

func (s *stubAlarmStore) MarkDismissed(ctx context.Context, id, resolvedBy, note string, at time.Time) error {
	return s.mark(id, func(record *alarms.Record) {
		record.Resolution = alarms.ResolutionDismissed
		record.ResolvedAt = &at
		record.ResolvedBy = resolvedBy
		record.ResolutionNote = note
		record.UpdatedAt = at
	})
}

func (s *stubAlarmStore) MarkAutoResolved(ctx context.Context, id, reason string, at time.Time) error {
	return s.mark(id, func(record *alarms.Record) {
		record.Resolution = alarms.ResolutionAutoResolved
		record.AutoResolveReason = reason
		record.ResolvedAt = &at
		record.UpdatedAt = at
	})
}

// mark mirrors the repository contract: terminal records match no row, so
// the write is a silent no-op.
func (s *stubAlarmStore) mark(id string, apply func(*alarms.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return alarms.ErrNotFound
	}
	if record.Resolution.IsTerminal() {
		return nil
	}
	apply(record)
	return nil
}

func (s *stubAlarmStore) ListByCase(ctx context.Context, caseID string, resolution alarms.Resolution) ([]alarms.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alarms.Record
	for _, id := range s.order {
		record := s.records[id]
		if record.CaseID != caseID {
			continue
		}
		if resolution != "" && record.Resolution != resolution {
			continue
		}
		out = append(out, *record)
	}
	return out, nil
}

func (s *stubAlarmStore) CountOpenByCases(ctx context.Context, caseIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		wanted[id] = true
	}
	out := make(map[string]int)
	for _, record := range s.records {
		if wanted[record.CaseID] && record.Resolution.IsOpen() {
			out[record.CaseID]++
		}
	}
	return out, nil
}

type stubThresholdStore struct {
	mu        sync.Mutex
	overrides map[string]*alarms.Override
	getErr    error
}

func newStubThresholdStore() *stubThresholdStore {
	return &stubThresholdStore{overrides: make(map[string]*alarms.Override)}
}

func (s *stubThresholdStore) GetOverride(ctx context.Context, caseID string) (*alarms.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	override, ok := s.overrides[caseID]
	if !ok {
		return nil, nil
	}
	copied := *override
	return &copied, nil
}

func (s *stubThresholdStore) UpsertOverride(ctx context.Context, override *alarms.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *override
	s.overrides[override.CaseID] = &copied
	return nil
}

func (s *stubThresholdStore) DeleteOverride(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, caseID)
	return nil
}

type stubNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

type notifyCall struct {
	userID      string
	templateKey string
	variables   map[string]string
}

func (n *stubNotifier) Notify(ctx context.Context, userID, templateKey string, variables map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userID: userID, templateKey: templateKey, variables: variables})
	return n.err
}

func (n *stubNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type stubRunStore struct {
	mu    sync.Mutex
	saved []RunStats
	err   error
}

func (s *stubRunStore) SaveRun(ctx context.Context, stats RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, stats)
	return nil
}

func (s *stubRunStore) LastRun(ctx context.Context) (*RunStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.saved) == 0 {
		return nil, nil
	}
	last := s.saved[len(s.saved)-1]
	return &last, nil
}

var testDefaults = alarms.Defaults{
	FederalInProcessDays:    21,
	StateInProcessDays:      30,
	VerificationTimeoutDays: 30,
	LetterSentTimeoutDays:   45,
}

func newTestThresholds(store ThresholdStore, clock Clock) *ThresholdService {
	service, err := NewThresholdService(store, testDefaults, clock, nil)
	if err != nil {
		panic(err)
	}
	return service
}

func timePtr(t time.Time) *time.Time { return &t }

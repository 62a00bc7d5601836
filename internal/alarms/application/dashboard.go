package application

import (
	"context"
	"errors"
	"sort"

	alarms "refundtrack/internal/alarms/domain"
	cases "refundtrack/internal/cases/domain"
)

const (
	// DefaultDashboardLimit applies when the caller sends no limit.
	DefaultDashboardLimit = 20
	// MaxDashboardLimit is the hard page-size ceiling.
	MaxDashboardLimit = 100
)

// Level filters dashboard entries by a case's highest severity.
type Level string

const (
	LevelAll      Level = "all"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Filters parameterize a dashboard query.
type Filters struct {
	HideCompleted bool
	Level         Level
	Cursor        string
	Limit         int
}

// Entry is one case carrying alarms.
type Entry struct {
	CaseID        string            `json:"case_id"`
	UserID        string            `json:"user_id"`
	FederalStatus cases.TrackStatus `json:"federal_status"`
	StateStatus   cases.TrackStatus `json:"state_status"`
	Alarms        []alarms.Computed `json:"alarms"`
	MaxSeverity   alarms.Severity   `json:"max_severity"`
	MaxDays       int               `json:"max_days"`
}

// Page is a dashboard result page. Severity totals cover the returned
// page; pagination advances over the pre-filter query, so a page may hold
// fewer items than the limit after in-memory alarm filtering.
type Page struct {
	Items         []Entry `json:"items"`
	TotalCritical int     `json:"total_critical"`
	TotalWarning  int     `json:"total_warning"`
	HasMore       bool    `json:"has_more"`
	NextCursor    string  `json:"next_cursor,omitempty"`
}

// DashboardService computes the severity-ranked alarm overview.
type DashboardService struct {
	caseStore  CaseStore
	thresholds *ThresholdService
	clock      Clock
}

// NewDashboardService constructs a dashboard service.
func NewDashboardService(caseStore CaseStore, thresholds *ThresholdService, clock Clock) (*DashboardService, error) {
	if caseStore == nil {
		return nil, errors.New("dashboard: nil case store")
	}
	if thresholds == nil {
		return nil, errors.New("dashboard: nil threshold service")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &DashboardService{caseStore: caseStore, thresholds: thresholds, clock: clock}, nil
}

// Dashboard returns the alarm-carrying cases matching the filters,
// critical cases first, worst-starved first within equal severity.
func (s *DashboardService) Dashboard(ctx context.Context, filters Filters) (Page, error) {
	if s == nil {
		return Page{}, errors.New("dashboard: nil service")
	}
	limit := clampLimit(filters.Limit)
	level := filters.Level
	if level == "" {
		level = LevelAll
	}

	states, hasMore, nextCursor, err := s.caseStore.ListAlarmEligible(ctx, filters.Cursor, limit)
	if err != nil {
		return Page{}, err
	}

	now := s.clock.Now().UTC()
	page := Page{HasMore: hasMore, NextCursor: nextCursor}
	for _, state := range states {
		if filters.HideCompleted && state.BothTracksCompleted() {
			continue
		}
		eff := s.thresholds.Resolve(ctx, state.ID)
		computed := alarms.Calculate(state.FederalStatus, state.FederalChangedAt,
			state.StateStatus, state.StateChangedAt, eff, now)
		if len(computed) == 0 {
			continue
		}
		entry := buildEntry(state, computed)
		switch entry.MaxSeverity {
		case alarms.SeverityCritical:
			page.TotalCritical++
		case alarms.SeverityWarning:
			page.TotalWarning++
		}
		if level == LevelCritical && entry.MaxSeverity != alarms.SeverityCritical {
			continue
		}
		if level == LevelWarning && entry.MaxSeverity != alarms.SeverityWarning {
			continue
		}
		page.Items = append(page.Items, entry)
	}

	sort.SliceStable(page.Items, func(i, j int) bool {
		a, b := page.Items[i], page.Items[j]
		if a.MaxSeverity != b.MaxSeverity {
			return a.MaxSeverity == alarms.SeverityCritical
		}
		return a.MaxDays > b.MaxDays
	})
	return page, nil
}

func buildEntry(state cases.State, computed []alarms.Computed) Entry {
	entry := Entry{
		CaseID:        state.ID,
		UserID:        state.UserID,
		FederalStatus: state.FederalStatus,
		StateStatus:   state.StateStatus,
		Alarms:        computed,
		MaxSeverity:   alarms.SeverityWarning,
	}
	for _, c := range computed {
		if c.Severity == alarms.SeverityCritical {
			entry.MaxSeverity = alarms.SeverityCritical
		}
		if c.ActualDays > entry.MaxDays {
			entry.MaxDays = c.ActualDays
		}
	}
	return entry
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultDashboardLimit
	}
	if limit > MaxDashboardLimit {
		return MaxDashboardLimit
	}
	return limit
}

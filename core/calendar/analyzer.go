package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Recommendation is the calendar's opinion on a leave window.
type Recommendation string

const (
	RecommendApprove     Recommendation = "APPROVE"
	RecommendAutoApprove Recommendation = "AUTO_APPROVE"
	RecommendFlag        Recommendation = "FLAG"
	RecommendReject      Recommendation = "REJECT"
)

const (
	blockedScore     = 100
	flaggedScore     = 70
	discouragedScore = 40
	encouragedScore  = 10

	autoApproveMaxScore = 20
	flagMinScore        = 50
)

type (
	// DateConflict describes an event that blocks or flags part of a leave window.
	DateConflict struct {
		EventID   string    `json:"event_id"`
		Title     string    `json:"title"`
		Type      EventType `json:"type"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
	}

	Analysis struct {
		CanApply       bool           `json:"can_apply"`
		CalendarScore  int            `json:"calendar_score"`
		RiskModifier   int            `json:"risk_modifier"`
		Events         []Event        `json:"events"`
		BlockedDates   []DateConflict `json:"blocked_dates"`
		FlaggedDates   []DateConflict `json:"flagged_dates"`
		Warnings       []string       `json:"warnings"`
		Recommendation Recommendation `json:"recommendation"`
	}

	// Analyzer matches leave windows against the active calendar events.
	Analyzer struct {
		repo Repository
	}
)

func NewAnalyzer(repo Repository) *Analyzer {
	return &Analyzer{repo: repo}
}

// Analyze loads the active events overlapping [from, to] and analyzes them for a student with the given scope.
// A nil scope matches every event.
func (a *Analyzer) Analyze(ctx context.Context, from, to time.Time, scope *Scope) (Analysis, error) {
	events, err := a.repo.QueryEvents(ctx, &QueryFilter{ActiveOnly: true, OverlapFrom: from, OverlapTo: to})
	if err != nil {
		return Analysis{}, errors.Wrap(err, "querying calendar events")
	}
	return Analyze(events, from, to, scope)
}

// Validate reports ErrMalformedEvent when the event cannot be analyzed.
func (e Event) Validate() error {
	switch {
	case e.EndDate.Before(e.StartDate):
		return errors.Wrapf(ErrMalformedEvent, "event %q ends before it starts", e.ID)
	case e.RiskModifier < MinRiskModifier || e.RiskModifier > MaxRiskModifier:
		return errors.Wrapf(ErrMalformedEvent, "event %q risk modifier %d out of range", e.ID, e.RiskModifier)
	}
	switch e.LeavePolicy {
	case PolicyBlocked, PolicyFlagged, PolicyDiscouraged, PolicyNormal, PolicyEncouraged:
		return nil
	default:
		return errors.Wrapf(ErrMalformedEvent, "event %q has unknown policy %q", e.ID, e.LeavePolicy)
	}
}

// Analyze computes the calendar analysis of [from, to] over events.
// Inactive, non-overlapping and out-of-scope events are ignored.
func Analyze(events []Event, from, to time.Time, scope *Scope) (Analysis, error) {
	relevant := make([]Event, 0, len(events))
	for _, evt := range events {
		if !evt.IsActive || !evt.Overlaps(from, to) {
			continue
		}
		if scope != nil && !evt.AppliesTo(*scope) {
			continue
		}
		if err := evt.Validate(); err != nil {
			return Analysis{}, err
		}
		relevant = append(relevant, evt)
	}
	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].Priority > relevant[j].Priority })

	res := Analysis{
		CanApply:       true,
		Events:         relevant,
		BlockedDates:   []DateConflict{},
		FlaggedDates:   []DateConflict{},
		Warnings:       []string{},
		Recommendation: RecommendApprove,
	}
	var modifier int
	for _, evt := range relevant {
		modifier += evt.RiskModifier
		conflict := DateConflict{EventID: evt.ID, Title: evt.Title, Type: evt.Type, StartDate: evt.StartDate, EndDate: evt.EndDate}

		switch evt.LeavePolicy {
		case PolicyBlocked:
			res.CanApply = false
			res.CalendarScore = blockedScore
			res.Recommendation = RecommendReject
			res.BlockedDates = append(res.BlockedDates, conflict)
		case PolicyFlagged:
			if res.Recommendation != RecommendReject {
				res.Recommendation = RecommendFlag
			}
			res.CalendarScore = maxInt(res.CalendarScore, flaggedScore)
			res.FlaggedDates = append(res.FlaggedDates, conflict)
		case PolicyDiscouraged:
			res.CalendarScore = maxInt(res.CalendarScore, discouragedScore)
			res.Warnings = append(res.Warnings, fmt.Sprintf("leave is discouraged during %s", evt.Title))
		case PolicyEncouraged:
			if res.CanApply {
				res.CalendarScore = minInt(res.CalendarScore, encouragedScore)
			}
		}
	}
	res.RiskModifier = clamp(modifier, MinRiskModifier, MaxRiskModifier)

	if res.CanApply && res.CalendarScore <= autoApproveMaxScore {
		res.Recommendation = RecommendAutoApprove
	} else if res.CalendarScore > flagMinScore && res.CanApply {
		res.Recommendation = RecommendFlag
	}
	return res, nil
}

func clamp(v, lo, hi int) int {
	return minInt(maxInt(v, lo), hi)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

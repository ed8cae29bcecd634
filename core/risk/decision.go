package risk

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

const attentionInsufficientData = "insufficient data"

type (
	Outcome struct {
		Decision        leave.Decision `json:"decision"`
		Reason          string         `json:"reason"`
		AttentionPoints []string       `json:"attention_points"`
	}

	ConfidenceInput struct {
		Stats    StudentStatistics
		Calendar calendar.Analysis
		Reason   string
		From     time.Time
		Now      time.Time
	}

	// DecisionEngine turns a score and its confidence into an action.
	DecisionEngine struct {
		cfg Config
	}
)

func NewDecisionEngine(cfg Config) DecisionEngine {
	return DecisionEngine{cfg: cfg}
}

// Decide picks the action for a scored application. The calendar veto wins over everything else.
func (e DecisionEngine) Decide(score int, confidence float64, cal calendar.Analysis, stats StudentStatistics) Outcome {
	switch {
	case !cal.CanApply:
		return Outcome{
			Decision:        leave.DecisionReject,
			Reason:          "Leave overlaps dates on which leave is blocked",
			AttentionPoints: blockedPoints(cal),
		}
	case score <= e.cfg.AutoApproveMaxScore && confidence >= e.cfg.AutoApproveMinConfidence:
		return Outcome{
			Decision:        leave.DecisionAutoApprove,
			Reason:          fmt.Sprintf("Low risk (%d) with confidence %.2f", score, confidence),
			AttentionPoints: []string{},
		}
	case score <= e.cfg.AutoApproveMaxScore:
		return Outcome{
			Decision:        leave.DecisionManualReview,
			Reason:          fmt.Sprintf("Low risk (%d) but confidence %.2f is too low to approve automatically", score, confidence),
			AttentionPoints: []string{attentionInsufficientData},
		}
	case score > e.cfg.ItemisedFlagMinScore:
		return Outcome{
			Decision:        leave.DecisionFlag,
			Reason:          fmt.Sprintf("High risk (%d): careful review required", score),
			AttentionPoints: e.attentionPoints(stats),
		}
	case score > e.cfg.FlagMinScore:
		return Outcome{
			Decision:        leave.DecisionFlag,
			Reason:          fmt.Sprintf("Elevated risk (%d)", score),
			AttentionPoints: []string{"review the student's recent attendance and leave history"},
		}
	default:
		return Outcome{
			Decision:        leave.DecisionManualReview,
			Reason:          fmt.Sprintf("Moderate risk (%d): warden review", score),
			AttentionPoints: []string{},
		}
	}
}

func blockedPoints(cal calendar.Analysis) []string {
	points := make([]string, 0, len(cal.BlockedDates))
	for _, b := range cal.BlockedDates {
		points = append(points, fmt.Sprintf("%s (%s to %s)", b.Title, b.StartDate.Format("2006-01-02"), b.EndDate.Format("2006-01-02")))
	}
	return points
}

func (e DecisionEngine) attentionPoints(stats StudentStatistics) []string {
	points := make([]string, 0, 4)
	if stats.AttendancePercentage < e.cfg.LowAttendanceAlert {
		points = append(points, fmt.Sprintf("low attendance (%d%%)", stats.AttendancePercentage))
	}
	if stats.LateReturns > 0 {
		points = append(points, fmt.Sprintf("%d late return(s) from previous leaves", stats.LateReturns))
	}
	if stats.CurfewViolations > 0 {
		points = append(points, fmt.Sprintf("%d curfew violation(s)", stats.CurfewViolations))
	}
	if stats.LeavesThisMonth > e.cfg.MonthlyLeavesAlert {
		points = append(points, fmt.Sprintf("unusual frequency: %d leaves this month", stats.LeavesThisMonth))
	}
	return points
}

// Confidence estimates, in [0, 1], how much the score can be trusted.
func (e DecisionEngine) Confidence(in ConfidenceInput) float64 {
	stats := in.Stats

	var availability float64
	for _, ok := range []bool{
		stats.TotalDays > 0,
		stats.LeavesApplied > 0,
		stats.OnTimeReturns+stats.LateReturns > 0,
		stats.TotalDays >= e.cfg.MinHistoryDays,
	} {
		if ok {
			availability += .25
		}
	}

	var k float64
	for _, ok := range []bool{
		stats.AttendancePercentage >= e.cfg.GoodAttendance,
		stats.ReturnReliabilityScore >= e.cfg.GoodReliability,
		stats.CurfewViolations == 0,
		stats.LeavesThisMonth <= e.cfg.MonthlyLeavesAlert,
	} {
		if ok {
			k++
		}
	}
	consistency := math.Max(k, 4-k) / 4

	clarity := 1.0
	if len(in.Calendar.BlockedDates) > 0 {
		clarity = .9
	} else if len(in.Calendar.Events) > 0 {
		clarity = .8
	}

	completeness := .5
	if utf8.RuneCountInString(in.Reason) > e.cfg.CompleteReasonChars {
		completeness += .25
	}
	if in.From.Sub(in.Now).Hours()/24 >= e.cfg.CompleteNoticeDays {
		completeness += .25
	}

	return core.Round2(.3*availability + .3*consistency + .2*clarity + .2*completeness)
}

package risk

import (
	"math"
	"time"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

// Component names, as exposed in breakdowns and frozen on leaves.
const (
	ComponentAttendance  = "attendance"
	ComponentReliability = "reliability"
	ComponentViolations  = "violations"
	ComponentCalendar    = "calendar_conflict"
	ComponentDuration    = "duration"
	ComponentFrequency   = "frequency"
	ComponentHistory     = "history"
	ComponentLeaveType   = "leave_type"
	ComponentTiming      = "timing"
)

type (
	Component struct {
		Name     string  `json:"name"`
		Raw      float64 `json:"raw"`
		Weight   float64 `json:"weight"`
		Weighted float64 `json:"weighted"`
	}

	ScoreInput struct {
		Stats    StudentStatistics
		Calendar calendar.Analysis
		Type     leave.Type
		From     time.Time
		To       time.Time
		Now      time.Time
	}

	Score struct {
		Score     int         `json:"score"`
		Category  Category    `json:"category"`
		Modifier  int         `json:"modifier"`
		Breakdown []Component `json:"breakdown"`
	}

	// Scorer computes the weighted 0-100 risk of a leave application.
	Scorer struct {
		cfg Config
	}
)

func NewScorer(cfg Config) Scorer {
	return Scorer{cfg: cfg}
}

func (s Scorer) Score(in ScoreInput) Score {
	w := s.cfg.Weights
	stats := in.Stats

	var history float64
	if stats.LeavesApplied > 0 {
		history = float64(stats.LeavesRejected) / float64(stats.LeavesApplied) * 100
	}

	components := []Component{
		{Name: ComponentAttendance, Raw: math.Max(0, float64(100-stats.AttendancePercentage)), Weight: w.Attendance},
		{Name: ComponentReliability, Raw: math.Max(0, float64(100-stats.ReturnReliabilityScore)), Weight: w.Reliability},
		{Name: ComponentViolations, Raw: math.Min(100, float64(stats.CurfewViolations)*s.cfg.ViolationPenalty), Weight: w.Violations},
		{Name: ComponentCalendar, Raw: float64(in.Calendar.CalendarScore), Weight: w.Calendar},
		{Name: ComponentDuration, Raw: s.durationRisk(in.From, in.To), Weight: w.Duration},
		{Name: ComponentFrequency, Raw: math.Min(100, float64(stats.LeavesThisMonth)*s.cfg.FrequencyPenalty), Weight: w.Frequency},
		{Name: ComponentHistory, Raw: history, Weight: w.History},
		{Name: ComponentLeaveType, Raw: s.cfg.leaveTypeRisk(in.Type), Weight: w.LeaveType},
		{Name: ComponentTiming, Raw: s.timingRisk(in.From, in.Now), Weight: w.Timing},
	}

	var sum float64
	for i := range components {
		c := &components[i]
		c.Weighted = c.Raw * c.Weight
		sum += c.Weighted
		c.Raw = core.Round2(c.Raw)
		c.Weighted = core.Round2(c.Weighted)
	}

	score := clampScore(int(math.Round(sum + float64(in.Calendar.RiskModifier))))
	return Score{
		Score:     score,
		Category:  s.cfg.Category(score),
		Modifier:  in.Calendar.RiskModifier,
		Breakdown: components,
	}
}

func (s Scorer) durationRisk(from, to time.Time) float64 {
	days := leave.DurationDays(from, to)
	return math.Min(100, float64(days-1)*s.cfg.DurationPenalty)
}

func (s Scorer) timingRisk(from, now time.Time) float64 {
	risk := s.cfg.TimingBase
	if wd := from.UTC().Weekday(); wd == time.Friday || wd == time.Saturday {
		risk -= s.cfg.WeekendStartBonus
	}
	daysUntil := from.Sub(now).Hours() / 24
	if daysUntil < s.cfg.ShortNoticeMaxDays {
		risk += s.cfg.ShortNoticePenalty
	}
	if daysUntil >= s.cfg.EarlyNoticeMinDays {
		risk -= s.cfg.EarlyNoticeBonus
	}
	return math.Min(100, math.Max(0, risk))
}

// Components flattens a breakdown into {name: raw value}.
func Components(breakdown []Component) map[string]float64 {
	m := make(map[string]float64, len(breakdown))
	for _, c := range breakdown {
		m[c.Name] = c.Raw
	}
	return m
}

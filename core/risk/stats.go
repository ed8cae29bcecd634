package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

var ErrStatsNotFound = errors.New("student statistics not found")

type Category string

const (
	CategoryLow    Category = "LOW"
	CategoryMedium Category = "MEDIUM"
	CategoryHigh   Category = "HIGH"
)

type (
	// StatsBreakdown holds the raw 0-100 risk of each statistics-only component.
	StatsBreakdown struct {
		Attendance  float64 `json:"attendance"`
		Reliability float64 `json:"reliability"`
		Violations  float64 `json:"violations"`
		Frequency   float64 `json:"frequency"`
		History     float64 `json:"history"`
	}

	// StudentStatistics is the rolling aggregate of a student's attendance and leave history.
	// It is rebuilt wholesale from the raw records on every refresh.
	StudentStatistics struct {
		ID        string `json:"id"`
		StudentID string `json:"student_id"`

		TotalDays            int `json:"total_days"`
		PresentDays          int `json:"present_days"`
		AbsentDays           int `json:"absent_days"`
		LateDays             int `json:"late_days"`
		AttendancePercentage int `json:"attendance_percentage"`

		LeavesApplied      int `json:"leaves_applied"`
		LeavesApproved     int `json:"leaves_approved"`
		LeavesRejected     int `json:"leaves_rejected"`
		LeavesAutoApproved int `json:"leaves_auto_approved"`
		LeavesFlagged      int `json:"leaves_flagged"`
		TotalLeaveDays     int `json:"total_leave_days"`

		OnTimeReturns          int     `json:"on_time_returns"`
		LateReturns            int     `json:"late_returns"`
		LateReturnHours        float64 `json:"late_return_hours"`
		ReturnReliabilityScore int     `json:"return_reliability_score"`

		CurfewViolations int `json:"curfew_violations"`
		ViolationMinutes int `json:"violation_minutes"`

		AvgLeaveDuration      float64    `json:"avg_leave_duration"`
		AvgLeaveGapDays       float64    `json:"avg_leave_gap_days"`
		MostFrequentLeaveType leave.Type `json:"most_frequent_leave_type"`
		LeavesThisMonth       int        `json:"leaves_this_month"`
		LeavesThisSemester    int        `json:"leaves_this_semester"`
		LastLeaveAt           null.Time  `json:"last_leave_at"`

		OverallRiskScore int            `json:"overall_risk_score"`
		RiskCategory     Category       `json:"risk_category"`
		RiskBreakdown    StatsBreakdown `json:"risk_breakdown"`

		LastUpdated time.Time `json:"last_updated"`
	}

	StatsFilter struct {
		Category Category
		MinScore int
	}

	StatsRepository interface {
		// GetStats returns ErrStatsNotFound when the student has no statistics yet.
		GetStats(ctx context.Context, studentID string) (StudentStatistics, error)
		// UpsertStats inserts or replaces the statistics of s.StudentID.
		UpsertStats(ctx context.Context, s StudentStatistics) (StudentStatistics, error)
		// QueryStats lists statistics, riskiest first.
		QueryStats(ctx context.Context, filter *StatsFilter) ([]StudentStatistics, error)
	}

	// StudentLister lists the students covered by the statistics sweep.
	StudentLister interface {
		StudentIDs(ctx context.Context) ([]string, error)
	}
)

// NewStudentStatistics returns the statistics of a student without any history.
func NewStudentStatistics(studentID string) StudentStatistics {
	return StudentStatistics{
		StudentID:              studentID,
		AttendancePercentage:   100,
		ReturnReliabilityScore: 100,
		RiskCategory:           CategoryLow,
	}
}

// Aggregator builds StudentStatistics from the raw attendance and leave records.
type Aggregator struct {
	cfg        Config
	attendance attendance.Repository
	leaves     leave.Repository
	repo       StatsRepository
}

func NewAggregator(cfg Config, attRepo attendance.Repository, leaveRepo leave.Repository, repo StatsRepository) *Aggregator {
	return &Aggregator{cfg: cfg, attendance: attRepo, leaves: leaveRepo, repo: repo}
}

// Refresh recomputes the student's statistics and stores them.
func (a *Aggregator) Refresh(ctx context.Context, studentID string) (StudentStatistics, error) {
	records, err := a.attendance.QueryRecords(ctx, &attendance.QueryFilter{StudentID: studentID}, nil)
	if err != nil {
		return StudentStatistics{}, pkgerrors.Wrap(err, "querying attendance")
	}
	leaves, err := a.leaves.QueryLeaves(ctx, &leave.QueryFilter{StudentID: studentID}, nil)
	if err != nil {
		return StudentStatistics{}, pkgerrors.Wrap(err, "querying leaves")
	}

	stats := a.Compute(studentID, records, leaves, core.NowFunc())
	if prev, err := a.repo.GetStats(ctx, studentID); err == nil {
		stats.ID = prev.ID
	} else if pkgerrors.Cause(err) != ErrStatsNotFound {
		return StudentStatistics{}, pkgerrors.Wrap(err, "finding stats")
	}
	stats, err = a.repo.UpsertStats(ctx, stats)
	return stats, pkgerrors.Wrap(err, "upserting stats")
}

// RefreshStats implements leave.StatsRefresher.
func (a *Aggregator) RefreshStats(ctx context.Context, studentID string) error {
	_, err := a.Refresh(ctx, studentID)
	return err
}

// Get returns the stored statistics, computing them on first access.
func (a *Aggregator) Get(ctx context.Context, studentID string) (StudentStatistics, error) {
	stats, err := a.repo.GetStats(ctx, studentID)
	if pkgerrors.Cause(err) == ErrStatsNotFound {
		return a.Refresh(ctx, studentID)
	}
	return stats, err
}

func (a *Aggregator) Query(ctx context.Context, filter *StatsFilter) ([]StudentStatistics, error) {
	return a.repo.QueryStats(ctx, filter)
}

// RefreshReport is the outcome of a statistics sweep.
type RefreshReport struct {
	Refreshed int               `json:"refreshed"`
	Failed    map[string]string `json:"failed"` // {studentID: error}
}

// RefreshAll refreshes every student's statistics one after the other.
// Failures are recorded per student and do not stop the sweep.
func (a *Aggregator) RefreshAll(ctx context.Context, students StudentLister) (RefreshReport, error) {
	ids, err := students.StudentIDs(ctx)
	if err != nil {
		return RefreshReport{}, pkgerrors.Wrap(err, "listing students")
	}
	report := RefreshReport{Failed: make(map[string]string)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := a.Refresh(ctx, id); err != nil {
			report.Failed[id] = err.Error()
			continue
		}
		report.Refreshed++
	}
	return report, nil
}

// Compute builds the statistics of a student from their records as of now.
func (a *Aggregator) Compute(studentID string, records []attendance.Record, leaves []leave.Request, now time.Time) StudentStatistics {
	stats := NewStudentStatistics(studentID)
	stats.LastUpdated = now

	for _, rec := range records {
		switch rec.Status {
		case attendance.StatusPresent:
			stats.PresentDays++
		case attendance.StatusAbsent:
			stats.AbsentDays++
		case attendance.StatusLate:
			stats.LateDays++
		}
		if rec.Status != attendance.StatusOnLeave {
			stats.TotalDays++
		}
		if rec.CurfewViolation {
			stats.CurfewViolations++
			stats.ViolationMinutes += rec.ViolationMinutes
		}
	}
	if stats.TotalDays > 0 {
		stats.AttendancePercentage = percent(stats.PresentDays, stats.TotalDays)
	}

	a.aggregateLeaves(&stats, leaves, now)

	stats.RiskBreakdown = a.breakdown(stats)
	stats.OverallRiskScore = a.overallRisk(stats.RiskBreakdown)
	stats.RiskCategory = a.cfg.Category(stats.OverallRiskScore)
	return stats
}

func (a *Aggregator) aggregateLeaves(stats *StudentStatistics, leaves []leave.Request, now time.Time) {
	typeCounts := make(map[leave.Type]int)
	created := make([]time.Time, 0, len(leaves))

	for _, l := range leaves {
		stats.LeavesApplied++
		typeCounts[l.Type]++
		created = append(created, l.CreatedAt)

		switch l.Status {
		case leave.StatusApproved:
			stats.LeavesApproved++
		case leave.StatusAutoApproved:
			stats.LeavesAutoApproved++
		case leave.StatusRejected:
			stats.LeavesRejected++
		}
		if l.Flagged() {
			stats.LeavesFlagged++
		}
		if l.Approved() {
			stats.TotalLeaveDays += l.DurationDays()
		}

		if l.ReturnedAt.Valid {
			if late, by := l.ReturnedLate(); late {
				stats.LateReturns++
				stats.LateReturnHours += by.Hours()
			} else {
				stats.OnTimeReturns++
			}
		}

		if sameMonth(l.CreatedAt, now) {
			stats.LeavesThisMonth++
		}
		if sameSemester(l.CreatedAt, now) {
			stats.LeavesThisSemester++
		}
		if !stats.LastLeaveAt.Valid || l.CreatedAt.After(stats.LastLeaveAt.Time) {
			stats.LastLeaveAt = null.TimeFrom(l.CreatedAt)
		}
	}
	stats.LateReturnHours = core.Round2(stats.LateReturnHours)

	if returns := stats.OnTimeReturns + stats.LateReturns; returns > 0 {
		stats.ReturnReliabilityScore = percent(stats.OnTimeReturns, returns)
	}
	if approved := stats.LeavesApproved + stats.LeavesAutoApproved; approved > 0 {
		stats.AvgLeaveDuration = core.Round2(float64(stats.TotalLeaveDays) / float64(approved))
	}
	stats.AvgLeaveGapDays = averageGapDays(created)

	var best int
	for _, t := range leave.Types {
		if typeCounts[t] > best {
			best = typeCounts[t]
			stats.MostFrequentLeaveType = t
		}
	}
}

func (a *Aggregator) breakdown(stats StudentStatistics) StatsBreakdown {
	var history float64
	if stats.LeavesApplied > 0 {
		history = float64(stats.LeavesRejected) / float64(stats.LeavesApplied) * 100
	}
	return StatsBreakdown{
		Attendance:  math.Max(0, float64(100-stats.AttendancePercentage)),
		Reliability: math.Max(0, float64(100-stats.ReturnReliabilityScore)),
		Violations:  math.Min(100, float64(stats.CurfewViolations)*a.cfg.ViolationPenalty),
		Frequency:   math.Min(100, float64(stats.LeavesThisMonth)*a.cfg.FrequencyPenalty),
		History:     core.Round2(history),
	}
}

// overallRisk weights the statistics components like the scorer does, renormalised so that it spans 0-100.
func (a *Aggregator) overallRisk(b StatsBreakdown) int {
	w := a.cfg.Weights
	sum := b.Attendance*w.Attendance +
		b.Reliability*w.Reliability +
		b.Violations*w.Violations +
		b.Frequency*w.Frequency +
		b.History*w.History
	return clampScore(int(math.Round(sum / w.statsWeight())))
}

// String is used in logs.
func (s StudentStatistics) String() string {
	return fmt.Sprintf("stats(%s: %d %s)", s.StudentID, s.OverallRiskScore, s.RiskCategory)
}

func percent(part, total int) int {
	return int(math.Round(float64(part) / float64(total) * 100))
}

func averageGapDays(created []time.Time) float64 {
	if len(created) < 2 {
		return 0
	}
	sorted := make([]time.Time, len(created))
	copy(sorted, created)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var total float64
	for i := 1; i < len(sorted); i++ {
		total += sorted[i].Sub(sorted[i-1]).Hours() / 24
	}
	return core.Round2(total / float64(len(sorted)-1))
}

func sameMonth(t, now time.Time) bool {
	t, now = t.UTC(), now.UTC()
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// sameSemester reports whether t and now fall in the same half-year (Jan-Jun or Jul-Dec).
func sameSemester(t, now time.Time) bool {
	t, now = t.UTC(), now.UTC()
	return t.Year() == now.Year() && (t.Month() <= time.June) == (now.Month() <= time.June)
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

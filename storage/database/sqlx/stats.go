package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
)

const statsColumns = `id, student_id, total_days, present_days, absent_days, late_days, attendance_percentage,
	leaves_applied, leaves_approved, leaves_rejected, leaves_auto_approved, leaves_flagged, total_leave_days,
	on_time_returns, late_returns, late_return_hours, return_reliability_score,
	curfew_violations, violation_minutes, avg_leave_duration, avg_leave_gap_days, most_frequent_leave_type,
	leaves_this_month, leaves_this_semester, last_leave_at,
	overall_risk_score, risk_category, risk_breakdown, last_updated`

type statsRow struct {
	ID                     string         `db:"id"`
	StudentID              string         `db:"student_id"`
	TotalDays              int            `db:"total_days"`
	PresentDays            int            `db:"present_days"`
	AbsentDays             int            `db:"absent_days"`
	LateDays               int            `db:"late_days"`
	AttendancePercentage   int            `db:"attendance_percentage"`
	LeavesApplied          int            `db:"leaves_applied"`
	LeavesApproved         int            `db:"leaves_approved"`
	LeavesRejected         int            `db:"leaves_rejected"`
	LeavesAutoApproved     int            `db:"leaves_auto_approved"`
	LeavesFlagged          int            `db:"leaves_flagged"`
	TotalLeaveDays         int            `db:"total_leave_days"`
	OnTimeReturns          int            `db:"on_time_returns"`
	LateReturns            int            `db:"late_returns"`
	LateReturnHours        float64        `db:"late_return_hours"`
	ReturnReliabilityScore int            `db:"return_reliability_score"`
	CurfewViolations       int            `db:"curfew_violations"`
	ViolationMinutes       int            `db:"violation_minutes"`
	AvgLeaveDuration       float64        `db:"avg_leave_duration"`
	AvgLeaveGapDays        float64        `db:"avg_leave_gap_days"`
	MostFrequentLeaveType  null.String    `db:"most_frequent_leave_type"`
	LeavesThisMonth        int            `db:"leaves_this_month"`
	LeavesThisSemester     int            `db:"leaves_this_semester"`
	LastLeaveAt            null.Time      `db:"last_leave_at"`
	OverallRiskScore       int            `db:"overall_risk_score"`
	RiskCategory           string         `db:"risk_category"`
	RiskBreakdown          types.JSONText `db:"risk_breakdown"`
	LastUpdated            time.Time      `db:"last_updated"`
}

func toStatsRow(s risk.StudentStatistics) (statsRow, error) {
	breakdown, err := json.Marshal(s.RiskBreakdown)
	if err != nil {
		return statsRow{}, errors.Wrap(err, "encoding risk breakdown")
	}
	return statsRow{
		ID:                     s.ID,
		StudentID:              s.StudentID,
		TotalDays:              s.TotalDays,
		PresentDays:            s.PresentDays,
		AbsentDays:             s.AbsentDays,
		LateDays:               s.LateDays,
		AttendancePercentage:   s.AttendancePercentage,
		LeavesApplied:          s.LeavesApplied,
		LeavesApproved:         s.LeavesApproved,
		LeavesRejected:         s.LeavesRejected,
		LeavesAutoApproved:     s.LeavesAutoApproved,
		LeavesFlagged:          s.LeavesFlagged,
		TotalLeaveDays:         s.TotalLeaveDays,
		OnTimeReturns:          s.OnTimeReturns,
		LateReturns:            s.LateReturns,
		LateReturnHours:        s.LateReturnHours,
		ReturnReliabilityScore: s.ReturnReliabilityScore,
		CurfewViolations:       s.CurfewViolations,
		ViolationMinutes:       s.ViolationMinutes,
		AvgLeaveDuration:       s.AvgLeaveDuration,
		AvgLeaveGapDays:        s.AvgLeaveGapDays,
		MostFrequentLeaveType:  null.NewString(string(s.MostFrequentLeaveType), s.MostFrequentLeaveType != ""),
		LeavesThisMonth:        s.LeavesThisMonth,
		LeavesThisSemester:     s.LeavesThisSemester,
		LastLeaveAt:            s.LastLeaveAt,
		OverallRiskScore:       s.OverallRiskScore,
		RiskCategory:           string(s.RiskCategory),
		RiskBreakdown:          types.JSONText(breakdown),
		LastUpdated:            s.LastUpdated.UTC(),
	}, nil
}

func (r statsRow) stats() (risk.StudentStatistics, error) {
	var breakdown risk.StatsBreakdown
	if len(r.RiskBreakdown) > 0 {
		if err := r.RiskBreakdown.Unmarshal(&breakdown); err != nil {
			return risk.StudentStatistics{}, errors.Wrapf(err, "decoding risk breakdown of %s", r.StudentID)
		}
	}
	return risk.StudentStatistics{
		ID:                     r.ID,
		StudentID:              r.StudentID,
		TotalDays:              r.TotalDays,
		PresentDays:            r.PresentDays,
		AbsentDays:             r.AbsentDays,
		LateDays:               r.LateDays,
		AttendancePercentage:   r.AttendancePercentage,
		LeavesApplied:          r.LeavesApplied,
		LeavesApproved:         r.LeavesApproved,
		LeavesRejected:         r.LeavesRejected,
		LeavesAutoApproved:     r.LeavesAutoApproved,
		LeavesFlagged:          r.LeavesFlagged,
		TotalLeaveDays:         r.TotalLeaveDays,
		OnTimeReturns:          r.OnTimeReturns,
		LateReturns:            r.LateReturns,
		LateReturnHours:        r.LateReturnHours,
		ReturnReliabilityScore: r.ReturnReliabilityScore,
		CurfewViolations:       r.CurfewViolations,
		ViolationMinutes:       r.ViolationMinutes,
		AvgLeaveDuration:       r.AvgLeaveDuration,
		AvgLeaveGapDays:        r.AvgLeaveGapDays,
		MostFrequentLeaveType:  leave.Type(r.MostFrequentLeaveType.String),
		LeavesThisMonth:        r.LeavesThisMonth,
		LeavesThisSemester:     r.LeavesThisSemester,
		LastLeaveAt:            r.LastLeaveAt,
		OverallRiskScore:       r.OverallRiskScore,
		RiskCategory:           risk.Category(r.RiskCategory),
		RiskBreakdown:          breakdown,
		LastUpdated:            r.LastUpdated.UTC(),
	}, nil
}

type statsRepository struct {
	db core.DBExecutor
}

var _ risk.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db core.DBExecutor) *statsRepository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) GetStats(ctx context.Context, studentID string) (risk.StudentStatistics, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return risk.StudentStatistics{}, risk.ErrStatsNotFound
	}
	var row statsRow
	q := `SELECT ` + statsColumns + ` FROM student_statistics WHERE student_id = $1`
	if err := repo.db.GetContext(ctx, &row, q, studentID); err != nil {
		return risk.StudentStatistics{}, trapNoRowsErr(err, risk.ErrStatsNotFound, "finding stats")
	}
	return row.stats()
}

func (repo *statsRepository) UpsertStats(ctx context.Context, s risk.StudentStatistics) (risk.StudentStatistics, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	row, err := toStatsRow(s)
	if err != nil {
		return risk.StudentStatistics{}, err
	}
	q := `INSERT INTO student_statistics (` + statsColumns + `) VALUES (
		:id, :student_id, :total_days, :present_days, :absent_days, :late_days, :attendance_percentage,
		:leaves_applied, :leaves_approved, :leaves_rejected, :leaves_auto_approved, :leaves_flagged, :total_leave_days,
		:on_time_returns, :late_returns, :late_return_hours, :return_reliability_score,
		:curfew_violations, :violation_minutes, :avg_leave_duration, :avg_leave_gap_days, :most_frequent_leave_type,
		:leaves_this_month, :leaves_this_semester, :last_leave_at,
		:overall_risk_score, :risk_category, :risk_breakdown, :last_updated)
		ON CONFLICT (student_id) DO UPDATE SET
			total_days = EXCLUDED.total_days,
			present_days = EXCLUDED.present_days,
			absent_days = EXCLUDED.absent_days,
			late_days = EXCLUDED.late_days,
			attendance_percentage = EXCLUDED.attendance_percentage,
			leaves_applied = EXCLUDED.leaves_applied,
			leaves_approved = EXCLUDED.leaves_approved,
			leaves_rejected = EXCLUDED.leaves_rejected,
			leaves_auto_approved = EXCLUDED.leaves_auto_approved,
			leaves_flagged = EXCLUDED.leaves_flagged,
			total_leave_days = EXCLUDED.total_leave_days,
			on_time_returns = EXCLUDED.on_time_returns,
			late_returns = EXCLUDED.late_returns,
			late_return_hours = EXCLUDED.late_return_hours,
			return_reliability_score = EXCLUDED.return_reliability_score,
			curfew_violations = EXCLUDED.curfew_violations,
			violation_minutes = EXCLUDED.violation_minutes,
			avg_leave_duration = EXCLUDED.avg_leave_duration,
			avg_leave_gap_days = EXCLUDED.avg_leave_gap_days,
			most_frequent_leave_type = EXCLUDED.most_frequent_leave_type,
			leaves_this_month = EXCLUDED.leaves_this_month,
			leaves_this_semester = EXCLUDED.leaves_this_semester,
			last_leave_at = EXCLUDED.last_leave_at,
			overall_risk_score = EXCLUDED.overall_risk_score,
			risk_category = EXCLUDED.risk_category,
			risk_breakdown = EXCLUDED.risk_breakdown,
			last_updated = EXCLUDED.last_updated`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return risk.StudentStatistics{}, errors.Wrap(err, "upserting stats")
	}
	return repo.GetStats(ctx, s.StudentID)
}

func (repo *statsRepository) QueryStats(ctx context.Context, filter *risk.StatsFilter) ([]risk.StudentStatistics, error) {
	var where conditions
	if filter != nil {
		if filter.Category != "" {
			where.add("risk_category = ?", string(filter.Category))
		}
		if filter.MinScore > 0 {
			where.add("overall_risk_score >= ?", filter.MinScore)
		}
	}

	q := `SELECT ` + statsColumns + ` FROM student_statistics` + where.String() + ` ORDER BY overall_risk_score DESC, student_id`
	var rows []statsRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying stats")
	}
	all := make([]risk.StudentStatistics, 0, len(rows))
	for _, r := range rows {
		s, err := r.stats()
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	return all, nil
}

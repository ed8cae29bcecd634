package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
	"github.com/arjuunns/Smart-hostel/core/user"
	testutil "github.com/arjuunns/Smart-hostel/tests"
)

func date(m time.Month, d, h int) time.Time {
	return time.Date(2024, m, d, h, 0, 0, 0, time.UTC)
}

func TestAggregator_Compute(t *testing.T) {
	now := date(time.March, 4, 9)

	var records []attendance.Record
	for i, st := range []attendance.Status{
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusPresent,
		attendance.StatusAbsent, attendance.StatusAbsent, attendance.StatusLate,
		attendance.StatusOnLeave, attendance.StatusOnLeave,
	} {
		rec := attendance.Record{StudentID: "s1", Date: date(time.February, 1+i, 0), Status: st}
		if st == attendance.StatusLate {
			rec.CurfewViolation = true
			rec.ViolationMinutes = 30
		}
		records = append(records, rec)
	}

	leaves := []leave.Request{
		{
			Type:       leave.TypeRegular,
			Status:     leave.StatusApproved,
			From:       date(time.February, 1, 10),
			To:         date(time.February, 3, 10),
			ReturnedAt: null.TimeFrom(date(time.February, 3, 9)),
			CreatedAt:  date(time.January, 31, 0),
		},
		{
			Type:       leave.TypeRegular,
			Status:     leave.StatusAutoApproved,
			From:       date(time.February, 20, 10),
			To:         date(time.February, 21, 10),
			ReturnedAt: null.TimeFrom(date(time.February, 21, 13)),
			CreatedAt:  date(time.February, 19, 0),
		},
		{
			Type:      leave.TypeEmergency,
			Status:    leave.StatusRejected,
			From:      date(time.March, 2, 10),
			To:        date(time.March, 3, 10),
			CreatedAt: date(time.March, 1, 0),
		},
		{
			Type:       leave.TypeMedical,
			Status:     leave.StatusPending,
			AIDecision: leave.DecisionFlag,
			From:       date(time.March, 5, 10),
			To:         date(time.March, 6, 10),
			CreatedAt:  date(time.March, 2, 0),
		},
	}

	agg := risk.NewAggregator(risk.DefaultConfig(), nil, nil, nil)
	got := agg.Compute("s1", records, leaves, now)

	assert.Equal(t, "s1", got.StudentID)
	assert.Equal(t, now, got.LastUpdated)

	assert.Equal(t, 9, got.TotalDays, "on-leave days are not attendance days")
	assert.Equal(t, 6, got.PresentDays)
	assert.Equal(t, 2, got.AbsentDays)
	assert.Equal(t, 1, got.LateDays)
	assert.Equal(t, 67, got.AttendancePercentage)
	assert.Equal(t, 1, got.CurfewViolations)
	assert.Equal(t, 30, got.ViolationMinutes)

	assert.Equal(t, 4, got.LeavesApplied)
	assert.Equal(t, 1, got.LeavesApproved)
	assert.Equal(t, 1, got.LeavesAutoApproved)
	assert.Equal(t, 1, got.LeavesRejected)
	assert.Equal(t, 1, got.LeavesFlagged)
	assert.Equal(t, 3, got.TotalLeaveDays)
	assert.Equal(t, 1.5, got.AvgLeaveDuration)

	assert.Equal(t, 1, got.OnTimeReturns)
	assert.Equal(t, 1, got.LateReturns)
	assert.Equal(t, 3.0, got.LateReturnHours)
	assert.Equal(t, 50, got.ReturnReliabilityScore)

	assert.Equal(t, 2, got.LeavesThisMonth)
	assert.Equal(t, 4, got.LeavesThisSemester)
	assert.Equal(t, 10.33, got.AvgLeaveGapDays)
	assert.Equal(t, leave.TypeRegular, got.MostFrequentLeaveType)
	assert.True(t, got.LastLeaveAt.Valid)
	assert.Equal(t, date(time.March, 2, 0), got.LastLeaveAt.Time)

	assert.Equal(t, risk.StatsBreakdown{Attendance: 33, Reliability: 50, Violations: 20, Frequency: 50, History: 25}, got.RiskBreakdown)
	assert.Equal(t, 36, got.OverallRiskScore)
	assert.Equal(t, risk.CategoryMedium, got.RiskCategory)
}

func TestAggregator_Compute_noHistory(t *testing.T) {
	now := date(time.March, 4, 9)
	got := risk.NewAggregator(risk.DefaultConfig(), nil, nil, nil).Compute("s1", nil, nil, now)

	want := risk.NewStudentStatistics("s1")
	want.LastUpdated = now
	assert.Equal(t, want, got)
	assert.Equal(t, 100, got.AttendancePercentage)
	assert.Equal(t, 100, got.ReturnReliabilityScore)
	assert.Equal(t, 0, got.OverallRiskScore)
}

func TestAggregator_Compute_semester(t *testing.T) {
	now := time.Date(2024, time.September, 10, 9, 0, 0, 0, time.UTC)
	leaves := []leave.Request{
		{Type: leave.TypeRegular, Status: leave.StatusRejected, CreatedAt: time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)},
		{Type: leave.TypeRegular, Status: leave.StatusRejected, CreatedAt: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)},
		{Type: leave.TypeOther, Status: leave.StatusRejected, CreatedAt: time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC)},
		{Type: leave.TypeOther, Status: leave.StatusRejected, CreatedAt: time.Date(2024, time.September, 2, 0, 0, 0, 0, time.UTC)},
	}
	got := risk.NewAggregator(risk.DefaultConfig(), nil, nil, nil).Compute("s1", nil, leaves, now)

	assert.Equal(t, 1, got.LeavesThisMonth)
	assert.Equal(t, 2, got.LeavesThisSemester)
	assert.Equal(t, leave.TypeRegular, got.MostFrequentLeaveType, "ties go to the first type")
	assert.Equal(t, 100.0, got.RiskBreakdown.History)
}

type failingStats struct {
	risk.StatsRepository
	failFor string
}

func (f failingStats) UpsertStats(ctx context.Context, s risk.StudentStatistics) (risk.StudentStatistics, error) {
	if s.StudentID == f.failFor {
		return risk.StudentStatistics{}, errors.New("disk full")
	}
	return f.StatsRepository.UpsertStats(ctx, s)
}

type studentList []string

func (l studentList) StudentIDs(context.Context) ([]string, error) { return l, nil }

func TestAggregator_Refresh(t *testing.T) {
	app, _ := testutil.NewApp(t)
	now := date(time.March, 4, 9)
	testutil.MockNow(t, now)
	ctx := context.Background()

	student := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	agg := app.Predictor.Stats()

	first, err := agg.Get(ctx, student.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID, "first access stores the statistics")
	assert.Equal(t, 0, first.OverallRiskScore)

	testutil.MarkDays(t, app.Repos.Attendance, student.ID, date(time.February, 26, 0),
		attendance.StatusAbsent, attendance.StatusAbsent, attendance.StatusAbsent, attendance.StatusAbsent)

	stale, err := agg.Get(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stale.TotalDays, "Get does not recompute stored statistics")

	refreshed, err := agg.Refresh(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, refreshed.ID)
	assert.Equal(t, 4, refreshed.AbsentDays)
	assert.Equal(t, 30, refreshed.OverallRiskScore)
	assert.Equal(t, risk.CategoryMedium, refreshed.RiskCategory)

	again, err := agg.Refresh(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, refreshed, again, "refreshing twice yields the same statistics")

	listed, err := agg.Query(ctx, &risk.StatsFilter{Category: risk.CategoryMedium})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, student.ID, listed[0].StudentID)
}

func TestAggregator_RefreshAll(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, date(time.March, 4, 9))
	ctx := context.Background()

	agg := risk.NewAggregator(risk.DefaultConfig(), app.Repos.Attendance, app.Repos.Leaves,
		failingStats{StatsRepository: app.Repos.Stats, failFor: "s2"})

	report, err := agg.RefreshAll(ctx, studentList{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Refreshed)
	require.Contains(t, report.Failed, "s2")
	assert.Contains(t, report.Failed["s2"], "disk full")

	_, err = app.Repos.Stats.GetStats(ctx, "s3")
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = agg.RefreshAll(cancelled, studentList{"s1"})
	assert.Equal(t, context.Canceled, err)
}

package risk

import (
	"testing"
	"time"

	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestScorer_Score(t *testing.T) {
	now := at(2024, time.March, 4, 9)
	clean := NewStudentStatistics("s1")

	troubled := NewStudentStatistics("s2")
	troubled.AttendancePercentage = 0
	troubled.ReturnReliabilityScore = 0
	troubled.CurfewViolations = 10
	troubled.LeavesThisMonth = 10
	troubled.LeavesApplied = 2
	troubled.LeavesRejected = 2

	patchy := NewStudentStatistics("s3")
	patchy.AttendancePercentage = 80

	tests := []struct {
		name         string
		in           ScoreInput
		wantScore    int
		wantCategory Category
		wantRaw      map[string]float64
	}{
		{
			name:         "no history, friday with notice",
			in:           ScoreInput{Stats: clean, Type: leave.TypeRegular, From: at(2024, time.March, 8, 10), To: at(2024, time.March, 9, 9), Now: now},
			wantScore:    2,
			wantCategory: CategoryLow,
			wantRaw:      map[string]float64{ComponentAttendance: 0, ComponentDuration: 0, ComponentLeaveType: 30, ComponentTiming: 0},
		},
		{
			name:         "short notice midweek",
			in:           ScoreInput{Stats: clean, Type: leave.TypeRegular, From: at(2024, time.March, 6, 10), To: at(2024, time.March, 6, 18), Now: at(2024, time.March, 6, 9)},
			wantScore:    5,
			wantCategory: CategoryLow,
			wantRaw:      map[string]float64{ComponentTiming: 60},
		},
		{
			name: "multi day leave over a flagged period",
			in: ScoreInput{
				Stats:    patchy,
				Calendar: calendar.Analysis{CanApply: true, CalendarScore: 70, RiskModifier: 20},
				Type:     leave.TypeRegular,
				From:     at(2024, time.March, 13, 10),
				To:       at(2024, time.March, 16, 10),
				Now:      now,
			},
			wantScore:    38,
			wantCategory: CategoryMedium,
			wantRaw: map[string]float64{
				ComponentAttendance: 20,
				ComponentCalendar:   70,
				ComponentDuration:   20,
				ComponentLeaveType:  30,
				ComponentTiming:     20,
			},
		},
		{
			name: "clamped at 100",
			in: ScoreInput{
				Stats:    troubled,
				Calendar: calendar.Analysis{CalendarScore: 100, RiskModifier: 50},
				Type:     leave.TypeOther,
				From:     at(2024, time.March, 11, 8),
				To:       at(2024, time.March, 31, 8),
				Now:      at(2024, time.March, 11, 7),
			},
			wantScore:    100,
			wantCategory: CategoryHigh,
			wantRaw: map[string]float64{
				ComponentAttendance:  100,
				ComponentReliability: 100,
				ComponentViolations:  100,
				ComponentDuration:    100,
				ComponentFrequency:   100,
				ComponentHistory:     100,
				ComponentLeaveType:   40,
				ComponentTiming:      60,
			},
		},
		{
			name: "clamped at 0",
			in: ScoreInput{
				Stats:    clean,
				Calendar: calendar.Analysis{CanApply: true, CalendarScore: 10, RiskModifier: -50},
				Type:     leave.TypeMedical,
				From:     at(2024, time.March, 8, 10),
				To:       at(2024, time.March, 9, 9),
				Now:      now,
			},
			wantScore:    0,
			wantCategory: CategoryLow,
			wantRaw:      map[string]float64{ComponentLeaveType: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewScorer(DefaultConfig()).Score(tt.in)
			if got.Score != tt.wantScore {
				t.Errorf("Score() score = %d; want %d (%+v)", got.Score, tt.wantScore, got.Breakdown)
			}
			if got.Category != tt.wantCategory {
				t.Errorf("Score() category = %s; want %s", got.Category, tt.wantCategory)
			}
			if got.Modifier != tt.in.Calendar.RiskModifier {
				t.Errorf("Score() modifier = %d; want %d", got.Modifier, tt.in.Calendar.RiskModifier)
			}
			if len(got.Breakdown) != 9 {
				t.Fatalf("Score() breakdown has %d components; want 9", len(got.Breakdown))
			}
			raw := Components(got.Breakdown)
			for name, want := range tt.wantRaw {
				if raw[name] != want {
					t.Errorf("Score() %s = %v; want %v", name, raw[name], want)
				}
			}
		})
	}
}

func TestScorer_weightedComponents(t *testing.T) {
	stats := NewStudentStatistics("s1")
	stats.AttendancePercentage = 80

	got := NewScorer(DefaultConfig()).Score(ScoreInput{
		Stats: stats,
		Type:  leave.TypeRegular,
		From:  at(2024, time.March, 8, 10),
		To:    at(2024, time.March, 9, 9),
		Now:   at(2024, time.March, 4, 9),
	})

	first := got.Breakdown[0]
	if first.Name != ComponentAttendance || first.Weight != .18 || first.Weighted != 3.6 {
		t.Errorf("Score() first component = %+v; want attendance 20 x .18 = 3.6", first)
	}
	last := got.Breakdown[len(got.Breakdown)-1]
	if last.Name != ComponentTiming {
		t.Errorf("Score() last component = %s; want %s", last.Name, ComponentTiming)
	}
}

func TestConfig_Category(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		score int
		want  Category
	}{
		{0, CategoryLow},
		{29, CategoryLow},
		{30, CategoryMedium},
		{59, CategoryMedium},
		{60, CategoryHigh},
		{100, CategoryHigh},
	}
	for _, tt := range tests {
		if got := cfg.Category(tt.score); got != tt.want {
			t.Errorf("Category(%d) = %s; want %s", tt.score, got, tt.want)
		}
	}
}

func TestDefaultConfig_weights(t *testing.T) {
	want := Weights{
		Attendance:  .18,
		Reliability: .15,
		Violations:  .12,
		Calendar:    .15,
		Duration:    .05,
		Frequency:   .08,
		History:     .07,
		LeaveType:   .05,
		Timing:      .05,
	}
	if got := DefaultConfig().Weights; got != want {
		t.Errorf("DefaultConfig().Weights = %+v; want %+v", got, want)
	}
}

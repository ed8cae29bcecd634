package risk

import "github.com/arjuunns/Smart-hostel/core/leave"

type (
	// Weights of the score components. The defaults sum to 0.90.
	Weights struct {
		Attendance  float64
		Reliability float64
		Violations  float64
		Calendar    float64
		Duration    float64
		Frequency   float64
		History     float64
		LeaveType   float64
		Timing      float64
	}

	LeaveTypeRisks struct {
		Regular   float64
		Emergency float64
		Medical   float64
		Other     float64
	}

	// Config holds every weight, penalty and threshold of the scoring pipeline.
	// It is passed by value and never mutated once built.
	Config struct {
		Weights Weights

		HighThreshold   int
		MediumThreshold int

		ViolationPenalty float64 // per curfew violation
		FrequencyPenalty float64 // per leave this month
		DurationPenalty  float64 // per day beyond the first
		LeaveTypeRisks   LeaveTypeRisks

		TimingBase          float64
		WeekendStartBonus   float64
		ShortNoticePenalty  float64
		EarlyNoticeBonus    float64
		EarlyNoticeMinDays  float64
		ShortNoticeMaxDays  float64
		CompleteNoticeDays  float64
		CompleteReasonChars int

		AutoApproveMaxScore      int
		AutoApproveMinConfidence float64
		FlagMinScore             int // strictly above
		ItemisedFlagMinScore     int // strictly above

		LowAttendanceAlert    int
		MonthlyLeavesAlert    int
		GoodAttendance        int
		GoodReliability       int
		MinHistoryDays        int
		PatternWindow         int
		ConcurrentPredictions int
	}
)

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Attendance:  .18,
			Reliability: .15,
			Violations:  .12,
			Calendar:    .15,
			Duration:    .05,
			Frequency:   .08,
			History:     .07,
			LeaveType:   .05,
			Timing:      .05,
		},

		HighThreshold:   60,
		MediumThreshold: 30,

		ViolationPenalty: 20,
		FrequencyPenalty: 25,
		DurationPenalty:  10,
		LeaveTypeRisks: LeaveTypeRisks{
			Regular:   30,
			Emergency: 10,
			Medical:   5,
			Other:     40,
		},

		TimingBase:          30,
		WeekendStartBonus:   20,
		ShortNoticePenalty:  30,
		EarlyNoticeBonus:    10,
		EarlyNoticeMinDays:  3,
		ShortNoticeMaxDays:  1,
		CompleteNoticeDays:  1,
		CompleteReasonChars: 10,

		AutoApproveMaxScore:      20,
		AutoApproveMinConfidence: .6,
		FlagMinScore:             60,
		ItemisedFlagMinScore:     80,

		LowAttendanceAlert:    75,
		MonthlyLeavesAlert:    2,
		GoodAttendance:        80,
		GoodReliability:       80,
		MinHistoryDays:        30,
		PatternWindow:         20,
		ConcurrentPredictions: 4,
	}
}

// Category maps a 0-100 score onto a risk category.
func (c Config) Category(score int) Category {
	switch {
	case score >= c.HighThreshold:
		return CategoryHigh
	case score >= c.MediumThreshold:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

func (c Config) leaveTypeRisk(t leave.Type) float64 {
	switch t {
	case leave.TypeEmergency:
		return c.LeaveTypeRisks.Emergency
	case leave.TypeMedical:
		return c.LeaveTypeRisks.Medical
	case leave.TypeOther:
		return c.LeaveTypeRisks.Other
	default:
		return c.LeaveTypeRisks.Regular
	}
}

// statsWeight is the combined weight of the components computed from statistics alone.
func (w Weights) statsWeight() float64 {
	return w.Attendance + w.Reliability + w.Violations + w.Frequency + w.History
}

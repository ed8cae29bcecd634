package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/arjuunns/Smart-hostel/core/leave"
)

const (
	PatternWeekendExtension    = "WEEKEND_EXTENSION"
	PatternDateClustering      = "DATE_CLUSTERING"
	PatternIncreasingFrequency = "INCREASING_FREQUENCY"
	PatternBackToBack          = "BACK_TO_BACK"

	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
	SeverityNone   = "NONE"
)

const (
	minLeavesForWeekend = 3
	minSameDayOfMonth   = 3
	minRecentLeaves     = 3
	minBackToBackPairs  = 2
	backToBackMaxGap    = 3 * 24 * time.Hour
	frequencyWindow     = 30 * 24 * time.Hour
)

type (
	PatternReport struct {
		Level    string              `json:"level"`
		Flags    []leave.PatternFlag `json:"flags"`
		Analyzed int                 `json:"analyzed"`
	}

	// PatternDetector looks for suspicious habits in a student's leave history. Its findings are advisory.
	PatternDetector struct {
		cfg Config
	}
)

func NewPatternDetector(cfg Config) PatternDetector {
	return PatternDetector{cfg: cfg}
}

// Detect scans the most recent leaves (by creation date) as of now.
func (d PatternDetector) Detect(leaves []leave.Request, now time.Time) PatternReport {
	recent := make([]leave.Request, len(leaves))
	copy(recent, leaves)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > d.cfg.PatternWindow {
		recent = recent[:d.cfg.PatternWindow]
	}

	flags := make([]leave.PatternFlag, 0, 4)
	for _, detect := range []func([]leave.Request, time.Time) (leave.PatternFlag, bool){
		weekendExtension,
		dateClustering,
		increasingFrequency,
		backToBack,
	} {
		if flag, ok := detect(recent, now); ok {
			flags = append(flags, flag)
		}
	}
	return PatternReport{Level: patternLevel(flags), Flags: flags, Analyzed: len(recent)}
}

func patternLevel(flags []leave.PatternFlag) string {
	level := SeverityNone
	for _, f := range flags {
		switch {
		case f.Severity == SeverityHigh:
			return SeverityHigh
		case f.Severity == SeverityMedium:
			level = SeverityMedium
		case level == SeverityNone:
			level = SeverityLow
		}
	}
	return level
}

func weekendExtension(leaves []leave.Request, _ time.Time) (leave.PatternFlag, bool) {
	if len(leaves) < minLeavesForWeekend {
		return leave.PatternFlag{}, false
	}
	var count int
	for _, l := range leaves {
		if wd := l.From.UTC().Weekday(); wd == time.Monday || wd == time.Friday {
			count++
		}
	}
	if count*2 < len(leaves) {
		return leave.PatternFlag{}, false
	}
	return leave.PatternFlag{
		Type:        PatternWeekendExtension,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("%d of %d leaves start on a Monday or Friday", count, len(leaves)),
	}, true
}

func dateClustering(leaves []leave.Request, _ time.Time) (leave.PatternFlag, bool) {
	counts := make(map[int]int)
	var day, best int
	for _, l := range leaves {
		d := l.From.UTC().Day()
		counts[d]++
		if counts[d] > best || (counts[d] == best && d < day) {
			day, best = d, counts[d]
		}
	}
	if best < minSameDayOfMonth {
		return leave.PatternFlag{}, false
	}
	return leave.PatternFlag{
		Type:        PatternDateClustering,
		Severity:    SeverityLow,
		Description: fmt.Sprintf("%d leaves start on day %d of the month", best, day),
	}, true
}

func increasingFrequency(leaves []leave.Request, now time.Time) (leave.PatternFlag, bool) {
	var recent, prior int
	for _, l := range leaves {
		age := now.Sub(l.CreatedAt)
		switch {
		case age < 0:
		case age <= frequencyWindow:
			recent++
		case age <= 2*frequencyWindow:
			prior++
		}
	}
	if recent < minRecentLeaves || recent <= 2*prior {
		return leave.PatternFlag{}, false
	}
	return leave.PatternFlag{
		Type:        PatternIncreasingFrequency,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("%d leaves in the last 30 days against %d in the 30 days before", recent, prior),
	}, true
}

func backToBack(leaves []leave.Request, _ time.Time) (leave.PatternFlag, bool) {
	byStart := make([]leave.Request, len(leaves))
	copy(byStart, leaves)
	sort.SliceStable(byStart, func(i, j int) bool { return byStart[i].From.Before(byStart[j].From) })

	var pairs int
	for i := 1; i < len(byStart); i++ {
		if byStart[i].From.Sub(byStart[i-1].To) <= backToBackMaxGap {
			pairs++
		}
	}
	if pairs < minBackToBackPairs {
		return leave.PatternFlag{}, false
	}
	return leave.PatternFlag{
		Type:        PatternBackToBack,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("%d leaves start within 3 days of the previous one ending", pairs),
	}, true
}

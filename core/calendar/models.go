package calendar

import (
	"strings"
	"time"

	"github.com/arjuunns/Smart-hostel/core"
)

type (
	EventType string
	Policy    string
)

const (
	TypeExam        EventType = "EXAM"
	TypeExamPrep    EventType = "EXAM_PREP"
	TypeHoliday     EventType = "HOLIDAY"
	TypeRestricted  EventType = "RESTRICTED"
	TypeEvent       EventType = "EVENT"
	TypeVacation    EventType = "VACATION"
	TypeOrientation EventType = "ORIENTATION"
	TypeFestival    EventType = "FESTIVAL"
)

const (
	PolicyBlocked     Policy = "BLOCKED"
	PolicyFlagged     Policy = "FLAGGED"
	PolicyDiscouraged Policy = "DISCOURAGED"
	PolicyNormal      Policy = "NORMAL"
	PolicyEncouraged  Policy = "ENCOURAGED"
)

const (
	MinRiskModifier = -50
	MaxRiskModifier = 50
)

var (
	EventTypes = []string{
		string(TypeExam), string(TypeExamPrep), string(TypeHoliday), string(TypeRestricted),
		string(TypeEvent), string(TypeVacation), string(TypeOrientation), string(TypeFestival),
	}
	Policies = []string{
		string(PolicyBlocked), string(PolicyFlagged), string(PolicyDiscouraged),
		string(PolicyNormal), string(PolicyEncouraged),
	}
)

// Event is an academic-calendar entry. StartDate and EndDate are calendar days, both inclusive.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Type         EventType `json:"type"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	LeavePolicy  Policy    `json:"leave_policy"`
	RiskModifier int       `json:"risk_modifier"`
	HostelBlocks []string  `json:"hostel_blocks"`
	Courses      []string  `json:"courses"`
	Years        []int64   `json:"years"`
	Priority     int       `json:"priority"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Overlaps reports whether the event touches [from, to]: start ≤ to AND end ≥ from, the end day being inclusive.
func (e Event) Overlaps(from, to time.Time) bool {
	return !core.StartOfDay(e.StartDate).After(to) && !core.EndOfDay(e.EndDate).Before(from)
}

// AppliesTo reports whether the event's scope filters include the student. Empty filters apply to everyone.
func (e Event) AppliesTo(scope Scope) bool {
	if len(e.HostelBlocks) > 0 && !containsFold(e.HostelBlocks, scope.HostelBlock) {
		return false
	}
	if len(e.Courses) > 0 && !containsFold(e.Courses, scope.Course) {
		return false
	}
	if len(e.Years) > 0 {
		var found bool
		for _, y := range e.Years {
			if y == int64(scope.Year) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Scope is the part of a student profile calendar events can be restricted to.
type Scope struct {
	HostelBlock string
	Course      string
	Year        int
}

// EventInput is the payload used to create or replace an Event.
type EventInput struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=2000"`
	Type         EventType `json:"type" validate:"required,eventtype"`
	StartDate    string    `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string    `json:"end_date" validate:"required,datetime=2006-01-02"`
	LeavePolicy  Policy    `json:"leave_policy" validate:"required,policy"`
	RiskModifier int       `json:"risk_modifier" validate:"gte=-50,lte=50"`
	HostelBlocks []string  `json:"hostel_blocks"`
	Courses      []string  `json:"courses"`
	Years        []int64   `json:"years" validate:"dive,gte=1,lte=10"`
	Priority     int       `json:"priority" validate:"gte=0,lte=100"`
	IsActive     *bool     `json:"is_active"`
}

func (in *EventInput) clean() {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.StartDate = core.CleanString(in.StartDate)
	in.EndDate = core.CleanString(in.EndDate)
	in.HostelBlocks = cleanList(in.HostelBlocks)
	in.Courses = cleanList(in.Courses)
}

func cleanList(list []string) []string {
	cleaned := make([]string, 0, len(list))
	for _, v := range list {
		if v = core.CleanString(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

type QueryFilter struct {
	ActiveOnly bool
	Type       EventType
	Policy     Policy
	// events overlapping [OverlapFrom, OverlapTo]; both must be set to apply
	OverlapFrom time.Time
	OverlapTo   time.Time
}

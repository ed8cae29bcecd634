package leave

import (
	"math"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type (
	Type     string
	Status   string
	Decision string
)

const (
	TypeRegular   Type = "REGULAR"
	TypeEmergency Type = "EMERGENCY"
	TypeMedical   Type = "MEDICAL"
	TypeOther     Type = "OTHER"
)

const (
	StatusPending      Status = "PENDING"
	StatusFlagged      Status = "FLAGGED"
	StatusAutoApproved Status = "AUTO_APPROVED"
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
)

const (
	DecisionAutoApprove  Decision = "AUTO_APPROVE"
	DecisionManualReview Decision = "MANUAL_REVIEW"
	DecisionFlag         Decision = "FLAG"
	DecisionReject       Decision = "REJECT"
)

var (
	// Types is ordered; it also breaks ties when picking the most frequent type.
	Types    = []Type{TypeRegular, TypeEmergency, TypeMedical, TypeOther}
	Statuses = []string{
		string(StatusPending), string(StatusFlagged), string(StatusAutoApproved),
		string(StatusApproved), string(StatusRejected),
	}
)

func typeNames() []string {
	names := make([]string, 0, len(Types))
	for _, t := range Types {
		names = append(names, string(t))
	}
	return names
}

// StatusFor maps an automated decision onto the status a new leave starts with.
func StatusFor(d Decision) Status {
	switch d {
	case DecisionAutoApprove:
		return StatusAutoApproved
	case DecisionFlag, DecisionReject:
		return StatusFlagged
	default:
		return StatusPending
	}
}

// DurationDays is the number of started 24h periods in [from, to], at least 1.
func DurationDays(from, to time.Time) int {
	days := int(math.Ceil(to.Sub(from).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

type (
	PatternFlag struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	}

	// Factors is the part of an Assessment that is frozen on the leave for auditing.
	Factors struct {
		Components       map[string]float64 `json:"components"`
		AttentionPoints  []string           `json:"attention_points"`
		CalendarWarnings []string           `json:"calendar_warnings"`
		Patterns         []PatternFlag      `json:"patterns"`
		PatternLevel     string             `json:"pattern_level"`
	}

	Assessment struct {
		RiskScore    int      `json:"risk_score"`
		RiskCategory string   `json:"risk_category"`
		Decision     Decision `json:"decision"`
		Reason       string   `json:"reason"`
		Confidence   float64  `json:"confidence"`
		CanApply     bool     `json:"can_apply"`
		Factors      Factors  `json:"factors"`
	}

	AssessmentRequest struct {
		Student user.User
		Type    Type
		From    time.Time
		To      time.Time
		Reason  string
	}
)

// Request is a student's leave request.
type Request struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	Type            Type      `json:"type"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Reason          string    `json:"reason"`
	Destination     string    `json:"destination"`
	Status          Status    `json:"status"`
	RiskScore       int       `json:"risk_score"`
	RiskCategory    string    `json:"risk_category"`
	RiskFactors     Factors   `json:"risk_factors"`
	AIDecision      Decision  `json:"ai_decision"`
	AIReason        string    `json:"ai_reason"`
	AIConfidence    float64   `json:"ai_confidence"`
	ReviewedBy      string    `json:"reviewed_by"`
	ReviewerRemarks string    `json:"reviewer_remarks"`
	DecidedAt       null.Time `json:"decided_at"`
	ExitedAt        null.Time `json:"exited_at"`
	ReturnedAt      null.Time `json:"returned_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r Request) DurationDays() int { return DurationDays(r.From, r.To) }

// Approved reports whether the student is allowed out on this leave.
func (r Request) Approved() bool {
	return r.Status == StatusApproved || r.Status == StatusAutoApproved
}

// Flagged reports whether the leave was ever flagged by status or by the automated decision.
func (r Request) Flagged() bool {
	return r.Status == StatusFlagged || r.AIDecision == DecisionFlag || r.AIDecision == DecisionReject
}

func (r Request) IsOut() bool { return r.ExitedAt.Valid && !r.ReturnedAt.Valid }

// ReturnedLate reports whether the student came back after the leave ended and by how long.
func (r Request) ReturnedLate() (bool, time.Duration) {
	if !r.ReturnedAt.Valid || !r.ReturnedAt.Time.After(r.To) {
		return false, 0
	}
	return true, r.ReturnedAt.Time.Sub(r.To)
}

func (r *Request) applyAssessment(a Assessment) {
	r.RiskScore = a.RiskScore
	r.RiskCategory = a.RiskCategory
	r.RiskFactors = a.Factors
	r.AIDecision = a.Decision
	r.AIReason = a.Reason
	r.AIConfidence = a.Confidence
	r.Status = StatusFor(a.Decision)
}

// GatePass authorises a student to pass the gate for an approved leave. It is never modified.
type GatePass struct {
	ID        string    `json:"id"`
	LeaveID   string    `json:"leave_id"`
	StudentID string    `json:"student_id"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Application is the payload of a leave application. Times are RFC 3339.
type Application struct {
	Type        Type   `json:"type" validate:"required,leavetype"`
	From        string `json:"from" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	To          string `json:"to" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Reason      string `json:"reason" validate:"required,max=1000"`
	Destination string `json:"destination" validate:"max=200"`
}

func (a *Application) clean() {
	a.Type = Type(strings.ToUpper(core.CleanString(string(a.Type))))
	a.From = core.CleanString(a.From)
	a.To = core.CleanString(a.To)
	a.Reason = core.CleanString(a.Reason)
	a.Destination = core.CleanString(a.Destination)
}

// Review is a warden's decision on a leave.
type Review struct {
	Status  Status `json:"status" validate:"required,reviewstatus"`
	Remarks string `json:"remarks" validate:"max=1000"`
}

type QueryFilter struct {
	StudentID string
	Statuses  []Status
	Type      Type
	// leaves overlapping [From, To]; either bound may be zero
	From time.Time
	To   time.Time
	// only leaves whose student is past the gate and not back yet
	OutOnly bool
}

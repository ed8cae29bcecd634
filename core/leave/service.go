package leave

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/user"
)

var (
	ErrNotFound          = errors.New("leave not found")
	ErrInvalidTransition = errors.New("this leave can no longer be changed that way")
	ErrGatePassNotFound  = errors.New("gate pass not found")
	ErrGatePassInvalid   = errors.New("gate pass is not valid for this leave")
	ErrAlreadyExited     = errors.New("student already left on this gate pass")
	ErrNotExited         = errors.New("student has not left on this gate pass")
	ErrAlreadyReturned   = errors.New("student already returned on this gate pass")
)

const (
	leaveTypeTag        = "leavetype"
	leaveTypeText       = "invalid leave type"
	reviewStatusTag     = "reviewstatus"
	reviewStatusText    = "status must be APPROVED or REJECTED"
	decisionTemplate    = "leave_decision"
	decisionSubject     = "Leave %s"
	markLeaveRemarksFmt = "leave %s"

	// EarlyExitGrace is how long before the start of a leave its gate pass opens.
	EarlyExitGrace = time.Hour
)

type (
	Repository interface {
		CreateLeave(ctx context.Context, req Request) (Request, error)
		GetLeave(ctx context.Context, id string) (Request, error)
		QueryLeaves(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Request, error)
		UpdateLeave(ctx context.Context, req Request) (Request, error)
		// CreateGatePass stores a new gate pass; a leave holds at most one.
		CreateGatePass(ctx context.Context, gp GatePass) (GatePass, error)
		GetGatePass(ctx context.Context, id string) (GatePass, error)
		GetLeaveGatePass(ctx context.Context, leaveID string) (GatePass, error)
	}

	// Assessor scores a leave application.
	Assessor interface {
		Assess(ctx context.Context, req AssessmentRequest) (Assessment, error)
	}

	// StatsRefresher rebuilds a student's statistics after their leave history changed.
	StatsRefresher interface {
		RefreshStats(ctx context.Context, studentID string) error
	}

	// AttendanceMarker marks the days of an approved leave, and clears them when the approval is revoked.
	AttendanceMarker interface {
		MarkLeave(ctx context.Context, studentID string, from, to time.Time, remarks string) (int, error)
		ClearLeave(ctx context.Context, studentID string, from, to time.Time, remarks string) (int, error)
	}

	Students interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Deps struct {
		Repo       Repository
		Validate   *validator.Validate
		Assessor   Assessor
		Stats      StatsRefresher
		Attendance AttendanceMarker
		Students   Students
		Mail       core.EmailService
		Logger     core.Logger
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// InitValidators registers the leave validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, leaveTypeTag, leaveTypeText, typeNames()...)
	core.RegisterOneOf(validate, translator, reviewStatusTag, reviewStatusText, string(StatusApproved), string(StatusRejected))
}

// ParseWindow validates an application's leave window.
func ParseWindow(fromStr, toStr string, now time.Time) (from, to time.Time, err error) {
	if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
		return from, to, core.NewFieldValidationError("from", "invalid date")
	}
	if to, err = time.Parse(time.RFC3339, toStr); err != nil {
		return from, to, core.NewFieldValidationError("to", "invalid date")
	}
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return from, to, core.NewFieldValidationError("to", "leave must end after it starts")
	}
	if from.Before(now.Add(-time.Minute)) {
		return from, to, core.NewFieldValidationError("from", "leave cannot start in the past")
	}
	return from, to, nil
}

// Apply scores the application, stores the leave with its frozen assessment and acts on the automated decision.
func (svc *Service) Apply(ctx context.Context, student user.User, app Application) (Request, Assessment, error) {
	app.clean()
	if err := svc.Validate.Struct(app); err != nil {
		return Request{}, Assessment{}, err
	}
	now := core.NowFunc()
	from, to, err := ParseWindow(app.From, app.To, now)
	if err != nil {
		return Request{}, Assessment{}, err
	}

	assessment, err := svc.Assessor.Assess(ctx, AssessmentRequest{
		Student: student,
		Type:    app.Type,
		From:    from,
		To:      to,
		Reason:  app.Reason,
	})
	if err != nil {
		return Request{}, Assessment{}, pkgerrors.Wrap(err, "assessing leave")
	}

	req := Request{
		StudentID:   student.ID,
		Type:        app.Type,
		From:        from,
		To:          to,
		Reason:      app.Reason,
		Destination: app.Destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.applyAssessment(assessment)
	if req.Status == StatusAutoApproved {
		req.DecidedAt = null.TimeFrom(now)
	}
	if req, err = svc.Repo.CreateLeave(ctx, req); err != nil {
		return Request{}, Assessment{}, pkgerrors.Wrap(err, "creating leave")
	}

	var gp GatePass
	if req.Approved() {
		if gp, err = svc.grant(ctx, req); err != nil {
			return Request{}, Assessment{}, err
		}
	}
	svc.refreshStats(ctx, req.StudentID)
	svc.notify(student, req, gp.ID)
	return req, assessment, nil
}

// Decide applies a warden's review. PENDING and FLAGGED leaves may be approved or rejected;
// an AUTO_APPROVED leave may only be rejected, and only before the student has left.
func (svc *Service) Decide(ctx context.Context, reviewer user.User, id string, rvw Review) (Request, error) {
	rvw.Remarks = core.CleanString(rvw.Remarks)
	if err := svc.Validate.Struct(rvw); err != nil {
		return Request{}, err
	}
	req, err := svc.Repo.GetLeave(ctx, id)
	if err != nil {
		return Request{}, err
	}

	revoked := false
	switch req.Status {
	case StatusPending, StatusFlagged:
	case StatusAutoApproved:
		if rvw.Status != StatusRejected || req.ExitedAt.Valid {
			return Request{}, ErrInvalidTransition
		}
		revoked = true
	default:
		return Request{}, ErrInvalidTransition
	}

	now := core.NowFunc()
	req.Status = rvw.Status
	req.ReviewedBy = reviewer.ID
	req.ReviewerRemarks = rvw.Remarks
	req.DecidedAt = null.TimeFrom(now)
	req.UpdatedAt = now
	if req, err = svc.Repo.UpdateLeave(ctx, req); err != nil {
		return Request{}, pkgerrors.Wrap(err, "updating leave")
	}

	var gp GatePass
	if req.Approved() {
		if gp, err = svc.grant(ctx, req); err != nil {
			return Request{}, err
		}
	}
	if revoked {
		if _, err := svc.Attendance.ClearLeave(ctx, req.StudentID, req.From, req.To, fmt.Sprintf(markLeaveRemarksFmt, req.ID)); err != nil {
			return Request{}, pkgerrors.Wrap(err, "clearing leave attendance")
		}
	}
	svc.refreshStats(ctx, req.StudentID)
	if student, err := svc.Students.GetByID(ctx, req.StudentID); err == nil {
		svc.notify(student, req, gp.ID)
	} else {
		svc.Logger.Error(fmt.Sprintf("loading student %s: %v", req.StudentID, err), err)
	}
	return req, nil
}

// grant issues the gate pass of an approved leave and marks its days ON_LEAVE.
func (svc *Service) grant(ctx context.Context, req Request) (GatePass, error) {
	gp, err := svc.IssueGatePass(ctx, req)
	if err != nil {
		return GatePass{}, err
	}
	if _, err := svc.Attendance.MarkLeave(ctx, req.StudentID, req.From, req.To, fmt.Sprintf(markLeaveRemarksFmt, req.ID)); err != nil {
		return GatePass{}, pkgerrors.Wrap(err, "marking leave attendance")
	}
	return gp, nil
}

// IssueGatePass returns the gate pass of an approved leave, creating it on first call.
func (svc *Service) IssueGatePass(ctx context.Context, req Request) (GatePass, error) {
	if !req.Approved() {
		return GatePass{}, ErrGatePassInvalid
	}
	gp, err := svc.Repo.GetLeaveGatePass(ctx, req.ID)
	if err == nil {
		return gp, nil
	}
	if err != ErrGatePassNotFound {
		return GatePass{}, pkgerrors.Wrap(err, "finding gate pass")
	}
	gp, err = svc.Repo.CreateGatePass(ctx, GatePass{
		ID:        NewGatePassID(),
		LeaveID:   req.ID,
		StudentID: req.StudentID,
		ValidFrom: req.From,
		ValidTo:   req.To,
		IssuedAt:  core.NowFunc(),
	})
	return gp, pkgerrors.Wrap(err, "creating gate pass")
}

// NewGatePassID returns "GP-" followed by 12 upper-case hex characters.
func NewGatePassID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "GP-" + strings.ToUpper(id[:12])
}

func (svc *Service) Get(ctx context.Context, id string) (Request, error) {
	return svc.Repo.GetLeave(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Request, error) {
	return svc.Repo.QueryLeaves(ctx, filter, ordering)
}

// StudentLeaves returns every leave of a student, most recent first.
func (svc *Service) StudentLeaves(ctx context.Context, studentID string) ([]Request, error) {
	return svc.Repo.QueryLeaves(ctx, &QueryFilter{StudentID: studentID}, []core.DBOrdering{{Field: "created_at"}})
}

// GatePass returns the gate pass of a leave.
func (svc *Service) GatePass(ctx context.Context, leaveID string) (GatePass, error) {
	return svc.Repo.GetLeaveGatePass(ctx, leaveID)
}

func (svc *Service) scan(ctx context.Context, gatePassID string) (GatePass, Request, error) {
	gp, err := svc.Repo.GetGatePass(ctx, strings.ToUpper(core.CleanString(gatePassID)))
	if err != nil {
		return GatePass{}, Request{}, err
	}
	req, err := svc.Repo.GetLeave(ctx, gp.LeaveID)
	if err != nil {
		return GatePass{}, Request{}, pkgerrors.Wrap(err, "finding leave")
	}
	return gp, req, nil
}

// Exit logs the student leaving the hostel on a gate pass.
// The pass opens EarlyExitGrace before the leave starts and closes when it ends.
func (svc *Service) Exit(ctx context.Context, gatePassID string) (Request, error) {
	gp, req, err := svc.scan(ctx, gatePassID)
	if err != nil {
		return Request{}, err
	}
	now := core.NowFunc()
	switch {
	case !req.Approved() || now.Before(gp.ValidFrom.Add(-EarlyExitGrace)) || now.After(gp.ValidTo):
		return Request{}, ErrGatePassInvalid
	case req.ExitedAt.Valid:
		return Request{}, ErrAlreadyExited
	}
	req.ExitedAt = null.TimeFrom(now)
	req.UpdatedAt = now
	req, err = svc.Repo.UpdateLeave(ctx, req)
	return req, pkgerrors.Wrap(err, "updating leave")
}

// Entry logs the student coming back and refreshes their statistics.
func (svc *Service) Entry(ctx context.Context, gatePassID string) (Request, error) {
	_, req, err := svc.scan(ctx, gatePassID)
	if err != nil {
		return Request{}, err
	}
	switch {
	case !req.ExitedAt.Valid:
		return Request{}, ErrNotExited
	case req.ReturnedAt.Valid:
		return Request{}, ErrAlreadyReturned
	}
	now := core.NowFunc()
	req.ReturnedAt = null.TimeFrom(now)
	req.UpdatedAt = now
	if req, err = svc.Repo.UpdateLeave(ctx, req); err != nil {
		return Request{}, pkgerrors.Wrap(err, "updating leave")
	}
	svc.refreshStats(ctx, req.StudentID)
	return req, nil
}

// CurrentlyOut lists the leaves of the students who are out of the hostel.
func (svc *Service) CurrentlyOut(ctx context.Context) ([]Request, error) {
	return svc.Repo.QueryLeaves(ctx, &QueryFilter{OutOnly: true}, []core.DBOrdering{{Field: "to", Ascending: true}})
}

func (svc *Service) refreshStats(ctx context.Context, studentID string) {
	if err := svc.Stats.RefreshStats(ctx, studentID); err != nil {
		svc.Logger.Error(fmt.Sprintf("refreshing stats of %s: %v", studentID, err), err)
	}
}

type decisionData struct {
	Name       string
	LeaveType  Type
	From       string
	To         string
	Status     Status
	Remarks    string
	GatePassID string
}

func (svc *Service) notify(student user.User, req Request, gatePassID string) {
	if student.Email == "" {
		return
	}
	status := strings.ToLower(strings.ReplaceAll(string(req.Status), "_", " "))
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf(decisionSubject, status),
		TemplateName: decisionTemplate,
		TemplateData: decisionData{
			Name:       student.Name,
			LeaveType:  req.Type,
			From:       req.From.Format("Mon 02 Jan 2006 15:04"),
			To:         req.To.Format("Mon 02 Jan 2006 15:04"),
			Status:     req.Status,
			Remarks:    req.ReviewerRemarks,
			GatePassID: gatePassID,
		},
	}
	if gatePassID != "" {
		png, err := GatePass{ID: gatePassID}.QRCode()
		if err == nil {
			err = msg.Attach(bytes.NewReader(png), gatePassID+".png", "image/png")
		}
		if err != nil {
			svc.Logger.Error(fmt.Sprintf("attaching gate pass %s: %v", gatePassID, err), err)
		}
	}
	svc.Mail.SendMessages(msg)
}

var csvHeader = []string{
	"id", "student_id", "type", "from", "to", "days", "status", "risk_score", "risk_category",
	"ai_decision", "ai_confidence", "reviewed_by", "exited_at", "returned_at", "created_at",
}

// ExportCSV writes the leaves matching filter as CSV.
func (svc *Service) ExportCSV(ctx context.Context, w io.Writer, filter *QueryFilter) error {
	leaves, err := svc.Repo.QueryLeaves(ctx, filter, []core.DBOrdering{{Field: "created_at", Ascending: true}})
	if err != nil {
		return pkgerrors.Wrap(err, "querying leaves")
	}
	fmtTime := func(t null.Time) string {
		if !t.Valid {
			return ""
		}
		return t.Time.Format(time.RFC3339)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, l := range leaves {
		row := []string{
			l.ID,
			l.StudentID,
			string(l.Type),
			l.From.Format(time.RFC3339),
			l.To.Format(time.RFC3339),
			strconv.Itoa(l.DurationDays()),
			string(l.Status),
			strconv.Itoa(l.RiskScore),
			l.RiskCategory,
			string(l.AIDecision),
			strconv.FormatFloat(l.AIConfidence, 'f', 2, 64),
			l.ReviewedBy,
			fmtTime(l.ExitedAt),
			fmtTime(l.ReturnedAt),
			l.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package leave_test

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/user"
	emailsvc "github.com/arjuunns/Smart-hostel/services/email"
	testutil "github.com/arjuunns/Smart-hostel/tests"
)

var (
	now       = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	leaveFrom = time.Date(2024, time.March, 8, 10, 0, 0, 0, time.UTC)
	leaveTo   = time.Date(2024, time.March, 9, 9, 0, 0, 0, time.UTC)
)

type assessorFunc func(ctx context.Context, req leave.AssessmentRequest) (leave.Assessment, error)

func (f assessorFunc) Assess(ctx context.Context, req leave.AssessmentRequest) (leave.Assessment, error) {
	return f(ctx, req)
}

type refresher struct {
	mu    sync.Mutex
	calls []string
}

func (r *refresher) RefreshStats(_ context.Context, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, studentID)
	return nil
}

type fixture struct {
	svc        *leave.Service
	repo       leave.Repository
	attendance *attendance.Service
	mail       *emailsvc.ConsoleServiceMock
	stats      *refresher
	student    user.User
	warden     user.User
	decision   leave.Decision
	assessed   []leave.AssessmentRequest
}

func setup(t *testing.T) *fixture {
	t.Helper()
	app, mail := testutil.NewApp(t)
	testutil.MockNow(t, now)

	f := &fixture{
		repo:       app.Repos.Leaves,
		attendance: app.Attendance,
		mail:       mail,
		stats:      &refresher{},
		student:    testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true),
		warden:     testutil.CreateUser(t, app.Repos.Users, "Wanda Kim", "wanda@example.com", user.RoleWarden, true),
		decision:   leave.DecisionManualReview,
	}
	f.svc = leave.NewService(leave.Deps{
		Repo:     app.Repos.Leaves,
		Validate: app.Validate,
		Assessor: assessorFunc(func(_ context.Context, req leave.AssessmentRequest) (leave.Assessment, error) {
			f.assessed = append(f.assessed, req)
			return leave.Assessment{
				RiskScore:    42,
				RiskCategory: "MEDIUM",
				Decision:     f.decision,
				Reason:       "stubbed",
				Confidence:   .8,
				CanApply:     f.decision != leave.DecisionReject,
				Factors:      leave.Factors{Components: map[string]float64{"leave_type": 30}},
			}, nil
		}),
		Stats:      f.stats,
		Attendance: app.Attendance,
		Students:   app.Users,
		Mail:       mail,
		Logger:     app.Logger,
	})
	return f
}

func application() leave.Application {
	return leave.Application{
		Type:        "regular",
		From:        leaveFrom.Format(time.RFC3339),
		To:          leaveTo.Format(time.RFC3339),
		Reason:      "  going home for the weekend ",
		Destination: "Pune",
	}
}

func (f *fixture) leaveDays(t *testing.T) []attendance.Record {
	t.Helper()
	recs, err := f.attendance.Query(context.Background(), &attendance.QueryFilter{StudentID: f.student.ID, Status: attendance.StatusOnLeave}, nil)
	require.NoError(t, err)
	return recs
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name      string
		from, to  string
		wantField string
	}{
		{name: "valid", from: "2024-03-08T10:00:00Z", to: "2024-03-09T09:00:00Z"},
		{name: "offsets are normalised", from: "2024-03-08T15:30:00+05:30", to: "2024-03-09T09:00:00Z"},
		{name: "starts within the last minute", from: "2024-03-04T08:59:30Z", to: "2024-03-04T18:00:00Z"},
		{name: "bad from", from: "2024-03-08", to: "2024-03-09T09:00:00Z", wantField: "from"},
		{name: "bad to", from: "2024-03-08T10:00:00Z", to: "tomorrow", wantField: "to"},
		{name: "ends before it starts", from: "2024-03-08T10:00:00Z", to: "2024-03-08T09:00:00Z", wantField: "to"},
		{name: "empty window", from: "2024-03-08T10:00:00Z", to: "2024-03-08T10:00:00Z", wantField: "to"},
		{name: "in the past", from: "2024-03-03T10:00:00Z", to: "2024-03-05T10:00:00Z", wantField: "from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := leave.ParseWindow(tt.from, tt.to, now)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, time.UTC, from.Location())
				assert.True(t, to.After(from))
				return
			}
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr), "error = %v", err)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

func TestService_Apply(t *testing.T) {
	tests := []struct {
		decision     leave.Decision
		wantStatus   leave.Status
		wantSubject  string
		wantGatePass bool
	}{
		{decision: leave.DecisionAutoApprove, wantStatus: leave.StatusAutoApproved, wantSubject: "Leave auto approved", wantGatePass: true},
		{decision: leave.DecisionManualReview, wantStatus: leave.StatusPending, wantSubject: "Leave pending"},
		{decision: leave.DecisionFlag, wantStatus: leave.StatusFlagged, wantSubject: "Leave flagged"},
		{decision: leave.DecisionReject, wantStatus: leave.StatusFlagged, wantSubject: "Leave flagged"},
	}
	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			f := setup(t)
			f.decision = tt.decision
			ctx := context.Background()

			req, assessment, err := f.svc.Apply(ctx, f.student, application())
			require.NoError(t, err)
			assert.Equal(t, tt.decision, assessment.Decision)

			assert.NotEmpty(t, req.ID)
			assert.Equal(t, f.student.ID, req.StudentID)
			assert.Equal(t, leave.TypeRegular, req.Type)
			assert.Equal(t, "going home for the weekend", req.Reason)
			assert.Equal(t, tt.wantStatus, req.Status)
			assert.Equal(t, 42, req.RiskScore)
			assert.Equal(t, "MEDIUM", req.RiskCategory)
			assert.Equal(t, tt.decision, req.AIDecision)
			assert.Equal(t, .8, req.AIConfidence)
			assert.Equal(t, 30.0, req.RiskFactors.Components["leave_type"])
			assert.Equal(t, now, req.CreatedAt)
			assert.Equal(t, tt.wantGatePass, req.DecidedAt.Valid)

			require.Len(t, f.assessed, 1)
			assert.Equal(t, leaveFrom, f.assessed[0].From)
			assert.Equal(t, f.student.ID, f.assessed[0].Student.ID)
			assert.Equal(t, []string{f.student.ID}, f.stats.calls)

			gp, err := f.svc.GatePass(ctx, req.ID)
			if tt.wantGatePass {
				require.NoError(t, err)
				assert.Regexp(t, `^GP-[0-9A-F]{12}$`, gp.ID)
				assert.Equal(t, leaveFrom, gp.ValidFrom)
				assert.Equal(t, leaveTo, gp.ValidTo)
				assert.Len(t, f.leaveDays(t), 2)
			} else {
				assert.Equal(t, leave.ErrGatePassNotFound, err)
				assert.Empty(t, f.leaveDays(t))
			}

			sent := f.mail.SentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantSubject, sent[0].Subject)
			assert.Equal(t, f.student.Email, sent[0].To[0].Address)
			if tt.wantGatePass {
				assert.Contains(t, sent[0].TextContent, gp.ID)
				require.Len(t, sent[0].Attachments, 1)
				assert.Equal(t, gp.ID+".png", sent[0].Attachments[0].Filename)
				assert.Equal(t, "image/png", sent[0].Attachments[0].ContentType)
			} else {
				assert.Empty(t, sent[0].Attachments)
			}
		})
	}
}

func TestService_Apply_invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	app := application()
	app.Type = "vacation"
	_, _, err := f.svc.Apply(ctx, f.student, app)
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs), "error = %v", err)

	app = application()
	app.From = now.Add(-2 * time.Hour).Format(time.RFC3339)
	_, _, err = f.svc.Apply(ctx, f.student, app)
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr), "error = %v", err)

	assert.Empty(t, f.assessed, "invalid applications are not scored")
	leaves, err := f.svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func TestService_Apply_assessorFails(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, now)
	student := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)

	svc := leave.NewService(leave.Deps{
		Repo:     app.Repos.Leaves,
		Validate: app.Validate,
		Assessor: assessorFunc(func(context.Context, leave.AssessmentRequest) (leave.Assessment, error) {
			return leave.Assessment{}, errors.New("calendar unavailable")
		}),
		Stats:      &refresher{},
		Attendance: app.Attendance,
		Students:   app.Users,
		Mail:       app.Mail,
		Logger:     app.Logger,
	})
	_, _, err := svc.Apply(context.Background(), student, application())
	require.Error(t, err)
	assert.Equal(t, "assessing leave: calendar unavailable", err.Error())
}

func TestService_Decide(t *testing.T) {
	tests := []struct {
		name       string
		status     leave.Status
		exited     bool
		review     leave.Status
		wantErr    error
		wantPasses bool
	}{
		{name: "approve pending", status: leave.StatusPending, review: leave.StatusApproved, wantPasses: true},
		{name: "reject pending", status: leave.StatusPending, review: leave.StatusRejected},
		{name: "approve flagged", status: leave.StatusFlagged, review: leave.StatusApproved, wantPasses: true},
		{name: "reject flagged", status: leave.StatusFlagged, review: leave.StatusRejected},
		{name: "reject auto-approved", status: leave.StatusAutoApproved, review: leave.StatusRejected},
		{name: "approve auto-approved", status: leave.StatusAutoApproved, review: leave.StatusApproved, wantErr: leave.ErrInvalidTransition},
		{name: "reject auto-approved after exit", status: leave.StatusAutoApproved, exited: true, review: leave.StatusRejected, wantErr: leave.ErrInvalidTransition},
		{name: "reject approved", status: leave.StatusApproved, review: leave.StatusRejected, wantErr: leave.ErrInvalidTransition},
		{name: "approve rejected", status: leave.StatusRejected, review: leave.StatusApproved, wantErr: leave.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()

			stored := leave.Request{StudentID: f.student.ID, Status: tt.status, From: leaveFrom, To: leaveTo}
			if tt.exited {
				stored.ExitedAt = null.TimeFrom(leaveFrom)
			}
			stored = testutil.CreateLeave(t, f.repo, stored)

			got, err := f.svc.Decide(ctx, f.warden, stored.ID, leave.Review{Status: tt.review, Remarks: " ok "})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				unchanged, err := f.svc.Get(ctx, stored.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.status, unchanged.Status)
				assert.Empty(t, f.mail.SentMessages())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.review, got.Status)
			assert.Equal(t, f.warden.ID, got.ReviewedBy)
			assert.Equal(t, "ok", got.ReviewerRemarks)
			assert.Equal(t, null.TimeFrom(now), got.DecidedAt)
			assert.Equal(t, []string{f.student.ID}, f.stats.calls)
			assert.Len(t, f.mail.SentMessages(), 1)

			_, err = f.svc.GatePass(ctx, stored.ID)
			if tt.wantPasses {
				assert.NoError(t, err)
				assert.Len(t, f.leaveDays(t), 2)
			} else {
				assert.Equal(t, leave.ErrGatePassNotFound, err)
			}
		})
	}
}

func TestService_Decide_revokeClearsLeaveDays(t *testing.T) {
	f := setup(t)
	f.decision = leave.DecisionAutoApprove
	ctx := context.Background()

	req, _, err := f.svc.Apply(ctx, f.student, application())
	require.NoError(t, err)
	require.Equal(t, leave.StatusAutoApproved, req.Status)
	require.Len(t, f.leaveDays(t), 2)

	rejected, err := f.svc.Decide(ctx, f.warden, req.ID, leave.Review{Status: leave.StatusRejected, Remarks: "exams"})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Empty(t, f.leaveDays(t), "revoked days no longer count as leave")
}

func TestService_Decide_invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.warden, "nope", leave.Review{Status: leave.StatusApproved})
	assert.Equal(t, leave.ErrNotFound, err)

	_, err = f.svc.Decide(ctx, f.warden, "nope", leave.Review{Status: leave.StatusPending})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs), "error = %v", err)
}

func TestService_IssueGatePass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pending := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusPending, From: leaveFrom, To: leaveTo})
	_, err := f.svc.IssueGatePass(ctx, pending)
	assert.Equal(t, leave.ErrGatePassInvalid, err)

	approved := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusApproved, From: leaveFrom, To: leaveTo})
	first, err := f.svc.IssueGatePass(ctx, approved)
	require.NoError(t, err)
	second, err := f.svc.IssueGatePass(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a leave holds a single gate pass")
	assert.Equal(t, now, first.IssuedAt)
}

func TestService_GatePassQR(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	approved := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusApproved, From: leaveFrom, To: leaveTo})
	issued, err := f.svc.IssueGatePass(ctx, approved)
	require.NoError(t, err)

	gp, qr, err := f.svc.GatePassQR(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, issued, gp)
	img, err := png.Decode(bytes.NewReader(qr))
	require.NoError(t, err)
	assert.Equal(t, leave.QRSize, img.Bounds().Dx())
	assert.Equal(t, leave.QRSize, img.Bounds().Dy())

	pending := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusPending, From: leaveFrom, To: leaveTo})
	_, _, err = f.svc.GatePassQR(ctx, pending.ID)
	assert.Equal(t, leave.ErrGatePassNotFound, err)
}

func TestService_gate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	approved := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusApproved, From: leaveFrom, To: leaveTo})
	gp, err := f.svc.IssueGatePass(ctx, approved)
	require.NoError(t, err)

	_, err = f.svc.Exit(ctx, "GP-000000000000")
	assert.Equal(t, leave.ErrGatePassNotFound, err)
	_, err = f.svc.Entry(ctx, gp.ID)
	assert.Equal(t, leave.ErrNotExited, err)

	_, err = f.svc.Exit(ctx, gp.ID)
	assert.Equal(t, leave.ErrGatePassInvalid, err, "the pass is not open yet")

	opens := leaveFrom.Add(-leave.EarlyExitGrace)
	testutil.MockNow(t, opens.Add(-time.Second))
	_, err = f.svc.Exit(ctx, gp.ID)
	assert.Equal(t, leave.ErrGatePassInvalid, err)

	testutil.MockNow(t, opens)
	out, err := f.svc.Exit(ctx, " "+strings.ToLower(gp.ID)+" ")
	require.NoError(t, err)
	assert.Equal(t, null.TimeFrom(opens), out.ExitedAt)
	assert.True(t, out.IsOut())

	_, err = f.svc.Exit(ctx, gp.ID)
	assert.Equal(t, leave.ErrAlreadyExited, err)

	away, err := f.svc.CurrentlyOut(ctx)
	require.NoError(t, err)
	require.Len(t, away, 1)
	assert.Equal(t, approved.ID, away[0].ID)

	back := leaveTo.Add(2 * time.Hour)
	testutil.MockNow(t, back)
	in, err := f.svc.Entry(ctx, gp.ID)
	require.NoError(t, err)
	assert.Equal(t, null.TimeFrom(back), in.ReturnedAt)
	late, by := in.ReturnedLate()
	assert.True(t, late)
	assert.Equal(t, 2*time.Hour, by)
	assert.Equal(t, []string{f.student.ID}, f.stats.calls)

	_, err = f.svc.Entry(ctx, gp.ID)
	assert.Equal(t, leave.ErrAlreadyReturned, err)

	away, err = f.svc.CurrentlyOut(ctx)
	require.NoError(t, err)
	assert.Empty(t, away)
}

func TestService_gate_invalidPass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	expired := testutil.CreateLeave(t, f.repo, leave.Request{
		StudentID: f.student.ID,
		Status:    leave.StatusApproved,
		From:      now.AddDate(0, 0, -3),
		To:        now.AddDate(0, 0, -2),
	})
	gp, err := f.svc.IssueGatePass(ctx, expired)
	require.NoError(t, err)
	_, err = f.svc.Exit(ctx, gp.ID)
	assert.Equal(t, leave.ErrGatePassInvalid, err)

	revoked := testutil.CreateLeave(t, f.repo, leave.Request{StudentID: f.student.ID, Status: leave.StatusAutoApproved, From: leaveFrom, To: leaveTo})
	gp, err = f.svc.IssueGatePass(ctx, revoked)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, f.warden, revoked.ID, leave.Review{Status: leave.StatusRejected, Remarks: "exams"})
	require.NoError(t, err)
	_, err = f.svc.Exit(ctx, gp.ID)
	assert.Equal(t, leave.ErrGatePassInvalid, err)
}

func TestService_ExportCSV(t *testing.T) {
	f := setup(t)
	f.decision = leave.DecisionAutoApprove
	ctx := context.Background()

	req, _, err := f.svc.Apply(ctx, f.student, application())
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	require.NoError(t, f.svc.ExportCSV(ctx, buf, &leave.QueryFilter{StudentID: f.student.ID}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,student_id,type,from,to,days,status"))
	assert.Equal(t,
		req.ID+","+f.student.ID+",REGULAR,2024-03-08T10:00:00Z,2024-03-09T09:00:00Z,1,AUTO_APPROVED,42,MEDIUM,AUTO_APPROVE,0.80,,,,2024-03-04T09:00:00Z",
		lines[1])
}

func TestNewGatePassID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := leave.NewGatePassID()
		assert.Regexp(t, `^GP-[0-9A-F]{12}$`, id)
		assert.False(t, seen[id], "duplicate gate pass ID %s", id)
		seen[id] = true
	}
}

func TestDurationDays(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{name: "same instant", from: leaveFrom, to: leaveFrom, want: 1},
		{name: "a few hours", from: leaveFrom, to: leaveFrom.Add(3 * time.Hour), want: 1},
		{name: "exactly a day", from: leaveFrom, to: leaveFrom.Add(24 * time.Hour), want: 1},
		{name: "a day and a minute", from: leaveFrom, to: leaveFrom.Add(24*time.Hour + time.Minute), want: 2},
		{name: "a week", from: leaveFrom, to: leaveFrom.AddDate(0, 0, 7), want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.DurationDays(tt.from, tt.to))
		})
	}
}

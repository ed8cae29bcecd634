package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
	"github.com/arjuunns/Smart-hostel/core/user"
	testutil "github.com/arjuunns/Smart-hostel/tests"
)

func TestPredictor_Predict(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, date(time.March, 4, 9))
	ctx := context.Background()

	student := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	req := risk.PredictionRequest{
		Student: student,
		Type:    leave.TypeRegular,
		From:    date(time.March, 8, 10),
		To:      date(time.March, 9, 9),
		Reason:  "going home for the weekend",
	}

	pred, err := app.Predictor.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, student.ID, pred.StudentID)
	assert.Equal(t, 2, pred.RiskScore)
	assert.Equal(t, risk.CategoryLow, pred.RiskCategory)
	assert.Equal(t, .7, pred.Confidence)
	assert.Equal(t, leave.DecisionAutoApprove, pred.Decision)
	assert.True(t, pred.Calendar.CanApply)
	assert.Equal(t, risk.SeverityNone, pred.Patterns.Level)
	require.NotEmpty(t, pred.Explanation)
	assert.Equal(t, "risk 2 (LOW), confidence 0.70: AUTO_APPROVE", pred.Explanation[0])
	assert.Contains(t, pred.Explanation, "leave type: 30.00 x 0.05 = 1.50")

	again, err := app.Predictor.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pred, again, "predicting twice yields the same result")

	leaves, err := app.Repos.Leaves.QueryLeaves(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, leaves, "predictions are not persisted as leaves")
}

func TestPredictor_Predict_calendar(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, date(time.March, 4, 9))
	ctx := context.Background()

	student := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	testutil.CreateEvent(t, app.Repos.Calendar, "Midterms", calendar.TypeExam, calendar.PolicyBlocked,
		date(time.March, 8, 0), date(time.March, 8, 0), 0)

	pred, err := app.Predictor.Predict(ctx, risk.PredictionRequest{
		Student: student,
		Type:    leave.TypeRegular,
		From:    date(time.March, 8, 10),
		To:      date(time.March, 9, 9),
		Reason:  "going home for the weekend",
	})
	require.NoError(t, err)
	assert.False(t, pred.Calendar.CanApply)
	assert.Equal(t, leave.DecisionReject, pred.Decision)
	assert.Equal(t, []string{"Midterms (2024-03-08 to 2024-03-08)"}, pred.AttentionPoints)
}

func TestPredictor_Assess(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, date(time.March, 4, 9))

	student := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	got, err := app.Predictor.Assess(context.Background(), leave.AssessmentRequest{
		Student: student,
		Type:    leave.TypeOther,
		From:    date(time.March, 8, 10),
		To:      date(time.March, 9, 9),
		Reason:  "errands in town",
	})
	require.NoError(t, err)
	assert.Equal(t, "LOW", got.RiskCategory)
	assert.True(t, got.CanApply)
	assert.Equal(t, 40.0, got.Factors.Components[risk.ComponentLeaveType])
	assert.Len(t, got.Factors.Components, 9)
	assert.Equal(t, risk.SeverityNone, got.Factors.PatternLevel)
}

func TestPredictor_PredictPending(t *testing.T) {
	app, _ := testutil.NewApp(t)
	testutil.MockNow(t, date(time.March, 4, 9))
	ctx := context.Background()

	asha := testutil.CreateUser(t, app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	ben := testutil.CreateUser(t, app.Repos.Users, "Ben Okafor", "ben@example.com", user.RoleStudent, true)

	pending := testutil.CreateLeave(t, app.Repos.Leaves, leave.Request{
		StudentID: asha.ID, Status: leave.StatusPending, From: date(time.March, 8, 10), To: date(time.March, 9, 9),
	})
	flagged := testutil.CreateLeave(t, app.Repos.Leaves, leave.Request{
		StudentID: ben.ID, Type: leave.TypeOther, Status: leave.StatusFlagged, From: date(time.March, 5, 10), To: date(time.March, 12, 10),
	})
	testutil.CreateLeave(t, app.Repos.Leaves, leave.Request{
		StudentID: ben.ID, Status: leave.StatusApproved, From: date(time.March, 20, 10), To: date(time.March, 21, 10),
	})
	ghost := testutil.CreateLeave(t, app.Repos.Leaves, leave.Request{
		StudentID: "ghost", Status: leave.StatusPending, From: date(time.March, 8, 10), To: date(time.March, 9, 9),
	})

	dash, err := app.Predictor.PredictPending(ctx)
	require.NoError(t, err)
	require.Len(t, dash.Items, 3)
	assert.Equal(t, flagged.ID, dash.Items[0].Leave.ID)
	assert.Equal(t, pending.ID, dash.Items[1].Leave.ID)
	assert.Equal(t, ghost.ID, dash.Items[2].Leave.ID)

	assert.Equal(t, flagged.ID, dash.Items[0].Prediction.LeaveID)
	assert.Equal(t, ben.ID, dash.Items[0].Student.ID)
	assert.Nil(t, dash.Items[2].Prediction)
	assert.Contains(t, dash.Items[2].Error, "finding student")
	assert.Equal(t, 1, dash.Failed)

	var total int
	for _, n := range dash.Counts {
		total += n
	}
	assert.Len(t, dash.Counts, 4)
	assert.Equal(t, 2, total)
}

// Package testutil provides fixtures shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/arjuunns/Smart-hostel/apps/shared"
	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/user"
	appfs "github.com/arjuunns/Smart-hostel/fs"
	emailsvc "github.com/arjuunns/Smart-hostel/services/email"
	logsvc "github.com/arjuunns/Smart-hostel/services/logger"
	inmemdb "github.com/arjuunns/Smart-hostel/storage/database/inmem"
)

// Password satisfies the password policy for every fixture user.
const Password = "Xk9#mQ2$vL"

// NewApp wires every service on a fresh in-memory database. Emails are recorded by the returned mock.
func NewApp(t *testing.T) (*shared.App, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	if err := core.ParseEmailTemplates(appfs.FS); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	return shared.NewApp(conf, logger, shared.InMemoryRepositories(inmemdb.Open()), mail), mail
}

// MockNow freezes core.NowFunc at now for the duration of the test.
func MockNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if role == user.RoleStudent {
		usr.HostelBlock = "A"
		usr.Room = "101"
		usr.Course = "CSE"
		usr.Year = 2
	}
	usr.SetActive(isActive)
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateEvent stores an active calendar event covering [start, end].
func CreateEvent(
	t *testing.T,
	repo calendar.Repository,
	title string,
	typ calendar.EventType,
	policy calendar.Policy,
	start, end time.Time,
	modifier int,
) calendar.Event {
	t.Helper()
	evt, err := repo.CreateEvent(context.Background(), calendar.Event{
		Title:        title,
		Type:         typ,
		StartDate:    core.StartOfDay(start),
		EndDate:      core.StartOfDay(end),
		LeavePolicy:  policy,
		RiskModifier: modifier,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	return evt
}

// CreateLeave stores a leave as-is, bypassing scoring.
func CreateLeave(t *testing.T, repo leave.Repository, req leave.Request) leave.Request {
	t.Helper()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = req.From.Add(-24 * time.Hour)
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	if req.Type == "" {
		req.Type = leave.TypeRegular
	}
	req, err := repo.CreateLeave(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateLeave() failed: %v", err)
	}
	return req
}

// MarkDays stores one attendance record per day starting at from.
func MarkDays(t *testing.T, repo attendance.Repository, studentID string, from time.Time, statuses ...attendance.Status) {
	t.Helper()
	for i, st := range statuses {
		day := core.StartOfDay(from).AddDate(0, 0, i)
		if _, err := repo.UpsertRecord(context.Background(), attendance.Record{
			StudentID: studentID,
			Date:      day,
			Status:    st,
			CreatedAt: day,
			UpdatedAt: day,
		}); err != nil {
			t.Fatalf("MarkDays() failed: %v", err)
		}
	}
}

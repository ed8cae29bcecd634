package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/user"
	testutil "github.com/arjuunns/Smart-hostel/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	app, _ := testutil.NewApp(t)
	out := new(bytes.Buffer)
	return &commandLine{app: app, out: out}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) bool {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
		return true
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if !strings.Contains(err.Error(), tt.wantErrStr) {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return false
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) {
		if pwd == "" {
			return nil, nil
		}
		return []byte(pwd), nil
	}
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	t.Run("in-memory engine", func(t *testing.T) {
		if err := cli.run([]string{"admin", "migrate", "up"}); err != errNoDatabase {
			t.Errorf("cli.run() error = %v, wantErr %v", err, errNoDatabase)
		}
	})

	var ran []string
	cli.migrate = func(command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	if len(ran) != 10 {
		t.Errorf("migrations run = %v; want 10", ran)
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	existing := testutil.CreateUser(t, cli.app.Repos.Users, "Wanda Kim", "wanda@example.com", user.RoleStudent, false)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"adduser", "-email", "x@example.com"}, extra: testutil.Password, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Gus", "-email", "gus@example.com"}, wantErr: errHelp},
		{name: "student without hostel", args: []string{"adduser", "-name", "Ben", "-email", "ben@example.com"}, extra: testutil.Password, wantErrStr: "hostelrequired"},
		{name: "weak password", args: []string{"adduser", "-name", "Gus", "-email", "gus@example.com", "-role", "guard"}, extra: "12345678", wantErrStr: "pwdnotallnum"},
		{name: "new guard", args: []string{"adduser", "-name", "Gus Lima", "-email", "Gus@Example.com", "-role", "GUARD"}, extra: testutil.Password},
		{name: "existing user is promoted", args: []string{"adduser", "-name", "Wanda Kim", "-email", existing.Email, "-role", "warden"}, extra: "n3w-Secret!"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(t, pwd)
			tt.check(t, cli.run(args))
		})
	}

	guard, err := cli.app.Users.GetByEmail(ctx, "gus@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() failed, %v", err)
	}
	if guard.Role != user.RoleGuard || !guard.Active() {
		t.Errorf("guard = %+v; want an active guard", guard)
	}
	if !strings.Contains(out.String(), "saved gus@example.com (guard, "+guard.ID+")") {
		t.Errorf("output = %q", out.String())
	}

	warden, err := cli.app.Users.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetByID() failed, %v", err)
	}
	if warden.Role != user.RoleWarden || !warden.Active() {
		t.Errorf("warden = %+v; want an active warden", warden)
	}
	if err := warden.CheckPassword("n3w-Secret!"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, cli.app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@example.com"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@example.com"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "too similar to the email", args: []string{"resetpassword", "-email", usr.Email}, extra: "Asha@example.com1", wantErrStr: "similar to user attributes"},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: "lmao-Secret-42"},
		{name: "email is case insensitive", args: []string{"resetpassword", "-email", " ASHA@example.com"}, extra: "r0tated-Again!"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(t, pwd)
			if !tt.check(t, cli.run(args)) {
				return
			}

			refreshed, err := cli.app.Users.GetByID(context.Background(), usr.ID)
			if err != nil {
				t.Fatalf("GetByID() failed, %v", err)
			}
			if err := refreshed.CheckPassword(pwd); err != nil {
				t.Error("failed to update new password")
			}
		})
	}
}

func Test_commandLine_refreshStats(t *testing.T) {
	cli, out := setup(t)
	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	testutil.MockNow(t, now)

	asha := testutil.CreateUser(t, cli.app.Repos.Users, "Asha Rao", "asha@example.com", user.RoleStudent, true)
	ben := testutil.CreateUser(t, cli.app.Repos.Users, "Ben Okafor", "ben@example.com", user.RoleStudent, true)
	testutil.CreateUser(t, cli.app.Repos.Users, "Ina Ctive", "ina@example.com", user.RoleStudent, false)
	testutil.CreateUser(t, cli.app.Repos.Users, "Wanda Kim", "wanda@example.com", user.RoleWarden, true)
	testutil.MarkDays(t, cli.app.Repos.Attendance, asha.ID, now.AddDate(0, 0, -4),
		attendance.StatusAbsent, attendance.StatusAbsent, attendance.StatusAbsent, attendance.StatusAbsent)

	if err := cli.run([]string{"admin", "refreshstats", "-student", "nope"}); err != user.ErrNotFound {
		t.Errorf("cli.run() error = %v, wantErr %v", err, user.ErrNotFound)
	}

	if err := cli.run([]string{"admin", "refreshstats"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if want := "refreshed 2 student(s)\n"; out.String() != want {
		t.Errorf("output = %q; want %q", out.String(), want)
	}

	out.Reset()
	if err := cli.run([]string{"admin", "refreshstats", "-student", asha.ID}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if want := fmt.Sprintf("stats(%s: 30 MEDIUM)\n", asha.ID); out.String() != want {
		t.Errorf("output = %q; want %q", out.String(), want)
	}

	stats, err := cli.app.Predictor.Stats().Get(context.Background(), ben.ID)
	if err != nil {
		t.Fatalf("Get() failed, %v", err)
	}
	if stats.OverallRiskScore != 0 || !stats.LastUpdated.Equal(now) {
		t.Errorf("stats = %v, updated %v", stats, stats.LastUpdated)
	}
}

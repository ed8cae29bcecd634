package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/arjuunns/Smart-hostel/apps/shared"
	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need the postgres engine")
)

type commandLine struct {
	app *shared.App
	out io.Writer
	// nil with the in-memory engine
	migrate func(command string, args ...string) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run the database migrations (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-role ROLE] [-hostel BLOCK] [-room ROOM] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a user's password")
	fmt.Fprintln(cli.out, "  refreshstats [-student ID] - recompute the statistics of one or every student")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "One of student, warden, guard or admin.")
	addUserHostel := addUserCmd.String("hostel", "", "The hostel block; required for students.")
	addUserRoom := addUserCmd.String("room", "", "The room number.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	refreshStatsCmd := flag.NewFlagSet("refreshstats", flag.ContinueOnError)
	refreshStatsCmd.SetOutput(cli.out)
	refreshStatsStudent := refreshStatsCmd.String("student", "", "Only refresh this student.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.migrate == nil {
			return errNoDatabase
		}
		return cli.migrate(args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.addUser(user.NewUser{
			Name:        *addUserName,
			Email:       *addUserEmail,
			Password:    pwd,
			Role:        core.CleanString(*addUserRole, true /* lower */),
			HostelBlock: *addUserHostel,
			Room:        *addUserRoom,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "saved %s (%s, %s)\n", usr.Email, usr.Role, usr.ID)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "refreshstats":
		if err := refreshStatsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.refreshStats(core.CleanString(*refreshStatsStudent))

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

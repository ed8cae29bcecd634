package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.app.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.app.Users.SetPassword(ctx, usr, pwd)
	return err
}

package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core/user"
)

// addUser creates the user, or updates the one with the same email and sets its password.
func (cli *commandLine) addUser(nu user.NewUser) (user.User, error) {
	ctx := context.Background()
	svc := cli.app.Users

	usr, err := svc.GetByEmail(ctx, nu.Email)
	if errors.Cause(err) == user.ErrNotFound {
		return svc.Create(ctx, nu)
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}

	active := true
	usr, err = svc.Update(ctx, usr, user.UpdateUser{
		Name:        nu.Name,
		HostelBlock: nu.HostelBlock,
		Room:        nu.Room,
		Role:        nu.Role,
		IsActive:    &active,
	})
	if err != nil {
		return user.User{}, err
	}
	return svc.SetPassword(ctx, usr, nu.Password)
}

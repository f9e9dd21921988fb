package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

// createSuperuser updates or creates a superuser account.
func (cli *commandLine) createSuperuser(uname, email, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username: uname,
			Email:    email,
		}
	}
	usr.Superuser = true
	usr.Staff = true
	usr.Active = true
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}

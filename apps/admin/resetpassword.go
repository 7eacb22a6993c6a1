package main

import (
	"context"

	"github.com/skillsharp/lms/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	err = cli.validate.Struct(user.NewUser{
		Name:            usr.Name,
		Email:           usr.Email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            usr.Role,
	})
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return err
}

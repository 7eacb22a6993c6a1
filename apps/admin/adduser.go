package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

// addUser updates or creates a user.User, activating it.
func (cli *commandLine) addUser(name, email, pwd, role string) (user.User, error) {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            role,
	}
	nu.Clean()
	if err := cli.validate.Struct(nu); err != nil {
		return user.User{}, err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, nu.Email)
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, err
		}
		return cli.usrSvc.Create(ctx, nu)
	}

	usr.Name = nu.Name
	usr.Role = nu.Role
	usr.IsActive = true
	return cli.usrSvc.SetPassword(ctx, usr, nu.Password)
}

// seedAdmin creates the configured admin unless an account already uses its email.
func (cli *commandLine) seedAdmin(cmd *flag.FlagSet) error {
	email := core.CleanString(cli.conf.SeedAdminEmail, true /* lower */)
	if _, err := cli.usrSvc.GetByEmail(context.Background(), email); err == nil {
		fmt.Printf("%s already exists\n", email)
		return nil
	} else if !core.IsNotFound(err) {
		return err
	}

	pwd, err := cli.promptPassword(cmd)
	if err != nil {
		return err
	}
	_, err = cli.addUser(cli.conf.SeedAdminName, email, pwd, user.RoleAdmin)
	return err
}

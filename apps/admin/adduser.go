package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	for _, role := range roles {
		if user.RolePriority(role) == 0 {
			return errors.Errorf("unknown role %q", role)
		}
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			ID:        uuid.New().String(),
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if name != "" {
		usr.Name = name
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	cli.printf("user %q saved\n", usr.Username)
	return nil
}

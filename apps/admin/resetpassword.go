package main

import (
	"context"

	"github.com/campuscoin/campuscoin/core"
)

func (cli *commandLine) resetPassword(studentID, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByStudentIDOrEmail(ctx, core.CleanString(studentID))
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr, nil)
	return err
}

package main

import (
	"context"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(studentID, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	studentID = core.CleanString(studentID)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByStudentIDOrEmail(ctx, studentID)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:           studentID,
			StudentID:      studentID,
			Email:          email,
			Roles:          []string{user.RoleStudent},
			ApprovalStatus: user.ApprovalApproved,
			IsActive:       true,
		}
		if isAdmin {
			usr.Roles = []string{user.RoleStudent, user.RoleTeacher, user.RoleAdmin}
		}
		if err := usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	if isAdmin {
		usr.Roles = []string{user.RoleStudent, user.RoleTeacher, user.RoleAdmin}
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	isActive := true
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	return err
}

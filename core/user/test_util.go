package user

import (
	"context"

	"github.com/campuscoin/campuscoin/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose side effects (emails) run
// synchronously, for tests.
func NewServiceMock(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			logger:  logger,
			conf:    conf,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *serviceMock) ApproveTeacher(ctx context.Context, id string) (User, error) {
	usr, err := svc.processApproval(ctx, id, ApprovalApproved)
	if err != nil {
		return User{}, err
	}
	svc.sendApprovalMail(usr)
	return usr, nil
}

func (svc *serviceMock) RejectTeacher(ctx context.Context, id string) (User, error) {
	usr, err := svc.processApproval(ctx, id, ApprovalRejected)
	if err != nil {
		return User{}, err
	}
	svc.sendApprovalMail(usr)
	return usr, nil
}

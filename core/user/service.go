package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core"
)

var (
	// errors
	ErrNotFound        = errors.New("user not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrStudentIDExists = errors.New("a user with this student ID already exists")
	ErrNotPending      = errors.New("approval request already processed")
	ErrNotTeacher      = errors.New("user is not a teacher")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, studentID, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByStudentID(ctx context.Context, studentID string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByStudentIDOrEmail(ctx context.Context, studentID string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name,
		// User.StudentID or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]User, int, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
		ApprovalStats(ctx context.Context) (ApprovalStats, error)
		// TopBalances returns active users ordered by balance, highest first.
		TopBalances(ctx context.Context, limit int) ([]User, error)
	}

	Service interface {
		CheckUniqueness(studentID, email string, excludedUsers ...User) error
		Register(ctx context.Context, reg Register) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]User, int, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByStudentID(ctx context.Context, studentID string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByStudentIDOrEmail(ctx context.Context, studentID string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		ApproveTeacher(ctx context.Context, id string) (User, error)
		RejectTeacher(ctx context.Context, id string) (User, error)
		ApprovalStats(ctx context.Context) (ApprovalStats, error)
		Leaderboard(ctx context.Context, limit int) ([]User, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(studentID, email string, excludedUsers ...User) error {
	if err := svc.repo.CheckUniqueness(context.Background(), studentID, email, excludedUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrStudentIDExists:
			field = "student_id"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register self-registers an account. Students are approved right away;
// teachers start pending and a rejected teacher may re-apply with the same
// student ID, which resets their request to pending.
func (svc *service) Register(ctx context.Context, reg Register) (User, error) {
	if reg.Role == "teacher" {
		if existing, err := svc.repo.GetUserByStudentID(ctx, reg.StudentID); err == nil {
			if existing.IsTeacher() && existing.ApprovalStatus == ApprovalRejected {
				return svc.reapply(ctx, existing, reg)
			}
		} else if errors.Cause(err) != ErrNotFound {
			return User{}, err
		}
	}

	now := time.Now().UTC()
	usr := User{
		Name:           reg.Name,
		StudentID:      reg.StudentID,
		Email:          reg.Email,
		IsActive:       true,
		ApprovalStatus: ApprovalApproved,
		Classes:        reg.Classes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch reg.Role {
	case "teacher":
		usr.Roles = TeacherRoles
		usr.ApprovalStatus = ApprovalPending
	default:
		usr.Roles = StudentRoles
		usr.Course = reg.Course
	}
	if err := usr.SetPassword(reg.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) reapply(ctx context.Context, existing User, reg Register) (User, error) {
	existing.Name = reg.Name
	existing.Email = reg.Email
	existing.ApprovalStatus = ApprovalPending
	existing.Classes = reg.Classes
	existing.UpdatedAt = time.Now().UTC()
	if err := existing.SetPassword(reg.Password); err != nil {
		return User{}, err
	}
	return svc.repo.UpdateUser(ctx, existing, nil)
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:           nu.Name,
		StudentID:      nu.StudentID,
		Email:          nu.Email,
		IsActive:       true,
		ApprovalStatus: ApprovalApproved,
		Roles:          nu.Roles,
		Course:         nu.Course,
		Classes:        nu.Classes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]User, int, error) {
	return svc.repo.FilterUsers(ctx, *filter, ordering, page)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByStudentID(ctx context.Context, studentID string) (User, error) {
	return svc.repo.GetUserByStudentID(ctx, core.CleanString(studentID))
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) GetByStudentIDOrEmail(ctx context.Context, studentID string) (User, error) {
	return svc.repo.GetUserByStudentIDOrEmail(ctx, core.CleanString(studentID))
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		StudentID: uu.StudentID,
		Email:     uu.Email,
		Roles:     uu.Roles,
		Course:    uu.Course,
		Classes:   uu.Classes,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, User{ID: usr.ID, LastLogin: usr.LastLogin}, nil)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

var makeTokenFunc = MakeToken // mockable

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := makeTokenFunc(svc.conf, usr)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("generating password reset token for %s: %v", usr.StudentID, err), err)
		return
	}
	url := fmt.Sprintf("%s/password-reset/%s/%s", svc.conf.FrontendBaseURL, EncodeUID(usr), token)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Password Reset",
		TextContent: fmt.Sprintf(
			"Hi %s,\n\nYou requested a password reset. Follow the link below to set a new password:\n\n%s\n",
			usr.Name, url),
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := DecodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = VerifyToken(svc.conf, usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) ApproveTeacher(ctx context.Context, id string) (User, error) {
	usr, err := svc.processApproval(ctx, id, ApprovalApproved)
	if err != nil {
		return User{}, err
	}
	go svc.sendApprovalMail(usr)
	return usr, nil
}

func (svc *service) RejectTeacher(ctx context.Context, id string) (User, error) {
	usr, err := svc.processApproval(ctx, id, ApprovalRejected)
	if err != nil {
		return User{}, err
	}
	go svc.sendApprovalMail(usr)
	return usr, nil
}

func (svc *service) processApproval(ctx context.Context, id, status string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsTeacher() {
		return User{}, core.NewValidationError(ErrNotTeacher)
	}
	if usr.ApprovalStatus != ApprovalPending {
		return User{}, core.NewValidationError(ErrNotPending)
	}

	usr.ApprovalStatus = status
	usr.UpdatedAt = time.Now().UTC()
	isActive := status == ApprovalApproved
	return svc.repo.UpdateUser(ctx, usr, &isActive)
}

func (svc *service) sendApprovalMail(usr User) {
	var body string
	if usr.IsApproved() {
		body = fmt.Sprintf("Hi %s,\n\nYour teacher account has been approved. You can now log in.\n", usr.Name)
	} else {
		body = fmt.Sprintf("Hi %s,\n\nYour teacher account request has been declined.\n", usr.Name)
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:          []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:     "Teacher Account Review",
		TextContent: body,
	})
}

func (svc *service) ApprovalStats(ctx context.Context) (ApprovalStats, error) {
	return svc.repo.ApprovalStats(ctx)
}

func (svc *service) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return svc.repo.TopBalances(ctx, limit)
}

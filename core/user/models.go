package user

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuscoin/campuscoin/core"
)

// Roles
const (
	RoleAdmin   = "admin:"
	RoleTeacher = "teacher:"
	RoleStudent = "student:"
)

// Approval statuses; only teachers go through the approval workflow,
// other accounts are approved on creation.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

var (
	AdminRoles   = []string{RoleAdmin}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = []string{RoleAdmin, RoleTeacher, RoleStudent}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}

	// Courses students can register under.
	Courses = []string{
		"Food Engineering",
		"Agriculture",
		"Internet Computing",
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	StudentID      string    `json:"student_id"` // registration number; unique
	Email          string    `json:"email"`
	Roles          []string  `json:"roles"`
	ApprovalStatus string    `json:"approval_status"`
	Course         string    `json:"course,omitempty"`
	Classes        []string  `json:"classes,omitempty"`
	Balance        int       `json:"balance"` // coins; never negative
	IsActive       bool      `json:"is_active"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	LastLogin      time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsTeacher() bool { return u.RoleStartsWith(RoleTeacher) }
func (u *User) IsStudent() bool { return u.RoleStartsWith(RoleStudent) }

// IsApproved reports whether the account may log in.
func (u *User) IsApproved() bool { return u.ApprovalStatus == ApprovalApproved }

// Register contains information needed to self-register an account.
// Teachers start in the pending approval status.
type Register struct {
	Name            string   `json:"name" validate:"required"`
	StudentID       string   `json:"student_id" validate:"required,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string   `json:"role" validate:"omitempty,oneof=student teacher"`
	Course          string   `json:"course" validate:"omitempty,course"`
	Classes         []string `json:"classes"`
}

func (r *Register) Validate(validate *validator.Validate, svc Service) error {
	r.Name = core.CleanString(r.Name)
	r.StudentID = core.CleanString(r.StudentID)
	r.Email = core.CleanString(r.Email, true /* lower */)
	if r.Role == "" {
		r.Role = "student"
	}

	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Role == "student" && r.Course == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "course", Error: "course is required for students"})
	}
	return svc.CheckUniqueness(r.StudentID, r.Email)
}

// NewUser contains information needed to create a new User (admin only).
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	StudentID       string   `json:"student_id" validate:"required,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Course          string   `json:"course" validate:"omitempty,course"`
	Classes         []string `json:"classes"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.StudentID = core.CleanString(nu.StudentID)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.StudentID, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	StudentID       string   `json:"student_id" validate:"omitempty,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Course          string   `json:"course" validate:"omitempty,course"`
	Classes         []string `json:"classes"`
	Password        string   `json:"password"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if sid := core.CleanString(uu.StudentID); sid != "" {
		uu.StudentID = sid
	} else {
		uu.StudentID = origUsr.StudentID
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.StudentID, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search         string    `query:"search"`
	Roles          []string  `query:"role"`
	ApprovalStatus string    `query:"approval_status"`
	IsActive       *bool     `query:"is_active"`
	CreatedFrom    time.Time `query:"created_from"`
	CreatedTo      time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.ApprovalStatus == "" &&
		qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ApprovalStatus = core.CleanString(qf.ApprovalStatus, true /* lower */)
}

// ApprovalStats counts teacher approval requests per status.
type ApprovalStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// InitValidators registers the user package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	_ = validate.RegisterValidation(courseTag, courseValidation)
	core.RegisterCustomTranslation(validate, translator, courseTag, courseText)

	validate.RegisterStructValidation(passwordStructValidation, Register{}, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
}

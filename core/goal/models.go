package goal

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campuscoin/campuscoin/core"
)

type Goal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Kind        string     `json:"kind"` // eg. event, academic, attendance
	Requirement int        `json:"requirement"`
	Reward      int        `json:"reward"` // coins paid out on completion
	IsActive    bool       `json:"is_active"`
	StartsAt    time.Time  `json:"starts_at"`          // UTC
	EndsAt      *time.Time `json:"ends_at,omitempty"`  // UTC; nil = no deadline
	Completions int        `json:"completions"`        // number of accounts that completed
	CreatedAt   time.Time  `json:"created_at"`         // UTC
	UpdatedAt   time.Time  `json:"updated_at"`         // UTC
}

// AvailableAt reports whether the goal can be completed at time t:
// it must be active and inside its time window.
func (g Goal) AvailableAt(t time.Time) bool {
	if !g.IsActive {
		return false
	}
	if !g.StartsAt.IsZero() && g.StartsAt.After(t) {
		return false
	}
	if g.EndsAt != nil && g.EndsAt.Before(t) {
		return false
	}
	return true
}

// WithStatus is a Goal annotated with the requesting account's completion state.
type WithStatus struct {
	Goal
	Completed bool `json:"completed"`
}

// NewGoal contains information needed to create a new Goal.
type NewGoal struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description" validate:"required"`
	Kind        string     `json:"kind" validate:"required"`
	Requirement int        `json:"requirement" validate:"required,gt=0"`
	Reward      int        `json:"reward" validate:"required,gt=0"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

func (ng *NewGoal) Validate(validate *validator.Validate) error {
	ng.Title = core.CleanString(ng.Title)
	ng.Description = core.CleanString(ng.Description)
	ng.Kind = core.CleanString(ng.Kind, true /* lower */)

	if err := validate.Struct(ng); err != nil {
		return err
	}
	if ng.EndsAt != nil && !ng.StartsAt.IsZero() && ng.EndsAt.Before(ng.StartsAt) {
		return core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: "must be after starts_at"})
	}
	return nil
}

// UpdateGoal defines what information may be provided to modify an existing Goal.
// Zero-valued fields are left unchanged.
type UpdateGoal struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Kind        string     `json:"kind"`
	Requirement int        `json:"requirement" validate:"omitempty,gt=0"`
	Reward      int        `json:"reward" validate:"omitempty,gt=0"`
	IsActive    *bool      `json:"is_active"`
	EndsAt      *time.Time `json:"ends_at"`
}

func (ug *UpdateGoal) Validate(validate *validator.Validate) error {
	ug.Title = core.CleanString(ug.Title)
	ug.Description = core.CleanString(ug.Description)
	ug.Kind = core.CleanString(ug.Kind, true /* lower */)
	return validate.Struct(ug)
}

type QueryFilter struct {
	Kind string `query:"kind"`
}

func (qf *QueryFilter) Clean() {
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}

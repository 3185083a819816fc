package achievement

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campuscoin/campuscoin/core"
)

type Achievement struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Kind         string    `json:"kind"`
	Category     string    `json:"category,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Requirements string    `json:"requirements,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewAchievement contains information needed to create a new Achievement.
type NewAchievement struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description" validate:"required"`
	Kind         string `json:"kind" validate:"required"`
	Category     string `json:"category"`
	Icon         string `json:"icon"`
	Requirements string `json:"requirements"`
}

func (na *NewAchievement) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Description = core.CleanString(na.Description)
	na.Kind = core.CleanString(na.Kind, true /* lower */)
	na.Category = core.CleanString(na.Category)
	return validate.Struct(na)
}

// UpdateAchievement defines what may be modified on an existing Achievement.
// Zero-valued fields are left unchanged.
type UpdateAchievement struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Kind         string `json:"kind"`
	Category     string `json:"category"`
	Icon         string `json:"icon"`
	Requirements string `json:"requirements"`
}

func (ua *UpdateAchievement) Validate(validate *validator.Validate) error {
	ua.Name = core.CleanString(ua.Name)
	ua.Description = core.CleanString(ua.Description)
	ua.Kind = core.CleanString(ua.Kind, true /* lower */)
	ua.Category = core.CleanString(ua.Category)
	return validate.Struct(ua)
}

type QueryFilter struct {
	Kind     string `query:"kind"`
	Category string `query:"category"`
}

func (qf *QueryFilter) Clean() {
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.Category = core.CleanString(qf.Category)
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type dbUser struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	StudentID      string         `db:"student_id"`
	Email          string         `db:"email"`
	Roles          pq.StringArray `db:"roles"`
	ApprovalStatus string         `db:"approval_status"`
	Course         null.String    `db:"course"`
	Classes        pq.StringArray `db:"classes"`
	Balance        int            `db:"balance"`
	IsActive       bool           `db:"is_active"`
	PasswordHash   []byte         `db:"password_hash"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	LastLogin      null.Time      `db:"last_login"`
}

func newDBUser(usr user.User) dbUser {
	return dbUser{
		ID:             usr.ID,
		Name:           usr.Name,
		StudentID:      usr.StudentID,
		Email:          usr.Email,
		Roles:          usr.Roles,
		ApprovalStatus: usr.ApprovalStatus,
		Course:         null.NewString(usr.Course, usr.Course != ""),
		Classes:        usr.Classes,
		Balance:        usr.Balance,
		IsActive:       usr.IsActive,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
		LastLogin:      null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
}

func (du dbUser) user() user.User {
	return user.User{
		ID:             du.ID,
		Name:           du.Name,
		StudentID:      du.StudentID,
		Email:          du.Email,
		Roles:          du.Roles,
		ApprovalStatus: du.ApprovalStatus,
		Course:         du.Course.String,
		Classes:        du.Classes,
		Balance:        du.Balance,
		IsActive:       du.IsActive,
		PasswordHash:   du.PasswordHash,
		CreatedAt:      du.CreatedAt,
		UpdatedAt:      du.UpdatedAt,
		LastLogin:      du.LastLogin.Time,
	}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, studentID, email string, excludedUsers ...user.User) error {
	query := `SELECT student_id, email FROM "user" WHERE (student_id = ? OR email = LOWER(?))`
	args := []interface{}{studentID, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		q, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "building exclusion clause")
		}
		query += q
		args = append(args, inArgs...)
	}

	var existing []dbUser
	if err := repo.db.SelectContext(ctx, &existing, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, du := range existing {
		if du.StudentID == studentID {
			return user.ErrStudentIDExists
		}
		if du.Email == strings.ToLower(email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if usr.Classes == nil {
		usr.Classes = []string{}
	}

	query := `
INSERT INTO "user" (id, name, student_id, email, roles, approval_status, course, classes, balance, is_active, password_hash, created_at, updated_at, last_login)
VALUES (:id, :name, :student_id, :email, :roles, :approval_status, :course, :classes, :balance, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, query, newDBUser(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var du dbUser
	query := `SELECT * FROM "user" WHERE ` + where
	if err := repo.db.GetContext(ctx, &du, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "retrieving user")
	}
	return du.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `id = $1`, id)
}

func (repo *userRepository) GetUserByStudentID(ctx context.Context, studentID string) (user.User, error) {
	return repo.getUser(ctx, `student_id = $1`, studentID)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `email = LOWER($1)`, email)
}

func (repo *userRepository) GetUserByStudentIDOrEmail(ctx context.Context, studentID string) (user.User, error) {
	return repo.getUser(ctx, `student_id = $1 OR email = LOWER($1)`, studentID)
}

func (repo *userRepository) FilterUsers(
	ctx context.Context,
	filter user.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]user.User, int, error) {
	var where []string
	var args []interface{}

	if filter.Search != "" {
		where = append(where, `(name ILIKE ? OR student_id ILIKE ? OR email ILIKE ?)`)
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if len(filter.Roles) > 0 {
		var roleConds []string
		for _, role := range filter.Roles {
			roleConds = append(roleConds, `EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ?)`)
			args = append(args, role+"%")
		}
		where = append(where, `(`+strings.Join(roleConds, " OR ")+`)`)
	}
	if filter.ApprovalStatus != "" {
		where = append(where, `approval_status = ?`)
		args = append(args, filter.ApprovalStatus)
	}
	if filter.IsActive != nil {
		where = append(where, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, filter.CreatedTo)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	countQuery := repo.db.Rebind(`SELECT COUNT(*) FROM "user"` + whereClause)
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	orderClause := ` ORDER BY created_at DESC`
	if len(ordering) > 0 {
		var orders []string
		for _, o := range ordering {
			orders = append(orders, o.String())
		}
		orderClause = ` ORDER BY ` + strings.Join(orders, ", ")
	}

	page.Clean()
	query := repo.db.Rebind(fmt.Sprintf(
		`SELECT * FROM "user"%s%s LIMIT %d OFFSET %d`, whereClause, orderClause, page.Limit, page.Offset(),
	))

	var dus []dbUser
	if err := repo.db.SelectContext(ctx, &dus, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering users")
	}

	users := make([]user.User, 0, len(dus))
	for _, du := range dus {
		users = append(users, du.user())
	}
	return users, total, nil
}

// UpdateUser applies usr's non-zero fields to the stored row; IsActive is
// only touched when isActive is non-nil.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	set := []string{`updated_at = ?`}
	args := []interface{}{time.Now().UTC()}

	add := func(clause string, arg interface{}) {
		set = append(set, clause)
		args = append(args, arg)
	}
	if usr.Name != "" {
		add(`name = ?`, usr.Name)
	}
	if usr.StudentID != "" {
		add(`student_id = ?`, usr.StudentID)
	}
	if usr.Email != "" {
		add(`email = ?`, usr.Email)
	}
	if usr.Roles != nil {
		add(`roles = ?`, pq.StringArray(usr.Roles))
	}
	if usr.ApprovalStatus != "" {
		add(`approval_status = ?`, usr.ApprovalStatus)
	}
	if usr.Course != "" {
		add(`course = ?`, usr.Course)
	}
	if usr.Classes != nil {
		add(`classes = ?`, pq.StringArray(usr.Classes))
	}
	if usr.PasswordHash != nil {
		add(`password_hash = ?`, usr.PasswordHash)
	}
	if !usr.LastLogin.IsZero() {
		add(`last_login = ?`, usr.LastLogin)
	}
	if isActive != nil {
		add(`is_active = ?`, *isActive)
	}
	args = append(args, usr.ID)

	query := repo.db.Rebind(`UPDATE "user" SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING *`)
	var du dbUser
	if err := repo.db.GetContext(ctx, &du, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return du.user(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo *userRepository) ApprovalStats(ctx context.Context) (user.ApprovalStats, error) {
	query := `
SELECT
    COUNT(*) FILTER (WHERE approval_status = $1) AS pending,
    COUNT(*) FILTER (WHERE approval_status = $2) AS approved,
    COUNT(*) FILTER (WHERE approval_status = $3) AS rejected,
    COUNT(*) AS total
FROM "user"
WHERE $4 = ANY(roles)`

	var stats user.ApprovalStats
	err := repo.db.QueryRowxContext(
		ctx, query, user.ApprovalPending, user.ApprovalApproved, user.ApprovalRejected, user.RoleTeacher,
	).Scan(&stats.Pending, &stats.Approved, &stats.Rejected, &stats.Total)
	if err != nil {
		return user.ApprovalStats{}, errors.Wrap(err, "counting approvals")
	}
	return stats, nil
}

func (repo *userRepository) TopBalances(ctx context.Context, limit int) ([]user.User, error) {
	var dus []dbUser
	query := `SELECT * FROM "user" WHERE is_active ORDER BY balance DESC, name ASC LIMIT $1`
	if err := repo.db.SelectContext(ctx, &dus, query, limit); err != nil {
		return nil, errors.Wrap(err, "retrieving top balances")
	}
	users := make([]user.User, 0, len(dus))
	for _, du := range dus {
		users = append(users, du.user())
	}
	return users, nil
}

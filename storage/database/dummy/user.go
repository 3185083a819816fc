package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if usr.ID == excl.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, studentID, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	email = strings.ToLower(email)
	for _, usr := range repo.query() {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if usr.StudentID == studentID {
			return user.ErrStudentIDExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByStudentID(ctx context.Context, studentID string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.StudentID == studentID {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	email = strings.ToLower(email)
	for _, usr := range repo.query() {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByStudentIDOrEmail(ctx context.Context, studentID string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.StudentID == studentID || usr.Email == strings.ToLower(studentID) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func matchesSearch(usr user.User, search string) bool {
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(usr.Name), search) ||
		strings.Contains(strings.ToLower(usr.StudentID), search) ||
		strings.Contains(strings.ToLower(usr.Email), search)
}

func matchesRoles(usr user.User, roles []string) bool {
	for _, role := range roles {
		if usr.RoleStartsWith(role) {
			return true
		}
	}
	return false
}

func matchesFilter(usr user.User, filter user.QueryFilter) bool {
	if filter.Search != "" && !matchesSearch(usr, filter.Search) {
		return false
	}
	if len(filter.Roles) > 0 && !matchesRoles(usr, filter.Roles) {
		return false
	}
	if filter.ApprovalStatus != "" && usr.ApprovalStatus != filter.ApprovalStatus {
		return false
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) FilterUsers(
	ctx context.Context,
	filter user.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]user.User, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matches []user.User
	for _, usr := range repo.query() {
		if matchesFilter(usr, filter) {
			matches = append(matches, usr)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	total := len(matches)
	page.Clean()
	return paginateUsers(matches, page), total, nil
}

func paginateUsers(users []user.User, page core.Pagination) []user.User {
	start := page.Offset()
	if start >= len(users) {
		return nil
	}
	end := start + page.Limit
	if end > len(users) {
		end = len(users)
	}
	return users[start:end]
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.StudentID != "" {
		orig.StudentID = usr.StudentID
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if usr.ApprovalStatus != "" {
		orig.ApprovalStatus = usr.ApprovalStatus
	}
	if usr.Course != "" {
		orig.Course = usr.Course
	}
	if usr.Classes != nil {
		orig.Classes = usr.Classes
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *userRepository) ApprovalStats(ctx context.Context) (user.ApprovalStats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats user.ApprovalStats
	for _, usr := range repo.query() {
		if !usr.IsTeacher() {
			continue
		}
		switch usr.ApprovalStatus {
		case user.ApprovalPending:
			stats.Pending++
		case user.ApprovalApproved:
			stats.Approved++
		case user.ApprovalRejected:
			stats.Rejected++
		}
		stats.Total++
	}
	return stats, nil
}

func (repo *userRepository) TopBalances(ctx context.Context, limit int) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var active []user.User
	for _, usr := range repo.query() {
		if usr.IsActive {
			active = append(active, usr)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Balance != active[j].Balance {
			return active[i].Balance > active[j].Balance
		}
		return active[i].Name < active[j].Name
	})

	if limit < len(active) {
		active = active[:limit]
	}
	return active, nil
}

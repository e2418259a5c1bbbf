package dummydb

import (
	"context"
	"strings"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) all() []user.User {
	users := make([]user.User, 0, len(repo.db.users.order))
	for _, id := range repo.db.users.order {
		users = append(users, repo.db.users.rows[id])
	}
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.all() {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) Create(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	repo.db.users.rows[usr.ID] = usr
	repo.db.users.order = append(repo.db.users.order, usr.ID)
	return usr, nil
}

func (repo *userRepository) Get(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users.rows[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.all() {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.Login != "" && (usr.Username == filter.Login || usr.Email == filter.Login):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) Query(_ context.Context, filter *user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, u := range repo.all() {
		// users with search keyword matching any Name, Username or Email ?
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Name), search) {
			continue
		}
		// users with any of the specified roles
		if len(filter.Roles) > 0 && !hasAnyRole(u, filter.Roles) {
			continue
		}
		users = append(users, u)
	}

	sortBy(users, orderings, compareUsers)
	return users, nil
}

func hasAnyRole(u user.User, roles []string) bool {
	for _, r := range roles {
		if u.RoleStartsWith(r) {
			return true
		}
	}
	return false
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func (repo *userRepository) Update(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users.rows[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users.rows[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) Delete(_ context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.users.rows, id)
	}
	order := repo.db.users.order[:0]
	for _, id := range repo.db.users.order {
		if _, ok := repo.db.users.rows[id]; ok {
			order = append(order, id)
		}
	}
	repo.db.users.order = order
	return nil
}

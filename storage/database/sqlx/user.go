package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/user"
)

const usersTable = "users"

var (
	userColumns   = []interface{}{"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}
	userOrderings = []string{"name", "username", "email", "created_at"}
)

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	Roles        string    `db:"roles"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.Active(),
		Roles:        strings.Join(usr.Roles, ","),
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) toUser() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		Roles:        []string{},
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	usr.SetActive(row.IsActive)
	if row.Roles != "" {
		usr.Roles = strings.Split(row.Roles, ",")
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (row userRow) record() goqu.Record {
	return goqu.Record{
		"id":            row.ID,
		"name":          row.Name,
		"username":      row.Username,
		"email":         row.Email,
		"is_active":     row.IsActive,
		"roles":         row.Roles,
		"password_hash": row.PasswordHash,
		"created_at":    row.CreatedAt,
		"updated_at":    row.UpdatedAt,
		"last_login":    row.LastLogin,
	}
}

type userRepository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db, dialect: dialectFor(db)}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	match := []goqu.Expression{goqu.C("username").Eq(username)}
	if email != "" {
		match = append(match, goqu.C("email").Eq(email))
	}
	ds := repo.dialect.From(usersTable).Prepared(true).
		Select("username", "email").
		Where(goqu.Or(match...))
	if len(excludedUsers) > 0 {
		ids := make([]interface{}, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		ds = ds.Where(goqu.C("id").NotIn(ids...))
	}

	var taken []userRow
	if err := selectAll(ctx, repo.db, &taken, ds); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, row := range taken {
		if row.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	ds := repo.dialect.Insert(usersTable).Prepared(true).Rows(toUserRow(usr).record())
	if _, err := exec(ctx, repo.db, ds); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) Get(ctx context.Context, filter user.GetFilter) (user.User, error) {
	ds := repo.dialect.From(usersTable).Prepared(true).Select(userColumns...)
	switch {
	case filter.ID != "":
		ds = ds.Where(goqu.C("id").Eq(filter.ID))
	case filter.Username != "":
		ds = ds.Where(goqu.C("username").Eq(filter.Username))
	case filter.Email != "":
		ds = ds.Where(goqu.C("email").Eq(filter.Email))
	case filter.Login != "":
		ds = ds.Where(goqu.Or(goqu.C("username").Eq(filter.Login), goqu.C("email").Eq(filter.Login)))
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.db, &row, ds.Limit(1)); err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) Query(ctx context.Context, filter *user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	ds := repo.dialect.From(usersTable).Prepared(true).Select(userColumns...)
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.L("LOWER(name) LIKE ?", pattern),
			goqu.L("LOWER(username) LIKE ?", pattern),
			goqu.L("LOWER(email) LIKE ?", pattern),
		))
	}
	if len(filter.Roles) > 0 {
		matches := make([]goqu.Expression, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			matches = append(matches, goqu.C("roles").Like("%"+role+"%"))
		}
		ds = ds.Where(goqu.Or(matches...))
	}
	if ords := orderedExps(orderings, userOrderings); len(ords) > 0 {
		ds = ds.Order(ords...)
	} else {
		ds = ds.Order(goqu.C("created_at").Asc())
	}

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, ds); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	rec := toUserRow(usr).record()
	delete(rec, "id")
	delete(rec, "created_at")
	ds := repo.dialect.Update(usersTable).Prepared(true).Set(rec).Where(goqu.C("id").Eq(usr.ID))
	n, err := exec(ctx, repo.db, ds)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, id)
	}
	ds := repo.dialect.Delete(usersTable).Prepared(true).Where(goqu.C("id").In(vals...))
	_, err := exec(ctx, repo.db, ds)
	return errors.Wrap(err, "deleting users")
}

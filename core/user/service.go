package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if taken by a user not in excludedUsers.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		Create(ctx context.Context, usr User) (User, error)
		Get(ctx context.Context, filter GetFilter) (User, error)
		// Query applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		Query(ctx context.Context, filter *QueryFilter, orderings []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
	}

	Service interface {
		CheckUniqueness(username, email string, excludedUsers ...User) error
		Create(nu NewUser) (User, error)
		Query(filter *QueryFilter, orderings []core.DBOrdering) ([]User, error)
		GetByID(id string) (User, error)
		GetByUsernameOrEmail(uname string) (User, error)
		SetLastLogin(usr User) (User, error)
		SetActive(id string, active bool) (User, error)
		ResetPassword(id, pwd string) error
		Delete(ids ...string) error
	}

	service struct {
		repo Repository
		now  func() time.Time
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, clock core.Clock) Service {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &service{repo: repo, now: clock.Now}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(nu NewUser) (User, error) {
	now := svc.now().UTC()
	usr := User{
		ID:        core.NewID(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.Create(context.Background(), usr)
}

func (svc *service) Query(filter *QueryFilter, orderings []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.Query(context.Background(), filter, orderings)
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.Get(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.Get(context.Background(), GetFilter{Login: uname})
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = svc.now().UTC()
	return svc.repo.Update(context.Background(), usr)
}

func (svc *service) SetActive(id string, active bool) (User, error) {
	usr, err := svc.GetByID(id)
	if err != nil {
		return User{}, err
	}
	usr.SetActive(active)
	usr.UpdatedAt = svc.now().UTC()
	return svc.repo.Update(context.Background(), usr)
}

func (svc *service) ResetPassword(id, pwd string) error {
	usr, err := svc.GetByID(id)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.now().UTC()
	_, err = svc.repo.Update(context.Background(), usr)
	return err
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.Delete(context.Background(), ids...)
}

// QueryFilter selects users in Query.
type QueryFilter struct {
	Search string   `query:"search"`
	Roles  []string `query:"role"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	for i, role := range f.Roles {
		f.Roles[i] = core.CleanString(role, true /* lower */)
	}
}

package user

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/arjuunns/Smart-hostel/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, exclIDs ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclIDs...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a student account from the public sign-up form.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Role = RoleStudent
	return svc.Create(ctx, nu)
}

// Create validates `nu` and creates the User it describes.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Email); err != nil {
		return User{}, err
	}

	now := core.NowFunc()
	usr := User{
		Name:        nu.Name,
		Email:       nu.Email,
		Role:        nu.Role,
		HostelBlock: nu.HostelBlock,
		Room:        nu.Room,
		Phone:       nu.Phone,
		ParentPhone: nu.ParentPhone,
		Course:      nu.Course,
		Year:        nu.Year,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// StudentIDs lists the IDs of all active students.
func (svc *Service) StudentIDs(ctx context.Context) ([]string, error) {
	active := true
	students, err := svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleStudent, IsActive: &active}, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if err := svc.validate.Struct(uu); err != nil {
		return User{}, err
	}
	if name := core.CleanString(uu.Name); name != "" {
		usr.Name = name
	}
	if hostel := core.CleanString(uu.HostelBlock); hostel != "" {
		usr.HostelBlock = hostel
	}
	if room := core.CleanString(uu.Room); room != "" {
		usr.Room = room
	}
	if phone := core.CleanString(uu.Phone); phone != "" {
		usr.Phone = phone
	}
	if phone := core.CleanString(uu.ParentPhone); phone != "" {
		usr.ParentPhone = phone
	}
	if course := core.CleanString(uu.Course); course != "" {
		usr.Course = course
	}
	if uu.Year != nil {
		usr.Year = *uu.Year
	}
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword replaces the User's password after checking it against the password policy.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := ValidatePassword(pwd, usr.Name, usr.Email); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

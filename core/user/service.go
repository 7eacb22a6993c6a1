package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("User not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = core.NewValidationError(errors.New("Invalid credentials"))
	ErrAccountDeactivated = core.NewPermissionError("Account is deactivated")

	errWrongPassword = "current password is incorrect"
	errInvalidLink   = "the password reset link is invalid or has expired"
	errRoleNotSignup = "invalid role"
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]User, int, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// AddPoints atomically increments the user's points.
		AddPoints(ctx context.Context, id string, points int, exec ...core.DBExecutor) (User, error)
		// AddBadges appends the badges the user does not hold yet.
		AddBadges(ctx context.Context, id string, badges []string, exec ...core.DBExecutor) (User, error)
		TopUsers(ctx context.Context, limit int, exec ...core.DBExecutor) ([]User, error)
		CountUsersByRole(ctx context.Context, exec ...core.DBExecutor) (map[string]int, error)
		DeleteUser(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error)
		Update(ctx context.Context, usr User) (User, error)
		UpdateProfile(ctx context.Context, usr User, data UpdateProfile) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		SetRole(ctx context.Context, id, role string) (User, error)
		SetActive(ctx context.Context, id string, active bool) (User, error)
		SetAvatar(ctx context.Context, id, url, key string) (User, error)
		SetStripeCustomerID(ctx context.Context, id, customerID string) (User, error)
		AwardPoints(ctx context.Context, id string, points int, badges []string, exec ...core.DBExecutor) (User, error)
		Leaderboard(ctx context.Context, limit int) ([]Public, error)
		CountByRole(ctx context.Context) (map[string]int, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		Delete(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
		tokenGen *tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		tokenGen: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// trapEmailExists turns ErrEmailExists into a conflict on the email field.
func trapEmailExists(err error) error {
	if errors.Cause(err) == ErrEmailExists {
		return core.NewConflictError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	return err
}

// Register signs up a student or an instructor and sends them a welcome email.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if nu.Role != RoleStudent && nu.Role != RoleInstructor {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errRoleNotSignup})
	}

	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}

	svc.mailSvc.SendMessages(core.NewTemplatedMessage(
		"Welcome to "+svc.conf.AppName,
		"welcome",
		map[string]interface{}{"Name": usr.Name, "Role": usr.Role},
		usr.MailAddress(),
	))
	return usr, nil
}

// Create inserts a new User of any role. Input is expected to be validated already.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		Badges:    []string{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, trapEmailExists(err)
	}
	return usr, nil
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter, core.FilterOrderings(ordering, OrderingFields...), page)
}

func (svc *service) Update(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, trapEmailExists(err)
	}
	return usr, nil
}

// UpdateProfile applies the changes a User makes on their own account.
// Changing the password requires the current one.
func (svc *service) UpdateProfile(ctx context.Context, usr User, data UpdateProfile) (User, error) {
	data.Name = core.CleanString(data.Name)
	data.email = usr.Email
	if data.Name == "" {
		data.Name = usr.Name
	}
	if err := svc.validate.Struct(data); err != nil {
		return User{}, err
	}

	usr.Name = data.Name
	if data.Bio != nil {
		usr.Bio = core.CleanString(*data.Bio)
	}
	if data.Password != "" {
		if err := usr.CheckPassword(data.CurrentPassword); err != nil {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "current_password", Error: errWrongPassword})
		}
		if err := usr.SetPassword(data.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.Update(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.Update(ctx, usr)
}

func (svc *service) SetRole(ctx context.Context, id, role string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Role = role
	return svc.Update(ctx, usr)
}

func (svc *service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.IsActive = active
	return svc.Update(ctx, usr)
}

func (svc *service) SetAvatar(ctx context.Context, id, url, key string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.AvatarURL = url
	usr.AvatarKey = key
	return svc.Update(ctx, usr)
}

func (svc *service) SetStripeCustomerID(ctx context.Context, id, customerID string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.StripeCustomerID = customerID
	return svc.Update(ctx, usr)
}

// AwardPoints adds points to a User, then grants the given badges and any points badge now reached.
func (svc *service) AwardPoints(ctx context.Context, id string, points int, badges []string, exec ...core.DBExecutor) (User, error) {
	usr, err := svc.repo.AddPoints(ctx, id, points, exec...)
	if err != nil {
		return User{}, errors.Wrap(err, "adding points")
	}
	if missing := usr.missingBadges(badges...); len(missing) > 0 {
		usr, err = svc.repo.AddBadges(ctx, id, missing, exec...)
		if err != nil {
			return User{}, errors.Wrap(err, "adding badges")
		}
	}
	return usr, nil
}

func (svc *service) Leaderboard(ctx context.Context, limit int) ([]Public, error) {
	users, err := svc.repo.TopUsers(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying top users")
	}
	res := make([]Public, 0, len(users))
	for _, usr := range users {
		res = append(res, usr.Public())
	}
	return res, nil
}

func (svc *service) CountByRole(ctx context.Context) (map[string]int, error) {
	return svc.repo.CountUsersByRole(ctx)
}

// RequestPasswordReset mails a reset link to an active User. Unknown emails yield ErrNotFound.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	svc.mailSvc.SendMessages(core.NewTemplatedMessage(
		"Password Reset",
		"passwordReset",
		map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokenGen.makeToken(usr),
		},
		usr.MailAddress(),
	))
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	invalidLink := core.NewValidationError(nil, core.FieldError{Field: "token", Error: errInvalidLink})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidLink
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidLink
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return invalidLink
	}

	_, err = svc.SetPassword(ctx, usr, data.Password)
	return err
}

func (svc *service) Delete(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return svc.repo.DeleteUser(ctx, id, exec...)
}

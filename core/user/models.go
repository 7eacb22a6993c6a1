package user

import (
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/skillsharp/lms/core"
)

// Roles
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Badges
const (
	BadgeCourseCompleter = "Course Completer"
	BadgeBronzeLearner   = "Bronze Learner"
)

// Points
const (
	PointsCourseCompleted = 100
	PointsQuizPassed      = 50
)

var (
	AllRoles    = []string{RoleStudent, RoleInstructor, RoleAdmin}
	SignupRoles = []string{RoleStudent, RoleInstructor}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "Admin", Value: RoleAdmin},
	}

	// pointBadges are granted once a user's points reach the threshold.
	pointBadges = []struct {
		threshold int
		badge     string
	}{
		{500, BadgeBronzeLearner},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Bio              string    `json:"bio"`
	AvatarURL        string    `json:"avatar_url"`
	AvatarKey        string    `json:"-"`
	Points           int       `json:"points"`
	Badges           []string  `json:"badges"`
	StripeCustomerID string    `json:"-"`
	IsActive         bool      `json:"is_active"`
	PasswordHash     []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
	LastLogin        time.Time `json:"last_login"` // UTC
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

func (u User) MailAddress() mail.Address {
	return mail.Address{Name: u.Name, Address: u.Email}
}

func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin }
func (u *User) IsInstructor() bool { return u.Role == RoleInstructor }
func (u *User) IsStudent() bool    { return u.Role == RoleStudent }

// CanTeach reports whether the user may author courses.
func (u *User) CanTeach() bool { return u.IsInstructor() || u.IsAdmin() }

func (u *User) HasBadge(badge string) bool {
	for _, b := range u.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// missingBadges returns the badges earned by points (plus extra) that the user does not hold yet.
func (u *User) missingBadges(extra ...string) []string {
	var missing []string
	for _, pb := range pointBadges {
		if u.Points >= pb.threshold && !u.HasBadge(pb.badge) {
			missing = append(missing, pb.badge)
		}
	}
	for _, b := range extra {
		if !u.HasBadge(b) {
			missing = append(missing, b)
		}
	}
	return missing
}

// Public is the user as shown to other users (leaderboard, discussions).
type Public struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatar_url"`
	Points    int      `json:"points"`
	Badges    []string `json:"badges"`
}

func (u User) Public() Public {
	badges := u.Badges
	if badges == nil {
		badges = []string{}
	}
	return Public{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL, Points: u.Points, Badges: badges}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=128"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
}

// UpdateProfile defines what a User may change on their own account.
type UpdateProfile struct {
	Name            string  `json:"name" validate:"omitempty,max=128"`
	Bio             *string `json:"bio" validate:"omitempty,max=2000"`
	CurrentPassword string  `json:"current_password" validate:"required_with=Password"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	// for password policy similarity checks
	email string
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields lists the fields users may be sorted by.
var OrderingFields = []string{"name", "email", "role", "points", "created_at", "last_login", "is_active"}

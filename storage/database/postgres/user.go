package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

var userColumns = []string{
	"id", "name", "email", "password_hash", "role", "bio", "avatar_url", "avatar_key", "points", "badges",
	"stripe_customer_id", "is_active", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	Email            string         `db:"email"`
	PasswordHash     []byte         `db:"password_hash"`
	Role             string         `db:"role"`
	Bio              string         `db:"bio"`
	AvatarURL        string         `db:"avatar_url"`
	AvatarKey        string         `db:"avatar_key"`
	Points           int            `db:"points"`
	Badges           pq.StringArray `db:"badges"`
	StripeCustomerID null.String    `db:"stripe_customer_id"`
	IsActive         bool           `db:"is_active"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	LastLogin        null.Time      `db:"last_login"`
}

func (row userRow) user() user.User {
	badges := []string(row.Badges)
	if badges == nil {
		badges = []string{}
	}
	return user.User{
		ID:               row.ID,
		Name:             row.Name,
		Email:            row.Email,
		Role:             row.Role,
		Bio:              row.Bio,
		AvatarURL:        row.AvatarURL,
		AvatarKey:        row.AvatarKey,
		Points:           row.Points,
		Badges:           badges,
		StripeCustomerID: row.StripeCustomerID.String,
		IsActive:         row.IsActive,
		PasswordHash:     row.PasswordHash,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
		LastLogin:        row.LastLogin.Time.UTC(),
	}
}

// values holds the columns a User writes. Points and badges only move through AddPoints and AddBadges.
func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"name":               usr.Name,
		"email":              usr.Email,
		"password_hash":      usr.PasswordHash,
		"role":               usr.Role,
		"bio":                usr.Bio,
		"avatar_url":         usr.AvatarURL,
		"avatar_key":         usr.AvatarKey,
		"stripe_customer_id": null.NewString(usr.StripeCustomerID, usr.StripeCustomerID != ""),
		"is_active":          usr.IsActive,
		"updated_at":         usr.UpdatedAt.UTC(),
		"last_login":         null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db core.DBExecutor) user.Repository {
	return &userRepository{baseRepository{db: db}}
}

func (repo *userRepository) trapErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	return trapNoRowsErr(err, user.ErrNotFound, msg)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	values := userValues(usr)
	values["id"] = usr.ID
	values["points"] = usr.Points
	values["badges"] = pq.StringArray(append([]string{}, usr.Badges...))
	values["created_at"] = usr.CreatedAt.UTC()

	var row userRow
	query := psql.Insert("users").SetMap(values).Suffix("RETURNING " + sqlColumns(userColumns))
	if err := get(ctx, repo.getExec(exec), &row, query); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]user.User, int, error) {
	where := sq.And{}
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, sq.Or{sq.ILike{"name": val}, sq.ILike{"email": val}})
		}
		if len(filter.Roles) > 0 {
			where = append(where, sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			where = append(where, sq.Eq{"is_active": *filter.IsActive})
		}
	}

	db := repo.getExec(exec)
	total, err := count(ctx, db, "users", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	var rows []userRow
	query := paged(psql.Select(userColumns...).From("users").Where(where), ordering, page, "")
	if err = selectRows(ctx, db, &rows, query); err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, total, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	where := sq.Eq{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		where["id"] = filter.ID
	case filter.Email != "":
		where["email"] = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.getExec(exec), &row, psql.Select(userColumns...).From("users").Where(where)); err != nil {
		return user.User{}, repo.trapErr(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) update(ctx context.Context, id string, set map[string]interface{}, exec []core.DBExecutor) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	query := psql.Update("users").SetMap(set).Where(sq.Eq{"id": id}).Suffix("RETURNING " + sqlColumns(userColumns))
	if err := get(ctx, repo.getExec(exec), &row, query); err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(ctx, usr.ID, userValues(usr), exec)
}

func (repo *userRepository) AddPoints(ctx context.Context, id string, points int, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(ctx, id, map[string]interface{}{"points": sq.Expr("points + ?", points)}, exec)
}

func (repo *userRepository) AddBadges(ctx context.Context, id string, badges []string, exec ...core.DBExecutor) (user.User, error) {
	// keeps the award order, skipping badges already held
	expr := sq.Expr("badges || ARRAY(SELECT b FROM unnest(?::text[]) b WHERE NOT b = ANY(badges))", pq.StringArray(badges))
	return repo.update(ctx, id, map[string]interface{}{"badges": expr}, exec)
}

func (repo *userRepository) TopUsers(ctx context.Context, limit int, exec ...core.DBExecutor) ([]user.User, error) {
	query := psql.Select(userColumns...).From("users").
		Where(sq.Eq{"is_active": true}).
		OrderBy("points DESC", "created_at ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	var rows []userRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying top users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) CountUsersByRole(ctx context.Context, exec ...core.DBExecutor) (map[string]int, error) {
	var rows []struct {
		Role  string `db:"role"`
		Count int    `db:"count"`
	}
	query := psql.Select("role", "COUNT(*) AS count").From("users").GroupBy("role")
	if err := selectRows(ctx, repo.getExec(exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "counting users")
	}

	counts := make(map[string]int, len(user.AllRoles))
	for _, role := range user.AllRoles {
		counts[role] = 0
	}
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	return counts, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(u *user.User) user.User {
	res := *u
	res.Badges = cloneStrings(u.Badges)
	return res
}

func (repo *userRepository) emailTaken(email, exceptID string) bool {
	for _, u := range repo.db.users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.emailTaken(usr.Email, "") {
		return user.User{}, user.ErrEmailExists
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	u := copyUser(&usr)
	repo.db.users[usr.ID] = &u
	return copyUser(&u), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, _ ...core.DBExecutor) ([]user.User, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var users []user.User
	for _, u := range repo.db.users {
		if filter != nil {
			if filter.Search != "" && !(containsFold(u.Name, filter.Search) || containsFold(u.Email, filter.Search)) {
				continue
			}
			if len(filter.Roles) > 0 && !contains(filter.Roles, u.Role) {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
		}
		users = append(users, copyUser(u))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sortByOrdering(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, ordering, func(i int, field string) interface{} {
		u := users[i]
		switch field {
		case "name":
			return u.Name
		case "email":
			return u.Email
		case "role":
			return u.Role
		case "points":
			return u.Points
		case "created_at":
			return u.CreatedAt
		case "last_login":
			return u.LastLogin
		case "is_active":
			return u.IsActive
		}
		return nil
	})

	total := len(users)
	start, end := paginate(total, page)
	return users[start:end], total, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if u, ok := repo.db.users[filter.ID]; ok {
			return copyUser(u), nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, u := range repo.db.users {
			if strings.EqualFold(u.Email, filter.Email) {
				return copyUser(u), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.emailTaken(usr.Email, usr.ID) {
		return user.User{}, user.ErrEmailExists
	}

	// points and badges only move through AddPoints and AddBadges
	origUsr.Name = usr.Name
	origUsr.Email = usr.Email
	origUsr.Role = usr.Role
	origUsr.Bio = usr.Bio
	origUsr.AvatarURL = usr.AvatarURL
	origUsr.AvatarKey = usr.AvatarKey
	origUsr.StripeCustomerID = usr.StripeCustomerID
	origUsr.IsActive = usr.IsActive
	origUsr.PasswordHash = usr.PasswordHash
	origUsr.UpdatedAt = usr.UpdatedAt
	origUsr.LastLogin = usr.LastLogin
	return copyUser(origUsr), nil
}

func (repo *userRepository) AddPoints(_ context.Context, id string, points int, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	u, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	u.Points += points
	return copyUser(u), nil
}

func (repo *userRepository) AddBadges(_ context.Context, id string, badges []string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	u, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, b := range badges {
		if !u.HasBadge(b) {
			u.Badges = append(u.Badges, b)
		}
	}
	return copyUser(u), nil
}

func (repo *userRepository) TopUsers(_ context.Context, limit int, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if u.IsActive {
			users = append(users, copyUser(u))
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (repo *userRepository) CountUsersByRole(_ context.Context, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int, len(user.AllRoles))
	for _, role := range user.AllRoles {
		counts[role] = 0
	}
	for _, u := range repo.db.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	repo.db.deleteUser(id)
	return nil
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/discussion"
)

type discussionRepository struct {
	db *DB
}

var _ discussion.Repository = (*discussionRepository)(nil)

func NewDiscussionRepository(db *DB) discussion.Repository {
	return &discussionRepository{db: db}
}

func copyDiscussion(d *discussion.Discussion) discussion.Discussion {
	res := *d
	res.Replies = make([]discussion.Reply, len(d.Replies))
	copy(res.Replies, d.Replies)
	return res
}

func (repo *discussionRepository) CreateDiscussion(_ context.Context, d discussion.Discussion, _ ...core.DBExecutor) (discussion.Discussion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	nd := copyDiscussion(&d)
	repo.db.discussions[d.ID] = &nd
	return copyDiscussion(&nd), nil
}

func (repo *discussionRepository) GetDiscussion(_ context.Context, id string, _ ...core.DBExecutor) (discussion.Discussion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	d, ok := repo.db.discussions[id]
	if !ok {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	return copyDiscussion(d), nil
}

func (repo *discussionRepository) QueryDiscussions(_ context.Context, courseID string, page *core.Pagination, _ ...core.DBExecutor) ([]discussion.Discussion, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]discussion.Discussion, 0)
	for _, d := range repo.db.discussions {
		if d.CourseID == courseID {
			res = append(res, copyDiscussion(d))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })

	total := len(res)
	start, end := paginate(total, page)
	return res[start:end], total, nil
}

func (repo *discussionRepository) AddReply(_ context.Context, id string, r discussion.Reply, _ ...core.DBExecutor) (discussion.Discussion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	d, ok := repo.db.discussions[id]
	if !ok {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	d.Replies = append(d.Replies, r)
	d.UpdatedAt = r.CreatedAt
	return copyDiscussion(d), nil
}

func (repo *discussionRepository) DeleteDiscussion(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.discussions[id]; !ok {
		return discussion.ErrNotFound
	}
	delete(repo.db.discussions, id)
	return nil
}

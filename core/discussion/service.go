package discussion

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/user"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("Discussion not found")
	ErrNotAuthor = core.NewPermissionError("Not authorized to delete this discussion")
)

type (
	Repository interface {
		CreateDiscussion(ctx context.Context, d Discussion, exec ...core.DBExecutor) (Discussion, error)
		GetDiscussion(ctx context.Context, id string, exec ...core.DBExecutor) (Discussion, error)
		// QueryDiscussions lists a course's discussions, newest first.
		QueryDiscussions(ctx context.Context, courseID string, page *core.Pagination, exec ...core.DBExecutor) ([]Discussion, int, error)
		// AddReply appends r to the discussion's replies.
		AddReply(ctx context.Context, id string, r Reply, exec ...core.DBExecutor) (Discussion, error)
		DeleteDiscussion(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, author user.User, courseID string, data NewDiscussion) (Discussion, error)
		GetByID(ctx context.Context, id string) (Discussion, error)
		List(ctx context.Context, courseID string, page *core.Pagination) ([]Discussion, int, error)
		Reply(ctx context.Context, author user.User, d Discussion, data NewReply) (Discussion, error)
		// Delete removes d when usr is its author, the course owner or an admin.
		Delete(ctx context.Context, usr user.User, d Discussion, c course.Course) error
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

func (svc *service) Create(ctx context.Context, author user.User, courseID string, data NewDiscussion) (Discussion, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Discussion{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateDiscussion(ctx, Discussion{
		CourseID:   courseID,
		UserID:     author.ID,
		AuthorName: author.Name,
		Title:      data.Title,
		Body:       data.Body,
		Replies:    []Reply{},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Discussion, error) {
	return svc.repo.GetDiscussion(ctx, id)
}

func (svc *service) List(ctx context.Context, courseID string, page *core.Pagination) ([]Discussion, int, error) {
	if page != nil {
		page.Clean()
	}
	return svc.repo.QueryDiscussions(ctx, courseID, page)
}

func (svc *service) Reply(ctx context.Context, author user.User, d Discussion, data NewReply) (Discussion, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Discussion{}, err
	}
	return svc.repo.AddReply(ctx, d.ID, Reply{
		ID:         uuid.New().String(),
		UserID:     author.ID,
		AuthorName: author.Name,
		Body:       data.Body,
		CreatedAt:  time.Now().UTC(),
	})
}

func (svc *service) Delete(ctx context.Context, usr user.User, d Discussion, c course.Course) error {
	if d.UserID != usr.ID && !c.CanManage(usr) {
		return ErrNotAuthor
	}
	return svc.repo.DeleteDiscussion(ctx, d.ID)
}

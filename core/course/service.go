package course

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("Course not found")
	ErrLectureMissing = core.NewNotFoundError("Lecture not found")
	ErrNotInstructor  = core.NewPermissionError("Not authorized to modify this course")
	ErrNoLectures     = core.NewValidationError(nil, core.FieldError{Field: "lectures", Error: "add at least one lecture before publishing"})
	ErrReasonRequired = core.NewValidationError(nil, core.FieldError{Field: "reason", Error: "this field is required"})
	ErrSlugExists     = errors.New("a course with this slug already exists")
)

// slugAttempts bounds the tries at finding a free slug.
const slugAttempts = 5

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Course.Title or Course.Description.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Course, int, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		// AddStudents atomically moves total_students by delta, never below 0.
		AddStudents(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error
		// ApplyRating folds a new rating into the running average. A non-zero previous rating is replaced.
		ApplyRating(ctx context.Context, id string, rating, previous int, exec ...core.DBExecutor) error
		CountCourses(ctx context.Context, exec ...core.DBExecutor) (Counts, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, instructor user.User, nc NewCourse) (Course, error)
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// GetVisible returns a course if viewer may see it. viewer may be nil.
		GetVisible(ctx context.Context, id string, viewer *user.User) (Course, error)
		// GetManaged returns a course if usr may manage it.
		GetManaged(ctx context.Context, id string, usr user.User) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Course, int, error)
		QueryPublished(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Course, int, error)
		Featured(ctx context.Context) ([]Course, error)
		ListByInstructor(ctx context.Context, instructorID string) ([]Course, error)
		Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error)
		TogglePublish(ctx context.Context, c Course) (Course, error)
		Approve(ctx context.Context, id string) (Course, error)
		Reject(ctx context.Context, id, reason string) (Course, error)
		SetThumbnail(ctx context.Context, c Course, url, key string) (Course, error)
		AddStudents(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error
		ApplyRating(ctx context.Context, id string, rating, previous int, exec ...core.DBExecutor) error
		Counts(ctx context.Context) (Counts, error)
		Delete(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	service struct {
		repo     Repository
		validate *validator.Validate
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) Service {
	return &service{repo: repo, validate: validate, conf: conf}
}

func slugBase(title string) string {
	if base := core.Slugify(title); base != "" {
		return base
	}
	return "course"
}

func suffixSlug(base string) string {
	return base + "-" + strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// uniqueSlug derives a slug from title, suffixing it when taken.
func (svc *service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slugBase(title)
	slug := base
	for i := 0; i < slugAttempts; i++ {
		exists, err := svc.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !exists {
			return slug, nil
		}
		slug = suffixSlug(base)
	}
	return base + "-" + uuid.New().String(), nil
}

// save stores c with write. A course created since uniqueSlug looked may hold the slug by then,
// c moves to a suffixed one in that case.
func (svc *service) save(ctx context.Context, c Course, write func(context.Context, Course, ...core.DBExecutor) (Course, error)) (Course, error) {
	for i := 0; ; i++ {
		res, err := write(ctx, c)
		if errors.Cause(err) != ErrSlugExists || i == slugAttempts {
			return res, err
		}
		c.Slug = suffixSlug(slugBase(c.Title))
	}
}

// cleanLectures trims lectures and gives an id to the new ones.
func cleanLectures(lectures []Lecture) []Lecture {
	res := make([]Lecture, 0, len(lectures))
	for _, lec := range lectures {
		lec.ID = core.CleanString(lec.ID)
		lec.Title = core.CleanString(lec.Title)
		lec.Type = core.CleanString(lec.Type, true /* lower */)
		lec.URL = core.CleanString(lec.URL)
		if lec.ID == "" {
			lec.ID = uuid.New().String()
		}
		res = append(res, lec)
	}
	return res
}

func (svc *service) Create(ctx context.Context, instructor user.User, nc NewCourse) (Course, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}
	if nc.Currency == "" {
		nc.Currency = svc.conf.Payment.Currency
	}

	slug, err := svc.uniqueSlug(ctx, nc.Title)
	if err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	c := Course{
		InstructorID: instructor.ID,
		Title:        nc.Title,
		Slug:         slug,
		Description:  nc.Description,
		Category:     nc.Category,
		Level:        nc.Level,
		Price:        nc.Price,
		Currency:     nc.Currency,
		Lectures:     cleanLectures(nc.Lectures),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.save(ctx, c, svc.repo.CreateCourse)
}

func (svc *service) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return svc.repo.GetCourse(ctx, id, exec...)
}

func (svc *service) GetVisible(ctx context.Context, id string, viewer *user.User) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.VisibleTo(viewer) {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (svc *service) GetManaged(ctx context.Context, id string, usr user.User) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.CanManage(usr) {
		return Course{}, ErrNotInstructor
	}
	return c, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Course, int, error) {
	if filter != nil {
		filter.Clean()
	}
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryCourses(ctx, filter, ordering, page)
}

// QueryPublished is the public catalog.
func (svc *service) QueryPublished(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Course, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	published := true
	filter.Published = &published
	return svc.Query(ctx, filter, ordering, page)
}

func (svc *service) Featured(ctx context.Context) ([]Course, error) {
	yes := true
	courses, _, err := svc.repo.QueryCourses(
		ctx,
		&QueryFilter{Published: &yes, Approved: &yes},
		[]core.DBOrdering{{Field: "total_students"}, {Field: "rating"}},
		&core.Pagination{Page: 1, Limit: FeaturedLimit},
	)
	return courses, errors.Wrap(err, "querying featured courses")
}

func (svc *service) ListByInstructor(ctx context.Context, instructorID string) ([]Course, error) {
	courses, _, err := svc.repo.QueryCourses(
		ctx,
		&QueryFilter{InstructorID: instructorID},
		[]core.DBOrdering{{Field: "created_at"}},
		nil,
	)
	return courses, errors.Wrap(err, "querying instructor courses")
}

func (svc *service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	if err := svc.validate.Struct(uc); err != nil {
		return Course{}, err
	}

	if uc.Title != nil {
		if title := core.CleanString(*uc.Title); title != c.Title {
			slug, err := svc.uniqueSlug(ctx, title)
			if err != nil {
				return Course{}, err
			}
			c.Title, c.Slug = title, slug
		}
	}
	if uc.Description != nil {
		c.Description = core.CleanString(*uc.Description)
	}
	if uc.Category != nil {
		c.Category = core.CleanString(*uc.Category, true /* lower */)
	}
	if uc.Level != nil {
		c.Level = core.CleanString(*uc.Level, true /* lower */)
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.Currency != nil {
		c.Currency = core.CleanString(*uc.Currency, true /* lower */)
	}
	if uc.Lectures != nil {
		c.Lectures = cleanLectures(*uc.Lectures)
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.save(ctx, c, svc.repo.UpdateCourse)
}

func (svc *service) TogglePublish(ctx context.Context, c Course) (Course, error) {
	if !c.IsPublished && len(c.Lectures) == 0 {
		return Course{}, ErrNoLectures
	}
	c.IsPublished = !c.IsPublished
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) Approve(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.IsApproved = true
	c.RejectionReason = ""
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

// Reject withdraws approval and unpublishes the course.
func (svc *service) Reject(ctx context.Context, id, reason string) (Course, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return Course{}, ErrReasonRequired
	}
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.IsApproved = false
	c.IsPublished = false
	c.RejectionReason = reason
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) SetThumbnail(ctx context.Context, c Course, url, key string) (Course, error) {
	c.ThumbnailURL = url
	c.ThumbnailKey = key
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) AddStudents(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error {
	return svc.repo.AddStudents(ctx, id, delta, exec...)
}

func (svc *service) ApplyRating(ctx context.Context, id string, rating, previous int, exec ...core.DBExecutor) error {
	return svc.repo.ApplyRating(ctx, id, rating, previous, exec...)
}

func (svc *service) Counts(ctx context.Context) (Counts, error) {
	return svc.repo.CountCourses(ctx)
}

func (svc *service) Delete(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return svc.repo.DeleteCourse(ctx, id, exec...)
}

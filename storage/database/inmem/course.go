package inmemdb

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func copyCourse(c *course.Course) course.Course {
	res := *c
	res.Lectures = make([]course.Lecture, len(c.Lectures))
	copy(res.Lectures, c.Lectures)
	return res
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if repo.slugTaken(c) {
		return course.Course{}, course.ErrSlugExists
	}
	cc := copyCourse(&c)
	repo.db.courses[c.ID] = &cc
	return copyCourse(&cc), nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return copyCourse(c), nil
}

// slugTaken reports whether another course holds c's slug. The caller holds the lock.
func (repo *courseRepository) slugTaken(c course.Course) bool {
	if c.Slug == "" {
		return false
	}
	for id, other := range repo.db.courses {
		if id != c.ID && other.Slug == c.Slug {
			return true
		}
	}
	return false
}

func (repo *courseRepository) SlugExists(_ context.Context, slug string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, c := range repo.db.courses {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func matchCourse(c *course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !(containsFold(c.Title, filter.Search) || containsFold(c.Description, filter.Search)) {
		return false
	}
	if filter.Category != "" && c.Category != filter.Category {
		return false
	}
	if filter.Level != "" && c.Level != filter.Level {
		return false
	}
	if filter.MinPrice != nil && c.Price < *filter.MinPrice {
		return false
	}
	if filter.MaxPrice != nil && c.Price > *filter.MaxPrice {
		return false
	}
	if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
		return false
	}
	if filter.Published != nil && c.IsPublished != *filter.Published {
		return false
	}
	if filter.Approved != nil && c.IsApproved != *filter.Approved {
		return false
	}
	if filter.IDs != nil && !contains(filter.IDs, c.ID) {
		return false
	}
	return true
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, _ ...core.DBExecutor) ([]course.Course, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var courses []course.Course
	for _, c := range repo.db.courses {
		if matchCourse(c, filter) {
			courses = append(courses, copyCourse(c))
		}
	}

	sortByOrdering(len(courses), func(i, j int) { courses[i], courses[j] = courses[j], courses[i] }, ordering, func(i int, field string) interface{} {
		c := courses[i]
		switch field {
		case "title":
			return c.Title
		case "price":
			return c.Price
		case "created_at":
			return c.CreatedAt
		case "updated_at":
			return c.UpdatedAt
		case "rating":
			return c.Rating
		case "total_students":
			return c.TotalStudents
		case "level":
			return c.Level
		case "category":
			return c.Category
		}
		return nil
	})

	total := len(courses)
	start, end := paginate(total, page)
	return courses[start:end], total, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if repo.slugTaken(c) {
		return course.Course{}, course.ErrSlugExists
	}
	// counters only move through AddStudents and ApplyRating
	c.TotalStudents = orig.TotalStudents
	c.Rating = orig.Rating
	c.RatingCount = orig.RatingCount
	c.CreatedAt = orig.CreatedAt
	cc := copyCourse(&c)
	repo.db.courses[c.ID] = &cc
	return copyCourse(&cc), nil
}

func (repo *courseRepository) AddStudents(_ context.Context, id string, delta int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.ErrNotFound
	}
	c.TotalStudents += delta
	if c.TotalStudents < 0 {
		c.TotalStudents = 0
	}
	return nil
}

func (repo *courseRepository) ApplyRating(_ context.Context, id string, rating, previous int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.ErrNotFound
	}
	sum := c.Rating * float64(c.RatingCount)
	if previous > 0 && c.RatingCount > 0 {
		sum += float64(rating - previous)
	} else {
		sum += float64(rating)
		c.RatingCount++
	}
	c.Rating = math.Round(sum/float64(c.RatingCount)*100) / 100
	return nil
}

func (repo *courseRepository) CountCourses(_ context.Context, _ ...core.DBExecutor) (course.Counts, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var counts course.Counts
	for _, c := range repo.db.courses {
		counts.Total++
		if c.IsPublished {
			counts.Published++
		}
	}
	return counts, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	repo.db.deleteCourse(id)
	return nil
}

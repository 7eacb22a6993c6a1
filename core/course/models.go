package course

import (
	"time"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

// Levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelAll          = "all"
)

// Lecture types
const (
	LectureVideo = "video"
	LecturePDF   = "pdf"
	LectureQuiz  = "quiz"
	LectureText  = "text"
	LectureFile  = "file"
)

const FeaturedLimit = 6

var (
	AllLevels       = []string{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelAll}
	AllLectureTypes = []string{LectureVideo, LecturePDF, LectureQuiz, LectureText, LectureFile}

	// OrderingFields lists the fields courses may be sorted by.
	OrderingFields = []string{"title", "price", "created_at", "updated_at", "rating", "total_students", "level", "category"}
)

type Lecture struct {
	ID       string `json:"id"`
	Title    string `json:"title" validate:"required,max=200"`
	Type     string `json:"type" validate:"required,lecturetype"`
	URL      string `json:"url" validate:"omitempty,max=2048"`
	Duration int    `json:"duration" validate:"min=0"` // seconds
}

type Course struct {
	ID              string    `json:"id"`
	InstructorID    string    `json:"instructor_id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Level           string    `json:"level"`
	Price           int64     `json:"price"` // minor units
	Currency        string    `json:"currency"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ThumbnailKey    string    `json:"-"`
	Lectures        []Lecture `json:"lectures"`
	IsPublished     bool      `json:"is_published"`
	IsApproved      bool      `json:"is_approved"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	TotalStudents   int       `json:"total_students"`
	Rating          float64   `json:"rating"`
	RatingCount     int       `json:"rating_count"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (c Course) IsFree() bool { return c.Price == 0 }

func (c Course) IsOwnedBy(usr user.User) bool { return usr.ID != "" && c.InstructorID == usr.ID }

// CanManage reports whether usr may edit, publish or delete the course.
func (c Course) CanManage(usr user.User) bool { return c.IsOwnedBy(usr) || usr.IsAdmin() }

// VisibleTo reports whether usr may see the course. Drafts are only visible to their managers.
func (c Course) VisibleTo(usr *user.User) bool {
	return c.IsPublished || (usr != nil && c.CanManage(*usr))
}

func (c Course) Lecture(id string) (Lecture, bool) {
	for _, lec := range c.Lectures {
		if lec.ID == id {
			return lec, true
		}
	}
	return Lecture{}, false
}

// Summary is the short form embedded in enrollments and payments.
type Summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	ThumbnailURL string `json:"thumbnail_url"`
	InstructorID string `json:"instructor_id"`
	Level        string `json:"level"`
	Lectures     int    `json:"lectures"`
}

func (c Course) Summary() Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		Slug:         c.Slug,
		ThumbnailURL: c.ThumbnailURL,
		InstructorID: c.InstructorID,
		Level:        c.Level,
		Lectures:     len(c.Lectures),
	}
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=10000"`
	Category    string    `json:"category" validate:"max=64"`
	Level       string    `json:"level" validate:"omitempty,level"`
	Price       int64     `json:"price" validate:"min=0"`
	Currency    string    `json:"currency" validate:"omitempty,len=3"`
	Lectures    []Lecture `json:"lectures" validate:"omitempty,dive"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category, true /* lower */)
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	nc.Currency = core.CleanString(nc.Currency, true /* lower */)
	if nc.Level == "" {
		nc.Level = LevelAll
	}
}

// UpdateCourse holds a partial update. Nil fields are left untouched.
type UpdateCourse struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Category    *string    `json:"category" validate:"omitempty,max=64"`
	Level       *string    `json:"level" validate:"omitempty,level"`
	Price       *int64     `json:"price" validate:"omitempty,min=0"`
	Currency    *string    `json:"currency" validate:"omitempty,len=3"`
	Lectures    *[]Lecture `json:"lectures" validate:"omitempty,dive"`
}

type QueryFilter struct {
	Search       string   `query:"search"`
	Category     string   `query:"category"`
	Level        string   `query:"level"`
	MinPrice     *int64   `query:"min_price"`
	MaxPrice     *int64   `query:"max_price"`
	InstructorID string   `query:"instructor"`
	Published    *bool    `query:"published"`
	Approved     *bool    `query:"approved"`
	IDs          []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category, true /* lower */)
	qf.Level = core.CleanString(qf.Level, true /* lower */)
	qf.InstructorID = core.CleanString(qf.InstructorID)
}

// Counts feeds the admin dashboard.
type Counts struct {
	Total     int `json:"total"`
	Published int `json:"published"`
}

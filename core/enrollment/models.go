package enrollment

import (
	"math"
	"time"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
)

// Statuses
const (
	StatusActive   = "active"
	StatusRefunded = "refunded"
)

const LeaderboardSize = 10

type Enrollment struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	CourseID          string          `json:"course_id"`
	PaymentID         string          `json:"payment_id,omitempty"`
	Status            string          `json:"status"`
	CompletedLectures []string        `json:"completed_lectures"`
	PassedQuizzes     []string        `json:"passed_quizzes"`
	Progress          int             `json:"progress"` // 0..100
	Rating            int             `json:"rating,omitempty"`
	EnrolledAt        time.Time       `json:"enrolled_at"`      // UTC
	LastAccessedAt    time.Time       `json:"last_accessed_at"` // UTC
	CompletedAt       *time.Time      `json:"completed_at"`     // UTC
	Course            *course.Summary `json:"course,omitempty"`
}

func (e Enrollment) IsActive() bool    { return e.Status == StatusActive }
func (e Enrollment) IsCompleted() bool { return e.CompletedAt != nil }

func (e Enrollment) HasCompletedLecture(id string) bool { return contains(e.CompletedLectures, id) }
func (e Enrollment) HasPassedQuiz(id string) bool       { return contains(e.PassedQuizzes, id) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LectureProgress is the share of the course lectures found in completed, as a 0..100 percentage.
func LectureProgress(c course.Course, completed []string) int {
	total := len(c.Lectures)
	if total == 0 {
		return 0
	}
	var done int
	for _, lec := range c.Lectures {
		if contains(completed, lec.ID) {
			done++
		}
	}
	return core.ClampInt(int(math.Round(float64(done)/float64(total)*100)), 0, 100)
}

type SetProgress struct {
	Progress *int `json:"progress" validate:"required"`
}

type Rate struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// Counts feeds the admin dashboard.
type Counts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

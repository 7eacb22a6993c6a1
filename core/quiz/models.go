package quiz

import (
	"math"
	"time"

	"github.com/skillsharp/lms/core"
)

const DefaultPassingScore = 50

type Question struct {
	Text         string   `json:"text" validate:"required,max=1000"`
	Options      []string `json:"options" validate:"min=2,max=10,dive,required,max=500"`
	CorrectIndex int      `json:"correct_index" validate:"min=0"`
}

type Quiz struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	LectureID    string     `json:"lecture_id,omitempty"`
	Title        string     `json:"title"`
	Questions    []Question `json:"questions"`
	PassingScore int        `json:"passing_score"` // percent
	CreatedAt    time.Time  `json:"created_at"`    // UTC
	UpdatedAt    time.Time  `json:"updated_at"`    // UTC
}

// PublicQuestion hides the answer from students.
type PublicQuestion struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type PublicQuiz struct {
	ID           string           `json:"id"`
	CourseID     string           `json:"course_id"`
	LectureID    string           `json:"lecture_id,omitempty"`
	Title        string           `json:"title"`
	Questions    []PublicQuestion `json:"questions"`
	PassingScore int              `json:"passing_score"`
}

func (q Quiz) Public() PublicQuiz {
	questions := make([]PublicQuestion, 0, len(q.Questions))
	for _, qn := range q.Questions {
		questions = append(questions, PublicQuestion{Text: qn.Text, Options: qn.Options})
	}
	return PublicQuiz{
		ID:           q.ID,
		CourseID:     q.CourseID,
		LectureID:    q.LectureID,
		Title:        q.Title,
		Questions:    questions,
		PassingScore: q.PassingScore,
	}
}

// Grade scores answers against the quiz. Missing answers count as wrong, extra ones are ignored.
func (q Quiz) Grade(answers []int) (score, correct int) {
	total := len(q.Questions)
	if total == 0 {
		return 0, 0
	}
	for i, qn := range q.Questions {
		if i < len(answers) && answers[i] == qn.CorrectIndex {
			correct++
		}
	}
	score = int(math.Round(float64(correct) / float64(total) * 100))
	return score, correct
}

type NewQuiz struct {
	Title        string     `json:"title" validate:"required,max=200"`
	LectureID    string     `json:"lecture_id" validate:"max=64"`
	PassingScore int        `json:"passing_score" validate:"omitempty,min=1,max=100"`
	Questions    []Question `json:"questions" validate:"required,min=1,max=100,dive"`
}

func (nq *NewQuiz) Clean() {
	nq.Title = core.CleanString(nq.Title)
	nq.LectureID = core.CleanString(nq.LectureID)
	if nq.PassingScore == 0 {
		nq.PassingScore = DefaultPassingScore
	}
	for i := range nq.Questions {
		nq.Questions[i].Text = core.CleanString(nq.Questions[i].Text)
		for j := range nq.Questions[i].Options {
			nq.Questions[i].Options[j] = core.CleanString(nq.Questions[i].Options[j])
		}
	}
}

type Submission struct {
	Answers []int `json:"answers" validate:"required"`
}

type Result struct {
	Score         int  `json:"score"`
	Correct       int  `json:"correct"`
	Total         int  `json:"total"`
	Passed        bool `json:"passed"`
	PointsAwarded int  `json:"points_awarded"`
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil)

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db}
}

func copyQuiz(q *quiz.Quiz) quiz.Quiz {
	res := *q
	res.Questions = make([]quiz.Question, 0, len(q.Questions))
	for _, qn := range q.Questions {
		qn.Options = cloneStrings(qn.Options)
		res.Questions = append(res.Questions, qn)
	}
	return res
}

func (repo *quizRepository) CreateQuiz(_ context.Context, q quiz.Quiz, _ ...core.DBExecutor) (quiz.Quiz, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	nq := copyQuiz(&q)
	repo.db.quizzes[q.ID] = &nq
	return copyQuiz(&nq), nil
}

func (repo *quizRepository) GetQuiz(_ context.Context, id string, _ ...core.DBExecutor) (quiz.Quiz, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	q, ok := repo.db.quizzes[id]
	if !ok {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	return copyQuiz(q), nil
}

func (repo *quizRepository) QueryQuizzes(_ context.Context, courseID string, _ ...core.DBExecutor) ([]quiz.Quiz, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]quiz.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.CourseID == courseID {
			res = append(res, copyQuiz(q))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (repo *quizRepository) DeleteQuiz(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.quizzes[id]; !ok {
		return quiz.ErrNotFound
	}
	delete(repo.db.quizzes, id)
	return nil
}

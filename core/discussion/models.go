package discussion

import (
	"time"

	"github.com/skillsharp/lms/core"
)

type Reply struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type Discussion struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	UserID     string    `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Replies    []Reply   `json:"replies"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type NewDiscussion struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=10000"`
}

func (nd *NewDiscussion) Clean() {
	nd.Title = core.CleanString(nd.Title)
	nd.Body = core.CleanString(nd.Body)
}

type NewReply struct {
	Body string `json:"body" validate:"required,max=10000"`
}

func (nr *NewReply) Clean() {
	nr.Body = core.CleanString(nr.Body)
}

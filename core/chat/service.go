package chat

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

type (
	Message struct {
		ID        string    `json:"id"`
		CourseID  string    `json:"course_id"`
		UserID    string    `json:"user_id"`
		UserName  string    `json:"user_name"`
		AvatarURL string    `json:"avatar_url,omitempty"`
		Body      string    `json:"body"`
		SentAt    time.Time `json:"sent_at"` // UTC
	}

	NewMessage struct {
		Body string `json:"body" validate:"required,max=2000"`
	}

	Service interface {
		// Post publishes a message to a course room through the bus.
		Post(ctx context.Context, author user.User, courseID string, data NewMessage) (Message, error)
		Subscribe(courseID, userID string) *Subscription
		Unsubscribe(sub *Subscription)
		// Run forwards bus messages to the local hub until ctx is done.
		Run(ctx context.Context) error
	}

	service struct {
		bus      Bus
		hub      *Hub
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(bus Bus, hub *Hub, validate *validator.Validate) Service {
	return &service{bus: bus, hub: hub, validate: validate}
}

func (svc *service) Post(ctx context.Context, author user.User, courseID string, data NewMessage) (Message, error) {
	data.Body = core.CleanString(data.Body)
	if err := svc.validate.Struct(data); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		UserID:    author.ID,
		UserName:  author.Name,
		AvatarURL: author.AvatarURL,
		Body:      data.Body,
		SentAt:    time.Now().UTC(),
	}
	if err := svc.bus.Publish(ctx, msg); err != nil {
		return Message{}, errors.Wrap(err, "publishing chat message")
	}
	return msg, nil
}

func (svc *service) Subscribe(courseID, userID string) *Subscription {
	return svc.hub.Subscribe(courseID, userID)
}

func (svc *service) Unsubscribe(sub *Subscription) {
	svc.hub.Unsubscribe(sub)
}

func (svc *service) Run(ctx context.Context) error {
	return svc.bus.StartForwarder(ctx, svc.hub.Broadcast)
}

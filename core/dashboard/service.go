package dashboard

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/user"
)

var ErrSelfAction = core.NewValidationError(errors.New("You cannot perform this action on your own account"))

type (
	UserStats struct {
		Total  int            `json:"total"`
		ByRole map[string]int `json:"by_role"`
	}

	Stats struct {
		Users       UserStats         `json:"users"`
		Courses     course.Counts     `json:"courses"`
		Enrollments enrollment.Counts `json:"enrollments"`
		Payments    payment.Revenue   `json:"payments"`
	}

	Service interface {
		Stats(ctx context.Context) (Stats, error)
		// DeleteUser removes a user and everything they own, uncounting them from the courses they were enrolled in.
		DeleteUser(ctx context.Context, admin user.User, id string) error
		SetRole(ctx context.Context, admin user.User, id, role string) (user.User, error)
		SetActive(ctx context.Context, admin user.User, id string, active bool) (user.User, error)
	}

	service struct {
		usrSvc     user.Service
		courseSvc  course.Service
		enrollSvc  enrollment.Service
		paymentSvc payment.Service
		transactor core.Transactor
	}
)

var _ Service = (*service)(nil)

func NewService(
	usrSvc user.Service,
	courseSvc course.Service,
	enrollSvc enrollment.Service,
	paymentSvc payment.Service,
	transactor core.Transactor,
) Service {
	return &service{
		usrSvc:     usrSvc,
		courseSvc:  courseSvc,
		enrollSvc:  enrollSvc,
		paymentSvc: paymentSvc,
		transactor: transactor,
	}
}

// Stats runs the dashboard counts concurrently.
func (svc *service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		byRole, err := svc.usrSvc.CountByRole(gctx)
		if err != nil {
			return errors.Wrap(err, "counting users")
		}
		for _, role := range user.AllRoles {
			if _, ok := byRole[role]; !ok {
				byRole[role] = 0
			}
			stats.Users.Total += byRole[role]
		}
		stats.Users.ByRole = byRole
		return nil
	})
	g.Go(func() error {
		counts, err := svc.courseSvc.Counts(gctx)
		stats.Courses = counts
		return errors.Wrap(err, "counting courses")
	})
	g.Go(func() error {
		counts, err := svc.enrollSvc.Counts(gctx)
		stats.Enrollments = counts
		return errors.Wrap(err, "counting enrollments")
	})
	g.Go(func() error {
		revenue, err := svc.paymentSvc.Revenue(gctx)
		stats.Payments = revenue
		return errors.Wrap(err, "summing revenue")
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (svc *service) DeleteUser(ctx context.Context, admin user.User, id string) error {
	if admin.ID == id {
		return ErrSelfAction
	}
	if _, err := svc.usrSvc.GetByID(ctx, id); err != nil {
		return err
	}

	return svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		courseIDs, err := svc.enrollSvc.ListActiveCourseIDs(ctx, id, exec)
		if err != nil {
			return err
		}
		for _, courseID := range courseIDs {
			if err = svc.courseSvc.AddStudents(ctx, courseID, -1, exec); err != nil {
				return errors.Wrap(err, "decrementing total students")
			}
		}
		return errors.Wrap(svc.usrSvc.Delete(ctx, id, exec), "deleting user")
	})
}

func (svc *service) SetRole(ctx context.Context, admin user.User, id, role string) (user.User, error) {
	if admin.ID == id {
		return user.User{}, ErrSelfAction
	}
	return svc.usrSvc.SetRole(ctx, id, role)
}

func (svc *service) SetActive(ctx context.Context, admin user.User, id string, active bool) (user.User, error) {
	if admin.ID == id {
		return user.User{}, ErrSelfAction
	}
	return svc.usrSvc.SetActive(ctx, id, active)
}

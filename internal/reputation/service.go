package reputation

import (
	"context"
	"errors"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/store"
)

// Service runs rep operations, one transaction per call.
type Service struct {
	db *store.DB
}

// NewService creates a Service on top of db.
func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// Points returns the user's rep, or ErrNoUser.
func (s *Service) Points(ctx context.Context, userID int64) (int, error) {
	points, found, err := Balance(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNoUser
	}
	return points, nil
}

// Grant credits rep to a user, creating them if needed.
func (s *Service) Grant(ctx context.Context, userID int64, amount int) (int, error) {
	return Credit(ctx, s.db, userID, amount)
}

// Add is the moderator command that adds rep to an existing user. name is
// only used for the reply.
func (s *Service) Add(ctx context.Context, userID int64, name string, amount int) (int, error) {
	var points int
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		_, found, err := Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return notActive(name)
		}
		points, err = Credit(ctx, tx, userID, amount)
		return err
	})
	return points, err
}

// Remove is the moderator command that removes rep from an existing user. The
// amount is clamped at the user's balance; overflow reports the part that
// could not be removed.
func (s *Service) Remove(ctx context.Context, userID int64, name string, amount int) (points int, overflow int, err error) {
	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		current, found, err := Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return notActive(name)
		}
		if amount > current {
			overflow = amount - current
			amount = current
		}
		points, err = Spend(ctx, tx, userID, amount)
		return err
	})
	if err == nil {
		metrics.RepSpent.WithLabelValues("moderation").Add(float64(amount))
	}
	return points, overflow, err
}

// Check returns the user's rep, with the moderator-facing error when the user
// is unknown.
func (s *Service) Check(ctx context.Context, userID int64, name string) (int, error) {
	points, err := s.Points(ctx, userID)
	if errors.Is(err, ErrNoUser) {
		return 0, notActive(name)
	}
	return points, err
}

func notActive(name string) error {
	return userErrorf("Error: User `%s` not found as active.", name)
}

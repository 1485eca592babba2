// Package reputation manages the rep (points) balance every other bot
// economy draws from, along with moderator adjustments and community pools.
package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charbot/charbot/internal/store"
)

// Balance returns the user's current rep. found is false when the user has
// never gained any rep.
func Balance(ctx context.Context, q store.Querier, userID int64) (points int, found bool, err error) {
	err = q.QueryRow(ctx, "SELECT points FROM users WHERE id = ?", userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select points: %w", err)
	}
	return points, true, nil
}

// Spend deducts amount from the user's rep and returns the remaining balance.
// The deduction is conditional on the balance covering it, so concurrent
// spends can never drive a balance negative.
func Spend(ctx context.Context, q store.Querier, userID int64, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	var remaining int
	err := q.QueryRow(ctx,
		"UPDATE users SET points = points - ? WHERE id = ? AND points >= ? RETURNING points",
		amount, userID, amount,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		_, found, balErr := Balance(ctx, q, userID)
		if balErr != nil {
			return 0, balErr
		}
		if !found {
			return 0, ErrNoUser
		}
		return 0, ErrInsufficientPoints
	}
	if err != nil {
		return 0, fmt.Errorf("spend points: %w", err)
	}
	return remaining, nil
}

// Credit adds amount to the user's rep, creating the user when needed, and
// returns the new balance.
func Credit(ctx context.Context, q store.Querier, userID int64, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	var points int
	err := q.QueryRow(ctx,
		"INSERT INTO users (id, points) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET points = users.points + excluded.points RETURNING points",
		userID, amount,
	).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("credit points: %w", err)
	}
	return points, nil
}

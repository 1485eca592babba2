package gangs

import (
	"context"
	"fmt"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/store"
	"github.com/oklahomer/go-kasumi/logger"
)

// ShakedownChance is the chance a scheduled shakedown happens: one percent
// per item held across all inventories, capped at one.
func (s *Service) ShakedownChance(ctx context.Context) (float64, error) {
	return shakedownChance(ctx, s.db)
}

func shakedownChance(ctx context.Context, q store.Querier) (float64, error) {
	var total int
	err := q.QueryRow(ctx,
		"SELECT COALESCE((SELECT SUM(quantity) FROM user_inventory), 0) + COALESCE((SELECT SUM(quantity) FROM gang_inventory), 0)",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count inventory: %w", err)
	}
	return max(min(float64(total)/100, 1), 0), nil
}

type inventoryRow struct {
	scope    Scope
	owner    any
	item     int64
	quantity int
}

// Shakedown runs a shakedown with probability ShakedownChance, or always when
// force is set. Every inventory row loses one unit with probability
// ItemFindChance. It returns the number of units confiscated.
func (s *Service) Shakedown(ctx context.Context, force bool) (int, error) {
	found := 0
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		found = 0
		chance, err := shakedownChance(ctx, tx)
		if err != nil {
			return err
		}
		if !force && s.random() >= chance {
			return nil
		}

		rows, err := inventoryRows(ctx, tx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if s.random() >= ItemFindChance {
				continue
			}
			if err := consumeItem(ctx, tx, r.scope, r.owner, r.item, r.quantity); err != nil {
				return err
			}
			found++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.ItemsConfiscated.Add(float64(found))
	if found > 0 {
		logger.Infof("Shakedown confiscated %d item(s)", found)
		s.announce(ctx, fmt.Sprintf("A shakedown swept through the city and %d item(s) were confiscated!", found))
	}
	return found, nil
}

func inventoryRows(ctx context.Context, q store.Querier) ([]inventoryRow, error) {
	var out []inventoryRow

	users, err := q.Query(ctx, "SELECT user_id, item, quantity FROM user_inventory ORDER BY user_id, item")
	if err != nil {
		return nil, fmt.Errorf("select user inventory: %w", err)
	}
	for users.Next() {
		var (
			owner int64
			r     = inventoryRow{scope: ScopeUser}
		)
		if err := users.Scan(&owner, &r.item, &r.quantity); err != nil {
			users.Close()
			return nil, fmt.Errorf("scan user inventory: %w", err)
		}
		r.owner = owner
		out = append(out, r)
	}
	if err := users.Err(); err != nil {
		users.Close()
		return nil, fmt.Errorf("iterate user inventory: %w", err)
	}
	users.Close()

	gangRows, err := q.Query(ctx, "SELECT gang, item, quantity FROM gang_inventory ORDER BY gang, item")
	if err != nil {
		return nil, fmt.Errorf("select gang inventory: %w", err)
	}
	defer gangRows.Close()
	for gangRows.Next() {
		var (
			owner string
			r     = inventoryRow{scope: ScopeGang}
		)
		if err := gangRows.Scan(&owner, &r.item, &r.quantity); err != nil {
			return nil, fmt.Errorf("scan gang inventory: %w", err)
		}
		r.owner = owner
		out = append(out, r)
	}
	if err := gangRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gang inventory: %w", err)
	}
	return out, nil
}

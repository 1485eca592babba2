package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/store"
)

// Pool is a capped communal rep target that unlocks Reward when filled.
type Pool struct {
	Name          string
	Cap           int
	Current       int
	Reward        string
	Level         int
	Start         int
	RequiredRoles []int64
}

// Full reports whether the pool reached its cap.
func (p Pool) Full() bool {
	return p.Current >= p.Cap
}

// Contribution is the outcome of AddToPool.
type Contribution struct {
	Pool      Pool
	Added     int
	Remaining int
	Filled    bool
}

// AddToPool moves amount rep from the user into the pool. The caller must
// hold one of the pool's required roles. Contributions overflowing the cap are
// clamped so the pool ends exactly full.
func (s *Service) AddToPool(ctx context.Context, userID int64, roles []int64, name string, amount int) (Contribution, error) {
	if amount < 1 {
		return Contribution{}, userErrorf("You must add at least 1 rep.")
	}

	var out Contribution
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		pool, err := loadPool(ctx, tx, name)
		if err != nil {
			return err
		}
		if err := checkPoolRoles(pool, roles); err != nil {
			return err
		}
		if pool.Full() {
			return userErrorf("The pool %s is already full. You can't add any more rep to it.", name)
		}

		points, found, err := Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return userErrorf("You haven't gained any rep yet.")
		}
		if points < amount {
			return userErrorf("You don't have enough rep to add %d to the pool. you have %d rep.", amount, points)
		}
		if pool.Current+amount > pool.Cap {
			amount = pool.Cap - pool.Current
		}

		remaining, err := Spend(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			"UPDATE pools SET current = current + ? WHERE pool = ? RETURNING current", amount, name,
		).Scan(&pool.Current); err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		out = Contribution{Pool: pool, Added: amount, Remaining: remaining, Filled: pool.Full()}
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}
	metrics.RepSpent.WithLabelValues("pool").Add(float64(out.Added))
	return out, nil
}

// QueryPool returns a pool visible to a member holding roles. Pools the member
// cannot contribute to are reported as not found.
func (s *Service) QueryPool(ctx context.Context, roles []int64, name string) (Pool, error) {
	pool, err := loadPool(ctx, s.db, name)
	if err != nil {
		return Pool{}, err
	}
	if !hasAnyRole(pool.RequiredRoles, roles) {
		return Pool{}, userErrorf("Pool not found. Please choose one from the autocomplete.")
	}
	return pool, nil
}

// ListPools returns the pools a member holding roles may contribute to.
func (s *Service) ListPools(ctx context.Context, roles []int64) ([]Pool, error) {
	rows, err := s.db.Query(ctx, "SELECT pool FROM pools ORDER BY pool")
	if err != nil {
		return nil, fmt.Errorf("select pools: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	rows.Close()

	var pools []Pool
	for _, name := range names {
		pool, err := loadPool(ctx, s.db, name)
		if err != nil {
			return nil, err
		}
		if hasAnyRole(pool.RequiredRoles, roles) {
			pools = append(pools, pool)
		}
	}
	return pools, nil
}

// CreatePool creates or replaces a pool definition, resetting its progress to
// Start.
func (s *Service) CreatePool(ctx context.Context, pool Pool) error {
	if pool.Cap <= 0 || pool.Start < 0 || pool.Start > pool.Cap {
		return userErrorf("A pool needs a positive cap and a start between 0 and the cap.")
	}
	if len(pool.RequiredRoles) == 0 {
		return userErrorf("A pool needs at least one required role.")
	}
	return s.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO pools (pool, cap, current, reward, level, start) VALUES (?, ?, ?, ?, ?, ?) "+
				"ON CONFLICT (pool) DO UPDATE SET cap = excluded.cap, current = excluded.current, "+
				"reward = excluded.reward, level = excluded.level, start = excluded.start",
			pool.Name, pool.Cap, pool.Start, pool.Reward, pool.Level, pool.Start,
		); err != nil {
			return fmt.Errorf("upsert pool: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM pool_roles WHERE pool = ?", pool.Name); err != nil {
			return fmt.Errorf("clear pool roles: %w", err)
		}
		for _, role := range pool.RequiredRoles {
			if _, err := tx.Exec(ctx, "INSERT INTO pool_roles (pool, role) VALUES (?, ?)", pool.Name, role); err != nil {
				return fmt.Errorf("insert pool role: %w", err)
			}
		}
		return nil
	})
}

func loadPool(ctx context.Context, q store.Querier, name string) (Pool, error) {
	pool := Pool{Name: name}
	err := q.QueryRow(ctx,
		"SELECT cap, current, reward, level, start FROM pools WHERE pool = ?", name,
	).Scan(&pool.Cap, &pool.Current, &pool.Reward, &pool.Level, &pool.Start)
	if errors.Is(err, sql.ErrNoRows) {
		return Pool{}, userErrorf("%s pool not found. Please choose one from the autocomplete.", name)
	}
	if err != nil {
		return Pool{}, fmt.Errorf("select pool: %w", err)
	}

	rows, err := q.Query(ctx, "SELECT role FROM pool_roles WHERE pool = ? ORDER BY role", name)
	if err != nil {
		return Pool{}, fmt.Errorf("select pool roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role int64
		if err := rows.Scan(&role); err != nil {
			return Pool{}, fmt.Errorf("scan pool role: %w", err)
		}
		pool.RequiredRoles = append(pool.RequiredRoles, role)
	}
	if err := rows.Err(); err != nil {
		return Pool{}, fmt.Errorf("iterate pool roles: %w", err)
	}
	return pool, nil
}

func checkPoolRoles(pool Pool, roles []int64) error {
	if hasAnyRole(pool.RequiredRoles, roles) {
		return nil
	}
	return userErrorf("%s", MissingRolesMessage(pool.RequiredRoles))
}

func hasAnyRole(required, held []int64) bool {
	for _, r := range held {
		if slices.Contains(required, r) {
			return true
		}
	}
	return false
}

// MissingRolesMessage lists the roles a member needs, joined the way people
// write lists: "'a'", "'a' or 'b'", "'a', 'b' or 'c'".
func MissingRolesMessage(roles []int64) string {
	missing := make([]string, 0, len(roles))
	for _, r := range roles {
		missing = append(missing, fmt.Sprintf("'%d'", r))
	}

	var list string
	switch len(missing) {
	case 0:
		list = "''"
	case 1:
		list = missing[0]
	case 2:
		list = strings.Join(missing, " or ")
	default:
		list = strings.Join(missing[:len(missing)-1], ", ") + " or " + missing[len(missing)-1]
	}
	return fmt.Sprintf("You are missing at least one of the required roles: %s - you must be at least level 1 to use this command/button.", list)
}

package gangs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/store"
	"github.com/oklahomer/go-kasumi/logger"
)

// Side is the side of a raid a participant fights on.
type Side int16

const (
	SideAttacker Side = iota
	SideDefender
)

func (s Side) String() string {
	if s == SideDefender {
		return "defender"
	}
	return "attacker"
}

// Territory is a piece of the map gangs fight over. Gang is empty for
// unclaimed territories; Raider and RaidEnd are set while a raid is running.
type Territory struct {
	ID      int64
	Name    string
	Gang    string
	Control int
	Benefit Benefit
	RaidEnd time.Time
	Raider  string
	Attack  int
	Defense int
}

// Raided reports whether a raid is running.
func (t Territory) Raided() bool {
	return t.Raider != ""
}

const territoryColumns = "id, name, gang, control, benefit, raid_end, raider, attack, defense"

func scanTerritory(row interface{ Scan(...any) error }) (Territory, error) {
	var (
		t       Territory
		owner   sql.NullString
		raider  sql.NullString
		raidEnd sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &owner, &t.Control, &t.Benefit, &raidEnd, &raider, &t.Attack, &t.Defense); err != nil {
		return Territory{}, err
	}
	t.Gang, t.Raider = owner.String, raider.String
	if raidEnd.Valid {
		t.RaidEnd = raidEnd.Time
	}
	return t, nil
}

func territoryWhere(ctx context.Context, q store.Querier, where string, args ...any) (Territory, bool, error) {
	t, err := scanTerritory(q.QueryRow(ctx, "SELECT "+territoryColumns+" FROM territories WHERE "+where+" ORDER BY id LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Territory{}, false, nil
	}
	if err != nil {
		return Territory{}, false, fmt.Errorf("select territory: %w", err)
	}
	return t, true, nil
}

func territories(ctx context.Context, q store.Querier, where string, args ...any) ([]Territory, error) {
	rows, err := q.Query(ctx, "SELECT "+territoryColumns+" FROM territories "+where+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("select territories: %w", err)
	}
	defer rows.Close()

	var out []Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate territories: %w", err)
	}
	return out, nil
}

// CreateTerritory adds an unclaimed territory.
func (s *Service) CreateTerritory(ctx context.Context, name string, benefit Benefit, control int) (Territory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Territory{}, userErrorf("A territory needs a name.")
	}
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, found, err := territoryWhere(ctx, tx, "name = ?", name); err != nil {
			return err
		} else if found {
			return userErrorf("A territory named %s already exists!", name)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO territories (name, benefit, control) VALUES (?, ?, ?)", name, benefit, control); err != nil {
			return fmt.Errorf("insert territory: %w", err)
		}
		return nil
	})
	if err != nil {
		return Territory{}, err
	}
	return s.Territory(ctx, name)
}

// Territory returns a territory by name.
func (s *Service) Territory(ctx context.Context, name string) (Territory, error) {
	t, found, err := territoryWhere(ctx, s.db, "name = ?", name)
	if err != nil {
		return Territory{}, err
	}
	if !found {
		return Territory{}, errNotTerritory
	}
	return t, nil
}

// ListTerritories returns every territory.
func (s *Service) ListTerritories(ctx context.Context) ([]Territory, error) {
	return territories(ctx, s.db, "")
}

// StartRaid lets the leadership of a gang spend RaidStartCost control to
// raid a territory it does not own. A territory has at most one raider and a
// gang raids at most one territory at a time.
func (s *Service) StartRaid(ctx context.Context, userID int64, name string) (Territory, error) {
	var out Territory
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, err := leadership(ctx, tx, userID, userErrorf("You are not in the leadership of a gang, you cannot start a raid."))
		if err != nil {
			return err
		}
		t, found, err := territoryWhere(ctx, tx, "name = ?", name)
		if err != nil {
			return err
		}
		if !found {
			return errNotTerritory
		}
		if t.Gang == m.Gang {
			return userErrorf("Your gang already controls that territory!")
		}
		if t.Raided() {
			return userErrorf("That territory is already being raided!")
		}
		if _, found, err := territoryWhere(ctx, tx, "raider = ?", m.Gang); err != nil {
			return err
		} else if found {
			return userErrorf("Your gang is already raiding a territory!")
		}

		if _, ok, err := addControl(ctx, tx, m.Gang, -RaidStartCost); err != nil {
			return err
		} else if !ok {
			g, _, err := gang(ctx, tx, m.Gang)
			if err != nil {
				return err
			}
			return userErrorf("Your gang doesn't have enough control to start a raid. (Have: %d, Need: %d)", g.Control, RaidStartCost)
		}

		end := s.now().Add(RaidLength).UTC()
		if _, err := tx.Exec(ctx,
			"UPDATE territories SET raider = ?, raid_end = ?, attack = 0, defense = 0 WHERE id = ?", m.Gang, end, t.ID,
		); err != nil {
			return fmt.Errorf("start raid: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM raid_participants WHERE territory = ?", t.ID); err != nil {
			return fmt.Errorf("clear raid participants: %w", err)
		}
		t.Raider, t.RaidEnd, t.Attack, t.Defense = m.Gang, end, 0, 0
		out = t
		return nil
	})
	if err != nil {
		return Territory{}, err
	}

	metrics.ControlSpent.WithLabelValues("raid").Add(RaidStartCost)
	s.announce(ctx, fmt.Sprintf("The %s has started a raid on %s%s! The raid ends %s.",
		RoleName(out.Raider), out.Name, defenderSuffix(out.Gang), timestamp(out.RaidEnd, "R")))
	return out, nil
}

func defenderSuffix(owner string) string {
	if owner == "" {
		return ""
	}
	return ", held by the " + RoleName(owner)
}

// EnlistRaid enlists the user in a running raid, as an attacker when their
// gang is the raider and as a defender when their gang owns the territory.
func (s *Service) EnlistRaid(ctx context.Context, userID int64, name string) (Side, error) {
	var side Side
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, found, err := member(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return errNotInGang
		}
		t, found, err := territoryWhere(ctx, tx, "name = ?", name)
		if err != nil {
			return err
		}
		if !found {
			return errNotTerritory
		}
		if !t.Raided() {
			return userErrorf("That territory is not being raided!")
		}
		switch m.Gang {
		case t.Raider:
			side = SideAttacker
		case t.Gang:
			side = SideDefender
		default:
			return userErrorf("Your gang is not involved in that raid!")
		}
		if _, enlisted, err := participantSide(ctx, tx, t.ID, userID); err != nil {
			return err
		} else if enlisted {
			return userErrorf("You are already participating in this raid!")
		}
		if _, err := tx.Exec(ctx, "INSERT INTO raid_participants (territory, user_id, side) VALUES (?, ?, ?)",
			t.ID, userID, side); err != nil {
			return fmt.Errorf("insert raid participant: %w", err)
		}
		return nil
	})
	return side, err
}

func participantSide(ctx context.Context, q store.Querier, territoryID, userID int64) (Side, bool, error) {
	var side Side
	err := q.QueryRow(ctx, "SELECT side FROM raid_participants WHERE territory = ? AND user_id = ?", territoryID, userID).Scan(&side)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select raid participant: %w", err)
	}
	return side, true, nil
}

// RaidResult is the outcome of a finished raid.
type RaidResult struct {
	Territory string
	Raider    string
	Defender  string
	Attack    int
	Defense   int
	// RaiderWon is true when the attack beat the defense. Ties go to the
	// defenders.
	RaiderWon bool
}

// Message is the announcement for the result.
func (r RaidResult) Message() string {
	defender := "its defenders"
	if r.Defender != "" {
		defender = "the " + RoleName(r.Defender)
	}
	raider := "The raiders"
	if r.Raider != "" {
		raider = "The " + RoleName(r.Raider)
	}
	if r.RaiderWon {
		return fmt.Sprintf("%s has successfully raided %s and taken it over from %s!", raider, r.Territory, defender)
	}
	if r.Defender == "" {
		return fmt.Sprintf("%s failed to take over %s.", raider, r.Territory)
	}
	return fmt.Sprintf("The %s has successfully defended %s from %s!", RoleName(r.Defender), r.Territory, strings.ToLower(raider[:1])+raider[1:])
}

// EndRaid resolves the raid on a territory immediately.
func (s *Service) EndRaid(ctx context.Context, name string) (RaidResult, error) {
	var out RaidResult
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		t, found, err := territoryWhere(ctx, tx, "name = ?", name)
		if err != nil {
			return err
		}
		if !found {
			return errNotTerritory
		}
		if !t.Raided() && t.RaidEnd.IsZero() {
			return userErrorf("That territory is not being raided!")
		}
		out, err = resolveRaid(ctx, tx, t)
		return err
	})
	if err != nil {
		return RaidResult{}, err
	}
	s.finishRaid(ctx, out)
	return out, nil
}

// ResolveExpiredRaids resolves every raid whose end time has passed.
func (s *Service) ResolveExpiredRaids(ctx context.Context) ([]RaidResult, error) {
	now := s.now()
	running, err := territories(ctx, s.db, "WHERE raid_end IS NOT NULL")
	if err != nil {
		return nil, err
	}

	var results []RaidResult
	for _, t := range running {
		if t.RaidEnd.After(now) {
			continue
		}
		var res RaidResult
		err := s.db.WithTx(ctx, func(tx *store.Tx) error {
			current, found, err := territoryWhere(ctx, tx, "id = ? AND raid_end IS NOT NULL", t.ID)
			if err != nil || !found {
				return err
			}
			res, err = resolveRaid(ctx, tx, current)
			return err
		})
		if err != nil {
			return results, fmt.Errorf("resolve raid on %s: %w", t.Name, err)
		}
		if res.Territory == "" {
			continue
		}
		s.finishRaid(ctx, res)
		results = append(results, res)
	}
	return results, nil
}

func resolveRaid(ctx context.Context, tx *store.Tx, t Territory) (RaidResult, error) {
	res := RaidResult{
		Territory: t.Name,
		Raider:    t.Raider,
		Defender:  t.Gang,
		Attack:    t.Attack,
		Defense:   t.Defense,
		RaiderWon: t.Raider != "" && t.Attack > t.Defense,
	}
	owner := any(nil)
	if res.RaiderWon {
		owner = t.Raider
	} else if t.Gang != "" {
		owner = t.Gang
	}
	if _, err := tx.Exec(ctx,
		"UPDATE territories SET gang = ?, raider = NULL, raid_end = NULL, attack = 0, defense = 0 WHERE id = ?", owner, t.ID,
	); err != nil {
		return RaidResult{}, fmt.Errorf("finish raid: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM raid_participants WHERE territory = ?", t.ID); err != nil {
		return RaidResult{}, fmt.Errorf("clear raid participants: %w", err)
	}
	return res, nil
}

func (s *Service) finishRaid(ctx context.Context, res RaidResult) {
	winner := "defender"
	if res.RaiderWon {
		winner = "raider"
	}
	metrics.RaidsResolved.WithLabelValues(winner).Inc()
	logger.Infof("Raid on %s resolved: attack %d, defense %d, %s won", res.Territory, res.Attack, res.Defense, winner)
	s.announce(ctx, res.Message())
}

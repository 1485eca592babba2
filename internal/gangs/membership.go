package gangs

import (
	"context"
	"fmt"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
)

// CreateRequest describes a new gang.
type CreateRequest struct {
	UserID      int64
	Color       Color
	JoinBase    int
	JoinSlope   int
	UpkeepBase  int
	UpkeepSlope int
}

// Cost is the rep charged to the founder.
func (r CreateRequest) Cost() int {
	return r.JoinBase + r.UpkeepBase + BaseGangCost
}

// Created is the outcome of Create.
type Created struct {
	Gang      string
	Remaining int
	Role      int64
	Channel   int64
}

// Create founds a gang led by the requesting user. The founder pays the join
// base, the upkeep base and BaseGangCost, receives the gang role and gets a
// private gang channel.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	for _, v := range []int{req.JoinBase, req.JoinSlope, req.UpkeepBase, req.UpkeepSlope} {
		if v < 0 || v > MaxCost {
			return Created{}, errCostOutOfRange
		}
	}
	name := req.Color.Name

	var out Created
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, found, err := gang(ctx, tx, name); err != nil {
			return err
		} else if found {
			return userErrorf("A gang with that name/color already exists!")
		}
		if _, found, err := member(ctx, tx, req.UserID); err != nil {
			return err
		} else if found {
			return errAlreadyInGang
		}

		points, found, err := reputation.Balance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !found {
			return errNeverGained
		}
		cost := req.Cost()
		if points < cost {
			return userErrorf("You don't have enough rep to create a gang! You need at least %d rep to create a gang. "+
				"(%d combined with the baseline join and recurring costs are required to form a gang)", cost, BaseGangCost)
		}
		remaining, err := reputation.Spend(ctx, tx, req.UserID, cost)
		if err != nil {
			return err
		}

		role, err := s.guild.CreateRole(ctx, RoleName(name), req.Color.Value,
			fmt.Sprintf("New gang created by %d", req.UserID))
		if err != nil {
			return fmt.Errorf("create gang role: %w", err)
		}
		channel, err := s.guild.CreateGangChannel(ctx, ChannelName(name), req.UserID, role)
		if err != nil {
			return fmt.Errorf("create gang channel: %w", err)
		}
		if err := s.guild.AddRole(ctx, req.UserID, role, "New gang created"); err != nil {
			return fmt.Errorf("add gang role: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO gangs (name, color, leader, role, channel, control, join_base, join_slope, upkeep_base, upkeep_slope, all_paid) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)",
			name, req.Color.Value, req.UserID, role, channel, StartingControl,
			req.JoinBase, req.JoinSlope, req.UpkeepBase, req.UpkeepSlope,
		); err != nil {
			return fmt.Errorf("insert gang: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO gang_members (user_id, gang, paid, leader) VALUES (?, ?, TRUE, TRUE)", req.UserID, name,
		); err != nil {
			return fmt.Errorf("insert leader: %w", err)
		}

		out = Created{Gang: name, Remaining: remaining, Role: role, Channel: channel}
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	metrics.RepSpent.WithLabelValues("gang_create").Add(float64(req.Cost()))
	s.announce(ctx, fmt.Sprintf("%s created a new gang, the %s!", Mention(req.UserID), RoleName(name)))
	return out, nil
}

// Joined is the outcome of Join.
type Joined struct {
	Gang      string
	Remaining int
	Needed    int
}

// Join adds the user to a gang for its current join cost. The cost is
// converted into control for the gang.
func (s *Service) Join(ctx context.Context, userID int64, name string) (Joined, error) {
	var (
		out     Joined
		channel int64
	)
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		g, found, err := gang(ctx, tx, name)
		if err != nil {
			return err
		}
		if !found {
			return errGangNotExist
		}
		if _, found, err := member(ctx, tx, userID); err != nil {
			return err
		} else if found {
			return errAlreadyInGang
		}

		points, found, err := reputation.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return errNeverGained
		}
		needed := g.JoinCost()
		if needed > points {
			return userErrorf("You don't have enough rep to join that gang! You need at least %d rep to join that gang, and you have %d.",
				needed, points)
		}
		remaining, err := reputation.Spend(ctx, tx, userID, needed)
		if err != nil {
			return err
		}

		if err := s.guild.AddRole(ctx, userID, g.Role, "Joined gang "+g.Name); err != nil {
			return fmt.Errorf("add gang role: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO gang_members (user_id, gang) VALUES (?, ?)", userID, g.Name); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if _, _, err := addControl(ctx, tx, g.Name, RepToControl(needed)); err != nil {
			return err
		}

		out = Joined{Gang: g.Name, Remaining: remaining, Needed: needed}
		channel = g.Channel
		return nil
	})
	if err != nil {
		return Joined{}, err
	}

	metrics.RepSpent.WithLabelValues("gang_join").Add(float64(out.Needed))
	s.notify(ctx, channel, fmt.Sprintf("Welcome %s to the %s!", Mention(userID), RoleName(out.Gang)))
	return out, nil
}

// Leave removes a member from their gang. Leaders cannot leave.
func (s *Service) Leave(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, found, err := member(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return errNotInGang
		}
		if m.Leader {
			return userErrorf("You are the leader of your gang, you cannot leave it.")
		}
		g, _, err := gang(ctx, tx, m.Gang)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM gang_members WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM raid_participants WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete raid participant: %w", err)
		}
		if err := s.guild.RemoveRole(ctx, userID, g.Role, "Left gang "+g.Name); err != nil {
			return fmt.Errorf("remove gang role: %w", err)
		}
		name = g.Name
		return nil
	})
	return name, err
}

// SetLeadership promotes (or demotes) a member of the leader's gang into the
// gang leadership.
func (s *Service) SetLeadership(ctx context.Context, leaderID, memberID int64, promote bool) error {
	return s.db.WithTx(ctx, func(tx *store.Tx) error {
		leader, found, err := member(ctx, tx, leaderID)
		if err != nil {
			return err
		}
		if !found || !leader.Leader {
			return errNotLeader
		}
		target, found, err := member(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if !found || target.Gang != leader.Gang {
			return userErrorf("That user is not in your gang!")
		}
		if target.Leader {
			return userErrorf("You cannot change the leadership of the gang leader.")
		}
		if promote && target.Leadership {
			return userErrorf("That user is already in your gang's leadership.")
		}
		if !promote && !target.Leadership {
			return userErrorf("That user is not in your gang's leadership.")
		}
		if _, err := tx.Exec(ctx, "UPDATE gang_members SET leadership = ? WHERE user_id = ?", promote, memberID); err != nil {
			return fmt.Errorf("update leadership: %w", err)
		}
		return nil
	})
}

// Info returns a gang by name.
func (s *Service) Info(ctx context.Context, name string) (Gang, error) {
	g, found, err := gang(ctx, s.db, name)
	if err != nil {
		return Gang{}, err
	}
	if !found {
		return Gang{}, errGangNotExist
	}
	return g, nil
}

// GangOf returns the gang of a user.
func (s *Service) GangOf(ctx context.Context, userID int64) (Gang, Member, error) {
	m, found, err := member(ctx, s.db, userID)
	if err != nil {
		return Gang{}, Member{}, err
	}
	if !found {
		return Gang{}, Member{}, errNotInGang
	}
	g, err := s.Info(ctx, m.Gang)
	return g, m, err
}

// List returns all gangs.
func (s *Service) List(ctx context.Context) ([]Gang, error) {
	return gangs(ctx, s.db, "")
}

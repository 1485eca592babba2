package gangs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
	"github.com/oklahomer/go-kasumi/logger"
)

// DuesButtonPrefix prefixes the custom id of the dues pay button. The gang
// name follows, e.g. "dues_Red".
const DuesButtonPrefix = "dues_"

// GangDues is the per gang outcome of a dues run.
type GangDues struct {
	Gang          string
	Role          int64
	Channel       int64
	Upkeep        int
	Paid          []int64
	Unpaid        []int64
	LeaderRemoved bool
	Disbanded     bool
}

// Complete reports whether every member paid.
func (g GangDues) Complete() bool {
	return len(g.Unpaid) == 0
}

// DuesReport is the outcome of StartDuesCycle or EndDuesCycle.
type DuesReport struct {
	Gangs    []GangDues
	Deadline time.Time
}

// Unpaid counts members who did not pay across all gangs.
func (r DuesReport) Unpaid() int {
	n := 0
	for _, g := range r.Gangs {
		n += len(g.Unpaid)
	}
	return n
}

// Disbanded counts gangs that lost every member.
func (r DuesReport) Disbanded() int {
	n := 0
	for _, g := range r.Gangs {
		if g.Disbanded {
			n++
		}
	}
	return n
}

// StartDuesCycle charges every member the upkeep of their gang. Members who
// cannot afford it are marked unpaid and have until the next dues end run to
// pay with the button posted in their gang channel.
func (s *Service) StartDuesCycle(ctx context.Context) (DuesReport, error) {
	now := s.now().In(s.location)
	report := DuesReport{Deadline: s.duesEnd.Next(now)}

	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		report.Gangs = nil
		all, err := gangs(ctx, tx, "")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE gangs SET all_paid = TRUE"); err != nil {
			return fmt.Errorf("reset all_paid: %w", err)
		}

		for _, g := range all {
			members, err := memberIDs(ctx, tx, g.Name)
			if err != nil {
				return err
			}
			dues := GangDues{Gang: g.Name, Role: g.Role, Channel: g.Channel, Upkeep: g.Upkeep()}
			for _, userID := range members {
				charged, err := chargeUpkeep(ctx, tx, userID, g.Name, dues.Upkeep)
				if err != nil {
					return err
				}
				if charged {
					dues.Paid = append(dues.Paid, userID)
				} else {
					dues.Unpaid = append(dues.Unpaid, userID)
				}
			}
			if !dues.Complete() {
				if _, err := tx.Exec(ctx, "UPDATE gangs SET all_paid = FALSE WHERE name = ?", g.Name); err != nil {
					return fmt.Errorf("update all_paid: %w", err)
				}
			}
			report.Gangs = append(report.Gangs, dues)
		}
		return nil
	})
	if err != nil {
		return DuesReport{}, err
	}

	for _, g := range report.Gangs {
		metrics.DuesOutcomes.WithLabelValues("paid").Add(float64(len(g.Paid)))
		metrics.DuesOutcomes.WithLabelValues("unpaid").Add(float64(len(g.Unpaid)))
		metrics.RepSpent.WithLabelValues("dues").Add(float64(g.Upkeep * len(g.Paid)))

		if g.Complete() {
			s.notify(ctx, g.Channel, fmt.Sprintf("%s All members of this gang have paid their dues automatically. "+
				"Thank you for participating in the gang war!", RoleMention(g.Role)))
			continue
		}
		content := fmt.Sprintf("%s At least one member of this gang did not have enough rep to automatically pay their dues. "+
			"Please check if this is you, and if it is, pay with the button below after gaining enough rep to pay, "+
			"you have until %s, %s", RoleMention(g.Role), timestamp(report.Deadline, "F"), timestamp(report.Deadline, "R"))
		if err := s.guild.SendDuesNotice(ctx, g.Channel, content, g.Gang); err != nil {
			logger.Errorf("Failed to send dues notice to %s: %+v", g.Gang, err)
		}
	}
	logger.Infof("Dues cycle started for %d gang(s), %d member(s) unpaid", len(report.Gangs), report.Unpaid())
	return report, nil
}

// chargeUpkeep charges a member and records the result on the membership.
func chargeUpkeep(ctx context.Context, tx *store.Tx, userID int64, gang string, upkeep int) (bool, error) {
	_, err := reputation.Spend(ctx, tx, userID, upkeep)
	paid := err == nil
	if err != nil && !errors.Is(err, reputation.ErrInsufficientPoints) && !errors.Is(err, reputation.ErrNoUser) {
		return false, err
	}
	if _, err := tx.Exec(ctx, "UPDATE gang_members SET paid = ? WHERE user_id = ?", paid, userID); err != nil {
		return false, fmt.Errorf("update paid: %w", err)
	}
	if paid {
		if _, _, err := addControl(ctx, tx, gang, RepToControl(upkeep)); err != nil {
			return false, err
		}
	}
	return paid, nil
}

// PaidDues is the outcome of PayDues.
type PaidDues struct {
	Gang      string
	Paid      int
	Remaining int
}

// PayDues lets an unpaid member pay the current upkeep of their gang.
func (s *Service) PayDues(ctx context.Context, userID int64, name string) (PaidDues, error) {
	var out PaidDues
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, found, err := member(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found || m.Gang != name {
			return userErrorf("You are not a member of the %s.", RoleName(name))
		}
		if m.Paid {
			return userErrorf("You have already paid your dues for this month.")
		}
		g, _, err := gang(ctx, tx, name)
		if err != nil {
			return err
		}
		upkeep := g.Upkeep()
		points, _, err := reputation.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if points < upkeep {
			return userErrorf("You do not have enough rep to pay your dues, you have %d rep and need %d rep to pay your dues.",
				points, upkeep)
		}
		paid, err := chargeUpkeep(ctx, tx, userID, name, upkeep)
		if err != nil {
			return err
		}
		if !paid {
			return fmt.Errorf("charge upkeep of %d: %w", userID, reputation.ErrInsufficientPoints)
		}
		remaining, _, err := reputation.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = PaidDues{Gang: name, Paid: upkeep, Remaining: remaining}
		return nil
	})
	if err != nil {
		return PaidDues{}, err
	}
	metrics.DuesOutcomes.WithLabelValues("paid_late").Inc()
	metrics.RepSpent.WithLabelValues("dues").Add(float64(out.Paid))
	return out, nil
}

// EndDuesCycle removes members who still have not paid. Gangs left without
// members are disbanded.
func (s *Service) EndDuesCycle(ctx context.Context) (DuesReport, error) {
	var report DuesReport
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		report.Gangs = nil
		unsettled, err := gangs(ctx, tx, "WHERE all_paid = FALSE")
		if err != nil {
			return err
		}
		for _, g := range unsettled {
			dues := GangDues{Gang: g.Name, Role: g.Role, Channel: g.Channel}
			rows, err := tx.Query(ctx, "SELECT user_id, leader FROM gang_members WHERE gang = ? AND paid = FALSE", g.Name)
			if err != nil {
				return fmt.Errorf("select unpaid: %w", err)
			}
			for rows.Next() {
				var (
					userID int64
					leader bool
				)
				if err := rows.Scan(&userID, &leader); err != nil {
					rows.Close()
					return fmt.Errorf("scan unpaid: %w", err)
				}
				dues.Unpaid = append(dues.Unpaid, userID)
				dues.LeaderRemoved = dues.LeaderRemoved || leader
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return fmt.Errorf("iterate unpaid: %w", err)
			}
			rows.Close()

			if len(dues.Unpaid) > 0 {
				if _, err := tx.Exec(ctx,
					"DELETE FROM raid_participants WHERE user_id IN (SELECT user_id FROM gang_members WHERE gang = ? AND paid = FALSE)", g.Name,
				); err != nil {
					return fmt.Errorf("delete unpaid raid participants: %w", err)
				}
				if _, err := tx.Exec(ctx, "DELETE FROM gang_members WHERE gang = ? AND paid = FALSE", g.Name); err != nil {
					return fmt.Errorf("delete unpaid: %w", err)
				}
				dues.Disbanded = len(dues.Unpaid) == g.Members
			}
			if _, err := tx.Exec(ctx, "UPDATE gangs SET all_paid = TRUE WHERE name = ?", g.Name); err != nil {
				return fmt.Errorf("update all_paid: %w", err)
			}
			report.Gangs = append(report.Gangs, dues)
		}

		if _, err := tx.Exec(ctx,
			"DELETE FROM gangs WHERE NOT EXISTS (SELECT 1 FROM gang_members WHERE gang_members.gang = gangs.name)",
		); err != nil {
			return fmt.Errorf("disband empty gangs: %w", err)
		}
		return nil
	})
	if err != nil {
		return DuesReport{}, err
	}

	for _, g := range report.Gangs {
		if g.Complete() {
			s.notify(ctx, g.Channel, fmt.Sprintf("%s All members of this gang have paid their dues. "+
				"Thank you for participating in the gang war!", RoleMention(g.Role)))
			continue
		}

		metrics.DuesOutcomes.WithLabelValues("removed").Add(float64(len(g.Unpaid)))
		for _, userID := range g.Unpaid {
			if err := s.guild.RemoveRole(ctx, userID, g.Role, "Gang dues not paid."); err != nil {
				logger.Errorf("Failed to remove role of %s from %d: %+v", g.Gang, userID, err)
			}
		}
		if g.Disbanded {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s %d member(s) of this gang did not pay their dues. ", RoleMention(g.Role), len(g.Unpaid))
		b.WriteString("Those who haven't have been temporarily removed from the gang, but may rejoin. ")
		if g.LeaderRemoved {
			b.WriteString("NOTE: Your leader did not pay their dues and has been removed, an election will be held shortly to replace them. ")
		}
		b.WriteString("Thank you for participating in the gang war!")
		s.notify(ctx, g.Channel, b.String())
	}

	if lost := report.Unpaid(); lost > 0 {
		s.announce(ctx, fmt.Sprintf("%d member(s) of the gangs have been removed from their gangs for not paying their dues. "+
			"If you were one of the member(s) removed, remember you can always rejoin a gang if you have enough rep! "+
			"Thank you for participating in the gang war! %d gang(s) ran out of members and got disbanded temporarily.",
			lost, report.Disbanded()))
	}
	logger.Infof("Dues cycle ended, %d member(s) removed, %d gang(s) disbanded", report.Unpaid(), report.Disbanded())
	return report, nil
}

func memberIDs(ctx context.Context, q store.Querier, gang string) ([]int64, error) {
	rows, err := q.Query(ctx, "SELECT user_id FROM gang_members WHERE gang = ? ORDER BY user_id", gang)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return ids, nil
}

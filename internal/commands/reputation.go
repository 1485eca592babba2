package commands

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charbot/charbot/internal/gangs"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/oklahomer/go-sarah/v4"
)

const repUsage = "Usage: .rep, .rep add|remove|grant @member <amount>, .rep check @member"

var (
	repPattern  = regexp.MustCompile(`^\.rep\b`)
	poolPattern = regexp.MustCompile(`^\.pool\b`)
)

func (h *Handler) repProps() *sarah.CommandPropsBuilder {
	return newProps("rep", repPattern).
		Func(h.command("rep", repPattern, h.rep)).
		Instruction("Input .rep to see your rep. Moderators: .rep add|remove|grant @member <amount>, .rep check @member. " +
			".rep grant also works for members who never gained rep.")
}

func (h *Handler) rep(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "":
		points, err := h.reps.Points(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("You have %d rep.", points), nil

	case "grant":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		userID, name, err := target(req, 1)
		if err != nil {
			return nil, err
		}
		amount, err := number(req, 2, "amount")
		if err != nil {
			return nil, err
		}
		points, err := h.reps.Grant(ctx, userID, amount)
		if err != nil {
			return nil, err
		}
		h.programLog(ctx, fmt.Sprintf("%s now has %d reputation by %s (%d granted).",
			gangs.Mention(userID), points, gangs.Mention(req.author.ID), amount))
		return fmt.Sprintf("User `%s` now has %d reputation.", name, points), nil

	case "add", "remove":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		userID, name, err := target(req, 1)
		if err != nil {
			return nil, err
		}
		amount, err := number(req, 2, "amount")
		if err != nil {
			return nil, err
		}
		if req.arg(0) == "add" {
			points, err := h.reps.Add(ctx, userID, name, amount)
			if err != nil {
				return nil, err
			}
			h.programLog(ctx, fmt.Sprintf("%s now has %d reputation by %s (%d added).",
				gangs.Mention(userID), points, gangs.Mention(req.author.ID), amount))
			return fmt.Sprintf("User `%s` now has %d reputation.", name, points), nil
		}
		points, overflow, err := h.reps.Remove(ctx, userID, name, amount)
		if err != nil {
			return nil, err
		}
		h.programLog(ctx, fmt.Sprintf("%s now has %d reputation by %s (%d removed).",
			gangs.Mention(userID), points, gangs.Mention(req.author.ID), amount-overflow))
		return fmt.Sprintf("User `%s` now has %d reputation. %d reputation overflow.", name, points, overflow), nil

	case "check":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		userID, name, err := target(req, 1)
		if err != nil {
			return nil, err
		}
		points, err := h.reps.Check(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("User `%s` has %d reputation.", name, points), nil

	default:
		return nil, usage(repUsage)
	}
}

func (h *Handler) poolProps() *sarah.CommandPropsBuilder {
	return newProps("pool", poolPattern).
		Func(h.command("pool", poolPattern, h.pool)).
		Instruction("Input .pool list, .pool query <pool> or .pool add <pool> <amount> to contribute rep to a reward pool.")
}

func (h *Handler) pool(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "list":
		pools, err := h.reps.ListPools(ctx, req.author.Roles)
		if err != nil {
			return nil, err
		}
		if len(pools) == 0 {
			return "There are no pools you can contribute to.", nil
		}
		lines := make([]string, 0, len(pools))
		for _, p := range pools {
			lines = append(lines, poolLine(p))
		}
		return strings.Join(lines, "\n"), nil

	case "query":
		p, err := h.reps.QueryPool(ctx, req.author.Roles, req.arg(1))
		if err != nil {
			return nil, err
		}
		return poolLine(p) + "\nReward: " + p.Reward, nil

	case "add":
		name := req.arg(1)
		amount, err := number(req, 2, "amount")
		if err != nil {
			return nil, err
		}
		c, err := h.reps.AddToPool(ctx, req.author.ID, req.author.Roles, name, amount)
		if err != nil {
			return nil, err
		}
		h.programLog(ctx, fmt.Sprintf("%s added %d rep to %s (%d/%d).",
			gangs.Mention(req.author.ID), c.Added, name, c.Pool.Current, c.Pool.Cap))
		msg := fmt.Sprintf("You have added %d rep to %s you now have %d rep remaining.", c.Added, name, c.Remaining)
		if c.Filled {
			h.programLog(ctx, fmt.Sprintf("%s has been filled.", name))
			msg += fmt.Sprintf("\n%s has been filled! Reward: %s", name, c.Pool.Reward)
		}
		return msg, nil

	case "create":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		return h.createPool(ctx, req)

	default:
		return nil, usage("Usage: .pool list, .pool query <pool>, .pool add <pool> <amount>")
	}
}

// createPool handles ".pool create <pool> <cap> <start> <level> <role,role> <reward...>".
func (h *Handler) createPool(ctx context.Context, req request) (interface{}, error) {
	const createUsage = "Usage: .pool create <pool> <cap> <start> <level> <role,role> <reward>"
	if len(req.args) < 7 {
		return nil, usage(createUsage)
	}
	p := reputation.Pool{Name: req.arg(1), Reward: req.rest(6)}
	var err error
	if p.Cap, err = number(req, 2, "cap"); err != nil {
		return nil, err
	}
	if p.Start, err = number(req, 3, "start"); err != nil {
		return nil, err
	}
	if p.Level, err = number(req, 4, "level"); err != nil {
		return nil, err
	}
	for _, raw := range strings.Split(req.arg(5), ",") {
		role, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, usage(createUsage)
		}
		p.RequiredRoles = append(p.RequiredRoles, role)
	}

	if err := h.reps.CreatePool(ctx, p); err != nil {
		return nil, err
	}
	p.Current = p.Start
	return "Pool saved. " + poolLine(p), nil
}

func poolLine(p reputation.Pool) string {
	return fmt.Sprintf("**%s** (level %d): %d/%d rep", p.Name, p.Level, p.Current, p.Cap)
}

package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/oklahomer/go-sarah/v4"
)

var gangPattern = regexp.MustCompile(`^\.gang\b`)

const gangUsage = "Usage: .gang create <color> <join base> <join slope> <upkeep base> <upkeep slope>, " +
	".gang join <color>, .gang leave, .gang info [color], .gang list, .gang promote|demote @member, " +
	".gang dues, .gang items [shop|buy <item>|use <item>]"

func (h *Handler) gangProps() *sarah.CommandPropsBuilder {
	return newProps("gang", gangPattern).
		Func(h.command("gang", gangPattern, h.gang)).
		Instruction("Input .gang info to see your gang. " + gangUsage)
}

func (h *Handler) gang(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "create":
		return h.createGang(ctx, req)
	case "join":
		return h.joinGang(ctx, req)
	case "leave":
		return h.leaveGang(ctx, req)
	case "info":
		return h.gangInfo(ctx, req)
	case "list":
		return h.listGangs(ctx)
	case "promote", "demote":
		memberID, _, err := target(req, 1)
		if err != nil {
			return nil, err
		}
		promote := req.arg(0) == "promote"
		if err := h.gangs.SetLeadership(ctx, req.author.ID, memberID, promote); err != nil {
			return nil, err
		}
		if promote {
			return fmt.Sprintf("%s is now part of your gang's leadership.", gangs.Mention(memberID)), nil
		}
		return fmt.Sprintf("%s is no longer part of your gang's leadership.", gangs.Mention(memberID)), nil
	case "dues":
		g, _, err := h.gangs.GangOf(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return h.payDues(ctx, req.author.ID, g.Name)
	case "items":
		return h.gangItems(ctx, req)
	default:
		return nil, usage(gangUsage)
	}
}

func colorArg(req request, i int) (gangs.Color, error) {
	c, ok := gangs.ParseColor(req.arg(i))
	if !ok {
		names := make([]string, 0, len(gangs.Colors))
		for _, c := range gangs.Colors {
			names = append(names, c.Name)
		}
		return gangs.Color{}, usage("Choose one of the gang colors: " + strings.Join(names, ", ") + ".")
	}
	return c, nil
}

func (h *Handler) createGang(ctx context.Context, req request) (interface{}, error) {
	color, err := colorArg(req, 1)
	if err != nil {
		return nil, err
	}
	costs := make([]int, 4)
	for i, what := range []string{"join base", "join slope", "upkeep base", "upkeep slope"} {
		if costs[i], err = number(req, i+2, what); err != nil {
			return nil, err
		}
	}

	created, err := h.gangs.Create(ctx, gangs.CreateRequest{
		UserID:      req.author.ID,
		Color:       color,
		JoinBase:    costs[0],
		JoinSlope:   costs[1],
		UpkeepBase:  costs[2],
		UpkeepSlope: costs[3],
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Gang created! You now have %d rep remaining.\n"+
		"Your gang's role is %s, the channel is <#%d>.\n"+
		"NOTE: You have been given the manage messages permission for the channel, so you can pin messages and "+
		"delete other's messages if needed. You also have the ability to mention everyone in the channel. "+
		"Please restrict this to only pinging your gang's role. Do not abuse these permissions, or we may revoke "+
		"either or both of them and/or replace you with a different member as leader.",
		created.Remaining, gangs.RoleMention(created.Role), created.Channel), nil
}

func (h *Handler) joinGang(ctx context.Context, req request) (interface{}, error) {
	color, err := colorArg(req, 1)
	if err != nil {
		return nil, err
	}
	joined, err := h.gangs.Join(ctx, req.author.ID, color.Name)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("You now have %d rep remaining.\nYou have joined the %s!", joined.Remaining, gangs.RoleName(joined.Gang)), nil
}

// leaveGang asks for confirmation before leaving; the member's next message
// answers it.
func (h *Handler) leaveGang(ctx context.Context, req request) (interface{}, error) {
	g, m, err := h.gangs.GangOf(ctx, req.author.ID)
	if err != nil {
		return nil, err
	}
	if m.Leader {
		return nil, usage("You are the leader of your gang, you cannot leave it.")
	}

	next := h.command("gang_leave", nil, func(ctx context.Context, confirm request) (interface{}, error) {
		if !strings.EqualFold(strings.TrimSpace(confirm.input.Message()), "yes") {
			return fmt.Sprintf("You are still in the %s.", gangs.RoleName(g.Name)), nil
		}
		name, err := h.gangs.Leave(ctx, confirm.author.ID)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("You have left the %s.", gangs.RoleName(name)), nil
	})
	return discord.NewResponse(req.input,
		fmt.Sprintf("Are you sure you want to leave the %s? Reply `yes` to confirm.", gangs.RoleName(g.Name)),
		discord.RespWithNext(next))
}

func (h *Handler) gangInfo(ctx context.Context, req request) (interface{}, error) {
	var (
		g   gangs.Gang
		err error
	)
	if req.arg(1) == "" {
		g, _, err = h.gangs.GangOf(ctx, req.author.ID)
	} else {
		var color gangs.Color
		if color, err = colorArg(req, 1); err != nil {
			return nil, err
		}
		g, err = h.gangs.Info(ctx, color.Name)
	}
	if err != nil {
		return nil, err
	}

	paid := "No"
	if g.AllPaid {
		paid = "Yes"
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: gangs.RoleName(g.Name),
			Color: g.Color,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Leader", Value: gangs.Mention(g.Leader), Inline: true},
				{Name: "Members", Value: formatNumber(g.Members), Inline: true},
				{Name: "Control", Value: formatNumber(g.Control), Inline: true},
				{Name: "Join cost", Value: formatNumber(g.JoinCost()) + " rep", Inline: true},
				{Name: "Upkeep", Value: formatNumber(g.Upkeep()) + " rep", Inline: true},
				{Name: "All dues paid", Value: paid, Inline: true},
			},
		}},
	}, nil
}

func (h *Handler) listGangs(ctx context.Context) (interface{}, error) {
	list, err := h.gangs.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return "There are no gangs yet.", nil
	}
	lines := make([]string, 0, len(list))
	for _, g := range list {
		lines = append(lines, fmt.Sprintf("**%s**: %s members, %s control, join cost %s rep",
			gangs.RoleName(g.Name), formatNumber(g.Members), formatNumber(g.Control), formatNumber(g.JoinCost())))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *Handler) payDues(ctx context.Context, userID int64, gang string) (interface{}, error) {
	paid, err := h.gangs.PayDues(ctx, userID, gang)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("You have paid your dues for %s! You now have %d rep remaining.",
		gangs.RoleName(paid.Gang), paid.Remaining), nil
}

func (h *Handler) duesButtonProps() *sarah.CommandPropsBuilder {
	return sarah.NewCommandPropsBuilder().
		BotType(discord.DISCORD).
		Identifier("dues_button").
		MatchFunc(func(input sarah.Input) bool {
			_, ok := input.(*discord.ComponentInput)
			return ok && strings.HasPrefix(input.Message(), gangs.DuesButtonPrefix)
		}).
		Func(h.command("dues_button", nil, func(ctx context.Context, req request) (interface{}, error) {
			gang := strings.TrimPrefix(req.input.Message(), gangs.DuesButtonPrefix)
			return h.payDues(ctx, req.author.ID, gang)
		})).
		Instruction("Press the Pay button on a dues notice to pay your gang dues.")
}

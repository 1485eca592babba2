package commands

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/oklahomer/go-sarah/v4"
)

var (
	raidPattern      = regexp.MustCompile(`^\.raid\b`)
	territoryPattern = regexp.MustCompile(`^\.territory\b`)
)

const raidUsage = "Usage: .raid start <territory>, .raid join <territory>"

func (h *Handler) raidProps() *sarah.CommandPropsBuilder {
	return newProps("raid", raidPattern).
		Func(h.command("raid", raidPattern, h.raid)).
		Instruction("Input .raid start <territory> to raid a territory or .raid join <territory> to fight in a raid. " +
			"Moderators: .raid end <territory>")
}

func (h *Handler) raid(ctx context.Context, req request) (interface{}, error) {
	name := req.rest(1)
	switch req.arg(0) {
	case "start":
		t, err := h.gangs.StartRaid(ctx, req.author.ID, name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Your gang is now raiding %s! The raid ends <t:%d:F>.", t.Name, t.RaidEnd.Unix()), nil

	case "join":
		side, err := h.gangs.EnlistRaid(ctx, req.author.ID, name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("You have joined the raid on %s as an %s.", name, side), nil

	case "end":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		res, err := h.gangs.EndRaid(ctx, name)
		if err != nil {
			return nil, err
		}
		return res.Message(), nil

	default:
		return nil, usage(raidUsage)
	}
}

func (h *Handler) territoryProps() *sarah.CommandPropsBuilder {
	return newProps("territory", territoryPattern).
		Func(h.command("territory", territoryPattern, h.territory)).
		Instruction("Input .territory list to see the territories. Moderators: .territory create <benefit> <control> <name>")
}

func (h *Handler) territory(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "list":
		list, err := h.gangs.ListTerritories(ctx)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return "There are no territories yet.", nil
		}
		return territoryEmbed(list), nil

	case "create":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		benefit, ok := gangs.ParseBenefit(req.arg(1))
		if !ok {
			return nil, usage("The benefit must be one of control, defense, offense or other.")
		}
		control, err := number(req, 2, "control")
		if err != nil {
			return nil, err
		}
		t, err := h.gangs.CreateTerritory(ctx, req.rest(3), benefit, control)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Created the territory %s (%s, %d control).", t.Name, t.Benefit, t.Control), nil

	default:
		return nil, usage("Usage: .territory list, .territory create <benefit> <control> <name>")
	}
}

func territoryEmbed(list []gangs.Territory) *discordgo.MessageSend {
	fields := make([]*discordgo.MessageEmbedField, 0, len(list))
	for _, t := range list {
		owner := "Unclaimed"
		if t.Gang != "" {
			owner = gangs.RoleName(t.Gang)
		}
		value := fmt.Sprintf("%s\nBenefit: %s, %s control", owner, t.Benefit, formatNumber(t.Control))
		if t.Raided() {
			value += fmt.Sprintf("\nRaided by the %s until <t:%d:f> (attack %s, defense %s)",
				gangs.RoleName(t.Raider), t.RaidEnd.Unix(), formatNumber(t.Attack), formatNumber(t.Defense))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: t.Name, Value: value})
	}
	return &discordgo.MessageSend{Embeds: paginate("Territories", fields)}
}

package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charbot/charbot/internal/gangs"
	"github.com/oklahomer/go-sarah/v4"
)

var itemsPattern = regexp.MustCompile(`^\.items\b`)

const itemsUsage = "Usage: .items, .items shop, .items buy <item>, .items use <item>"

func (h *Handler) itemProps() *sarah.CommandPropsBuilder {
	return newProps("items", itemsPattern).
		Func(h.command("items", itemsPattern, h.items)).
		Instruction("Input .items to see your items. " + itemsUsage +
			". Moderators: .items create user|gang <benefit> <value> <name> | <description>")
}

func (h *Handler) items(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "":
		items, err := h.gangs.UserInventory(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return itemEmbeds("Your items", items, true), nil

	case "shop":
		items, err := h.gangs.UserCatalog(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return itemEmbeds("Available items", items, false), nil

	case "buy":
		name := req.rest(1)
		remaining, err := h.gangs.BuyUserItem(ctx, req.author.ID, name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("You bought `%s`! You now have %d rep remaining.", name, remaining), nil

	case "use":
		return h.useItem(ctx, req.author.ID, gangs.ScopeUser, req.rest(1))

	case "create":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		return h.createItem(ctx, req)

	default:
		return nil, usage(itemsUsage)
	}
}

// gangItems handles ".gang items ...", shifted by one argument.
func (h *Handler) gangItems(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(1) {
	case "":
		items, err := h.gangs.GangInventory(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return itemEmbeds("Your gang's items", items, true), nil

	case "shop":
		items, err := h.gangs.GangCatalog(ctx, req.author.ID)
		if err != nil {
			return nil, err
		}
		return itemEmbeds("Available gang items", items, false), nil

	case "buy":
		name := req.rest(2)
		remaining, err := h.gangs.BuyGangItem(ctx, req.author.ID, name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Your gang bought `%s`! It now has %d control remaining.", name, remaining), nil

	case "use":
		return h.useItem(ctx, req.author.ID, gangs.ScopeGang, req.rest(2))

	default:
		return nil, usage("Usage: .gang items, .gang items shop, .gang items buy <item>, .gang items use <item>")
	}
}

func (h *Handler) useItem(ctx context.Context, userID int64, scope gangs.Scope, name string) (interface{}, error) {
	use, err := h.gangs.UseItem(ctx, userID, scope, name)
	if err != nil {
		return nil, err
	}
	switch use.Item.Benefit {
	case gangs.BenefitOffense:
		return fmt.Sprintf("You used `%s`. The attack on %s is now %d.", use.Item.Name, use.Territory, use.Total), nil
	case gangs.BenefitDefense:
		return fmt.Sprintf("You used `%s`. The defense of %s is now %d.", use.Item.Name, use.Territory, use.Total), nil
	default:
		return fmt.Sprintf("You used `%s`. Your gang now has %d control.", use.Item.Name, use.Total), nil
	}
}

// createItem handles ".items create user|gang <benefit> <value> <name> | <description>".
func (h *Handler) createItem(ctx context.Context, req request) (interface{}, error) {
	const createUsage = "Usage: .items create user|gang <benefit> <value> <name> | <description>"
	scope := gangs.Scope(req.arg(1))
	if scope != gangs.ScopeUser && scope != gangs.ScopeGang {
		return nil, usage(createUsage)
	}
	benefit, ok := gangs.ParseBenefit(req.arg(2))
	if !ok {
		return nil, usage("The benefit must be one of control, defense, offense or other.")
	}
	value, err := number(req, 3, "value")
	if err != nil {
		return nil, err
	}
	name, description, _ := strings.Cut(req.rest(4), "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, usage(createUsage)
	}

	it := gangs.Item{Name: name, Description: strings.TrimSpace(description), Benefit: benefit, Value: value}
	if err := h.gangs.CreateItem(ctx, scope, it); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Saved the %s item `%s` (%s, value %d).", scope, it.Name, benefit, value), nil
}

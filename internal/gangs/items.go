package gangs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
	"github.com/patrickmn/go-cache"
)

// Scope separates personal items, bought with rep, from gang items, bought
// with control by the gang leadership.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeGang Scope = "gang"
)

// PageSize is the number of entries shown per listing page.
const PageSize = 25

// Item is a catalog entry, with Quantity set when read from an inventory.
type Item struct {
	ID          int64
	Name        string
	Description string
	Benefit     Benefit
	Value       int
	Quantity    int
}

type scopeTables struct {
	catalog   string
	inventory string
	owner     string
}

func (s Scope) tables() (scopeTables, error) {
	switch s {
	case ScopeUser:
		return scopeTables{catalog: "user_items", inventory: "user_inventory", owner: "user_id"}, nil
	case ScopeGang:
		return scopeTables{catalog: "gang_items", inventory: "gang_inventory", owner: "gang"}, nil
	default:
		return scopeTables{}, ErrUnknownScope
	}
}

// catalogItem looks an item up by name through the catalog cache. found is
// false for unknown items.
func (s *Service) catalogItem(ctx context.Context, q store.Querier, scope Scope, name string) (Item, bool, error) {
	key := string(scope) + ":" + name
	if cached, ok := s.catalog.Get(key); ok {
		return cached.(Item), true, nil
	}

	t, err := scope.tables()
	if err != nil {
		return Item{}, false, err
	}
	var it Item
	err = q.QueryRow(ctx,
		"SELECT id, name, description, benefit, value FROM "+t.catalog+" WHERE name = ?", name,
	).Scan(&it.ID, &it.Name, &it.Description, &it.Benefit, &it.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("select %s item: %w", scope, err)
	}
	s.catalog.Set(key, it, cache.DefaultExpiration)
	return it, true, nil
}

// CreateItem adds or updates a catalog entry.
func (s *Service) CreateItem(ctx context.Context, scope Scope, it Item) error {
	t, err := scope.tables()
	if err != nil {
		return err
	}
	if it.Value < 0 {
		return userErrorf("An item can't have a negative value.")
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO "+t.catalog+" (name, description, benefit, value) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (name) DO UPDATE SET description = excluded.description, benefit = excluded.benefit, value = excluded.value",
		it.Name, it.Description, it.Benefit, it.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s item: %w", scope, err)
	}
	s.catalog.Delete(string(scope) + ":" + it.Name)
	return nil
}

// BuyUserItem buys one unit of a personal item with rep and returns the rep
// remaining.
func (s *Service) BuyUserItem(ctx context.Context, userID int64, name string) (int, error) {
	var (
		remaining int
		value     int
	)
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, found, err := member(ctx, tx, userID); err != nil {
			return err
		} else if !found {
			return userErrorf("You must be in a gang to buy items.")
		}
		it, found, err := s.catalogItem(ctx, tx, ScopeUser, name)
		if err != nil {
			return err
		}
		if !found {
			return userErrorf("The item `%s` you requested doesn't exist.", name)
		}
		points, _, err := reputation.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if points < it.Value {
			return userErrorf("You don't have enough rep to buy that. (Have: %d, Need: %d)", points, it.Value)
		}
		if err := addInventory(ctx, tx, ScopeUser, userID, it.ID); err != nil {
			return err
		}
		remaining, err = reputation.Spend(ctx, tx, userID, it.Value)
		value = it.Value
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.RepSpent.WithLabelValues("item").Add(float64(value))
	return remaining, nil
}

// BuyGangItem buys one unit of a gang item with the gang's control and
// returns the control remaining. Only the gang leadership can buy.
func (s *Service) BuyGangItem(ctx context.Context, userID int64, name string) (int, error) {
	var (
		remaining int
		value     int
	)
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, err := leadership(ctx, tx, userID, userErrorf("You are not in the leadership of a gang, you cannot buy gang items."))
		if err != nil {
			return err
		}
		it, found, err := s.catalogItem(ctx, tx, ScopeGang, name)
		if err != nil {
			return err
		}
		if !found {
			return userErrorf("The item `%s` you requested doesn't exist.", name)
		}
		control, ok, err := addControl(ctx, tx, m.Gang, -it.Value)
		if err != nil {
			return err
		}
		if !ok {
			g, _, err := gang(ctx, tx, m.Gang)
			if err != nil {
				return err
			}
			return userErrorf("Your gang doesn't have enough control to buy that. (Have: %d, Need: %d)", g.Control, it.Value)
		}
		if err := addInventory(ctx, tx, ScopeGang, m.Gang, it.ID); err != nil {
			return err
		}
		remaining, value = control, it.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.ControlSpent.WithLabelValues("item").Add(float64(value))
	return remaining, nil
}

func addInventory(ctx context.Context, tx *store.Tx, scope Scope, owner any, itemID int64) error {
	t, err := scope.tables()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO "+t.inventory+" ("+t.owner+", item, quantity) VALUES (?, ?, 1) "+
			"ON CONFLICT ("+t.owner+", item) DO UPDATE SET quantity = "+t.inventory+".quantity + 1",
		owner, itemID,
	)
	if err != nil {
		return fmt.Errorf("add %s inventory: %w", scope, err)
	}
	return nil
}

// consumeItem removes one unit from an inventory row, deleting the row when
// it was the last one.
func consumeItem(ctx context.Context, q store.Querier, scope Scope, owner any, itemID int64, quantity int) error {
	t, err := scope.tables()
	if err != nil {
		return err
	}
	if quantity <= 1 {
		_, err = q.Exec(ctx, "DELETE FROM "+t.inventory+" WHERE "+t.owner+" = ? AND item = ?", owner, itemID)
	} else {
		_, err = q.Exec(ctx, "UPDATE "+t.inventory+" SET quantity = quantity - 1 WHERE "+t.owner+" = ? AND item = ?", owner, itemID)
	}
	if err != nil {
		return fmt.Errorf("consume %s item: %w", scope, err)
	}
	return nil
}

func listItems(ctx context.Context, q store.Querier, query string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Benefit, &it.Value, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// UserInventory lists the personal items a user owns.
func (s *Service) UserInventory(ctx context.Context, userID int64) ([]Item, error) {
	items, err := listItems(ctx, s.db,
		"SELECT i.id, i.name, i.description, i.benefit, i.value, inv.quantity FROM user_items i "+
			"JOIN user_inventory inv ON inv.item = i.id WHERE inv.user_id = ? ORDER BY i.name", userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, userErrorf("You don't have any items.")
	}
	return items, nil
}

// UserCatalog lists the personal items a gang member can buy.
func (s *Service) UserCatalog(ctx context.Context, userID int64) ([]Item, error) {
	if _, found, err := member(ctx, s.db, userID); err != nil {
		return nil, err
	} else if !found {
		return nil, userErrorf("You must be in a gang to have items.")
	}
	items, err := listItems(ctx, s.db,
		"SELECT id, name, description, benefit, value, 0 FROM user_items ORDER BY value, name")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, userErrorf("There are no items available.")
	}
	return items, nil
}

// GangInventory lists the items of the user's gang. Leadership only.
func (s *Service) GangInventory(ctx context.Context, userID int64) ([]Item, error) {
	m, err := leadership(ctx, s.db, userID,
		userErrorf("You are not in the leadership of a gang, you cannot view your gang's inventory."))
	if err != nil {
		return nil, err
	}
	items, err := listItems(ctx, s.db,
		"SELECT i.id, i.name, i.description, i.benefit, i.value, inv.quantity FROM gang_items i "+
			"JOIN gang_inventory inv ON inv.item = i.id WHERE inv.gang = ? ORDER BY i.name", m.Gang)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, userErrorf("Your gang doesn't have any items.")
	}
	return items, nil
}

// GangCatalog lists the gang items the leadership can buy.
func (s *Service) GangCatalog(ctx context.Context, userID int64) ([]Item, error) {
	if _, err := leadership(ctx, s.db, userID,
		userErrorf("You are not in the leadership of a gang, you cannot view the available items.")); err != nil {
		return nil, err
	}
	items, err := listItems(ctx, s.db,
		"SELECT id, name, description, benefit, value, 0 FROM gang_items ORDER BY value, name")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, userErrorf("There are no items available.")
	}
	return items, nil
}

// ItemUse is the outcome of UseItem.
type ItemUse struct {
	Item Item
	// Territory is set for offensive and defensive items.
	Territory string
	// Total is the new attack, defense or control the item added to.
	Total int
}

// UseItem consumes one unit of an owned item and applies its benefit.
// Offensive items strengthen a raid the user enlisted in as an attacker,
// defensive items a raid defense the user enlisted in, and control items add
// to the gang's control. Gang items can only be used by the leadership.
func (s *Service) UseItem(ctx context.Context, userID int64, scope Scope, name string) (ItemUse, error) {
	t, err := scope.tables()
	if err != nil {
		return ItemUse{}, err
	}

	var out ItemUse
	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		m, found, err := member(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return userErrorf("You must be in a gang to use items.")
		}
		var owner any = userID
		if scope == ScopeGang {
			if !m.InLeadership() {
				return userErrorf("You are not in the leadership of a gang, you cannot use gang items.")
			}
			owner = m.Gang
		}

		var it Item
		err = tx.QueryRow(ctx,
			"SELECT i.id, i.name, i.description, i.benefit, i.value, inv.quantity FROM "+t.catalog+" i "+
				"JOIN "+t.inventory+" inv ON inv.item = i.id WHERE inv."+t.owner+" = ? AND i.name = ?", owner, name,
		).Scan(&it.ID, &it.Name, &it.Description, &it.Benefit, &it.Value, &it.Quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return userErrorf("You don't have the item `%s`.", name)
		}
		if err != nil {
			return fmt.Errorf("select owned item: %w", err)
		}

		out = ItemUse{Item: it}
		switch it.Benefit {
		case BenefitDefense:
			raid, err := defendingRaid(ctx, tx, m)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, "UPDATE territories SET defense = defense + ? WHERE id = ? RETURNING defense",
				it.Value, raid.ID).Scan(&out.Total); err != nil {
				return fmt.Errorf("add defense: %w", err)
			}
			out.Territory = raid.Name
		case BenefitOffense:
			raid, err := attackingRaid(ctx, tx, m)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, "UPDATE territories SET attack = attack + ? WHERE id = ? RETURNING attack",
				it.Value, raid.ID).Scan(&out.Total); err != nil {
				return fmt.Errorf("add attack: %w", err)
			}
			out.Territory = raid.Name
		case BenefitControl:
			control, _, err := addControl(ctx, tx, m.Gang, it.Value)
			if err != nil {
				return err
			}
			out.Total = control
		default:
			return userErrorf("The item `%s` can't be used.", name)
		}
		return consumeItem(ctx, tx, scope, owner, it.ID, it.Quantity)
	})
	if err != nil {
		return ItemUse{}, err
	}
	return out, nil
}

// defendingRaid returns the raid on a territory of the member's gang the
// member enlisted in as a defender.
func defendingRaid(ctx context.Context, q store.Querier, m Member) (Territory, error) {
	if _, found, err := territoryWhere(ctx, q, "gang = ? AND raider IS NOT NULL", m.Gang); err != nil {
		return Territory{}, err
	} else if !found {
		return Territory{}, userErrorf("Your gang is not defending against a raid, you cannot use defensive items at this time.")
	}
	tr, found, err := territoryWhere(ctx, q, "gang = ? AND raider IS NOT NULL AND "+enlistedIn, m.Gang, m.UserID, SideDefender)
	if err != nil {
		return Territory{}, err
	}
	if !found {
		return Territory{}, userErrorf("You are not participating in your gang's raid defense, " +
			"you cannot use defensive items without joining a raid defense.")
	}
	return tr, nil
}

// attackingRaid returns the raid of the member's gang, provided the member
// enlisted in it as an attacker.
func attackingRaid(ctx context.Context, q store.Querier, m Member) (Territory, error) {
	tr, found, err := territoryWhere(ctx, q, "raider = ?", m.Gang)
	if err != nil {
		return Territory{}, err
	}
	if !found {
		return Territory{}, userErrorf("Your gang is not attacking another gang, you cannot use offensive items at this time.")
	}
	if _, found, err := territoryWhere(ctx, q, "id = ? AND "+enlistedIn, tr.ID, m.UserID, SideAttacker); err != nil {
		return Territory{}, err
	} else if !found {
		return Territory{}, userErrorf("You are not participating in your gang's raid, " +
			"you cannot use offensive items without joining a raid.")
	}
	return tr, nil
}

// enlistedIn filters territories by a participant user and side.
const enlistedIn = "id IN (SELECT territory FROM raid_participants WHERE user_id = ? AND side = ?)"

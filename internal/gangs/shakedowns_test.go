package gangs

import (
	"context"
	"testing"

	"github.com/charbot/charbot/internal/store/storetest"
)

// sequence returns the given values in order, then zeros.
func sequence(values ...float64) func() float64 {
	return func() float64 {
		if len(values) == 0 {
			return 0
		}
		v := values[0]
		values = values[1:]
		return v
	}
}

func seedInventories(t *testing.T, f *fixture) {
	t.Helper()
	f.gang(t, "Red", 100, 0, 0, 0, 0, 1)
	storetest.Exec(t, f.db, "INSERT INTO user_items (name, value) VALUES ('Vest', 1)")
	storetest.Exec(t, f.db, "INSERT INTO gang_items (name, value) VALUES ('Safehouse', 1)")
	storetest.Exec(t, f.db, "INSERT INTO user_inventory (user_id, item, quantity) VALUES (1, 1, 3), (2, 1, 1)")
	storetest.Exec(t, f.db, "INSERT INTO gang_inventory (gang, item, quantity) VALUES ('Red', 1, 6)")
}

func TestService_ShakedownChance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chance, err := f.svc.ShakedownChance(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if chance != 0 {
		t.Errorf("Expected 0 with empty inventories, got %v", chance)
	}

	seedInventories(t, f)
	chance, err = f.svc.ShakedownChance(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if chance != 0.1 {
		t.Errorf("Expected 0.1, got %v", chance)
	}

	storetest.Exec(t, f.db, "UPDATE gang_inventory SET quantity = 500")
	chance, err = f.svc.ShakedownChance(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if chance != 1 {
		t.Errorf("Expected chance to be capped at 1, got %v", chance)
	}
}

func TestService_Shakedown(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped", func(t *testing.T) {
		f := newFixture(t, WithRandom(sequence(0.5)))
		seedInventories(t, f)

		found, err := f.svc.Shakedown(ctx, false)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if found != 0 {
			t.Errorf("Expected no confiscation, got %d", found)
		}
	})

	t.Run("forced", func(t *testing.T) {
		// Rows in order: user 1 (3), user 2 (1), Red (6).
		f := newFixture(t, WithRandom(sequence(0.1, 0.1, 0.9)))
		seedInventories(t, f)

		found, err := f.svc.Shakedown(ctx, true)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if found != 2 {
			t.Errorf("Expected 2 confiscations, got %d", found)
		}

		items, err := f.svc.UserInventory(ctx, 1)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if items[0].Quantity != 2 {
			t.Errorf("Expected 2 left, got %d", items[0].Quantity)
		}
		_, err = f.svc.UserInventory(ctx, 2)
		expectUserError(t, err, "You don't have any items.")
		gangItems, err := f.svc.GangInventory(ctx, 1)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if gangItems[0].Quantity != 6 {
			t.Errorf("Expected gang items untouched, got %d", gangItems[0].Quantity)
		}
		if len(f.guild.sent) != 1 || f.guild.sent[0].channel != announcements {
			t.Errorf("Unexpected messages %+v", f.guild.sent)
		}
	})

	t.Run("chance hit", func(t *testing.T) {
		// 0.05 < chance 0.1, then each row is hit.
		f := newFixture(t, WithRandom(sequence(0.05, 0, 0, 0)))
		seedInventories(t, f)

		found, err := f.svc.Shakedown(ctx, false)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if found != 3 {
			t.Errorf("Expected 3 confiscations, got %d", found)
		}
	})
}

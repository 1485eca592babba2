package gangs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charbot/charbot/internal/store/storetest"
)

func TestService_DuesCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Red: upkeep 10 + 5*2 = 20, both can pay.
	f.gang(t, "Red", 1, 0, 0, 10, 5, 1, 2)
	f.user(t, 1, 100)
	f.user(t, 2, 20)
	// Blue: upkeep 50 + 0*3 = 50, member 4 (leader) and 6 cannot pay.
	f.gang(t, "Blue", 1, 0, 0, 50, 0, 4, 5, 6)
	f.user(t, 4, 10)
	f.user(t, 5, 60)
	// Green: a single member who cannot pay.
	f.gang(t, "Green", 5, 0, 0, 50, 0, 7)

	report, err := f.svc.StartDuesCycle(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}

	loc, _ := time.LoadLocation("America/Detroit")
	expectedDeadline := time.Date(2026, time.March, 8, 0, 0, 0, 0, loc)
	if !report.Deadline.Equal(expectedDeadline) {
		t.Errorf("Expected deadline %s, got %s", expectedDeadline, report.Deadline)
	}
	if report.Unpaid() != 3 {
		t.Errorf("Expected 3 unpaid members, got %d", report.Unpaid())
	}

	if got := f.points(t, 1); got != 80 {
		t.Errorf("Expected 80, got %d", got)
	}
	if got := f.points(t, 2); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if got := f.points(t, 4); got != 10 {
		t.Errorf("Unpaid members must not be charged, got %d", got)
	}
	if got := f.control(t, "Red"); got != 1+2*RepToControl(20) {
		t.Errorf("Unexpected Red control %d", got)
	}
	if got := f.control(t, "Blue"); got != 1+RepToControl(50) {
		t.Errorf("Unexpected Blue control %d", got)
	}

	blue, err := f.svc.Info(ctx, "Blue")
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if blue.AllPaid {
		t.Error("Blue must be marked as not all paid")
	}

	if len(f.guild.sent) != 1 || f.guild.sent[0].channel != channelOf("Red") ||
		f.guild.sent[0].content != "<@&10038562> All members of this gang have paid their dues automatically. Thank you for participating in the gang war!" {
		t.Errorf("Unexpected messages %+v", f.guild.sent)
	}
	if len(f.guild.notices) != 2 {
		t.Fatalf("Expected 2 dues notices, got %+v", f.guild.notices)
	}
	notice := f.guild.notices[0]
	if notice.gang != "Blue" || notice.channel != channelOf("Blue") {
		t.Errorf("Unexpected notice %+v", notice)
	}
	if !strings.HasPrefix(notice.content, "<@&255> At least one member of this gang did not have enough rep") ||
		!strings.Contains(notice.content, "<t:1772946000:F>") {
		t.Errorf("Unexpected notice content %q", notice.content)
	}

	t.Run("pay dues", func(t *testing.T) {
		_, err := f.svc.PayDues(ctx, 1, "Red")
		expectUserError(t, err, "You have already paid your dues for this month.")

		_, err = f.svc.PayDues(ctx, 1, "Blue")
		expectUserError(t, err, "You are not a member of the Blue Gang.")

		_, err = f.svc.PayDues(ctx, 4, "Blue")
		expectUserError(t, err, "You do not have enough rep to pay your dues, you have 10 rep and need 50 rep to pay your dues.")

		_, err = f.svc.PayDues(ctx, 6, "Blue")
		expectUserError(t, err, "You do not have enough rep to pay your dues, you have 0 rep and need 50 rep to pay your dues.")

		f.user(t, 6, 70)
		before := f.control(t, "Blue")
		paid, err := f.svc.PayDues(ctx, 6, "Blue")
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if paid.Remaining != 20 || paid.Paid != 50 || paid.Gang != "Blue" {
			t.Errorf("Unexpected result %+v", paid)
		}
		if got := f.control(t, "Blue"); got != before+RepToControl(50) {
			t.Errorf("Expected control %d, got %d", before+RepToControl(50), got)
		}
	})

	t.Run("end of cycle", func(t *testing.T) {
		f.guild.sent = nil
		report, err := f.svc.EndDuesCycle(ctx)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if report.Unpaid() != 2 || report.Disbanded() != 1 {
			t.Errorf("Unexpected report %+v", report)
		}

		if _, _, err := f.svc.GangOf(ctx, 4); err == nil {
			t.Error("Expected unpaid leader to be removed")
		}
		blue, err := f.svc.Info(ctx, "Blue")
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if blue.Members != 2 || !blue.AllPaid {
			t.Errorf("Unexpected Blue %+v", blue)
		}
		if _, err := f.svc.Info(ctx, "Green"); err == nil {
			t.Error("Expected Green to be disbanded")
		}
		if _, err := f.svc.Info(ctx, "Red"); err != nil {
			t.Errorf("Red must survive: %+v", err)
		}

		if len(f.guild.removed) != 2 {
			t.Errorf("Unexpected role removals %v", f.guild.removed)
		}
		var blueMsg, announcement string
		for _, m := range f.guild.sent {
			switch m.channel {
			case channelOf("Blue"):
				blueMsg = m.content
			case announcements:
				announcement = m.content
			}
		}
		if !strings.Contains(blueMsg, "1 member(s) of this gang did not pay their dues.") ||
			!strings.Contains(blueMsg, "NOTE: Your leader did not pay their dues") {
			t.Errorf("Unexpected Blue message %q", blueMsg)
		}
		if !strings.HasPrefix(announcement, "2 member(s) of the gangs have been removed") ||
			!strings.Contains(announcement, "1 gang(s) ran out of members") {
			t.Errorf("Unexpected announcement %q", announcement)
		}
	})
}

func TestService_EndDuesCycle_Settled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gang(t, "Red", 1, 0, 0, 10, 0, 1)
	if _, err := f.db.Exec(ctx, "UPDATE gangs SET all_paid = FALSE"); err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}

	report, err := f.svc.EndDuesCycle(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if report.Unpaid() != 0 || len(report.Gangs) != 1 || !report.Gangs[0].Complete() {
		t.Errorf("Unexpected report %+v", report)
	}
	if len(f.guild.sent) != 1 ||
		f.guild.sent[0].content != "<@&10038562> All members of this gang have paid their dues. Thank you for participating in the gang war!" {
		t.Errorf("Unexpected messages %+v", f.guild.sent)
	}
}

func TestService_EndDuesCycle_RaidParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gang(t, "Red", 2500, 0, 0, 0, 0, 1, 2)
	f.gang(t, "Blue", 100, 0, 0, 0, 0, 3, 4)
	storetest.Exec(t, f.db, "INSERT INTO territories (name, gang) VALUES ('Docks', 'Blue')")
	if _, err := f.svc.StartRaid(ctx, 1, "Docks"); err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	for _, user := range []int64{2, 4} {
		if _, err := f.svc.EnlistRaid(ctx, user, "Docks"); err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
	}
	storetest.Exec(t, f.db, "UPDATE gangs SET all_paid = FALSE")
	storetest.Exec(t, f.db, "UPDATE gang_members SET paid = FALSE WHERE user_id IN (2, 4)")

	if _, err := f.svc.EndDuesCycle(ctx); err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}

	var left int
	if err := f.db.QueryRow(ctx, "SELECT COUNT(*) FROM raid_participants").Scan(&left); err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if left != 0 {
		t.Errorf("Expected removed members to leave the raid, %d participant(s) left", left)
	}
}

package gangs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
	"github.com/charbot/charbot/internal/store/storetest"
)

type sentMessage struct {
	channel int64
	content string
	gang    string
}

type roleChange struct {
	user int64
	role int64
}

type mockGuild struct {
	mu             sync.Mutex
	createRoleFunc func(name string, color int) (int64, error)
	sent           []sentMessage
	notices        []sentMessage
	added          []roleChange
	removed        []roleChange
	channels       []string
}

var _ Guild = (*mockGuild)(nil)

func (g *mockGuild) CreateRole(_ context.Context, name string, color int, _ string) (int64, error) {
	if g.createRoleFunc != nil {
		return g.createRoleFunc(name, color)
	}
	return 900, nil
}

func (g *mockGuild) CreateGangChannel(_ context.Context, name string, _, _ int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels = append(g.channels, name)
	return 800, nil
}

func (g *mockGuild) AddRole(_ context.Context, userID, roleID int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.added = append(g.added, roleChange{user: userID, role: roleID})
	return nil
}

func (g *mockGuild) RemoveRole(_ context.Context, userID, roleID int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, roleChange{user: userID, role: roleID})
	return nil
}

func (g *mockGuild) Send(_ context.Context, channelID int64, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{channel: channelID, content: content})
	return nil
}

func (g *mockGuild) SendDuesNotice(_ context.Context, channelID int64, content string, gang string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, sentMessage{channel: channelID, content: content, gang: gang})
	return nil
}

const announcements = 777

var testNow = time.Date(2026, time.March, 1, 5, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *store.DB
	guild *mockGuild
	blobs *blob.Memory
	now   time.Time
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	f := &fixture{
		db:    storetest.Open(t),
		guild: &mockGuild{},
		blobs: blob.NewMemory(),
		now:   testNow,
	}
	config := NewConfig()
	config.Announcements = announcements
	options = append([]Option{WithClock(func() time.Time { return f.now })}, options...)
	svc, err := NewService(config, f.db, f.guild, f.blobs, options...)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) user(t *testing.T, id int64, points int) {
	t.Helper()
	storetest.Exec(t, f.db, "INSERT INTO users (id, points) VALUES (?, ?)", id, points)
}

// gang seeds a gang whose first member is its leader.
func (f *fixture) gang(t *testing.T, name string, control int, joinBase, joinSlope, upkeepBase, upkeepSlope int, members ...int64) {
	t.Helper()
	c, _ := ParseColor(name)
	storetest.Exec(t, f.db,
		"INSERT INTO gangs (name, color, leader, role, channel, control, join_base, join_slope, upkeep_base, upkeep_slope, all_paid) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)",
		name, c.Value, members[0], roleOf(name), channelOf(name), control, joinBase, joinSlope, upkeepBase, upkeepSlope)
	for i, m := range members {
		storetest.Exec(t, f.db, "INSERT INTO gang_members (user_id, gang, paid, leader) VALUES (?, ?, TRUE, ?)", m, name, i == 0)
	}
}

func (f *fixture) points(t *testing.T, id int64) int {
	t.Helper()
	points, _, err := reputation.Balance(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	return points
}

func (f *fixture) control(t *testing.T, name string) int {
	t.Helper()
	g, err := f.svc.Info(context.Background(), name)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	return g.Control
}

func roleOf(name string) int64 {
	c, _ := ParseColor(name)
	return int64(c.Value)
}

func channelOf(name string) int64 {
	return roleOf(name) + 1
}

func expectUserError(t *testing.T, err error, expected string) {
	t.Helper()

	var ue *UserError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *UserError %q, got %T: %+v", expected, err, err)
	}
	if ue.Message != expected {
		t.Errorf("Expected message %q, got %q", expected, ue.Message)
	}
}

func TestRepToControl(t *testing.T) {
	tests := map[int]int{0: 0, 49: 0, 50: 1, 99: 1, 100: 2, 1234: 24}
	for rep, expected := range tests {
		if got := RepToControl(rep); got != expected {
			t.Errorf("RepToControl(%d): expected %d, got %d", rep, expected, got)
		}
	}
}

func TestParseColor(t *testing.T) {
	c, ok := ParseColor(" white ")
	if !ok {
		t.Fatal("Expected white to parse")
	}
	if c.Name != "White" || c.Value != 0xC0C0C0 {
		t.Errorf("Unexpected color %+v", c)
	}
	if _, ok := ParseColor("Pink"); ok {
		t.Error("Pink is not a gang color")
	}
	if len(Colors) != 9 {
		t.Errorf("Expected 9 colors, got %d", len(Colors))
	}
}

func TestNames(t *testing.T) {
	if got := RoleName("White"); got != "White Gang" {
		t.Errorf("Unexpected role name %q", got)
	}
	if got := ChannelName("White"); got != "white-gang" {
		t.Errorf("Unexpected channel name %q", got)
	}
}

func TestParseBenefit(t *testing.T) {
	for _, b := range []Benefit{BenefitControl, BenefitDefense, BenefitOffense, BenefitOther} {
		parsed, ok := ParseBenefit(strings.ToUpper(b.String()))
		if !ok || parsed != b {
			t.Errorf("Failed to parse %s", b)
		}
	}
	if _, ok := ParseBenefit("magic"); ok {
		t.Error("Expected magic to be rejected")
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	db := storetest.Open(t)

	config := NewConfig()
	config.TimeZone = "Mars/Olympus"
	if _, err := NewService(config, db, &mockGuild{}, blob.NewMemory()); err == nil {
		t.Error("Expected time zone error")
	}

	config = NewConfig()
	config.DuesEndSchedule = "not a schedule"
	if _, err := NewService(config, db, &mockGuild{}, blob.NewMemory()); err == nil {
		t.Error("Expected schedule error")
	}
}

func TestService_Create(t *testing.T) {
	white, _ := ParseColor("White")
	ctx := context.Background()

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		f.user(t, 1, 1000)
		f.user(t, 2, 100)
		f.user(t, 4, 1000)
		f.gang(t, "Red", 100, 10, 1, 10, 1, 4)

		red, _ := ParseColor("Red")
		tests := []struct {
			name     string
			req      CreateRequest
			expected string
		}{
			{"out of range", CreateRequest{UserID: 1, Color: white, JoinBase: MaxCost + 1}, "Join and recurring costs must be between 0 and 32767."},
			{"negative", CreateRequest{UserID: 1, Color: white, UpkeepSlope: -1}, "Join and recurring costs must be between 0 and 32767."},
			{"existing gang", CreateRequest{UserID: 1, Color: red}, "A gang with that name/color already exists!"},
			{"already in a gang", CreateRequest{UserID: 4, Color: white}, "You are already in a gang!"},
			{"no points record", CreateRequest{UserID: 3, Color: white}, "You have never gained any points, try gaining some first!"},
			{"not enough rep", CreateRequest{UserID: 2, Color: white, JoinBase: 10, UpkeepBase: 10},
				"You don't have enough rep to create a gang! You need at least 120 rep to create a gang. " +
					"(100 combined with the baseline join and recurring costs are required to form a gang)"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Create(ctx, tt.req)
				expectUserError(t, err, tt.expected)
			})
		}
		if got := f.points(t, 2); got != 100 {
			t.Errorf("Rejected creation must not charge, got %d", got)
		}
	})

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.user(t, 1, 1000)

		created, err := f.svc.Create(ctx, CreateRequest{UserID: 1, Color: white, JoinBase: 50, JoinSlope: 5, UpkeepBase: 25, UpkeepSlope: 2})
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if created.Remaining != 825 || created.Role != 900 || created.Channel != 800 || created.Gang != "White" {
			t.Errorf("Unexpected result %+v", created)
		}

		g, err := f.svc.Info(ctx, "White")
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if g.Control != StartingControl || g.Members != 1 || !g.AllPaid || g.Leader != 1 || g.Color != 0xC0C0C0 {
			t.Errorf("Unexpected gang %+v", g)
		}
		if g.JoinCost() != 55 || g.Upkeep() != 27 {
			t.Errorf("Unexpected costs %d and %d", g.JoinCost(), g.Upkeep())
		}

		_, m, err := f.svc.GangOf(ctx, 1)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if !m.Leader || !m.InLeadership() {
			t.Errorf("Founder must lead the gang: %+v", m)
		}
		if len(f.guild.channels) != 1 || f.guild.channels[0] != "white-gang" {
			t.Errorf("Unexpected channels %v", f.guild.channels)
		}
		if len(f.guild.added) != 1 || f.guild.added[0] != (roleChange{user: 1, role: 900}) {
			t.Errorf("Unexpected role grants %v", f.guild.added)
		}
		if len(f.guild.sent) != 1 || f.guild.sent[0].channel != announcements ||
			f.guild.sent[0].content != "<@1> created a new gang, the White Gang!" {
			t.Errorf("Unexpected announcements %+v", f.guild.sent)
		}
	})

	t.Run("guild failure rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.user(t, 1, 1000)
		f.guild.createRoleFunc = func(string, int) (int64, error) {
			return 0, fmt.Errorf("discord is down")
		}

		_, err := f.svc.Create(ctx, CreateRequest{UserID: 1, Color: white})
		if err == nil {
			t.Fatal("Expected error")
		}
		var ue *UserError
		if errors.As(err, &ue) {
			t.Errorf("Guild failures are internal errors, got %q", ue.Message)
		}
		if got := f.points(t, 1); got != 1000 {
			t.Errorf("Expected the charge to be rolled back, got %d", got)
		}
		if _, err := f.svc.Info(ctx, "White"); err == nil {
			t.Error("Expected no gang")
		}
	})
}

func TestService_Join(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gang(t, "Red", 10, 100, 50, 10, 0, 1, 2)
	f.user(t, 1, 0)
	f.user(t, 3, 150)
	f.user(t, 4, 500)

	tests := []struct {
		name     string
		user     int64
		gang     string
		expected string
	}{
		{"unknown gang", 4, "Pink", "That gang doesn't exist!"},
		{"already member", 1, "Red", "You are already in a gang!"},
		{"never gained", 5, "Red", "You have never gained any points, try gaining some first!"},
		{"not enough", 3, "Red", "You don't have enough rep to join that gang! You need at least 200 rep to join that gang, and you have 150."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Join(ctx, tt.user, tt.gang)
			expectUserError(t, err, tt.expected)
		})
	}

	joined, err := f.svc.Join(ctx, 4, "Red")
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if joined.Needed != 200 || joined.Remaining != 300 || joined.Gang != "Red" {
		t.Errorf("Unexpected result %+v", joined)
	}
	if got := f.control(t, "Red"); got != 10+RepToControl(200) {
		t.Errorf("Expected control %d, got %d", 10+RepToControl(200), got)
	}
	if len(f.guild.added) != 1 || f.guild.added[0] != (roleChange{user: 4, role: roleOf("Red")}) {
		t.Errorf("Unexpected role grants %v", f.guild.added)
	}
	if len(f.guild.sent) != 1 || f.guild.sent[0].channel != channelOf("Red") || f.guild.sent[0].content != "Welcome <@4> to the Red Gang!" {
		t.Errorf("Unexpected messages %+v", f.guild.sent)
	}
}

func TestService_LeaveAndLeadership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gang(t, "Red", 10, 0, 0, 0, 0, 1, 2, 3)
	f.gang(t, "Blue", 10, 0, 0, 0, 0, 4)

	t.Run("leave", func(t *testing.T) {
		_, err := f.svc.Leave(ctx, 9)
		expectUserError(t, err, "You are not in a gang!")

		_, err = f.svc.Leave(ctx, 1)
		expectUserError(t, err, "You are the leader of your gang, you cannot leave it.")

		name, err := f.svc.Leave(ctx, 3)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if name != "Red" {
			t.Errorf("Unexpected gang %q", name)
		}
		if len(f.guild.removed) != 1 || f.guild.removed[0] != (roleChange{user: 3, role: roleOf("Red")}) {
			t.Errorf("Unexpected role removals %v", f.guild.removed)
		}
	})

	t.Run("leadership", func(t *testing.T) {
		expectUserError(t, f.svc.SetLeadership(ctx, 2, 1, true), "You are not the leader of your gang!")
		expectUserError(t, f.svc.SetLeadership(ctx, 1, 4, true), "That user is not in your gang!")
		expectUserError(t, f.svc.SetLeadership(ctx, 1, 1, true), "You cannot change the leadership of the gang leader.")
		expectUserError(t, f.svc.SetLeadership(ctx, 1, 2, false), "That user is not in your gang's leadership.")

		if err := f.svc.SetLeadership(ctx, 1, 2, true); err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		_, m, err := f.svc.GangOf(ctx, 2)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if !m.Leadership || !m.InLeadership() {
			t.Errorf("Expected leadership, got %+v", m)
		}
		expectUserError(t, f.svc.SetLeadership(ctx, 1, 2, true), "That user is already in your gang's leadership.")

		if err := f.svc.SetLeadership(ctx, 1, 2, false); err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		all, err := f.svc.List(ctx)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if len(all) != 2 || all[0].Name != "Blue" || all[1].Name != "Red" || all[1].Members != 2 {
			t.Errorf("Unexpected gangs %+v", all)
		}
	})
}

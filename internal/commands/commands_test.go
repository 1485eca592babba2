package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/charbot/charbot/internal/store"
	"github.com/charbot/charbot/internal/store/storetest"
	"github.com/oklahomer/go-sarah/v4"
)

const (
	modRole       = 5
	logChannel    = 600
	announcements = 700
)

type sentMessage struct {
	channel int64
	content string
}

// mockGuild records the Discord side effects of the services.
type mockGuild struct {
	mu       sync.Mutex
	sendFunc func(channelID int64, content string) error
	sent     []sentMessage
	notices  []sentMessage
}

var (
	_ gangs.Guild = (*mockGuild)(nil)
	_ Notifier    = (*mockGuild)(nil)
)

func (g *mockGuild) CreateRole(_ context.Context, _ string, _ int, _ string) (int64, error) {
	return 900, nil
}

func (g *mockGuild) CreateGangChannel(_ context.Context, _ string, _, _ int64) (int64, error) {
	return 800, nil
}

func (g *mockGuild) AddRole(_ context.Context, _, _ int64, _ string) error {
	return nil
}

func (g *mockGuild) RemoveRole(_ context.Context, _, _ int64, _ string) error {
	return nil
}

func (g *mockGuild) Send(_ context.Context, channelID int64, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendFunc != nil {
		if err := g.sendFunc(channelID, content); err != nil {
			return err
		}
	}
	g.sent = append(g.sent, sentMessage{channel: channelID, content: content})
	return nil
}

func (g *mockGuild) SendDuesNotice(_ context.Context, channelID int64, content string, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, sentMessage{channel: channelID, content: content})
	return nil
}

func (g *mockGuild) sentTo(channelID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		if s.channel == channelID {
			out = append(out, s.content)
		}
	}
	return out
}

type fixture struct {
	handler *Handler
	db      *store.DB
	guild   *mockGuild
	gangs   *gangs.Service
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	db := storetest.Open(t)
	guild := &mockGuild{}
	config := gangs.NewConfig()
	config.Announcements = announcements
	svc, err := gangs.NewService(config, db, guild, blob.NewMemory())
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}

	handler := NewHandler(Config{ModeratorRoles: []int64{modRole}, ProgramLogs: logChannel},
		reputation.NewService(db), svc, guild, options...)
	return &fixture{handler: handler, db: db, guild: guild, gangs: svc}
}

func (f *fixture) user(t *testing.T, id int64, points int) {
	t.Helper()
	storetest.Exec(t, f.db, "INSERT INTO users (id, points) VALUES (?, ?)", id, points)
}

func (f *fixture) points(t *testing.T, id int64) int {
	t.Helper()
	points, _, err := reputation.Balance(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	return points
}

// gang seeds a gang led by leader whose members have not paid their dues.
func (f *fixture) gang(t *testing.T, name string, leader int64, members ...int64) {
	t.Helper()
	c, _ := gangs.ParseColor(name)
	storetest.Exec(t, f.db,
		"INSERT INTO gangs (name, color, leader, role, channel, control, join_base, join_slope, upkeep_base, upkeep_slope, all_paid) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)",
		name, c.Value, leader, 900, 800, 100, 10, 0, 5, 0)
	storetest.Exec(t, f.db, "INSERT INTO gang_members (user_id, gang, paid, leader) VALUES (?, ?, FALSE, TRUE)", leader, name)
	for _, m := range members {
		storetest.Exec(t, f.db, "INSERT INTO gang_members (user_id, gang, paid, leader) VALUES (?, ?, FALSE, FALSE)", m, name)
	}
}

// message builds the input of a guild message sent by userID.
func message(t *testing.T, userID int64, content string, roles ...int64) *discord.Input {
	t.Helper()

	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, strconv.FormatInt(r, 10))
	}
	input, err := discord.MessageToInput(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "1",
			ChannelID: "100",
			Content:   content,
			Timestamp: time.Now(),
			Author:    &discordgo.User{ID: strconv.FormatInt(userID, 10), Username: fmt.Sprintf("user%d", userID)},
			Member:    &discordgo.Member{Roles: roleIDs},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	return input
}

// mention adds a mentioned user to a message input.
func mention(input *discord.Input, userID int64, name string) *discord.Input {
	input.Event.Mentions = append(input.Event.Mentions, &discordgo.User{ID: strconv.FormatInt(userID, 10), Username: name})
	return input
}

// pressed builds the input of a button pressed by userID.
func pressed(t *testing.T, userID int64, customID string) *discord.ComponentInput {
	t.Helper()

	input, err := discord.InteractionToInput(&discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "1100000000000000000",
			Type:      discordgo.InteractionMessageComponent,
			ChannelID: "100",
			Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
			Member:    &discordgo.Member{User: &discordgo.User{ID: strconv.FormatInt(userID, 10)}},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	return input
}

type commandFunc = func(context.Context, sarah.Input) (*sarah.CommandResponse, error)

// exec runs fn and returns the response.
func exec(t *testing.T, fn commandFunc, input sarah.Input) *sarah.CommandResponse {
	t.Helper()

	res, err := fn(context.Background(), input)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if res == nil {
		t.Fatal("Expected a response")
	}
	return res
}

// text runs fn and returns the response content as a string.
func text(t *testing.T, fn commandFunc, input sarah.Input) string {
	t.Helper()

	res := exec(t, fn, input)
	s, ok := res.Content.(string)
	if !ok {
		t.Fatalf("Expected string content, got %T", res.Content)
	}
	return s
}

func TestRequest(t *testing.T) {
	req := request{args: []string{"add", "<@42>", "10"}}

	if req.arg(0) != "add" || req.arg(3) != "" {
		t.Errorf("Unexpected args %q and %q", req.arg(0), req.arg(3))
	}
	if req.rest(1) != "<@42> 10" {
		t.Errorf("Unexpected rest %q", req.rest(1))
	}
	if req.rest(5) != "" {
		t.Errorf("Expected empty rest, got %q", req.rest(5))
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
		ok       bool
	}{
		{"gang error", fmt.Errorf("wrapped: %w", &gangs.UserError{Message: "gang"}), "gang", true},
		{"rep error", &reputation.UserError{Message: "rep"}, "rep", true},
		{"usage", usage("Usage: .rep"), "Usage: .rep", true},
		{"no user", fmt.Errorf("spend: %w", reputation.ErrNoUser), "You haven't gained any rep yet.", true},
		{"internal", errors.New("connection reset"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := userMessage(tt.err)
			if ok != tt.ok || msg != tt.expected {
				t.Errorf("Expected (%q, %t), got (%q, %t)", tt.expected, tt.ok, msg, ok)
			}
		})
	}
}

func TestHandler_command(t *testing.T) {
	f := newFixture(t)

	t.Run("arguments", func(t *testing.T) {
		var got request
		fn := f.handler.command("test", repPattern, func(_ context.Context, req request) (interface{}, error) {
			got = req
			return "done", nil
		})
		if s := text(t, fn, message(t, 42, ".rep  add   <@43> 5", modRole)); s != "done" {
			t.Errorf("Unexpected reply %q", s)
		}
		if len(got.args) != 3 || got.args[0] != "add" || got.args[2] != "5" {
			t.Errorf("Unexpected args %q", got.args)
		}
		if got.author.ID != 42 || !got.author.HasAnyRole([]int64{modRole}) {
			t.Errorf("Unexpected author %+v", got.author)
		}
	})

	t.Run("internal error", func(t *testing.T) {
		fn := f.handler.command("test", repPattern, func(context.Context, request) (interface{}, error) {
			return nil, errors.New("boom")
		})
		if s := text(t, fn, message(t, 42, ".rep")); s != internalErrorMessage {
			t.Errorf("Unexpected reply %q", s)
		}
	})

	t.Run("no reply", func(t *testing.T) {
		fn := f.handler.command("test", repPattern, func(context.Context, request) (interface{}, error) {
			return nil, nil
		})
		res, err := fn(context.Background(), message(t, 42, ".rep"))
		if err != nil || res != nil {
			t.Errorf("Expected no response, got %+v and %+v", res, err)
		}
	})
}

func TestHandler_programLog(t *testing.T) {
	t.Run("failure is ignored", func(t *testing.T) {
		f := newFixture(t)
		f.guild.sendFunc = func(int64, string) error {
			return errors.New("missing access")
		}
		f.handler.programLog(context.Background(), "hello")
		if len(f.guild.sentTo(logChannel)) != 0 {
			t.Error("Expected nothing to be recorded")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		h := NewHandler(Config{}, nil, nil, nil)
		h.programLog(context.Background(), "hello")
		if h.config.MaxAttachmentSize != 8<<20 {
			t.Errorf("Unexpected default attachment size %d", h.config.MaxAttachmentSize)
		}
	})
}

func TestTarget(t *testing.T) {
	in := mention(message(t, 42, ".rep check <@!43>"), 43, "someone")
	req := request{input: in, args: []string{"check", "<@!43>", "oops"}}

	id, name, err := target(req, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if id != 43 || name != "someone" {
		t.Errorf("Unexpected target %d %q", id, name)
	}

	if _, _, err := target(req, 2); err == nil {
		t.Error("Expected an error for a non mention")
	}
}

func TestNumber(t *testing.T) {
	req := request{args: []string{"10", "-1", "ten"}}

	if n, err := number(req, 0, "amount"); err != nil || n != 10 {
		t.Errorf("Unexpected result %d, %+v", n, err)
	}
	for _, i := range []int{1, 2, 3} {
		_, err := number(req, i, "amount")
		msg, _ := userMessage(err)
		if msg != "The amount must be a whole number." {
			t.Errorf("Unexpected message %q for argument %d", msg, i)
		}
	}
}

func TestHandler_Props(t *testing.T) {
	f := newFixture(t)

	props, err := f.handler.Props()
	if err != nil {
		t.Fatalf("Unexpected error: %+v", err)
	}
	if len(props) != 9 {
		t.Errorf("Expected 9 commands, got %d", len(props))
	}
}

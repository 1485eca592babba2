package gangs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/store"
	"github.com/oklahomer/go-kasumi/logger"
	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
)

// Guild performs the Discord side effects of gang operations. IDs are
// Discord snowflakes.
type Guild interface {
	CreateRole(ctx context.Context, name string, color int, reason string) (int64, error)
	CreateGangChannel(ctx context.Context, name string, creator, role int64) (int64, error)
	AddRole(ctx context.Context, userID, roleID int64, reason string) error
	RemoveRole(ctx context.Context, userID, roleID int64, reason string) error
	Send(ctx context.Context, channelID int64, content string) error
	// SendDuesNotice posts content with a pay button for gang and pins it.
	SendDuesNotice(ctx context.Context, channelID int64, content string, gang string) error
}

// Config contains the gang war settings.
type Config struct {
	// Announcements is the channel where gang wide news is posted.
	Announcements int64 `env:"GANG_ANNOUNCEMENTS_CHANNEL_ID"`
	// TimeZone is the zone the dues schedules run in.
	TimeZone string `env:"GANG_TIME_ZONE" envDefault:"America/Detroit"`
	// DuesStartSchedule charges dues. Standard five field cron format.
	DuesStartSchedule string `env:"GANG_DUES_START_SCHEDULE" envDefault:"0 0 1 * *"`
	// DuesEndSchedule removes members that did not pay.
	DuesEndSchedule string `env:"GANG_DUES_END_SCHEDULE" envDefault:"0 0 8 * *"`
	// RaidSchedule resolves expired raids.
	RaidSchedule string `env:"GANG_RAID_SCHEDULE" envDefault:"*/15 * * * *"`
	// ShakedownSchedule runs a random shakedown.
	ShakedownSchedule string `env:"GANG_SHAKEDOWN_SCHEDULE" envDefault:"0 12 * * *"`
	// CatalogTTL is how long item catalog lookups are cached.
	CatalogTTL time.Duration `env:"GANG_CATALOG_TTL" envDefault:"10m"`
}

// NewConfig returns a Config with the default schedules.
func NewConfig() *Config {
	return &Config{
		TimeZone:          "America/Detroit",
		DuesStartSchedule: "0 0 1 * *",
		DuesEndSchedule:   "0 0 8 * *",
		RaidSchedule:      "*/15 * * * *",
		ShakedownSchedule: "0 12 * * *",
		CatalogTTL:        10 * time.Minute,
	}
}

// Schedule prefixes spec with the configured time zone for cron parsers.
func (c *Config) Schedule(spec string) string {
	if c.TimeZone == "" {
		return spec
	}
	return "CRON_TZ=" + c.TimeZone + " " + spec
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRandom replaces the [0, 1) source used by shakedowns.
func WithRandom(random func() float64) Option {
	return func(s *Service) {
		s.random = random
	}
}

// Service runs the gang war operations.
type Service struct {
	config   *Config
	db       *store.DB
	guild    Guild
	blobs    blob.Store
	catalog  *cache.Cache
	duesEnd  cron.Schedule
	location *time.Location
	now      func() time.Time
	random   func() float64
}

// NewService creates a Service. It fails when the time zone or the dues end
// schedule cannot be parsed.
func NewService(config *Config, db *store.DB, guild Guild, blobs blob.Store, options ...Option) (*Service, error) {
	location := time.UTC
	if config.TimeZone != "" {
		loc, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", config.TimeZone, err)
		}
		location = loc
	}

	duesEnd, err := cron.ParseStandard(config.Schedule(config.DuesEndSchedule))
	if err != nil {
		return nil, fmt.Errorf("parse dues end schedule: %w", err)
	}

	svc := &Service{
		config:   config,
		db:       db,
		guild:    guild,
		blobs:    blobs,
		catalog:  cache.New(config.CatalogTTL, 2*config.CatalogTTL),
		duesEnd:  duesEnd,
		location: location,
		now:      time.Now,
		random:   rand.Float64,
	}
	for _, opt := range options {
		opt(svc)
	}
	return svc, nil
}

// announce posts to the announcements channel, logging failures.
func (s *Service) announce(ctx context.Context, content string) {
	s.notify(ctx, s.config.Announcements, content)
}

func (s *Service) notify(ctx context.Context, channelID int64, content string) {
	if channelID == 0 {
		return
	}
	if err := s.guild.Send(ctx, channelID, content); err != nil {
		logger.Errorf("Failed to send message to channel %d: %+v", channelID, err)
	}
}

// member returns the user's membership. found is false for users outside
// any gang.
func member(ctx context.Context, q store.Querier, userID int64) (m Member, found bool, err error) {
	err = q.QueryRow(ctx,
		"SELECT user_id, gang, paid, leader, leadership FROM gang_members WHERE user_id = ?", userID,
	).Scan(&m.UserID, &m.Gang, &m.Paid, &m.Leader, &m.Leadership)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, false, nil
	}
	if err != nil {
		return Member{}, false, fmt.Errorf("select member: %w", err)
	}
	return m, true, nil
}

// leadership returns the membership of a user in a gang's leadership, or
// reject when the user is not.
func leadership(ctx context.Context, q store.Querier, userID int64, reject error) (Member, error) {
	m, found, err := member(ctx, q, userID)
	if err != nil {
		return Member{}, err
	}
	if !found || !m.InLeadership() {
		return Member{}, reject
	}
	return m, nil
}

const gangColumns = "name, color, leader, role, channel, control, join_base, join_slope, upkeep_base, upkeep_slope, all_paid, " +
	"(SELECT COUNT(*) FROM gang_members WHERE gang_members.gang = gangs.name)"

func scanGang(row interface{ Scan(...any) error }) (Gang, error) {
	var g Gang
	err := row.Scan(&g.Name, &g.Color, &g.Leader, &g.Role, &g.Channel, &g.Control,
		&g.JoinBase, &g.JoinSlope, &g.UpkeepBase, &g.UpkeepSlope, &g.AllPaid, &g.Members)
	return g, err
}

// gang loads a gang by name. found is false when it does not exist.
func gang(ctx context.Context, q store.Querier, name string) (g Gang, found bool, err error) {
	g, err = scanGang(q.QueryRow(ctx, "SELECT "+gangColumns+" FROM gangs WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return Gang{}, false, nil
	}
	if err != nil {
		return Gang{}, false, fmt.Errorf("select gang: %w", err)
	}
	return g, true, nil
}

func gangs(ctx context.Context, q store.Querier, where string, args ...any) ([]Gang, error) {
	rows, err := q.Query(ctx, "SELECT "+gangColumns+" FROM gangs "+where+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("select gangs: %w", err)
	}
	defer rows.Close()

	var out []Gang
	for rows.Next() {
		g, err := scanGang(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gang: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gangs: %w", err)
	}
	return out, nil
}

// addControl adds delta, which may be negative, to a gang's control. A
// deduction the gang cannot cover fails with ok false.
func addControl(ctx context.Context, q store.Querier, gang string, delta int) (control int, ok bool, err error) {
	err = q.QueryRow(ctx,
		"UPDATE gangs SET control = control + ? WHERE name = ? AND control + ? >= 0 RETURNING control",
		delta, gang, delta,
	).Scan(&control)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("update control: %w", err)
	}
	return control, true, nil
}

// Mention formats a user mention.
func Mention(userID int64) string {
	return fmt.Sprintf("<@%d>", userID)
}

// RoleMention formats a role mention.
func RoleMention(roleID int64) string {
	return fmt.Sprintf("<@&%d>", roleID)
}

// timestamp formats t as a Discord timestamp, e.g. style "F" or "R".
func timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// Package commands wires the economy services to go-sarah commands and
// scheduled tasks.
package commands

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/charbot/charbot/internal/metrics"
	"github.com/charbot/charbot/internal/reputation"
	"github.com/oklahomer/go-kasumi/logger"
	"github.com/oklahomer/go-sarah/v4"
)

// Generic reply for failures that are not the member's fault.
const internalErrorMessage = "Something went wrong, try again later."

// Notifier posts messages to a channel. *discord.Guild satisfies it.
type Notifier interface {
	Send(ctx context.Context, channelID int64, content string) error
}

// Config contains command settings.
type Config struct {
	// ModeratorRoles may run the moderation commands.
	ModeratorRoles []int64
	// ProgramLogs receives an audit trail of rep changes. Zero disables it.
	ProgramLogs int64
	// MaxAttachmentSize caps downloaded banner backgrounds.
	MaxAttachmentSize int64
}

// Option customizes a Handler.
type Option func(*Handler)

// WithHTTPClient replaces the client used to download attachments.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		h.client = client
	}
}

// Handler holds the dependencies shared by all commands.
type Handler struct {
	config Config
	reps   *reputation.Service
	gangs  *gangs.Service
	logs   Notifier
	client *http.Client
}

// NewHandler creates a Handler.
func NewHandler(config Config, reps *reputation.Service, gangService *gangs.Service, logs Notifier, options ...Option) *Handler {
	if config.MaxAttachmentSize <= 0 {
		config.MaxAttachmentSize = 8 << 20
	}
	h := &Handler{
		config: config,
		reps:   reps,
		gangs:  gangService,
		logs:   logs,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// request is a parsed command invocation.
type request struct {
	input  sarah.Input
	author discord.Author
	args   []string
}

// arg returns the i-th argument or an empty string.
func (r request) arg(i int) string {
	if i < len(r.args) {
		return r.args[i]
	}
	return ""
}

// rest joins the arguments from i on.
func (r request) rest(i int) string {
	if i >= len(r.args) {
		return ""
	}
	return strings.Join(r.args[i:], " ")
}

type action func(ctx context.Context, req request) (interface{}, error)

// usageError is a reply explaining how to call a command.
type usageError struct {
	message string
}

func (e *usageError) Error() string {
	return e.message
}

func usage(message string) error {
	return &usageError{message: message}
}

// userMessage extracts the chat message of errors caused by the member.
func userMessage(err error) (string, bool) {
	var (
		gangErr  *gangs.UserError
		repErr   *reputation.UserError
		usageErr *usageError
	)
	switch {
	case errors.As(err, &gangErr):
		return gangErr.Message, true
	case errors.As(err, &repErr):
		return repErr.Message, true
	case errors.As(err, &usageErr):
		return usageErr.message, true
	case errors.Is(err, reputation.ErrNoUser):
		return "You haven't gained any rep yet.", true
	default:
		return "", false
	}
}

// command adapts fn to a sarah command function. Arguments are the
// whitespace separated words following pattern.
func (h *Handler) command(identifier string, pattern *regexp.Regexp, fn action) func(context.Context, sarah.Input) (*sarah.CommandResponse, error) {
	return func(ctx context.Context, input sarah.Input) (*sarah.CommandResponse, error) {
		req := request{input: input}
		if pattern != nil {
			req.args = strings.Fields(sarah.StripMessage(pattern, input.Message()))
		}

		author, err := discord.Sender(input)
		if err != nil {
			return nil, err
		}
		req.author = author

		content, err := fn(ctx, req)
		return h.reply(input, identifier, content, err)
	}
}

func (h *Handler) reply(input sarah.Input, identifier string, content interface{}, err error) (*sarah.CommandResponse, error) {
	outcome := "ok"
	if err != nil {
		if msg, ok := userMessage(err); ok {
			outcome = "rejected"
			content = msg
		} else {
			outcome = "error"
			logger.Errorf("Command %s failed: %+v", identifier, err)
			content = internalErrorMessage
		}
	}
	metrics.CommandsHandled.WithLabelValues(identifier, outcome).Inc()

	switch content := content.(type) {
	case nil:
		return nil, nil
	case *sarah.CommandResponse:
		return content, nil
	default:
		return discord.NewResponse(input, content)
	}
}

// moderator rejects members without a moderator role.
func (h *Handler) moderator(req request) error {
	if req.author.HasAnyRole(h.config.ModeratorRoles) {
		return nil
	}
	return usage("You are not allowed to use this command.")
}

// programLog posts an audit line. Failures are only logged.
func (h *Handler) programLog(ctx context.Context, content string) {
	if h.config.ProgramLogs == 0 || h.logs == nil {
		return
	}
	if err := h.logs.Send(ctx, h.config.ProgramLogs, content); err != nil {
		logger.Warnf("Failed to post program log: %+v", err)
	}
}

// target parses a member mention argument and finds a display name for it.
func target(req request, i int) (int64, string, error) {
	raw := req.arg(i)
	id, err := discord.ParseMention(raw)
	if err != nil {
		return 0, "", usage("Mention a member, e.g. @someone.")
	}
	name := raw
	if in, ok := req.input.(*discord.Input); ok {
		for _, u := range in.Event.Mentions {
			if u.ID == discord.FormatSnowflake(id) {
				name = u.Username
			}
		}
	}
	return id, name, nil
}

// number parses a non negative integer argument.
func number(req request, i int, what string) (int, error) {
	n, err := strconv.Atoi(req.arg(i))
	if err != nil || n < 0 {
		return 0, usage("The " + what + " must be a whole number.")
	}
	return n, nil
}

// Props returns the command props of every command.
func (h *Handler) Props() ([]*sarah.CommandProps, error) {
	builders := []*sarah.CommandPropsBuilder{
		h.repProps(),
		h.poolProps(),
		h.gangProps(),
		h.duesButtonProps(),
		h.itemProps(),
		h.raidProps(),
		h.territoryProps(),
		h.bannerProps(),
		h.shakedownProps(),
	}

	props := make([]*sarah.CommandProps, 0, len(builders))
	for _, b := range builders {
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func newProps(identifier string, pattern *regexp.Regexp) *sarah.CommandPropsBuilder {
	return sarah.NewCommandPropsBuilder().
		BotType(discord.DISCORD).
		Identifier(identifier).
		MatchPattern(pattern)
}

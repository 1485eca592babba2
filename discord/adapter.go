package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/oklahomer/go-kasumi/logger"
	"github.com/oklahomer/go-sarah/v4"
)

const (
	// DISCORD is a designated sarah.BotType for Discord integration.
	DISCORD sarah.BotType = "discord"
)

// session is an internal interface that abstracts the discordgo.Session methods
// used by the Adapter and Guild. This allows mocking the session in tests.
// *discordgo.Session satisfies this interface.
type session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// ChannelID represents a Discord channel as sarah.OutputDestination.
type ChannelID string

var _ sarah.OutputDestination = ChannelID("")

// InteractionDestination replies to a component interaction. Replies are only
// visible to the member who pressed the component.
type InteractionDestination struct {
	Interaction *discordgo.Interaction
}

var _ sarah.OutputDestination = (*InteractionDestination)(nil)

// AdapterOption defines a function signature for Adapter's functional options.
type AdapterOption func(adapter *Adapter)

// WithSession creates an AdapterOption with the given *discordgo.Session.
// If this option is not given, NewAdapter creates a new session from Config.Token.
func WithSession(session *discordgo.Session) AdapterOption {
	return func(adapter *Adapter) {
		adapter.session = session
	}
}

// Adapter is a sarah.Adapter implementation for Discord.
type Adapter struct {
	config  *Config
	session session
}

var _ sarah.Adapter = (*Adapter)(nil)

// NewAdapter creates a new Adapter with the given Config and options.
func NewAdapter(config *Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config: config,
	}

	for _, opt := range options {
		opt(adapter)
	}

	if adapter.session == nil {
		if config.Token == "" {
			return nil, ErrEmptyToken
		}

		s, err := discordgo.New("Bot " + config.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		s.Identify.Intents = config.Intents
		adapter.session = s
	}

	return adapter, nil
}

// BotType returns a designated BotType for Discord integration.
func (a *Adapter) BotType() sarah.BotType {
	return DISCORD
}

// Guild returns a Guild that performs side effects in the given guild
// through the adapter's session.
func (a *Adapter) Guild(guildID, categoryID int64) *Guild {
	return &Guild{
		session:    a.session,
		guildID:    FormatSnowflake(guildID),
		categoryID: FormatSnowflake(categoryID),
	}
}

// Run establishes a connection with Discord and blocks until the context is canceled.
func (a *Adapter) Run(ctx context.Context, enqueueInput func(sarah.Input) error, notifyErr func(error)) {
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(s, m, enqueueInput)
	})
	a.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.handleInteraction(i, enqueueInput)
	})

	err := a.session.Open()
	if err != nil {
		notifyErr(sarah.NewBotNonContinuableError(fmt.Sprintf("failed to open Discord session: %s", err.Error())))
		return
	}

	<-ctx.Done()

	if closeErr := a.session.Close(); closeErr != nil {
		logger.Errorf("Failed to close Discord session: %+v", closeErr)
	}
}

func (a *Adapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate, enqueueInput func(sarah.Input) error) {
	input, err := MessageToInput(m)
	if err != nil {
		logger.Debugf("Skipping message: %+v", err)
		return
	}

	// Ignore messages from the bot itself.
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	var enqueueErr error
	trimmed := strings.TrimSpace(input.Message())
	if a.config.HelpCommand != "" && trimmed == a.config.HelpCommand {
		enqueueErr = enqueueInput(sarah.NewHelpInput(input))
	} else if a.config.AbortCommand != "" && trimmed == a.config.AbortCommand {
		enqueueErr = enqueueInput(sarah.NewAbortInput(input))
	} else {
		enqueueErr = enqueueInput(input)
	}
	if enqueueErr != nil {
		logger.Errorf("Failed to enqueue input: %+v", enqueueErr)
	}
}

func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate, enqueueInput func(sarah.Input) error) {
	input, err := InteractionToInput(i)
	if err != nil {
		logger.Debugf("Skipping interaction: %+v", err)
		return
	}

	if err := enqueueInput(input); err != nil {
		logger.Errorf("Failed to enqueue interaction: %+v", err)
	}
}

// SendMessage sends the given message to Discord.
func (a *Adapter) SendMessage(ctx context.Context, output sarah.Output) {
	switch destination := output.Destination().(type) {
	case ChannelID:
		a.sendToChannel(ctx, string(destination), output.Content())

	case *InteractionDestination:
		a.respond(ctx, destination.Interaction, output.Content())

	default:
		logger.Errorf("Destination is not instance of ChannelID or *InteractionDestination. %#v.", output.Destination())
	}
}

func (a *Adapter) sendToChannel(ctx context.Context, channelID string, content interface{}) {
	switch content := content.(type) {
	case string:
		_, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
		if err != nil {
			logger.Errorf("Failed to send message to %s: %+v", channelID, err)
		}

	case *discordgo.MessageSend:
		_, err := a.session.ChannelMessageSendComplex(channelID, content, discordgo.WithContext(ctx))
		if err != nil {
			logger.Errorf("Failed to send complex message to %s: %+v", channelID, err)
		}

	case *sarah.CommandHelps:
		_, err := a.session.ChannelMessageSend(channelID, helpText(content), discordgo.WithContext(ctx))
		if err != nil {
			logger.Errorf("Failed to send help message to %s: %+v", channelID, err)
		}

	default:
		logger.Warnf("Unexpected output content %#v", content)
	}
}

func (a *Adapter) respond(ctx context.Context, interaction *discordgo.Interaction, content interface{}) {
	var data *discordgo.InteractionResponseData
	switch content := content.(type) {
	case string:
		data = &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral}

	case *discordgo.InteractionResponseData:
		data = content

	default:
		logger.Warnf("Unexpected interaction output content %#v", content)
		return
	}

	err := a.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		logger.Errorf("Failed to respond to interaction %s: %+v", interaction.ID, err)
	}
}

func helpText(helps *sarah.CommandHelps) string {
	lines := make([]string, 0, len(*helps))
	for _, h := range *helps {
		lines = append(lines, fmt.Sprintf("**%s**: %s", h.Identifier, h.Instruction))
	}
	return strings.Join(lines, "\n")
}

// Input is a sarah.Input implementation that represents a received Discord message.
type Input struct {
	Event     *discordgo.MessageCreate
	senderKey string
	text      string
	sentAt    time.Time
	channelID ChannelID
}

var _ sarah.Input = (*Input)(nil)

// SenderKey returns a unique key representing the sender in the channel.
func (i *Input) SenderKey() string {
	return i.senderKey
}

// Message returns the received text.
func (i *Input) Message() string {
	return i.text
}

// SentAt returns when the message was sent.
func (i *Input) SentAt() time.Time {
	return i.sentAt
}

// ReplyTo returns the Discord channel where the message was received.
func (i *Input) ReplyTo() sarah.OutputDestination {
	return i.channelID
}

// MessageToInput converts a *discordgo.MessageCreate event to *Input.
func MessageToInput(m *discordgo.MessageCreate) (*Input, error) {
	if m.Author == nil {
		return nil, ErrNoAuthor
	}

	return &Input{
		Event:     m,
		senderKey: fmt.Sprintf("%s_%s", m.ChannelID, m.Author.ID),
		text:      m.Content,
		sentAt:    m.Timestamp,
		channelID: ChannelID(m.ChannelID),
	}, nil
}

// ComponentInput is a sarah.Input implementation for a pressed message
// component. Message returns the component's custom id.
type ComponentInput struct {
	Event     *discordgo.InteractionCreate
	senderKey string
	customID  string
	sentAt    time.Time
}

var _ sarah.Input = (*ComponentInput)(nil)

// SenderKey returns a unique key representing the member in the channel.
// Button presses never share a key with the member's messages, so a pending
// conversation only receives messages.
func (i *ComponentInput) SenderKey() string {
	return i.senderKey
}

// Message returns the custom id of the pressed component.
func (i *ComponentInput) Message() string {
	return i.customID
}

// SentAt returns when the interaction was received.
func (i *ComponentInput) SentAt() time.Time {
	return i.sentAt
}

// ReplyTo returns the interaction so replies are sent as interaction responses.
func (i *ComponentInput) ReplyTo() sarah.OutputDestination {
	return &InteractionDestination{Interaction: i.Event.Interaction}
}

// InteractionToInput converts a message component interaction to *ComponentInput.
// Other interaction types are rejected with ErrUnsupportedInteraction.
func InteractionToInput(i *discordgo.InteractionCreate) (*ComponentInput, error) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return nil, ErrUnsupportedInteraction
	}

	user := interactionUser(i.Interaction)
	if user == nil {
		return nil, ErrNoAuthor
	}

	sentAt, err := discordgo.SnowflakeTimestamp(i.ID)
	if err != nil {
		sentAt = time.Now()
	}

	return &ComponentInput{
		Event:     i,
		senderKey: fmt.Sprintf("component_%s_%s", i.ChannelID, user.ID),
		customID:  i.MessageComponentData().CustomID,
		sentAt:    sentAt,
	}, nil
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// NewResponse creates a *sarah.CommandResponse with the given message.
// Pass RespOption values to customize the response.
func NewResponse(input sarah.Input, message interface{}, options ...RespOption) (*sarah.CommandResponse, error) {
	switch input.(type) {
	case *Input, *ComponentInput:
	default:
		return nil, fmt.Errorf("%T is not a *discord.Input or *discord.ComponentInput", input)
	}

	stash := &respOptions{}
	for _, opt := range options {
		opt(stash)
	}

	return &sarah.CommandResponse{
		Content:     message,
		UserContext: stash.userContext,
	}, nil
}

// RespOption defines a function signature that NewResponse's functional options must satisfy.
type RespOption func(*respOptions)

type respOptions struct {
	userContext *sarah.UserContext
}

// RespWithNext sets a given function as part of the response's *sarah.UserContext.
// The next input from the same user is passed to this function.
func RespWithNext(fnc sarah.ContextualFunc) RespOption {
	return func(options *respOptions) {
		options.userContext = &sarah.UserContext{
			Next: fnc,
		}
	}
}

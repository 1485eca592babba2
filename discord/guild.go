package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/internal/gangs"
)

// Guild performs the guild side effects of the gang economy through the
// session.
type Guild struct {
	session    session
	guildID    string
	categoryID string
}

var _ gangs.Guild = (*Guild)(nil)

// CreateRole creates a colored role.
func (g *Guild) CreateRole(ctx context.Context, name string, color int, reason string) (int64, error) {
	role, err := g.session.GuildRoleCreate(g.guildID, &discordgo.RoleParams{
		Name:  name,
		Color: &color,
	}, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return 0, fmt.Errorf("create role %q: %w", name, err)
	}
	return ParseSnowflake(role.ID)
}

// CreateGangChannel creates a text channel under the configured category that
// only role can see. creator may manage messages and mention everyone in it.
func (g *Guild) CreateGangChannel(ctx context.Context, name string, creator, role int64) (int64, error) {
	channel, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: g.categoryID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				ID:    FormatSnowflake(creator),
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionManageMessages | discordgo.PermissionMentionEveryone,
			},
			{
				ID:    FormatSnowflake(role),
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionEmbedLinks,
			},
			{
				// The @everyone role shares the guild's ID.
				ID:   g.guildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("create channel %q: %w", name, err)
	}
	return ParseSnowflake(channel.ID)
}

// AddRole grants a role to a member.
func (g *Guild) AddRole(ctx context.Context, userID, roleID int64, reason string) error {
	err := g.session.GuildMemberRoleAdd(g.guildID, FormatSnowflake(userID), FormatSnowflake(roleID),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return fmt.Errorf("add role %d to %d: %w", roleID, userID, err)
	}
	return nil
}

// RemoveRole takes a role away from a member.
func (g *Guild) RemoveRole(ctx context.Context, userID, roleID int64, reason string) error {
	err := g.session.GuildMemberRoleRemove(g.guildID, FormatSnowflake(userID), FormatSnowflake(roleID),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return fmt.Errorf("remove role %d from %d: %w", roleID, userID, err)
	}
	return nil
}

// Send posts content to a channel.
func (g *Guild) Send(ctx context.Context, channelID int64, content string) error {
	_, err := g.session.ChannelMessageSend(FormatSnowflake(channelID), content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to %d: %w", channelID, err)
	}
	return nil
}

// SendDuesNotice posts content with a button paying the gang's dues, then
// pins the message.
func (g *Guild) SendDuesNotice(ctx context.Context, channelID int64, content string, gang string) error {
	channel := FormatSnowflake(channelID)
	msg, err := g.session.ChannelMessageSendComplex(channel, &discordgo.MessageSend{
		Content: content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Pay",
						Style:    discordgo.SuccessButton,
						Emoji:    &discordgo.ComponentEmoji{Name: "💰"},
						CustomID: gangs.DuesButtonPrefix + gang,
					},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send dues notice to %d: %w", channelID, err)
	}

	if err := g.session.ChannelMessagePin(channel, msg.ID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("pin dues notice in %d: %w", channelID, err)
	}
	return nil
}

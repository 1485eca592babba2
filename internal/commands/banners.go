package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/discord"
	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/gangs"
	"github.com/dustin/go-humanize"
	"github.com/oklahomer/go-kasumi/logger"
	"github.com/oklahomer/go-sarah/v4"
)

var (
	bannerPattern    = regexp.MustCompile(`^\.banner\b`)
	shakedownPattern = regexp.MustCompile(`^\.shakedown\b`)
)

const bannerUsage = "Usage: .banner request [color:<color>] [gradient] <quote>, .banner status"

func (h *Handler) bannerProps() *sarah.CommandPropsBuilder {
	return newProps("banner", bannerPattern).
		Func(h.command("banner", bannerPattern, h.banner)).
		Instruction("Gang leaders can input .banner request [color:<color>] [gradient] <quote> with an optional " +
			"PNG or JPEG attached to request a profile banner, and .banner status to check it. " +
			"Moderators: .banner status|approve|deny @member")
}

func (h *Handler) banner(ctx context.Context, req request) (interface{}, error) {
	switch req.arg(0) {
	case "request":
		return h.requestBanner(ctx, req)

	case "status":
		userID := req.author.ID
		if req.arg(1) != "" {
			if err := h.moderator(req); err != nil {
				return nil, err
			}
			id, _, err := target(req, 1)
			if err != nil {
				return nil, err
			}
			userID = id
		}
		return h.bannerStatus(ctx, userID)

	case "approve", "deny":
		if err := h.moderator(req); err != nil {
			return nil, err
		}
		userID, _, err := target(req, 1)
		if err != nil {
			return nil, err
		}
		if req.arg(0) == "approve" {
			if _, err := h.gangs.ApproveBanner(ctx, userID); err != nil {
				return nil, err
			}
			h.programLog(ctx, fmt.Sprintf("%s approved the banner of %s.", gangs.Mention(req.author.ID), gangs.Mention(userID)))
			return fmt.Sprintf("Approved the banner of %s.", gangs.Mention(userID)), nil
		}
		if err := h.gangs.DenyBanner(ctx, userID); err != nil {
			return nil, err
		}
		h.programLog(ctx, fmt.Sprintf("%s denied the banner of %s.", gangs.Mention(req.author.ID), gangs.Mention(userID)))
		return fmt.Sprintf("Denied the banner of %s.", gangs.Mention(userID)), nil

	default:
		return nil, usage(bannerUsage)
	}
}

// requestBanner parses the leading color: and gradient options; the
// remaining words are the quote.
func (h *Handler) requestBanner(ctx context.Context, req request) (interface{}, error) {
	br := gangs.BannerRequest{UserID: req.author.ID}
	i := 1
	for ; i < len(req.args); i++ {
		word := req.args[i]
		if name, ok := strings.CutPrefix(strings.ToLower(word), "color:"); ok {
			c, ok := gangs.ParseColor(name)
			if !ok {
				return nil, usage(fmt.Sprintf("%s is not a valid color.", name))
			}
			br.Color = &c
			continue
		}
		if strings.EqualFold(word, "gradient") {
			br.Gradient = true
			continue
		}
		break
	}
	br.Quote = req.rest(i)
	if br.Quote == "" {
		return nil, usage(bannerUsage)
	}

	// Checked before downloading anything.
	if err := h.gangs.AllowedBanner(ctx, req.author.ID); err != nil {
		return nil, err
	}

	data, contentType, err := h.attachment(ctx, req)
	if err != nil {
		return nil, err
	}
	br.Background, br.ContentType = data, contentType

	if _, err := h.gangs.RequestBanner(ctx, br); err != nil {
		return nil, err
	}
	h.programLog(ctx, fmt.Sprintf("%s requested a banner.", gangs.Mention(req.author.ID)))
	return "Your banner has been requested. A moderator will review it soon.", nil
}

// attachment downloads the first attachment of the message, if any.
func (h *Handler) attachment(ctx context.Context, req request) ([]byte, string, error) {
	in, ok := req.input.(*discord.Input)
	if !ok || len(in.Event.Attachments) == 0 {
		return nil, "", nil
	}
	a := in.Event.Attachments[0]
	tooLarge := usage(fmt.Sprintf("The base image can be at most %s.", humanize.IBytes(uint64(h.config.MaxAttachmentSize))))
	if int64(a.Size) > h.config.MaxAttachmentSize {
		return nil, "", tooLarge
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download attachment: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.config.MaxAttachmentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > h.config.MaxAttachmentSize {
		return nil, "", tooLarge
	}

	contentType := a.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return data, contentType, nil
}

func (h *Handler) bannerStatus(ctx context.Context, userID int64) (interface{}, error) {
	b, err := h.gangs.BannerStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := "Pending"
	if b.Approved {
		status = "Approved"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Status", Value: status, Inline: true},
		{Name: "Requested", Value: fmt.Sprintf("<t:%d:R>", b.Requested.Unix()), Inline: true},
	}
	switch {
	case b.Background != "":
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Background", Value: "Image", Inline: true})
	case b.Gradient:
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Background", Value: fmt.Sprintf("Gradient to #%06X", b.Color), Inline: true})
	default:
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Background", Value: fmt.Sprintf("#%06X", b.Color), Inline: true})
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Banner request",
		Description: fmt.Sprintf("%s\n> %s", gangs.Mention(b.UserID), b.Quote),
		Color:       embedColor,
		Fields:      fields,
	}
	send := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}

	if b.Background != "" {
		obj, err := h.gangs.BannerBackground(ctx, b)
		switch {
		case errors.Is(err, blob.ErrNotFound):
			logger.Warnf("Banner background %s is missing", b.Background)
		case err != nil:
			return nil, err
		default:
			send.Files = []*discordgo.File{{
				Name:        "background.png",
				ContentType: obj.ContentType,
				Reader:      bytes.NewReader(obj.Data),
			}}
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://background.png"}
		}
	}
	return send, nil
}

func (h *Handler) shakedownProps() *sarah.CommandPropsBuilder {
	return newProps("shakedown", shakedownPattern).
		Func(h.command("shakedown", shakedownPattern, h.shakedown)).
		Instruction("Moderators: input .shakedown to see the shakedown chance, or .shakedown now to run one.")
}

func (h *Handler) shakedown(ctx context.Context, req request) (interface{}, error) {
	if err := h.moderator(req); err != nil {
		return nil, err
	}
	switch req.arg(0) {
	case "":
		chance, err := h.gangs.ShakedownChance(ctx)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("The chance of a shakedown is currently %.0f%%.", chance*100), nil

	case "now":
		found, err := h.gangs.Shakedown(ctx, true)
		if err != nil {
			return nil, err
		}
		h.programLog(ctx, fmt.Sprintf("%s forced a shakedown, %d item(s) confiscated.", gangs.Mention(req.author.ID), found))
		return fmt.Sprintf("The shakedown confiscated %d item(s).", found), nil

	default:
		return nil, usage("Usage: .shakedown, .shakedown now")
	}
}

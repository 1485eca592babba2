package commands

import (
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/charbot/charbot/internal/gangs"
	"golang.org/x/text/language"
	textmessage "golang.org/x/text/message"
)

// Discord accepts at most this many embeds per message.
const maxEmbeds = 10

const embedColor = 0x5865F2

var printer = textmessage.NewPrinter(language.English)

// formatNumber groups digits, e.g. 12,500.
func formatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// paginate spreads fields over embeds of gangs.PageSize fields. Fields past
// the embed limit are dropped and noted in the last footer.
func paginate(title string, fields []*discordgo.MessageEmbedField) []*discordgo.MessageEmbed {
	var embeds []*discordgo.MessageEmbed
	for page := range slices.Chunk(fields, gangs.PageSize) {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:  title,
			Color:  embedColor,
			Fields: page,
		})
	}
	if len(embeds) > maxEmbeds {
		embeds = embeds[:maxEmbeds]
	}
	for i, e := range embeds {
		e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", i+1, len(embeds))}
	}
	if shown := len(embeds) * gangs.PageSize; shown < len(fields) {
		last := embeds[len(embeds)-1]
		last.Footer.Text += fmt.Sprintf(" (%d more not shown)", len(fields)-shown)
	}
	return embeds
}

// itemEmbeds lists items, with quantities when listing an inventory.
func itemEmbeds(title string, items []gangs.Item, owned bool) *discordgo.MessageSend {
	fields := make([]*discordgo.MessageEmbedField, 0, len(items))
	for _, it := range items {
		name := it.Name
		if owned {
			name = fmt.Sprintf("%s (x%d)", it.Name, it.Quantity)
		}
		value := fmt.Sprintf("Benefit: %s, Value: %s", it.Benefit, formatNumber(it.Value))
		if it.Description != "" {
			value = it.Description + "\n" + value
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: name, Value: value})
	}
	return &discordgo.MessageSend{Embeds: paginate(title, fields)}
}

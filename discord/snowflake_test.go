package discord

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestParseMention(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		valid    bool
	}{
		{"<@123>", 123, true},
		{"<@!123>", 123, true},
		{" 456 ", 456, true},
		{"<@&123>", 0, false},
		{"someone", 0, false},
		{"-5", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseMention(tt.input)
			if !tt.valid {
				if !errors.Is(err, ErrInvalidSnowflake) {
					t.Errorf("Expected ErrInvalidSnowflake, got %+v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %+v", err)
			}
			if id != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, id)
			}
		})
	}
}

func TestFormatSnowflake(t *testing.T) {
	if got := FormatSnowflake(0); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
	if got := FormatSnowflake(1234); got != "1234" {
		t.Errorf("Expected %q, got %q", "1234", got)
	}
}

func TestSender(t *testing.T) {
	t.Run("guild message", func(t *testing.T) {
		input, err := MessageToInput(&discordgo.MessageCreate{
			Message: &discordgo.Message{
				ChannelID: "1",
				Timestamp: time.Now(),
				Author:    &discordgo.User{ID: "42", Username: "member"},
				Member:    &discordgo.Member{Roles: []string{"7", "bogus", "8"}},
			},
		})
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}

		author, err := Sender(input)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if author.ID != 42 || author.Name != "member" || !slices.Equal(author.Roles, []int64{7, 8}) {
			t.Errorf("Unexpected author %+v", author)
		}
		if !author.HasAnyRole([]int64{1, 8}) || author.HasAnyRole([]int64{9}) {
			t.Error("Unexpected role check")
		}
	})

	t.Run("component", func(t *testing.T) {
		input, err := InteractionToInput(componentEvent("dues_Red"))
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}

		author, err := Sender(input)
		if err != nil {
			t.Fatalf("Unexpected error: %+v", err)
		}
		if author.ID != 42 || !slices.Equal(author.Roles, []int64{7, 8}) {
			t.Errorf("Unexpected author %+v", author)
		}
	})

	t.Run("malformed author id", func(t *testing.T) {
		input := &Input{Event: &discordgo.MessageCreate{Message: &discordgo.Message{Author: &discordgo.User{ID: "x"}}}}
		if _, err := Sender(input); !errors.Is(err, ErrInvalidSnowflake) {
			t.Errorf("Expected ErrInvalidSnowflake, got %+v", err)
		}
	})
}

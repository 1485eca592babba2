package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklahomer/go-sarah/v4"
)

// ParseSnowflake parses a Discord ID.
func ParseSnowflake(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSnowflake, s)
	}
	return id, nil
}

// FormatSnowflake formats a Discord ID. Zero formats as an empty string.
func FormatSnowflake(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// ParseMention accepts a user mention (<@id> or <@!id>) or a bare ID.
func ParseMention(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimPrefix(strings.TrimSuffix(s[2:], ">"), "!")
	}
	return ParseSnowflake(s)
}

// Author identifies who sent an input.
type Author struct {
	ID    int64
	Name  string
	Roles []int64
}

// HasAnyRole reports whether the author holds one of roles.
func (a Author) HasAnyRole(roles []int64) bool {
	for _, held := range a.Roles {
		for _, r := range roles {
			if held == r {
				return true
			}
		}
	}
	return false
}

// Sender extracts the author of a message or component input. Roles are only
// known for inputs received in a guild.
func Sender(input sarah.Input) (Author, error) {
	switch in := input.(type) {
	case *Input:
		if in.Event.Author == nil {
			return Author{}, ErrNoAuthor
		}
		author := Author{Name: in.Event.Author.Username}
		if in.Event.Member != nil {
			author.Roles = parseRoles(in.Event.Member.Roles)
		}
		return withID(author, in.Event.Author.ID)

	case *ComponentInput:
		user := interactionUser(in.Event.Interaction)
		if user == nil {
			return Author{}, ErrNoAuthor
		}
		author := Author{Name: user.Username}
		if in.Event.Member != nil {
			author.Roles = parseRoles(in.Event.Member.Roles)
		}
		return withID(author, user.ID)

	default:
		return Author{}, fmt.Errorf("%T is not a Discord input", input)
	}
}

func withID(author Author, id string) (Author, error) {
	parsed, err := ParseSnowflake(id)
	if err != nil {
		return Author{}, err
	}
	author.ID = parsed
	return author, nil
}

func parseRoles(ids []string) []int64 {
	roles := make([]int64, 0, len(ids))
	for _, id := range ids {
		if role, err := ParseSnowflake(id); err == nil {
			roles = append(roles, role)
		}
	}
	return roles
}

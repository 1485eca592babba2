package discord

import "errors"

// ErrEmptyToken indicates that no token was provided and no session was injected via WithSession.
var ErrEmptyToken = errors.New("token must be set or a session must be provided via WithSession")

// ErrNoAuthor indicates that the given message or interaction has no author.
var ErrNoAuthor = errors.New("message has no author")

// ErrUnsupportedInteraction is returned for interactions other than message components.
var ErrUnsupportedInteraction = errors.New("interaction is not a message component")

// ErrInvalidSnowflake indicates a malformed Discord ID or mention.
var ErrInvalidSnowflake = errors.New("invalid snowflake")

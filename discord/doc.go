// Package discord connects the bot to Discord through go-sarah.
//
// Adapter converts message events and button presses into sarah.Input and
// dispatches sarah.Output as channel messages or interaction replies. Guild
// performs the guild side effects of the gang economy: roles, private gang
// channels and pinned dues notices.
package discord

// Package commands describes slash commands registered with the bot.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command handler with the metadata shown in the Telegram menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are hidden from the menu and rejected for non-admins.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Name returns the command word of text without arguments or bot mention:
// "/lead@cozybot now" -> "/lead".
func Name(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

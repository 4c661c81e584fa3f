// Package handler contains the Discord slash command handlers.
// Handlers see only CommandContext and return a Reply, so they run without a
// gateway connection in tests.
package handler

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext carries the invoking user, place and options of a command.
type CommandContext struct {
	// Command is the slash command name without the leading "/".
	Command string

	// GuildID is empty for direct messages.
	GuildID string

	// ChannelID is the channel the command was used in.
	ChannelID string

	// UserID is the Discord user id of the invoker.
	UserID string

	// Username is the account name, DisplayName the guild-visible name.
	Username    string
	DisplayName string

	// IsAdmin is true when the invoker holds the Administrator permission.
	IsAdmin bool

	Options Options
}

// Name returns the best human-readable name of the invoker.
func (c CommandContext) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Username
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Options indexes the top-level command options by name.
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

// NewOptions indexes opts.
func NewOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) Options {
	out := make(Options, len(opts))
	for _, o := range opts {
		if o != nil {
			out[o.Name] = o
		}
	}
	return out
}

// String returns a string option.
func (o Options) String(name string) (string, bool) {
	opt, ok := o[name]
	if !ok || opt.Value == nil {
		return "", false
	}
	s, ok := opt.Value.(string)
	return s, ok
}

// Int returns an integer option. Discord delivers numbers as JSON floats.
func (o Options) Int(name string) (int, bool) {
	opt, ok := o[name]
	if !ok || opt.Value == nil {
		return 0, false
	}
	switch v := opt.Value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	default:
		return 0, false
	}
}

// Channel returns a channel option as a channel id.
func (o Options) Channel(name string) (string, bool) {
	id, ok := o.String(name)
	return id, ok && id != ""
}

// Focused returns the option the user is typing into during autocomplete.
func (o Options) Focused() (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range o {
		if opt.Focused {
			return opt, true
		}
	}
	return nil, false
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLY
// ══════════════════════════════════════════════════════════════════════════════

// Reply is the response to a command.
type Reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed

	// Ephemeral replies are visible to the invoker only.
	Ephemeral bool

	// Announcement, when set, is posted to AnnounceChannel after the reply.
	Announcement    string
	AnnounceChannel string
}

// Text builds a public text reply.
func Text(content string) *Reply {
	return &Reply{Content: content}
}

// Private builds an ephemeral text reply.
func Private(content string) *Reply {
	return &Reply{Content: content, Ephemeral: true}
}

// Embed builds a public embed reply.
func Embed(embed *discordgo.MessageEmbed) *Reply {
	return &Reply{Embeds: []*discordgo.MessageEmbed{embed}}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// CommandHandler handles one slash command.
type CommandHandler interface {
	Handle(ctx context.Context, cmd CommandContext) (*Reply, error)
}

// AutocompleteHandler suggests values for the focused option.
type AutocompleteHandler interface {
	Autocomplete(ctx context.Context, cmd CommandContext, typed string) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd CommandContext) (*Reply, error)

// Handle calls f.
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	return f(ctx, cmd)
}

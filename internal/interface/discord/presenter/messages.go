package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// Тексты ответов на команды.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// SetupHint - ответ, пока на сервере не выбран канал бота.
	SetupHint = "⚠️ **No channel configured!** A server administrator needs to set up a channel for the bot using `/setchannel`.\n\n" +
		"Once configured, I'll only respond to commands in that specific channel."

	AdminOnly   = "❌ You need Administrator permissions to use this command."
	GuildOnly   = "❌ This command can only be used in a server."
	NotStarted  = "❌ This server hasn't started a step battle yet!\n\nAn administrator needs to use `/startstepping` first."
	NotOpenYet  = "⏳ The first step battle period hasn't begun yet. Submit your steps once it starts."
	GenericFail = "There was an error while executing this command!"
	Busy        = "⏳ Someone else is saving steps for you right now. Please try again in a moment."
	NoGapData   = "📊 Not enough data yet. Submit steps on at least two different days to see your gap trend."

	// ScheduleDisabled - ответ /schedule при выключенной публикации.
	ScheduleDisabled = "⏸️ Scheduled leaderboard posting is disabled on this server."
)

// WrongChannel - ответ на команду вне настроенного канала.
func WrongChannel(channelID string) string {
	return fmt.Sprintf("❌ **Wrong channel!** This command can only be used in <#%s>.\n\n"+
		"Please use the bot commands in the designated channel.", channelID)
}

// RateLimited - ответ при превышении частоты команд.
func RateLimited(retryAfter time.Duration) string {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("⏳ Too many commands! Try again in %d seconds.", seconds)
}

// ─────────────────────────────────────────────────────────────────────────────
// Channel setup
// ─────────────────────────────────────────────────────────────────────────────

// ChannelSet - ответ /setchannel.
func ChannelSet(channelID string) string {
	return fmt.Sprintf("✅ Successfully set <#%s> as the bot's channel!\n\n"+
		"From now on, I will only respond to commands and post leaderboards in this channel.", channelID)
}

// ChannelActivated - сообщение в новый канал бота.
const ChannelActivated = "🎉 **Step Battle Bot is now active in this channel!**\n\n" +
	"I'll respond to commands and post leaderboards here. Use `/leaderboard` to see the current standings!"

// Started - ответ /startstepping.
func Started(channelID string) string {
	return fmt.Sprintf("enabled in <#%s>", channelID)
}

// StartAnnouncement - публичное сообщение о старте соревнования.
func StartAnnouncement(firstPost time.Time) string {
	return fmt.Sprintf("big steppers has entered the chat\n\nfirst leaderboard drops at %s.", Timestamp(firstPost, "F"))
}

// AnnouncementFailed - предупреждение, если объявление не удалось отправить.
func AnnouncementFailed(channelID string) string {
	return fmt.Sprintf("⚠️ Channel configured successfully, but I couldn't send a confirmation message to <#%s>. "+
		"This might indicate a permission issue.", channelID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Linking
// ─────────────────────────────────────────────────────────────────────────────

// DeviceNotFound - устройство ещё не отправляло шаги.
func DeviceNotFound(device string) string {
	return fmt.Sprintf("❌ Apple device name %q not found. Please log steps first by using the Apple Shortcut.", device)
}

// AlreadyLinked - пользователь уже привязан к устройству.
func AlreadyLinked(device string) string {
	return fmt.Sprintf("❌ You are already linked to Apple device name %q. You cannot link to multiple names.", device)
}

// DeviceTaken - устройство принадлежит другому пользователю.
func DeviceTaken(device string) string {
	return fmt.Sprintf("❌ Apple device name %q is already linked to another Discord user.", device)
}

// LinkedEmbed - подтверждение привязки.
func LinkedEmbed(device string, steps int, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ Account Linked Successfully!",
		Description: fmt.Sprintf("Your Discord account has been linked to Apple device name %q.", device),
		Color:       ColorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📊 Current Steps", Value: shared.FormatSteps(steps) + " steps", Inline: true},
			{Name: "🔗 Link Status", Value: "✅ Active", Inline: true},
		},
		Timestamp: at.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: FooterText},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule and reminders
// ─────────────────────────────────────────────────────────────────────────────

// Timestamp форматирует метку времени Discord (<t:unix:style>).
func Timestamp(t time.Time, style string) string {
	if style == "" {
		style = string(timeutil.StyleShortDateTime)
	}
	return timeutil.DiscordTimestamp(t, timeutil.DiscordStyle(style[0]))
}

// ScheduleText - ответ /schedule.
func ScheduleText(res *query.GetPostingScheduleResult) string {
	if res == nil || !res.Enabled || len(res.Posts) == 0 {
		return ScheduleDisabled
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 **Leaderboard schedule:** %s\n\n", res.Summary)
	post := res.Posts[0]
	fmt.Fprintf(&sb, "🏁 Next leaderboard: %s (%s)\n", Timestamp(post.At, "F"), post.TimeUntil)
	if len(res.Reminders) > 0 {
		r := res.Reminders[0]
		fmt.Fprintf(&sb, "⏰ Reminder: %s (%s)\n", Timestamp(r.At, "F"), r.TimeUntil)
	}
	switch {
	case res.OpenWindow != nil:
		fmt.Fprintf(&sb, "\n📲 Device submissions are open until %s.", Timestamp(res.OpenWindow.Closes, "t"))
	case res.NextWindow != nil:
		fmt.Fprintf(&sb, "\n📲 Device submissions open %s.", Timestamp(res.NextWindow.Opens, "R"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Reminder - предупреждение за час до публикации.
func Reminder(post time.Time) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: fmt.Sprintf("⏰ **One hour left!** The leaderboard drops %s. Get your steps in with the Apple Shortcut or `/submitsteps`.",
			Timestamp(post, "R")),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Gap trend
// ─────────────────────────────────────────────────────────────────────────────

// GapText - ответ /gap.
func GapText(res *query.GetGapTrendResult) string {
	if res == nil || !res.Available || res.Percent == nil {
		return NoGapData
	}
	pct := *res.Percent
	switch {
	case pct > 0:
		return fmt.Sprintf("📈 You closed the gap by **%.1f%%** (%s → %s steps behind the pack, %s vs %s).",
			pct, shared.FormatSteps(res.YesterdayGap), shared.FormatSteps(res.TodayGap), res.Yesterday, res.Today)
	case pct < 0:
		return fmt.Sprintf("📉 The gap grew by **%.1f%%** (%s → %s steps behind the pack, %s vs %s).",
			-pct, shared.FormatSteps(res.YesterdayGap), shared.FormatSteps(res.TodayGap), res.Yesterday, res.Today)
	default:
		return fmt.Sprintf("➖ Your gap is unchanged at %s steps (%s vs %s).",
			shared.FormatSteps(res.TodayGap), res.Yesterday, res.Today)
	}
}

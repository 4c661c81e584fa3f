// Package presenter formats data for Discord display.
// Presenters turn query results into embeds and message text.
package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD PRESENTER
// Форматирует лидерборд в embed "Biggest Steppers". Один и тот же вид
// используется и командой /leaderboard, и плановой публикацией.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// LeaderboardTitle - заголовок embed'а лидерборда.
	LeaderboardTitle = "🏃‍♂️ Biggest Steppers"

	// ColorGold - цвет embed'а лидерборда (#ffd700).
	ColorGold = 0xFFD700

	// ColorGreen - цвет подтверждений (#00ff00).
	ColorGreen = 0x00FF00

	// FooterText - подпись под embed'ами бота.
	FooterText = "Step Battle Bot"

	// EmptyLeaderboardText - текст для пустого лидерборда.
	EmptyLeaderboardText = "📊 No participants in this server have logged steps yet.\n\n" +
		"Use `/link` to connect your Apple Health account or `/submitsteps` to manually submit steps."

	// leaderMark добавляется к строке лидера.
	leaderMark = " 🏆 **LEADER**"

	// maxDescription - лимит Discord на описание embed'а.
	maxDescription = 4096
)

// LeaderboardPresenter строит embed лидерборда.
type LeaderboardPresenter struct{}

// NewLeaderboardPresenter создаёт презентер.
func NewLeaderboardPresenter() *LeaderboardPresenter {
	return &LeaderboardPresenter{}
}

// Embed возвращает embed для результата запроса лидерборда.
// Пустой результат превращается в подсказку про /link и /submitsteps.
func (p *LeaderboardPresenter) Embed(result *query.GetLeaderboardResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: LeaderboardTitle,
		Color: ColorGold,
	}
	if result == nil || len(result.Entries) == 0 {
		embed.Description = EmptyLeaderboardText
		if result != nil {
			embed.Timestamp = result.GeneratedAt.UTC().Format(time.RFC3339)
		}
		return embed
	}

	embed.Description = p.Lines(result.Entries)
	embed.Timestamp = result.GeneratedAt.UTC().Format(time.RFC3339)
	if footer := p.footer(result); footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return embed
}

// Lines форматирует строки лидерборда, обрезая их по лимиту Discord.
func (p *LeaderboardPresenter) Lines(entries []query.LeaderboardEntryDTO) string {
	// Место под хвост "…and N more" резервируется заранее.
	reserve := len(fmt.Sprintf("\n…and %d more", len(entries)))
	var sb strings.Builder
	for i, e := range entries {
		line := p.Line(e)
		need := len(line)
		if i > 0 {
			need++
		}
		last := i == len(entries)-1
		if (last && sb.Len()+need > maxDescription) || (!last && sb.Len()+need+reserve > maxDescription) {
			fmt.Fprintf(&sb, "\n…and %d more", len(entries)-i)
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// Line форматирует одну строку: медаль, имя, шаги и отметку лидера.
func (p *LeaderboardPresenter) Line(e query.LeaderboardEntryDTO) string {
	medal := e.Medal
	if medal == "" {
		medal = shared.Rank(e.Rank).Medal()
	}
	line := fmt.Sprintf("%s **%s** · %s steps", medal, escapeMarkdown(e.DisplayName), shared.FormatSteps(e.Steps))
	if e.IsLeader {
		line += leaderMark
	}
	return line
}

func (p *LeaderboardPresenter) footer(result *query.GetLeaderboardResult) string {
	if result.Mode != competition.ModePeriodic || result.Period == nil {
		return FooterText
	}
	return fmt.Sprintf("%s · Period %d ends %s", FooterText, result.Period.Index+1,
		result.Period.End.UTC().Format("Jan 2, 15:04 MST"))
}

// escapeMarkdown экранирует символы, которые Discord трактует как разметку.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"~", `\~`,
		"`", "\\`",
		"|", `\|`,
		">", `\>`,
	)
	return r.Replace(s)
}

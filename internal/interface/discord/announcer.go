package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

// Poster sends a message to a channel.
type Poster interface {
	Send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
}

// Announcer renders scheduled posts and sends them to the guild channel.
type Announcer struct {
	poster    Poster
	presenter *presenter.LeaderboardPresenter
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(poster Poster) *Announcer {
	return &Announcer{poster: poster, presenter: presenter.NewLeaderboardPresenter()}
}

// AnnounceLeaderboard posts the leaderboard embed. An empty board is posted
// as plain text.
func (a *Announcer) AnnounceLeaderboard(ctx context.Context, channelRef string, board *query.GetLeaderboardResult) error {
	if channelRef == "" {
		return errors.New("announce leaderboard: no channel")
	}
	msg := &discordgo.MessageSend{}
	if board == nil || len(board.Entries) == 0 {
		msg.Content = presenter.EmptyLeaderboardText
	} else {
		msg.Embeds = []*discordgo.MessageEmbed{a.presenter.Embed(board)}
	}
	return a.poster.Send(ctx, channelRef, msg)
}

// AnnounceReminder posts the warning that the leaderboard drops at post.
func (a *Announcer) AnnounceReminder(ctx context.Context, channelRef string, post time.Time) error {
	if channelRef == "" {
		return errors.New("announce reminder: no channel")
	}
	return a.poster.Send(ctx, channelRef, presenter.Reminder(post))
}

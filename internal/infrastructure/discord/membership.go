package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// MembershipChecker answers whether a Discord user is still in the guild.
type MembershipChecker struct {
	client *Client
}

var _ competition.MembershipChecker = (*MembershipChecker)(nil)

// NewMembershipChecker creates a checker.
func NewMembershipChecker(client *Client) *MembershipChecker {
	return &MembershipChecker{client: client}
}

// IsIdentityCurrentlyValid looks the user up as a guild member. A member
// who left (unknown member) is reported as absent, not as an error.
func (m *MembershipChecker) IsIdentityCurrentlyValid(ctx context.Context, scope shared.ScopeID, identityRef string) (competition.Member, bool, error) {
	var member *discordgo.Member
	err := m.client.do(ctx, "GuildMember", func(ctx context.Context) error {
		found, err := m.client.api.GuildMember(string(scope), identityRef, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		member = found
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return competition.Member{}, false, nil
		}
		return competition.Member{}, false, err
	}
	if member == nil || member.User == nil {
		return competition.Member{}, false, nil
	}
	return competition.Member{ChatIdentity: identityRef, DisplayName: DisplayName(member)}, true, nil
}

// DisplayName returns the guild nickname, then the global name, then the username.
func DisplayName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User == nil {
		return ""
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}

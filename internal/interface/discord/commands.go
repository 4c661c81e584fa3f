package discord

import (
	"github.com/bwmarrin/discordgo"
)

// ══════════════════════════════════════════════════════════════════════════════
// SLASH COMMAND DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Command names.
const (
	CmdSetChannel    = "setchannel"
	CmdStartStepping = "startstepping"
	CmdLink          = "link"
	CmdSubmitSteps   = "submitsteps"
	CmdLeaderboard   = "leaderboard"
	CmdSchedule      = "schedule"
	CmdGap           = "gap"
)

// Policies of the built-in commands.
var commandPolicies = map[string]CommandPolicy{
	CmdSetChannel:    {AdminOnly: true},
	CmdStartStepping: {AdminOnly: true},
	CmdLink:          {ChannelBound: true},
	CmdSubmitSteps:   {ChannelBound: true},
	CmdLeaderboard:   {ChannelBound: true},
	CmdSchedule:      {ChannelBound: true},
	CmdGap:           {ChannelBound: true},
}

// PolicyFor returns the policy of a built-in command.
func PolicyFor(name string) CommandPolicy {
	return commandPolicies[name]
}

// ApplicationCommands returns the definitions registered with Discord.
// /gap is included only when withGap is set.
func ApplicationCommands(withGap bool) []*discordgo.ApplicationCommand {
	adminPerm := int64(discordgo.PermissionAdministrator)
	noDM := false
	zero := 0.0

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:                     CmdSetChannel,
			Description:              "Set the channel for bot commands and leaderboard posts",
			DefaultMemberPermissions: &adminPerm,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to use (defaults to this one)",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:                     CmdStartStepping,
			Description:              "Start the step battle in this channel",
			DefaultMemberPermissions: &adminPerm,
			DMPermission:             &noDM,
		},
		{
			Name:         CmdLink,
			Description:  "Link your Discord account to your step tracking device",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "name",
					Description:  "Device name as shown by the tracker",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:         CmdSubmitSteps,
			Description:  "Submit your steps for the current period",
			DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "week1",
					Description: "Steps for the first week",
					Required:    true,
					MinValue:    &zero,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "week2",
					Description: "Steps for the second week",
					Required:    true,
					MinValue:    &zero,
				},
			},
		},
		{
			Name:         CmdLeaderboard,
			Description:  "Show the step leaderboard",
			DMPermission: &noDM,
		},
		{
			Name:         CmdSchedule,
			Description:  "Show when the next leaderboard is posted",
			DMPermission: &noDM,
		},
	}

	if withGap {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:         CmdGap,
			Description:  "See whether you are closing the gap on everyone else",
			DMPermission: &noDM,
		})
	}
	return cmds
}

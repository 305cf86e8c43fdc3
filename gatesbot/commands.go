package gatesbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	SlashCommandClaim       = "claim"
	SlashCommandLeave       = "leave"
	SlashCommandMove        = "move"
	SlashCommandRemove      = "remove"
	SlashCommandCreateGroup = "creategroup"
	SlashCommandShuffle     = "shuffle"
	SlashCommandLock        = "lock"
	SlashCommandUnlock      = "unlock"
	SlashCommandLockGroup   = "lockgroup"
	SlashCommandQueue       = "queue"
	SlashCommandGroupInfo   = "groupinfo"
	SlashCommandEmpty       = "empty"
	SlashCommandGates       = "gates"
	SlashCommandStats       = "stats"
	SlashCommandDM          = "dm"

	optionGroup         = "group"
	optionGate          = "gate"
	optionReinforcement = "reinforcement"
	optionMember        = "member"
	optionFrom          = "from"
	optionTo            = "to"
	optionTier          = "tier"
	optionSize          = "size"
	optionName          = "name"
	optionEmoji         = "emoji"
	optionQueueNum      = "queue_num"
	optionGroupNum      = "group_num"
	optionRanks         = "ranks"

	subcommandList   = "list"
	subcommandAdd    = "add"
	subcommandRemove = "remove"
	subcommandAssign = "assign"
	subcommandQueue  = "queue"
	subcommandLeave  = "leave"
	subcommandUpdate = "update"

	// signupReaction acknowledges an accepted sign-up message.
	signupReaction = "\U0001F3B2"

	// readyReaction acknowledges a DM ready message.
	readyReaction = "\U0001F44D"
)

// commandResponse is what a command handler hands back to the
// dispatcher: plain content, an embed, or both.
type commandResponse struct {
	content string
	embeds  []*discordgo.MessageEmbed
}

func textResponse(format string, args ...any) (*commandResponse, error) {
	return &commandResponse{content: fmt.Sprintf(format, args...)}, nil
}

func embedResponse(embed *discordgo.MessageEmbed) (*commandResponse, error) {
	return &commandResponse{embeds: []*discordgo.MessageEmbed{embed}}, nil
}

// applicationCommands defines the full slash command surface,
// registered via bulk overwrite at startup.
func (b *Bot) applicationCommands() []*discordgo.ApplicationCommand {
	groupOpt := func(name, description string) *discordgo.ApplicationCommandOption {
		minValue := float64(1)
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        name,
			Description: description,
			Required:    true,
			MinValue:    &minValue,
		}
	}
	memberOpt := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        optionMember,
			Description: "Which member",
			Required:    required,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        SlashCommandClaim,
			Description: "Claim a group for a gate. Requires the DM role.",
			Options: []*discordgo.ApplicationCommandOption{
				groupOpt(optionGroup, "Group number to claim"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionGate,
					Description: "Name of the gate being run",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        optionReinforcement,
					Description: "Summon as reinforcements for an ongoing gate",
				},
			},
		},
		{
			Name:        SlashCommandLeave,
			Description: "Takes you out of the current queue, if you are in it.",
		},
		{
			Name:        SlashCommandMove,
			Description: "Moves a player to a different group. Requires the Assistant role.",
			Options: []*discordgo.ApplicationCommandOption{
				groupOpt(optionFrom, "Group the player is currently in"),
				memberOpt(true),
				groupOpt(optionTo, "Group to move the player to"),
			},
		},
		{
			Name:        SlashCommandRemove,
			Description: "Removes a player from the queue. Requires the Assistant role.",
			Options: []*discordgo.ApplicationCommandOption{
				memberOpt(true),
			},
		},
		{
			Name:        SlashCommandCreateGroup,
			Description: "Creates a new group from an existing queue member. Requires the Assistant role.",
			Options: []*discordgo.ApplicationCommandOption{
				memberOpt(true),
			},
		},
		{
			Name:        SlashCommandShuffle,
			Description: "Shuffles a tier's groups. Irrevocable! Requires the Admin role.",
			Options: []*discordgo.ApplicationCommandOption{
				groupOpt(optionTier, "Which tier to shuffle"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionSize,
					Description: "Group size to shuffle into",
				},
			},
		},
		{
			Name:        SlashCommandLock,
			Description: "Locks the queue against new sign-ups.",
		},
		{
			Name:        SlashCommandUnlock,
			Description: "Unlocks the queue for new sign-ups.",
		},
		{
			Name:        SlashCommandLockGroup,
			Description: "Toggles the lock on a single group.",
			Options: []*discordgo.ApplicationCommandOption{
				groupOpt(optionGroup, "Group number to toggle"),
			},
		},
		{
			Name:        SlashCommandQueue,
			Description: "Sends the current queue.",
		},
		{
			Name:        SlashCommandGroupInfo,
			Description: "Returns information about a group.",
			Options: []*discordgo.ApplicationCommandOption{
				groupOpt(optionGroup, "Group number to inspect"),
			},
		},
		{
			Name:        SlashCommandEmpty,
			Description: "Empties the entire queue. Requires the Admin role.",
		},
		{
			Name:        SlashCommandGates,
			Description: "Manage the registered gate list. Requires the Admin role.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandList,
					Description: "Lists all the current registered gates.",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandAdd,
					Description: "Registers a gate, or updates its emoji.",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        optionName,
							Description: "Gate name",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        optionEmoji,
							Description: "Assignment emoji",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandRemove,
					Description: "Removes a registered gate.",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        optionName,
							Description: "Gate name",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        SlashCommandStats,
			Description: "Shows queue stats, or a member's queue data.",
			Options: []*discordgo.ApplicationCommandOption{
				memberOpt(false),
			},
		},
		{
			Name:        SlashCommandDM,
			Description: "DM ready-queue commands.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandAssign,
					Description: "Assigns a DM to a group. Requires the Admin role.",
					Options: []*discordgo.ApplicationCommandOption{
						groupOpt(optionQueueNum, "The DM's queue number"),
						groupOpt(optionGroupNum, "The group's number"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandQueue,
					Description: "Shows the DM queue.",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandLeave,
					Description: "Leave the DM queue.",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandRemove,
					Description: "Removes a DM from the queue. Requires the Admin role.",
					Options: []*discordgo.ApplicationCommandOption{
						memberOpt(true),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subcommandUpdate,
					Description: "Update your DM queue entry.",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        optionRanks,
							Description: "New rank note",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func interactionOptions(
	opts []*discordgo.ApplicationCommandInteractionDataOption,
) optionMap {
	m := make(optionMap, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func (m optionMap) intValue(name string) int {
	if opt, ok := m[name]; ok {
		return int(opt.IntValue())
	}
	return 0
}

func (m optionMap) stringValue(name string) string {
	if opt, ok := m[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (m optionMap) boolValue(name string) bool {
	if opt, ok := m[name]; ok {
		return opt.BoolValue()
	}
	return false
}

func (m optionMap) userID(name string) string {
	if opt, ok := m[name]; ok {
		return opt.Value.(string)
	}
	return ""
}

// handleInteractionCreate dispatches slash commands. Every response is
// ephemeral; errors surface to the actor as the error text, since all
// user-facing errors carry their own copy.
func (b *Bot) handleInteractionCreate(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.Member == nil || i.Member.User == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.StartupTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	logger := b.logger.With(
		loggerNameKey, "commands",
		"command", data.Name,
		"user_id", i.Member.User.ID,
	)
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(ctx, "received command")

	resp, err := b.runCommand(ctx, i, data)
	if err != nil {
		logger.WarnContext(ctx, "command failed", tint.Err(err))
		resp = &commandResponse{content: userFacingError(err)}
	}
	if resp == nil {
		return
	}

	respondErr := b.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: resp.content,
				Embeds:  resp.embeds,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if respondErr != nil {
		logger.ErrorContext(ctx, "error responding to command", tint.Err(respondErr))
	}
}

// userFacingError maps an error to the copy shown to the actor.
// PersistenceError details stay in the logs.
func userFacingError(err error) string {
	var persistence *PersistenceError
	if errors.As(err, &persistence) {
		return "sorry, something went wrong!"
	}
	return err.Error()
}

func (b *Bot) runCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ApplicationCommandInteractionData,
) (*commandResponse, error) {
	opts := interactionOptions(data.Options)

	switch data.Name {
	case SlashCommandClaim:
		return b.commandClaim(ctx, i, opts)
	case SlashCommandLeave:
		return b.commandLeave(ctx, i)
	case SlashCommandMove:
		return b.commandMove(ctx, i, opts)
	case SlashCommandRemove:
		return b.commandRemove(ctx, i, opts)
	case SlashCommandCreateGroup:
		return b.commandCreateGroup(ctx, i, opts)
	case SlashCommandShuffle:
		return b.commandShuffle(ctx, i, opts)
	case SlashCommandLock:
		return b.commandSetLocked(ctx, i, true)
	case SlashCommandUnlock:
		return b.commandSetLocked(ctx, i, false)
	case SlashCommandLockGroup:
		return b.commandLockGroup(ctx, i, opts)
	case SlashCommandQueue:
		return b.commandQueue(ctx)
	case SlashCommandGroupInfo:
		return b.commandGroupInfo(ctx, opts)
	case SlashCommandEmpty:
		return b.commandEmpty(ctx, i)
	case SlashCommandGates:
		return b.commandGates(ctx, i, data)
	case SlashCommandStats:
		return b.commandStats(ctx, i, opts)
	case SlashCommandDM:
		return b.commandDM(ctx, i, data)
	default:
		return nil, fmt.Errorf("unknown command: %s", data.Name)
	}
}

// requireRole resolves the guild's roles and checks the actor against
// the required capability.
func (b *Bot) requireRole(i *discordgo.InteractionCreate, role Role) error {
	roles, err := b.session.GuildRoles(b.config.Discord.GuildID)
	if err != nil {
		return &PersistenceError{Op: "fetch guild roles", Err: err}
	}
	return requireRole(
		i.Member, guildRoleNames(roles), role, b.config.Discord.OwnerID,
	)
}

func (b *Bot) commandClaim(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleDM); err != nil {
		return nil, err
	}

	result, err := b.claims.Claim(
		ctx,
		b.scope(),
		i.Member.User.ID,
		opts.intValue(optionGroup),
		opts.stringValue(optionGate),
		opts.boolValue(optionReinforcement),
	)
	if err != nil {
		return nil, err
	}

	if b.config.Discord.SummonsChannelID != "" {
		_, sendErr := b.session.ChannelMessageSendComplex(
			b.config.Discord.SummonsChannelID,
			&discordgo.MessageSend{
				Content:         result.Summons,
				AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
			},
		)
		if sendErr != nil {
			b.logger.ErrorContext(ctx, "error sending summons", tint.Err(sendErr))
		}
	}
	b.renderQueue(ctx)

	return textResponse(
		"Gate #%d (%s gate) claimed.", result.GroupNum, titleCase(result.Gate.Name),
	)
}

func (b *Bot) commandLeave(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*commandResponse, error) {
	if err := b.requireRole(i, RolePlayer); err != nil {
		return nil, err
	}

	groupNum, _, err := b.queues.Leave(ctx, b.scope(), i.Member.User.ID)
	if err != nil {
		if errors.Is(err, ErrNotInQueue) {
			return textResponse(
				"You are not currently in the queue, so I cannot remove you from it.",
			)
		}
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse("You have been removed from group #%d", groupNum)
}

func (b *Bot) commandMove(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAssistant); err != nil {
		return nil, err
	}

	memberID := opts.userID(optionMember)
	from := opts.intValue(optionFrom)
	to := opts.intValue(optionTo)

	if _, err := b.queues.MovePlayer(ctx, b.scope(), memberID, from, to); err != nil {
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse(
		"<@%s> has been moved from Group #%d to Group #%d", memberID, from, to,
	)
}

func (b *Bot) commandRemove(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAssistant); err != nil {
		return nil, err
	}

	memberID := opts.userID(optionMember)
	groupNum, _, err := b.queues.RemovePlayer(ctx, b.scope(), memberID)
	if err != nil {
		if errors.Is(err, ErrNotInQueue) {
			return textResponse(
				"<@%s> was not in the queue, so they have not been removed.",
				memberID,
			)
		}
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse(
		"<@%s> has been removed from Group #%d", memberID, groupNum,
	)
}

func (b *Bot) commandCreateGroup(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAssistant); err != nil {
		return nil, err
	}

	memberID := opts.userID(optionMember)
	created, _, err := b.queues.CreateGroup(ctx, b.scope(), memberID)
	if err != nil {
		if errors.Is(err, ErrNotInQueue) {
			return textResponse(
				"<@%s> was not in the queue, so they have not been moved.",
				memberID,
			)
		}
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse(
		"<@%s> has been moved to a new tier %d group!", memberID, created.Tier,
	)
}

func (b *Bot) commandShuffle(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAdmin); err != nil {
		return nil, err
	}

	tier := opts.intValue(optionTier)
	size := opts.intValue(optionSize)
	if _, err := b.queues.Shuffle(ctx, b.scope(), tier, size); err != nil {
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse("Tier %d groups have been shuffled.", tier)
}

func (b *Bot) commandSetLocked(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	locked bool,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAssistant); err != nil {
		return nil, err
	}

	if _, err := b.queues.SetLocked(ctx, b.scope(), locked); err != nil {
		return nil, err
	}
	if locked {
		return textResponse("The queue has been locked.")
	}

	if b.config.Discord.AnnouncementChannelID != "" {
		_, sendErr := b.session.ChannelMessageSend(
			b.config.Discord.AnnouncementChannelID,
			"The queue is now open for sign-ups!",
		)
		if sendErr != nil {
			b.logger.ErrorContext(
				ctx, "error announcing queue unlock", tint.Err(sendErr),
			)
		}
	}
	return textResponse("The queue has been unlocked.")
}

func (b *Bot) commandLockGroup(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAssistant); err != nil {
		return nil, err
	}

	groupNum := opts.intValue(optionGroup)
	locked, _, err := b.queues.ToggleGroupLock(ctx, b.scope(), groupNum)
	if err != nil {
		return nil, err
	}
	b.renderQueue(ctx)
	if locked {
		return textResponse("Group #%d is now locked.", groupNum)
	}
	return textResponse("Group #%d is now unlocked.", groupNum)
}

func (b *Bot) commandQueue(ctx context.Context) (*commandResponse, error) {
	q, err := b.queues.Current(ctx, b.scope())
	if err != nil {
		return nil, err
	}
	embed := QueueEmbed(q, RenderContext{Scope: b.scope(), Marked: b.markedSet(ctx, q)})
	embed.Title = "Gate Sign-Up Queue"
	return embedResponse(embed)
}

func (b *Bot) commandGroupInfo(
	ctx context.Context,
	opts optionMap,
) (*commandResponse, error) {
	groupNum := opts.intValue(optionGroup)
	group, err := b.queues.GroupByNumber(ctx, b.scope(), groupNum)
	if err != nil {
		return nil, err
	}
	return embedResponse(GroupInfoEmbed(groupNum, group))
}

func (b *Bot) commandEmpty(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAdmin); err != nil {
		return nil, err
	}

	if _, err := b.queues.Empty(ctx, b.scope()); err != nil {
		return nil, err
	}
	b.renderQueue(ctx)
	return textResponse("The queue has been emptied.")
}

func (b *Bot) commandGates(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ApplicationCommandInteractionData,
) (*commandResponse, error) {
	if err := b.requireRole(i, RoleAdmin); err != nil {
		return nil, err
	}
	if len(data.Options) == 0 {
		return nil, fmt.Errorf("missing subcommand")
	}
	sub := data.Options[0]
	opts := interactionOptions(sub.Options)

	switch sub.Name {
	case subcommandList:
		gates, err := b.gates.List(ctx)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(gates))
		for _, gate := range gates {
			lines = append(
				lines,
				fmt.Sprintf(
					":white_small_square: %s Gate - %s",
					titleCase(gate.Name), gate.Emoji,
				),
			)
		}
		embed := newEmbed("List of Registered Gates")
		embed.Description = strings.Join(lines, "\n")
		return embedResponse(embed)
	case subcommandAdd:
		gate, err := b.gates.Add(
			ctx, opts.stringValue(optionName), opts.stringValue(optionEmoji),
		)
		if err != nil {
			return nil, err
		}
		return textResponse(
			"%s Gate registered with %s.", titleCase(gate.Name), gate.Emoji,
		)
	case subcommandRemove:
		name := opts.stringValue(optionName)
		if err := b.gates.Remove(ctx, name); err != nil {
			return nil, err
		}
		return textResponse("%s Gate has been removed.", titleCase(name))
	default:
		return nil, fmt.Errorf("unknown subcommand: %s", sub.Name)
	}
}

func (b *Bot) commandStats(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	memberID := opts.userID(optionMember)
	if memberID == "" {
		q, err := b.queues.Current(ctx, b.scope())
		if err != nil {
			return nil, err
		}
		return embedResponse(QueueStatsEmbed(q))
	}

	stats, err := b.analytics.PlayerStatsFor(ctx, memberID)
	if err != nil {
		return nil, &PersistenceError{Op: "player stats", Err: err}
	}
	if stats == nil {
		return textResponse("Could not find any data for <@%s>!", memberID)
	}
	return embedResponse(PlayerStatsEmbed(stats))
}

func (b *Bot) commandDM(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ApplicationCommandInteractionData,
) (*commandResponse, error) {
	if len(data.Options) == 0 {
		return nil, fmt.Errorf("missing subcommand")
	}
	sub := data.Options[0]
	opts := interactionOptions(sub.Options)

	switch sub.Name {
	case subcommandAssign:
		if err := b.requireRole(i, RoleAdmin); err != nil {
			return nil, err
		}
		return b.commandDMAssign(ctx, i, opts)
	case subcommandQueue:
		if err := b.requireRole(i, RoleDM); err != nil {
			return nil, err
		}
		entries, err := b.dmQueue.Entries(ctx)
		if err != nil {
			return nil, err
		}
		return embedResponse(DMQueueEmbed(entries))
	case subcommandLeave:
		if err := b.requireRole(i, RoleDM); err != nil {
			return nil, err
		}
		if err := b.dmQueue.Remove(ctx, i.Member.User.ID); err != nil {
			return nil, err
		}
		b.renderDMQueue(ctx)
		return textResponse(
			"If you were previously in the DM queue, you have been removed from it.",
		)
	case subcommandRemove:
		if err := b.requireRole(i, RoleAdmin); err != nil {
			return nil, err
		}
		memberID := opts.userID(optionMember)
		if err := b.dmQueue.Remove(ctx, memberID); err != nil {
			return nil, err
		}
		b.renderDMQueue(ctx)
		return textResponse("<@%s> has been removed from the DM queue.", memberID)
	case subcommandUpdate:
		if err := b.requireRole(i, RoleDM); err != nil {
			return nil, err
		}
		err := b.dmQueue.UpdateRanks(
			ctx, i.Member.User.ID, opts.stringValue(optionRanks),
		)
		if err != nil {
			return nil, err
		}
		b.renderDMQueue(ctx)
		return textResponse(
			"If you are in the DM queue, your message has been updated.",
		)
	default:
		return nil, fmt.Errorf("unknown subcommand: %s", sub.Name)
	}
}

func (b *Bot) commandDMAssign(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts optionMap,
) (*commandResponse, error) {
	result, err := b.claims.Assign(
		ctx,
		b.scope(),
		b.dmQueue,
		i.Member.User.ID,
		opts.intValue(optionQueueNum),
		opts.intValue(optionGroupNum),
	)
	if err != nil {
		return nil, err
	}

	if b.config.Discord.AssignmentChannelID != "" {
		infoEmbed := GroupInfoEmbed(result.GroupNum, result.Group)
		if _, sendErr := b.session.ChannelMessageSendComplex(
			b.config.Discord.AssignmentChannelID,
			&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{infoEmbed}},
		); sendErr != nil {
			b.logger.ErrorContext(
				ctx, "error sending assignment group info", tint.Err(sendErr),
			)
		}

		notice := newEmbed("Gate Assignment")
		notice.Description = result.Notice
		if _, sendErr := b.session.ChannelMessageSendComplex(
			b.config.Discord.AssignmentChannelID,
			&discordgo.MessageSend{
				Content: fmt.Sprintf("<@%s>", result.DM.UserID),
				Embeds:  []*discordgo.MessageEmbed{notice},
				AllowedMentions: &discordgo.MessageAllowedMentions{
					Parse: []discordgo.AllowedMentionType{
						discordgo.AllowedMentionTypeUsers,
					},
				},
			},
		); sendErr != nil {
			b.logger.ErrorContext(
				ctx, "error sending assignment notice", tint.Err(sendErr),
			)
		}
	}
	b.renderDMQueue(ctx)

	return textResponse(
		"Assigned Gate #%d to <@%s>.", result.GroupNum, result.DM.UserID,
	)
}

// handleMessageCreate routes gateway messages to the sign-up and DM
// ready listeners based on the channel.
func (b *Bot) handleMessageCreate(
	_ *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != b.config.Discord.GuildID {
		return
	}

	switch m.ChannelID {
	case b.config.Discord.QueueChannelID:
		b.handleSignupMessage(m)
	case b.config.Discord.DMQueueChannelID:
		b.handleReadyMessage(m)
	}
}

// handleSignupMessage processes a '**in line**' sign-up post: parse,
// place, acknowledge with a reaction, re-render the summary.
func (b *Bot) handleSignupMessage(m *discordgo.MessageCreate) {
	if !IsSignupMessage(m.Content) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.StartupTimeout)
	defer cancel()
	logger := b.logger.With(loggerNameKey, "signup_listener", "user_id", m.Author.ID)
	ctx = WithLogger(ctx, logger)

	displayName := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		displayName = m.Member.Nick
	}

	_, player, err := b.queues.SignUp(
		ctx, b.scope(), m.Author.ID, displayName, m.Content,
	)
	if err != nil {
		logger.WarnContext(ctx, "sign-up rejected", tint.Err(err))
		b.notifyUser(ctx, m.Author.ID, userFacingError(err))
		return
	}

	if reactErr := b.session.MessageReactionAdd(
		m.ChannelID, m.ID, signupReaction,
	); reactErr != nil {
		logger.WarnContext(
			ctx, "error adding sign-up reaction", tint.Err(reactErr),
		)
	}
	logger.InfoContext(ctx, "player placed", "player", player)
	b.renderQueue(ctx)
}

// handleReadyMessage processes a '**ready' post in the DM queue
// channel.
func (b *Bot) handleReadyMessage(m *discordgo.MessageCreate) {
	if !IsReadyMessage(m.Content) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.StartupTimeout)
	defer cancel()
	logger := b.logger.With(loggerNameKey, "dm_queue_listener", "user_id", m.Author.ID)
	ctx = WithLogger(ctx, logger)

	ranks := ParseReadyRanks(m.Content)
	if err := b.dmQueue.Ready(ctx, m.Author.ID, ranks, m.ID); err != nil {
		logger.ErrorContext(ctx, "error entering DM queue", tint.Err(err))
		return
	}

	if reactErr := b.session.MessageReactionAdd(
		m.ChannelID, m.ID, readyReaction,
	); reactErr != nil {
		logger.WarnContext(ctx, "error adding ready reaction", tint.Err(reactErr))
	}
	b.renderDMQueue(ctx)
}

// notifyUser sends a DM, falling back silently when the user's DMs are
// closed.
func (b *Bot) notifyUser(ctx context.Context, userID string, content string) {
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		b.logger.DebugContext(ctx, "could not open DM channel", tint.Err(err))
		return
	}
	if _, err = b.session.ChannelMessageSend(channel.ID, content); err != nil {
		b.logger.DebugContext(ctx, "could not DM user", tint.Err(err))
	}
}

package gatesbot

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationCommands(t *testing.T) {
	bot, _ := newTestBot(t)

	names := map[string]bool{}
	for _, cmd := range bot.applicationCommands() {
		assert.NotEmpty(t, cmd.Description, "command %q", cmd.Name)
		names[cmd.Name] = true
	}
	for _, expected := range []string{
		SlashCommandClaim,
		SlashCommandLeave,
		SlashCommandMove,
		SlashCommandRemove,
		SlashCommandCreateGroup,
		SlashCommandShuffle,
		SlashCommandLock,
		SlashCommandUnlock,
		SlashCommandLockGroup,
		SlashCommandQueue,
		SlashCommandGroupInfo,
		SlashCommandEmpty,
		SlashCommandGates,
		SlashCommandStats,
		SlashCommandDM,
	} {
		assert.Truef(t, names[expected], "missing command %q", expected)
	}
}

func TestUserFacingError(t *testing.T) {
	assert.Equal(
		t,
		"sorry, something went wrong!",
		userFacingError(
			&PersistenceError{Op: "save queue", Err: errors.New("disk full")},
		),
	)
	assert.Equal(
		t,
		ErrQueueLocked.Error(),
		userFacingError(ErrQueueLocked),
	)
}

func TestOptionMap(t *testing.T) {
	opts := interactionOptions(
		[]*discordgo.ApplicationCommandInteractionDataOption{
			{
				Name:  optionGroup,
				Type:  discordgo.ApplicationCommandOptionInteger,
				Value: float64(3),
			},
			{
				Name:  optionGate,
				Type:  discordgo.ApplicationCommandOptionString,
				Value: "winter",
			},
			{
				Name:  optionReinforcement,
				Type:  discordgo.ApplicationCommandOptionBoolean,
				Value: true,
			},
			{
				Name:  optionMember,
				Type:  discordgo.ApplicationCommandOptionUser,
				Value: "user-1",
			},
		},
	)

	assert.Equal(t, 3, opts.intValue(optionGroup))
	assert.Equal(t, "winter", opts.stringValue(optionGate))
	assert.True(t, opts.boolValue(optionReinforcement))
	assert.Equal(t, "user-1", opts.userID(optionMember))

	assert.Equal(t, 0, opts.intValue("missing"))
	assert.Equal(t, "", opts.stringValue("missing"))
	assert.False(t, opts.boolValue("missing"))
	assert.Equal(t, "", opts.userID("missing"))
}

func signupMessage(bot *Bot, userID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "msg-1",
			GuildID:   bot.config.Discord.GuildID,
			ChannelID: bot.config.Discord.QueueChannelID,
			Author:    &discordgo.User{ID: userID, Username: "Someone"},
			Content:   content,
		},
	}
}

func TestHandleSignupMessage(t *testing.T) {
	bot, session := newTestBot(t)

	bot.handleMessageCreate(nil, signupMessage(bot, "user-1", "**in line** Wizard 5"))

	q, err := bot.store.Load(context.Background(), bot.scope())
	require.NoError(t, err)
	require.Equal(t, 1, q.PlayerCount())
	assert.Equal(t, 2, q.Groups[0].Tier)

	session.mu.Lock()
	reactions := append([]string{}, session.reactions...)
	session.mu.Unlock()
	assert.Equal(t, []string{signupReaction}, reactions)

	// the queue summary was re-posted
	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, bot.config.Discord.QueueChannelID, sent[0].ChannelID)
	require.Len(t, sent[0].Embeds, 1)
	assert.Equal(t, queueSummaryTitle, sent[0].Embeds[0].Title)
}

func TestHandleSignupMessageRejectedWhenLocked(t *testing.T) {
	bot, session := newTestBot(t)
	ctx := context.Background()

	_, err := bot.queues.SetLocked(ctx, bot.scope(), true)
	require.NoError(t, err)

	bot.handleMessageCreate(nil, signupMessage(bot, "user-1", "**in line** Wizard 5"))

	q, err := bot.store.Load(ctx, bot.scope())
	require.NoError(t, err)
	assert.Zero(t, q.PlayerCount())

	// rejection goes to the user's DMs, not the channel
	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "dm-user-1", sent[0].ChannelID)
	assert.Equal(t, ErrQueueLocked.Error(), sent[0].Content)
}

func TestHandleSignupMessageIgnoresNonMarker(t *testing.T) {
	bot, session := newTestBot(t)

	bot.handleMessageCreate(nil, signupMessage(bot, "user-1", "hello everyone"))

	q, err := bot.store.Load(context.Background(), bot.scope())
	require.NoError(t, err)
	assert.Zero(t, q.PlayerCount())
	assert.Empty(t, session.sentMessages())
}

func TestHandleMessageCreateIgnoresBots(t *testing.T) {
	bot, session := newTestBot(t)

	m := signupMessage(bot, "user-1", "**in line** Wizard 5")
	m.Author.Bot = true
	bot.handleMessageCreate(nil, m)

	q, err := bot.store.Load(context.Background(), bot.scope())
	require.NoError(t, err)
	assert.Zero(t, q.PlayerCount())
	assert.Empty(t, session.sentMessages())
}

func TestHandleMessageCreateIgnoresOtherGuilds(t *testing.T) {
	bot, _ := newTestBot(t)

	m := signupMessage(bot, "user-1", "**in line** Wizard 5")
	m.GuildID = "other-guild"
	bot.handleMessageCreate(nil, m)

	q, err := bot.store.Load(context.Background(), bot.scope())
	require.NoError(t, err)
	assert.Zero(t, q.PlayerCount())
}

func TestHandleReadyMessage(t *testing.T) {
	bot, session := newTestBot(t)

	m := signupMessage(bot, "dm-1", "**Ready: 1-4**")
	m.ChannelID = bot.config.Discord.DMQueueChannelID
	bot.handleMessageCreate(nil, m)

	entries, err := bot.dmQueue.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dm-1", entries[0].UserID)
	assert.Equal(t, "1-4", entries[0].Ranks)

	session.mu.Lock()
	reactions := append([]string{}, session.reactions...)
	session.mu.Unlock()
	assert.Equal(t, []string{readyReaction}, reactions)
}

func testInteraction(
	userID string,
	data discordgo.ApplicationCommandInteractionData,
	roleIDs ...string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   "interaction-1",
			Type: discordgo.InteractionApplicationCommand,
			Data: data,
			Member: &discordgo.Member{
				User:  &discordgo.User{ID: userID},
				Roles: roleIDs,
			},
		},
	}
}

func TestHandleInteractionCreateQueue(t *testing.T) {
	bot, session := newTestBot(t)

	bot.handleMessageCreate(nil, signupMessage(bot, "user-1", "**in line** Wizard 5"))

	bot.handleInteractionCreate(
		nil,
		testInteraction(
			"user-2",
			discordgo.ApplicationCommandInteractionData{Name: SlashCommandQueue},
		),
	)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.interactionResponses, 1)
	resp := session.interactionResponses[0]
	require.NotNil(t, resp.Data)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "Gate Sign-Up Queue", resp.Data.Embeds[0].Title)
}

func TestHandleInteractionCreatePermissionDenied(t *testing.T) {
	bot, session := newTestBot(t)

	bot.handleInteractionCreate(
		nil,
		testInteraction(
			"user-1",
			discordgo.ApplicationCommandInteractionData{
				Name: SlashCommandClaim,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:  optionGroup,
						Type:  discordgo.ApplicationCommandOptionInteger,
						Value: float64(1),
					},
					{
						Name:  optionGate,
						Type:  discordgo.ApplicationCommandOptionString,
						Value: "winter",
					},
				},
			},
		),
	)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.interactionResponses, 1)
	assert.Contains(
		t,
		session.interactionResponses[0].Data.Content,
		ErrPermissionDenied.Error(),
	)
}

func TestCommandClaimAsOwner(t *testing.T) {
	bot, session := newTestBot(t)
	ctx := context.Background()

	_, err := bot.gates.Add(ctx, "winter", ":snowflake:")
	require.NoError(t, err)
	bot.handleMessageCreate(nil, signupMessage(bot, "user-1", "**in line** Wizard 5"))

	// the configured owner bypasses the DM role requirement
	bot.handleInteractionCreate(
		nil,
		testInteraction(
			bot.config.Discord.OwnerID,
			discordgo.ApplicationCommandInteractionData{
				Name: SlashCommandClaim,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:  optionGroup,
						Type:  discordgo.ApplicationCommandOptionInteger,
						Value: float64(1),
					},
					{
						Name:  optionGate,
						Type:  discordgo.ApplicationCommandOptionString,
						Value: "winter",
					},
				},
			},
		),
	)

	q, err := bot.store.Load(ctx, bot.scope())
	require.NoError(t, err)
	assert.Zero(t, q.PlayerCount())

	var summons *sentMessage
	sent := session.sentMessages()
	for i := range sent {
		if sent[i].ChannelID == bot.config.Discord.SummonsChannelID {
			summons = &sent[i]
		}
	}
	require.NotNil(t, summons)
	assert.Contains(t, summons.Content, "<@user-1>")
	assert.Contains(t, summons.Content, "Welcome to the Winter Gate!")
}

func TestCommandLeaveNotInQueue(t *testing.T) {
	bot, session := newTestBot(t)
	session.guildRoles = []*discordgo.Role{{ID: "role-player", Name: "Player"}}

	bot.handleInteractionCreate(
		nil,
		testInteraction(
			"user-1",
			discordgo.ApplicationCommandInteractionData{Name: SlashCommandLeave},
			"role-player",
		),
	)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.interactionResponses, 1)
	assert.Equal(
		t,
		"You are not currently in the queue, so I cannot remove you from it.",
		session.interactionResponses[0].Data.Content,
	)
}

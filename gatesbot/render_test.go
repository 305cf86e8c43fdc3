package gatesbot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEmbed(t *testing.T) {
	q := NewQueue("guild-1", "channel-1")
	q.Place(newTestPlayer("user-1", 20), DefaultGroupSize)
	q.Place(newTestPlayer("user-2", 5), DefaultGroupSize)
	q.Place(newTestPlayer("user-3", 5), DefaultGroupSize)

	embed := QueueEmbed(
		q, RenderContext{
			Scope:     Scope{GuildID: "guild-1", ChannelID: "channel-1"},
			GroupSize: DefaultGroupSize,
			Marked:    map[string]bool{"user-2": true},
		},
	)

	assert.Equal(t, "Gate Sign-Up List", embed.Title)
	require.Len(t, embed.Fields, 2)

	// sorted ascending by tier, numbered from 1
	assert.Equal(t, "1. Rank 2", embed.Fields[0].Name)
	assert.Equal(t, "<@user-2>*, <@user-3>", embed.Fields[0].Value)
	assert.Equal(t, "2. Rank 7", embed.Fields[1].Name)
	assert.Equal(t, "<@user-1>", embed.Fields[1].Value)
}

func TestGroupInfoEmbed(t *testing.T) {
	g := NewGroup(
		2,
		NewPlayer(
			"user-1", Signup{
				TotalLevel: 5,
				Classes: []ClassLevel{
					{Class: "Wizard", Subclass: "None", Level: 5},
				},
			},
		),
	)
	embed := GroupInfoEmbed(3, g)
	assert.Equal(t, "Information for Group #3", embed.Title)
	assert.Contains(t, embed.Description, "```diff")
	assert.Contains(t, embed.Description, "user-1: Wizard 5")
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Rank", embed.Fields[0].Name)
	assert.Equal(t, "__2__", embed.Fields[0].Value)
}

func TestQueueStatsEmbed(t *testing.T) {
	q := NewQueue("guild-1", "channel-1")
	for i := 0; i < 6; i++ {
		q.Place(newTestPlayer(string(rune('a'+i)), 5), DefaultGroupSize)
	}
	embed := QueueStatsEmbed(q)
	assert.Contains(t, embed.Description, "**Rank 2:** 2 group(s)")
	require.Len(t, embed.Fields, 1)
	assert.Contains(t, embed.Fields[0].Value, "**Players:** 6")
}

func TestQueueStatsEmbedEmpty(t *testing.T) {
	embed := QueueStatsEmbed(NewQueue("guild-1", "channel-1"))
	assert.Equal(t, "The queue is empty.", embed.Description)
}

func TestPlayerStatsEmbed(t *testing.T) {
	stats := &PlayerStats{
		UserID:         "user-1",
		DisplayName:    "Gandalf",
		SignupCount:    4,
		SummonCount:    2,
		LastGateName:   "winter",
		LastSummonedAt: 1700000000000,
		SummonsPerLevel: LevelCounts{
			"5": 1,
			"8": 1,
		},
	}
	embed := PlayerStatsEmbed(stats)
	assert.Equal(t, "Queue Data - Gandalf", embed.Title)
	require.Len(t, embed.Fields, 3)
	assert.Contains(t, embed.Fields[0].Value, "**Last Gate:** Winter")
	assert.Contains(t, embed.Fields[0].Value, "<t:1700000000:f>")
	assert.Contains(t, embed.Fields[1].Value, "**Gate Signup Count:** 4")
	assert.Contains(t, embed.Fields[2].Value, "+ Level 5: 1 gate\n")
}

func TestDMQueueEmbed(t *testing.T) {
	embed := DMQueueEmbed(
		[]DMQueueEntry{
			{UserID: "dm-1", Ranks: "1-4"},
			{UserID: "dm-2", Ranks: "5-7"},
		},
	)
	assert.Equal(t, "DM Queue", embed.Title)
	assert.Contains(t, embed.Description, "**#1.** <@dm-1> - 1-4")
	assert.Contains(t, embed.Description, "**#2.** <@dm-2> - 5-7")
}

func TestRenderQueue(t *testing.T) {
	store := newTestStore(t)
	session := newMockDiscordSession(t)
	renderer := NewRenderer(
		session, store, &QueueSettings{GroupSize: DefaultGroupSize}, testLogger(t),
	)
	ctx := context.Background()
	scope := Scope{GuildID: "guild-1", ChannelID: "channel-1"}

	q, err := store.Update(
		ctx, scope, func(q *Queue) error {
			q.Place(newTestPlayer("user-1", 5), DefaultGroupSize)
			return nil
		},
	)
	require.NoError(t, err)

	rctx := RenderContext{Scope: scope, GroupSize: DefaultGroupSize}
	require.NoError(t, renderer.RenderQueue(ctx, rctx, q))

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "channel-1", sent[0].ChannelID)
	require.Len(t, sent[0].Embeds, 1)
	assert.Equal(t, "Gate Sign-Up List", sent[0].Embeds[0].Title)

	// the posted message ID was persisted
	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "message-1", loaded.SummaryMessageID())
}

func TestRenderQueueDeletesPrevious(t *testing.T) {
	store := newTestStore(t)
	session := newMockDiscordSession(t)
	renderer := NewRenderer(
		session, store, &QueueSettings{GroupSize: DefaultGroupSize}, testLogger(t),
	)
	ctx := context.Background()
	scope := Scope{GuildID: "guild-1", ChannelID: "channel-1"}

	q, err := store.Update(
		ctx, scope, func(q *Queue) error {
			q.Place(newTestPlayer("user-1", 5), DefaultGroupSize)
			return nil
		},
	)
	require.NoError(t, err)

	rctx := RenderContext{Scope: scope, GroupSize: DefaultGroupSize}
	require.NoError(t, renderer.RenderQueue(ctx, rctx, q))

	q, err = store.Load(ctx, scope)
	require.NoError(t, err)
	require.NoError(t, renderer.RenderQueue(ctx, rctx, q))

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Equal(t, []string{"message-1"}, session.deleted)
}

func TestRenderQueueHistoryFallback(t *testing.T) {
	store := newTestStore(t)
	session := newMockDiscordSession(t)
	session.history = []*discordgo.Message{
		{ID: "other", Embeds: []*discordgo.MessageEmbed{{Title: "Unrelated"}}},
		{
			ID: "stale-summary",
			Embeds: []*discordgo.MessageEmbed{
				{Title: queueSummaryTitle},
			},
		},
	}
	renderer := NewRenderer(
		session, store, &QueueSettings{GroupSize: DefaultGroupSize}, testLogger(t),
	)
	ctx := context.Background()
	scope := Scope{GuildID: "guild-1", ChannelID: "channel-1"}

	q := NewQueue(scope.GuildID, scope.ChannelID)
	rctx := RenderContext{Scope: scope, GroupSize: DefaultGroupSize}
	require.NoError(t, renderer.RenderQueue(ctx, rctx, q))

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Equal(t, []string{"stale-summary"}, session.deleted)
}

func TestRenderDMQueue(t *testing.T) {
	store := newTestStore(t)
	session := newMockDiscordSession(t)
	renderer := NewRenderer(
		session, store, &QueueSettings{GroupSize: DefaultGroupSize}, testLogger(t),
	)

	err := renderer.RenderDMQueue(
		context.Background(),
		"dm-queue-channel",
		[]DMQueueEntry{{UserID: "dm-1", Ranks: "1-4"}},
	)
	require.NoError(t, err)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "dm-queue-channel", sent[0].ChannelID)
	require.Len(t, sent[0].Embeds, 1)
	assert.Equal(t, "DM Queue", sent[0].Embeds[0].Title)
}

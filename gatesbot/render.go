package gatesbot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	queueSummaryTitle = "Gate Sign-Up List"
	dmQueueTitle      = "DM Queue"
	embedColor        = 0x2F3136
)

// RenderContext carries everything a render call needs to know about
// where and how to draw.
type RenderContext struct {
	Scope     Scope
	GroupSize int

	// Marked flags members carrying the recently-active mark; they get
	// an asterisk after their mention in the summary.
	Marked map[string]bool
}

// Renderer posts and replaces the queue summary messages. Re-posts are
// rate limited so a burst of sign-ups doesn't hammer the channel.
type Renderer struct {
	session      DiscordSessionHandler
	store        *QueueStore
	logger       *slog.Logger
	limiter      *rate.Limiter
	historyLimit int
}

// NewRenderer creates a Renderer. If log is nil, slog.Default() is used.
func NewRenderer(
	session DiscordSessionHandler,
	store *QueueStore,
	settings *QueueSettings,
	log *slog.Logger,
) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	postsPerMinute := settings.SummaryPostsPerMinute
	if postsPerMinute <= 0 {
		postsPerMinute = DefaultSummaryPostsPerMinute
	}
	historyLimit := settings.SummaryHistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultSummaryHistoryLimit
	}
	return &Renderer{
		session: session,
		store:   store,
		logger:  log.With(loggerNameKey, "renderer"),
		limiter: rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(postsPerMinute)),
			postsPerMinute,
		),
		historyLimit: historyLimit,
	}
}

func newEmbed(title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     embedColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// QueueEmbed builds the queue summary. Groups render sorted ascending
// by tier, numbered from 1.
func QueueEmbed(q *Queue, rctx RenderContext) *discordgo.MessageEmbed {
	q.SortByTier()

	embed := newEmbed(queueSummaryTitle)
	for i, g := range q.Groups {
		mentions := make([]string, 0, len(g.Players))
		for _, p := range g.Players {
			mention := p.Mention()
			if rctx.Marked[p.MemberID] {
				mention += "*"
			}
			mentions = append(mentions, mention)
		}
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   fmt.Sprintf("%d. Rank %d", i+1, g.Tier),
				Value:  strings.Join(mentions, ", "),
				Inline: false,
			},
		)
	}
	return embed
}

// GroupInfoEmbed builds the detail view for one group: each member's
// class levels in a diff block, like the original roster display.
func GroupInfoEmbed(groupNum int, g *Group) *discordgo.MessageEmbed {
	embed := newEmbed(fmt.Sprintf("Information for Group #%d", groupNum))

	var sb strings.Builder
	sb.WriteString("```diff\n")
	for _, p := range g.Players {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", p.MemberID, p.LevelString()))
	}
	sb.WriteString("```")
	embed.Description = sb.String()
	embed.Fields = append(
		embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Rank",
			Value:  "__" + g.TierSpread() + "__",
			Inline: true,
		},
	)
	return embed
}

// QueueStatsEmbed summarizes group and player counts per tier.
func QueueStatsEmbed(q *Queue) *discordgo.MessageEmbed {
	embed := newEmbed("Queue Stats")

	perTier := q.GroupsPerTier()
	tiers := make([]int, 0, len(perTier))
	for t := range perTier {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)

	var sb strings.Builder
	for _, t := range tiers {
		sb.WriteString(fmt.Sprintf("**Rank %d:** %d group(s)\n", t, perTier[t]))
	}
	if sb.Len() == 0 {
		sb.WriteString("The queue is empty.")
	}
	embed.Description = sb.String()
	embed.Fields = append(
		embed.Fields, &discordgo.MessageEmbedField{
			Name: "Totals",
			Value: fmt.Sprintf(
				"**Groups:** %d\n**Players:** %d",
				len(q.Groups), q.PlayerCount(),
			),
		},
	)
	return embed
}

// PlayerStatsEmbed builds the per-member stats view.
func PlayerStatsEmbed(stats *PlayerStats) *discordgo.MessageEmbed {
	embed := newEmbed(fmt.Sprintf("Queue Data - %s", stats.DisplayName))

	if stats.LastGateName != "" {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name: "Last Gate Summoned",
				Value: fmt.Sprintf(
					"**Last Gate:** %s\n**Date:** <t:%d:f>",
					titleCase(stats.LastGateName),
					stats.LastSummonedAt/1000,
				),
			},
		)
	}
	embed.Fields = append(
		embed.Fields, &discordgo.MessageEmbedField{
			Name: "Other Stats",
			Value: fmt.Sprintf(
				"**Gate Signup Count:** %d\n**Gate Summon Count:** %d",
				stats.SignupCount, stats.SummonCount,
			),
		},
	)

	if len(stats.SummonsPerLevel) > 0 {
		levels := make([]string, 0, len(stats.SummonsPerLevel))
		for level := range stats.SummonsPerLevel {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		var sb strings.Builder
		sb.WriteString("```diff\n")
		for _, level := range levels {
			count := stats.SummonsPerLevel[level]
			plural := ""
			if count != 1 {
				plural = "s"
			}
			sb.WriteString(
				fmt.Sprintf("+ Level %s: %d gate%s\n", level, count, plural),
			)
		}
		sb.WriteString("```")
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Gates Per Player Level (Summoned)",
				Value:  sb.String(),
				Inline: false,
			},
		)
	}
	return embed
}

// DMQueueEmbed builds the ready-queue view, FIFO order.
func DMQueueEmbed(entries []DMQueueEntry) *discordgo.MessageEmbed {
	embed := newEmbed(dmQueueTitle)
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(
			lines,
			fmt.Sprintf("**#%d.** <@%s> - %s", i+1, e.UserID, e.Ranks),
		)
	}
	embed.Description = strings.Join(lines, "\n")
	return embed
}

// RenderQueue replaces the queue summary in its channel: the previous
// summary is deleted (by stored message ID, falling back to a bounded
// history scan by title), the new one is posted, and its ID persisted.
func (r *Renderer) RenderQueue(
	ctx context.Context,
	rctx RenderContext,
	q *Queue,
) error {
	if !r.limiter.Allow() {
		r.logger.WarnContext(ctx, "queue render rate limited", "scope", rctx.Scope)
		return nil
	}

	r.deleteSummary(ctx, rctx.Scope.ChannelID, q.SummaryMessageID(), queueSummaryTitle)

	embed := QueueEmbed(q, rctx)
	msg, err := r.session.ChannelMessageSendComplex(
		rctx.Scope.ChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	)
	if err != nil {
		return fmt.Errorf("error posting queue summary: %w", err)
	}

	if err = r.store.SetSummaryMessageID(ctx, rctx.Scope, msg.ID); err != nil {
		r.logger.ErrorContext(ctx, "error storing summary message ID", tint.Err(err))
	}
	return nil
}

// RenderDMQueue replaces the DM ready-queue summary in its channel.
// The DM queue is global, so the old message is always found by scan.
func (r *Renderer) RenderDMQueue(
	ctx context.Context,
	channelID string,
	entries []DMQueueEntry,
) error {
	r.deleteSummary(ctx, channelID, "", dmQueueTitle)

	embed := DMQueueEmbed(entries)
	_, err := r.session.ChannelMessageSendComplex(
		channelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	)
	if err != nil {
		return fmt.Errorf("error posting DM queue summary: %w", err)
	}
	return nil
}

// deleteSummary removes the previous summary message. Delete failures
// are logged and ignored; a stale summary is better than a failed
// operation.
func (r *Renderer) deleteSummary(
	ctx context.Context,
	channelID string,
	messageID string,
	title string,
) {
	if messageID != "" {
		err := r.session.ChannelMessageDelete(channelID, messageID)
		if err == nil {
			return
		}
		r.logger.DebugContext(
			ctx, "could not delete summary by stored ID, scanning history",
			tint.Err(err), "message_id", messageID,
		)
	}

	history, err := r.session.ChannelMessages(channelID, r.historyLimit, "", "", "")
	if err != nil {
		r.logger.WarnContext(ctx, "error fetching channel history", tint.Err(err))
		return
	}
	for _, msg := range history {
		if len(msg.Embeds) != 1 || msg.Embeds[0].Title != title {
			continue
		}
		if err = r.session.ChannelMessageDelete(channelID, msg.ID); err != nil {
			r.logger.WarnContext(
				ctx, "error deleting old summary", tint.Err(err),
				"message_id", msg.ID,
			)
		}
		return
	}
}

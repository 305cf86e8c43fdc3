package gatesbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Build info, set via:
// -ldflags "-X github.com/1drturtle/GatesBot/gatesbot.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Bot wires the whole thing together: Discord transport, persistence,
// the queue engine, workflows, rendering, and the status API.
type Bot struct {
	config  *Config
	logger  *slog.Logger
	handler slog.Handler

	db      *gorm.DB
	writeDB DBI

	discord *Discord
	session DiscordSessionHandler

	store     *QueueStore
	queues    *QueueService
	claims    *Claims
	dmQueue   *DMQueue
	gates     *GateRegistry
	analytics *Analytics
	renderer  *Renderer
	api       *API

	eventHandlerRemovers []func()
}

// New validates the config and builds a Bot. The database connection
// and Discord session are established in Run.
func New(config *Config) (*Bot, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	handler := tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	logger := slog.New(handler).With(loggerNameKey, "gatesbot")

	b := &Bot{
		config:  config,
		logger:  logger,
		handler: handler,
		discord: newDiscord(config.Discord),
	}
	b.discord.logger = logger.With(loggerNameKey, "discord")
	b.discord.config.httpClient = config.HTTPClient
	return b, nil
}

// scope is the queue's identity: the configured guild and sign-up
// channel.
func (b *Bot) scope() Scope {
	return Scope{
		GuildID:   b.config.Discord.GuildID,
		ChannelID: b.config.Discord.QueueChannelID,
	}
}

// Run starts the bot and blocks until the context is canceled or a
// fatal error occurs.
func (b *Bot) Run(ctx context.Context) error {
	startupCtx, cancelStartup := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer cancelStartup()

	if err := b.init(startupCtx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}
	b.logger.InfoContext(ctx, "connected to discord")

	if err := b.registerCommands(); err != nil {
		return err
	}

	if b.config.Discord.StartupMessage != "" &&
		b.config.Discord.AnnouncementChannelID != "" {
		_, err := b.session.ChannelMessageSend(
			b.config.Discord.AnnouncementChannelID,
			b.config.Discord.StartupMessage,
		)
		if err != nil {
			b.logger.WarnContext(ctx, "error sending startup message", tint.Err(err))
		}
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.presenceLoop(groupCtx)
		return nil
	})
	if b.config.API != nil && b.config.API.Enabled {
		g.Go(func() error {
			return b.api.Run(groupCtx)
		})
	}
	g.Go(func() error {
		<-groupCtx.Done()
		return b.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// init connects to the database and wires every component.
func (b *Bot) init(ctx context.Context) error {
	gormLogger := newGORMLogger(b.handler, b.config.DatabaseSlowThreshold)
	b.logger.InfoContext(
		ctx, "initializing database",
		"database_type", b.config.DatabaseType,
		"database", b.config.Database,
	)
	db, err := CreateDB(ctx, b.config.DatabaseType, b.config.Database, gormLogger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	b.db = db
	b.writeDB = NewDatabase(db, b.logger, b.config.DatabaseType == dbTypePostgres)

	b.store = NewQueueStore(b.writeDB, b.logger)
	b.analytics = NewAnalytics(b.writeDB, b.logger)
	b.gates = NewGateRegistry(b.writeDB, b.logger)
	b.dmQueue = NewDMQueue(b.writeDB, b.analytics, b.logger)
	b.queues = NewQueueService(
		b.store,
		b.analytics,
		b.config.Queue.GroupSize,
		b.logger,
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)
	b.claims = NewClaims(b.store, b.gates, b.analytics, b.config.Discord, b.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     b.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.session = session
	b.renderer = NewRenderer(b.session, b.store, b.config.Queue, b.logger)

	b.eventHandlerRemovers = append(
		b.eventHandlerRemovers,
		b.session.AddHandler(b.handleInteractionCreate),
		b.session.AddHandler(b.handleMessageCreate),
	)

	if b.config.API != nil && b.config.API.Enabled {
		b.api = newAPI(b.config.API, b.store, b.gates, b.analytics, b.logger)
	}
	return nil
}

func (b *Bot) registerCommands() error {
	_, err := b.session.ApplicationCommandBulkOverwrite(
		b.config.Discord.ApplicationID,
		b.config.Discord.GuildID,
		b.applicationCommands(),
	)
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	return nil
}

func (b *Bot) shutdown() error {
	b.logger.Info("shutting down")
	for _, remove := range b.eventHandlerRemovers {
		remove()
	}
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing discord connection: %w", err)
	}
	return nil
}

// presenceLoop periodically refreshes the bot status with the current
// group count, ex: "Watching 3 Queue Groups!".
func (b *Bot) presenceLoop(ctx context.Context) {
	interval := b.config.Queue.PresenceInterval
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q, err := b.store.Load(ctx, b.scope())
			if err != nil {
				b.logger.WarnContext(
					ctx, "error loading queue for presence", tint.Err(err),
				)
				continue
			}
			if err = b.session.UpdateWatchStatus(
				0, statusText(len(q.Groups)),
			); err != nil {
				b.logger.WarnContext(
					ctx, "error updating presence", tint.Err(err),
				)
			}
		}
	}
}

// markedSet fetches the recently-active marks for everyone in the
// queue, for the summary's asterisks. Failures degrade to no marks.
func (b *Bot) markedSet(ctx context.Context, q *Queue) map[string]bool {
	ids := make([]string, 0, q.PlayerCount())
	for _, g := range q.Groups {
		for _, p := range g.Players {
			ids = append(ids, p.MemberID)
		}
	}
	marked, err := b.analytics.MarkedSet(ctx, ids)
	if err != nil {
		b.logger.WarnContext(ctx, "error fetching activity marks", tint.Err(err))
		return map[string]bool{}
	}
	return marked
}

// renderQueue re-posts the queue summary. Render failures are logged,
// never propagated; the mutation already succeeded.
func (b *Bot) renderQueue(ctx context.Context) {
	q, err := b.store.Load(ctx, b.scope())
	if err != nil {
		b.logger.ErrorContext(ctx, "error loading queue for render", tint.Err(err))
		return
	}
	rctx := RenderContext{
		Scope:     b.scope(),
		GroupSize: b.queues.GroupSize(),
		Marked:    b.markedSet(ctx, q),
	}
	if err = b.renderer.RenderQueue(ctx, rctx, q); err != nil {
		b.logger.ErrorContext(ctx, "error rendering queue", tint.Err(err))
	}
}

// renderDMQueue re-posts the DM ready-queue summary.
func (b *Bot) renderDMQueue(ctx context.Context) {
	if b.config.Discord.DMQueueChannelID == "" {
		return
	}
	entries, err := b.dmQueue.Entries(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "error loading DM queue for render", tint.Err(err))
		return
	}
	err = b.renderer.RenderDMQueue(ctx, b.config.Discord.DMQueueChannelID, entries)
	if err != nil {
		b.logger.ErrorContext(ctx, "error rendering DM queue", tint.Err(err))
	}
}

package gatesbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	lvl := &slog.LevelVar{}
	lvl.Set(slog.LevelDebug)
	return slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     lvl,
				AddSource: true,
			},
		),
	).With("test_name", t.Name())
}

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbPath := filepath.Join(tmpdir, "test.sqlite3")
	gormLogger := newGORMLogger(
		testLogger(t).Handler(),
		DefaultDatabaseSlowThreshold,
	)
	db, err := CreateDB(context.Background(), "sqlite", dbPath, gormLogger)
	if err != nil {
		t.Fatalf("error creating test database: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

func newTestDBI(t testing.TB) DBI {
	t.Helper()
	return NewDatabase(setupTestDB(t), testLogger(t), false)
}

func newTestPlayer(memberID string, totalLevel int) *Player {
	return NewPlayer(
		memberID, Signup{
			TotalLevel: totalLevel,
			Classes: []ClassLevel{
				{Class: "Wizard", Subclass: "None", Level: totalLevel},
			},
		},
	)
}

type sentMessage struct {
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed
}

// mockDiscordSession implements DiscordSessionHandler, capturing
// outbound calls so tests can validate what was sent.
type mockDiscordSession struct {
	logger *slog.Logger

	mu                   sync.Mutex
	sent                 []sentMessage
	deleted              []string
	reactions            []string
	interactionResponses []*discordgo.InteractionResponse
	watchStatuses        []string
	dmChannels           []string

	guildRoles []*discordgo.Role
	history    []*discordgo.Message

	nextMessageID int
}

func newMockDiscordSession(t testing.TB) *mockDiscordSession {
	return &mockDiscordSession{
		logger: testLogger(t).With(loggerNameKey, "mock_discord_session"),
	}
}

func (d *mockDiscordSession) sentMessages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *mockDiscordSession) Open() error {
	d.logger.Info("opened session")
	return nil
}

func (d *mockDiscordSession) Close() error {
	d.logger.Info("closed session")
	return nil
}

func (d *mockDiscordSession) record(msg sentMessage) *discordgo.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextMessageID++
	d.sent = append(d.sent, msg)
	return &discordgo.Message{
		ID:        fmt.Sprintf("message-%d", d.nextMessageID),
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		Embeds:    msg.Embeds,
	}
}

func (d *mockDiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info(
		"saw message send",
		"channel_id", channelID,
		"content", message,
	)
	return d.record(sentMessage{ChannelID: channelID, Content: message}), nil
}

func (d *mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info(
		"saw complex message send",
		"channel_id", channelID,
		"content", data.Content,
	)
	return d.record(
		sentMessage{
			ChannelID: channelID,
			Content:   data.Content,
			Embeds:    data.Embeds,
		},
	), nil
}

func (d *mockDiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"saw message delete",
		"channel_id", channelID,
		"message_id", messageID,
	)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, messageID)
	return nil
}

func (d *mockDiscordSession) ChannelMessages(
	channelID string,
	limit int,
	_ string,
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	d.logger.Info(
		"saw history fetch",
		"channel_id", channelID,
		"limit", limit,
	)
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit > len(d.history) {
		limit = len(d.history)
	}
	return d.history[:limit], nil
}

func (d *mockDiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"saw reaction add",
		"channel_id", channelID,
		"message_id", messageID,
		"emoji_id", emojiID,
	)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactions = append(d.reactions, emojiID)
	return nil
}

func (d *mockDiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	d.logger.Info(
		"overwrite application commands",
		"app_id", appID,
		"guild_id", guildID,
	)
	cmds := make([]*discordgo.ApplicationCommand, len(commands))
	for i, c := range commands {
		cmds[i] = &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: c.Description,
		}
	}
	return cmds, nil
}

func (d *mockDiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"mock responding to interaction",
		"interaction_id", interaction.ID,
	)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interactionResponses = append(d.interactionResponses, resp)
	return nil
}

func (d *mockDiscordSession) UpdateWatchStatus(idle int, name string) error {
	d.logger.Info("updating watch status", "idle", idle, "name", name)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchStatuses = append(d.watchStatuses, name)
	return nil
}

func (d *mockDiscordSession) AddHandler(_ any) func() {
	d.logger.Info("added handler")
	return func() {
		d.logger.Info("mock-removed handler function")
	}
}

func (d *mockDiscordSession) GuildMember(
	guildID string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	d.logger.Info("fetching guild member", "guild_id", guildID, "user_id", userID)
	return &discordgo.Member{User: &discordgo.User{ID: userID}}, nil
}

func (d *mockDiscordSession) GuildRoles(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	d.logger.Info("fetching guild roles", "guild_id", guildID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guildRoles, nil
}

func (d *mockDiscordSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	d.logger.Info("creating DM channel", "recipient_id", recipientID)
	d.mu.Lock()
	defer d.mu.Unlock()
	channelID := "dm-" + recipientID
	d.dmChannels = append(d.dmChannels, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (d *mockDiscordSession) SetLogLevel(lvl slog.Level) error {
	d.logger.Info("set log level", "level", lvl)
	return nil
}

func (d *mockDiscordSession) SetHTTPClient(_ *http.Client) {
	d.logger.Info("set http client")
}

// newTestBot wires a Bot against a temp sqlite database and a mock
// Discord session, without opening a gateway connection.
func newTestBot(t testing.TB) (*Bot, *mockDiscordSession) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(t.TempDir(), "bot.sqlite3")
	cfg.Discord.Token = "test-token"
	cfg.Discord.ApplicationID = "test-app"
	cfg.Discord.GuildID = "guild-1"
	cfg.Discord.QueueChannelID = "queue-channel"
	cfg.Discord.SummonsChannelID = "summons-channel"
	cfg.Discord.AnnouncementChannelID = "announce-channel"
	cfg.Discord.DMQueueChannelID = "dm-queue-channel"
	cfg.Discord.AssignmentChannelID = "assignment-channel"
	cfg.Discord.OwnerID = "owner-1"

	bot, err := New(cfg)
	require.NoError(t, err)
	bot.logger = testLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	require.NoError(t, bot.init(ctx))
	t.Cleanup(
		func() {
			sqlDB, _ := bot.db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	session := newMockDiscordSession(t)
	bot.session = session
	bot.discord.session = session
	bot.renderer.session = session
	return bot, session
}

package gatesbot

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "GATESBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "GB"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "gatesbot.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	// DefaultPresenceInterval is how often the bot presence is refreshed
	// with the current group count.
	DefaultPresenceInterval = 5 * time.Minute

	// DefaultSummaryHistoryLimit bounds the channel history scan used to
	// find an orphaned queue summary message.
	DefaultSummaryHistoryLimit = 50

	// DefaultSummaryPostsPerMinute rate-limits queue summary re-posts.
	DefaultSummaryPostsPerMinute = 20

	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	DefaultDiscordStartupMessage = "Gates are open!"
	DefaultDiscordErrorMessage   = "sorry, something went wrong!"

	DefaultAPIListen            = "127.0.0.1:5000"
	defaultListenNetwork        = "tcp"
	DefaultAPIReadTimeout       = 5 * time.Second
	DefaultAPIReadHeaderTimeout = 5 * time.Second
	DefaultAPIWriteTimeout      = 10 * time.Second
	DefaultAPIIdleTimeout       = 30 * time.Second

	DefaultCORSMaxAge = 12 * time.Hour
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Cache-Control",
	}
)

// Config is the full bot configuration, loaded via viper from env vars
// and an optional .env file.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Queue configures the sign-up queue behavior
	Queue *QueueSettings `yaml:"queue" mapstructure:"queue" json:"queue"`

	// API configures the read-only status API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// StartupTimeout bounds bot initialization time
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time allowed for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

func (c *Config) validate() error {
	if c.Discord == nil || c.Discord.Token == "" {
		return errors.New("discord token is required")
	}
	if c.Discord.ApplicationID == "" {
		return errors.New("discord application ID is required")
	}
	if c.DatabaseType != dbTypeSQLite && c.DatabaseType != dbTypePostgres {
		return errors.New("database_type must be 'sqlite' or 'postgres'")
	}
	if c.Queue != nil && c.Queue.GroupSize < 1 {
		return errors.New("queue group_size must be >= 1")
	}
	return nil
}

// DiscordConfig configures the Discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID is the gates server; slash commands are registered against it
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// QueueChannelID is the channel watched for sign-up messages
	QueueChannelID string `yaml:"queue_channel_id" mapstructure:"queue_channel_id" json:"queue_channel_id"`

	// SummonsChannelID receives claim summons messages
	SummonsChannelID string `yaml:"summons_channel_id" mapstructure:"summons_channel_id" json:"summons_channel_id"`

	// AnnouncementChannelID receives queue unlock announcements
	AnnouncementChannelID string `yaml:"announcement_channel_id" mapstructure:"announcement_channel_id" json:"announcement_channel_id"`

	// DMQueueChannelID is the channel watched for DM ready messages
	DMQueueChannelID string `yaml:"dm_queue_channel_id" mapstructure:"dm_queue_channel_id" json:"dm_queue_channel_id"`

	// AssignmentChannelID receives DM gate assignment messages
	AssignmentChannelID string `yaml:"assignment_channel_id" mapstructure:"assignment_channel_id" json:"assignment_channel_id"`

	// OwnerID bypasses role checks, like the original bot owner
	OwnerID string `yaml:"owner_id" mapstructure:"owner_id" json:"owner_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// StartupMessage is sent to the announcement channel on connect, if set
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// QueueSettings configures the sign-up queue behavior.
type QueueSettings struct {
	// GroupSize is the gate group capacity used for placement
	GroupSize int `yaml:"group_size" mapstructure:"group_size" json:"group_size"`

	// PresenceInterval is how often the bot status is refreshed
	PresenceInterval time.Duration `yaml:"presence_interval" mapstructure:"presence_interval" json:"presence_interval"`

	// SummaryHistoryLimit bounds the history scan for orphaned summaries
	SummaryHistoryLimit int `yaml:"summary_history_limit" mapstructure:"summary_history_limit" json:"summary_history_limit"`

	// SummaryPostsPerMinute rate-limits summary re-posts
	SummaryPostsPerMinute int `yaml:"summary_posts_per_minute" mapstructure:"summary_posts_per_minute" json:"summary_posts_per_minute"`
}

// APIConfig configures the read-only status API server.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// Enabled determines whether the API server runs at all
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000")
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix")
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network"`

	// The logging level for the API server
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// CORSConfig specifies cross-origin resource sharing settings.
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
}

func DefaultCORSConfig() CORSConfig {
	methods := make([]string, len(DefaultCORSAllowMethods))
	copy(methods, DefaultCORSAllowMethods)

	headers := make([]string, len(DefaultCORSAllowHeaders))
	copy(headers, DefaultCORSAllowHeaders)

	return CORSConfig{
		AllowOrigins: []string{},
		AllowMethods: methods,
		AllowHeaders: headers,
		MaxAge:       DefaultCORSMaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated.
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultDiscordStartupMessage,
		},
		Queue: &QueueSettings{
			GroupSize:             DefaultGroupSize,
			PresenceInterval:      DefaultPresenceInterval,
			SummaryHistoryLimit:   DefaultSummaryHistoryLimit,
			SummaryPostsPerMinute: DefaultSummaryPostsPerMinute,
		},
		API: &APIConfig{
			Enabled:           false,
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			CORS:              DefaultCORSConfig(),
			ReadTimeout:       DefaultAPIReadTimeout,
			ReadHeaderTimeout: DefaultAPIReadHeaderTimeout,
			WriteTimeout:      DefaultAPIWriteTimeout,
			IdleTimeout:       DefaultAPIIdleTimeout,
		},
	}
}

package cmd

import (
	"log/slog"
	"testing"
	"time"

	"github.com/1drturtle/GatesBot/gatesbot"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	initConfig()

	assert.Equal(t, gatesbot.DefaultDatabase, viper.GetString("database"))
	assert.Equal(
		t,
		gatesbot.DefaultDatabaseType,
		viper.GetString("database_type"),
	)
	assert.Equal(
		t,
		gatesbot.DefaultGroupSize,
		viper.GetInt("queue.group_size"),
	)
	assert.Equal(
		t,
		gatesbot.DefaultPresenceInterval,
		viper.GetDuration("queue.presence_interval"),
	)
	assert.Equal(t, gatesbot.DefaultAPIListen, viper.GetString("api.listen"))
	assert.False(t, viper.GetBool("api.enabled"))

	assertLogLevel(t, gatesbot.DefaultLogLevel, viper.Get("log_level"))
	assertLogLevel(
		t,
		gatesbot.DefaultDiscordLogLevel,
		viper.Get("discord.log_level"),
	)
	assertLogLevel(
		t,
		gatesbot.DefaultDatabaseLogLevel,
		viper.Get("database_log_level"),
	)
}

func TestInitConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GB_DISCORD_TOKEN", "test-token")
	t.Setenv("GB_QUEUE_GROUP_SIZE", "6")
	t.Setenv("GB_LOG_LEVEL", "DEBUG")

	initConfig()

	assert.Equal(t, "test-token", viper.GetString("discord.token"))
	assert.Equal(t, 6, viper.GetInt("queue.group_size"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("log_level"))
}

func TestUnmarshalConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GB_DISCORD_TOKEN", "test-token")
	t.Setenv("GB_DISCORD_APPLICATION_ID", "12345")
	t.Setenv("GB_SHUTDOWN_TIMEOUT", "15s")

	initConfig()

	tmpCfg := gatesbot.DefaultConfig()
	err := viper.Unmarshal(
		tmpCfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	require.NoError(t, err)

	assert.Equal(t, "test-token", tmpCfg.Discord.Token)
	assert.Equal(t, "12345", tmpCfg.Discord.ApplicationID)
	assert.Equal(t, 15*time.Second, tmpCfg.ShutdownTimeout)
	assert.Equal(t, gatesbot.DefaultGroupSize, tmpCfg.Queue.GroupSize)
	require.NotNil(t, tmpCfg.LogLevel)
	assert.Equal(t, gatesbot.DefaultLogLevel, tmpCfg.LogLevel.Level())
}

func TestGetLogLevel(t *testing.T) {
	for _, tc := range []struct {
		name     string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	} {
		lvl, err := getLogLevel(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, lvl)
	}

	_, err := getLogLevel("bogus")
	assert.Error(t, err)
}

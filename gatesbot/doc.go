// Package gatesbot implements a Discord sign-up queue for gate runs.
//
// Players post a sign-up message in the queue channel; the bot parses
// their class levels, resolves a tier from the total level, and places
// them into the first open group of that tier. DMs claim groups through
// slash commands, which pops the group, records analytics, and summons
// the players. The queue persists as a single document per guild and
// channel, and every mutation runs as a serialized load-mutate-save
// cycle.
package gatesbot

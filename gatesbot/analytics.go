package gatesbot

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"
)

const (
	columnPlayerStatsUserID = "user_id"
	columnDMStatsUserID     = "user_id"
	columnGateName          = "name"
	columnAssignmentClaimed = "claimed"
)

// LevelCounts is a per-character-level counter map, stored as JSON.
// Keys are stringified levels to match the historical data shape.
type LevelCounts map[string]int

func (c LevelCounts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	return string(data), err
}

func (c *LevelCounts) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*c = LevelCounts{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into LevelCounts", value)
	}
}

// Increment bumps the counter for the given level.
func (c LevelCounts) Increment(level int) {
	c[strconv.Itoa(level)]++
}

// Gate is a registry entry: a named gate with its assignment emoji.
// OwnerID is the DM currently running the gate, set at claim time and
// consulted for reinforcement calls.
type Gate struct {
	ModelUintID
	ModelUnixTime

	Name    string `json:"name" gorm:"uniqueIndex;not null"`
	Emoji   string `json:"emoji"`
	OwnerID string `json:"owner_id,omitempty"`
}

func (g Gate) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", g.Name),
		slog.String("emoji", g.Emoji),
	)
}

// PlayerStats tracks one member's queue history.
type PlayerStats struct {
	ModelUintID
	ModelUnixTime

	UserID          string      `json:"user_id" gorm:"uniqueIndex;not null"`
	DisplayName     string      `json:"display_name"`
	SignupCount     int64       `json:"signup_count"`
	SummonCount     int64       `json:"summon_count"`
	LastLevel       int         `json:"last_level"`
	LastClasses     string      `json:"last_classes"`
	LastGateName    string      `json:"last_gate_name"`
	LastSignupAt    int64       `json:"last_signup_at"`
	LastSummonedAt  int64       `json:"last_summoned_at"`
	SummonsPerLevel LevelCounts `json:"summons_per_level" gorm:"type:text"`

	// Marked flags the player as recently active. Set for everyone in
	// the queue when it unlocks, cleared for a group's members on claim.
	Marked bool `json:"marked"`
}

func (p PlayerStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", p.UserID),
		slog.Int64("signup_count", p.SignupCount),
		slog.Int64("summon_count", p.SummonCount),
	)
}

// GateRecord is one claimed gate: which gate, who ran it, the group's
// tier and its level histogram. CreatedAt is the claim date.
type GateRecord struct {
	ModelUintID
	ModelUnixTime

	GateName string      `json:"gate_name" gorm:"index"`
	DMID     string      `json:"dm_id" gorm:"index"`
	Tier     int         `json:"tier"`
	Levels   LevelCounts `json:"levels" gorm:"type:text"`
}

// DMStats tracks one DM's ready-queue and claim history.
type DMStats struct {
	ModelUintID
	ModelUnixTime

	UserID       string `json:"user_id" gorm:"uniqueIndex;not null"`
	Signups      int64  `json:"signups"`
	Assignments  int64  `json:"assignments"`
	Claims       int64  `json:"claims"`
	LastSignupAt int64  `json:"last_signup_at"`
	LastClaimAt  int64  `json:"last_claim_at"`
}

// Assignment is a pre-claim reservation of a group for a DM. Claimed is
// flipped when a later gate claim consumes it.
type Assignment struct {
	ModelUintID
	ModelUnixTime

	SummonerID string `json:"summoner_id"`
	DMID       string `json:"dm_id" gorm:"index"`
	GroupTier  int    `json:"group_tier"`
	GroupSize  int    `json:"group_size"`
	GroupBody  string `json:"group_body" gorm:"type:text"`
	Claimed    bool   `json:"claimed" gorm:"index"`
	ClaimedAt  int64  `json:"claimed_at"`
}

// DMQueueEntry is one DM's place in the ready queue, FIFO by ReadyAt.
type DMQueueEntry struct {
	ModelUintID
	ModelUnixTime

	UserID    string `json:"user_id" gorm:"uniqueIndex;not null"`
	Ranks     string `json:"ranks"`
	MessageID string `json:"message_id"`
	ReadyAt   int64  `json:"ready_at" gorm:"index"`
}

// Analytics is the gateway for the stats tables. Callers on the hot
// path treat failures as best-effort: log and continue rather than
// failing the queue operation.
type Analytics struct {
	db     DBI
	logger *slog.Logger
}

// NewAnalytics creates an Analytics gateway. If log is nil,
// slog.Default() is used.
func NewAnalytics(db DBI, log *slog.Logger) *Analytics {
	if log == nil {
		log = slog.Default()
	}
	return &Analytics{
		db:     db,
		logger: log.With(loggerNameKey, "analytics"),
	}
}

func nowUnixMilli() int64 {
	return time.Now().UTC().UnixMilli()
}

// upsertPlayerStats loads or creates the row for userID inside a
// transaction, applies fn, and saves.
func (a *Analytics) upsertPlayerStats(
	ctx context.Context,
	userID string,
	fn func(stats *PlayerStats),
) error {
	return a.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var stats PlayerStats
			err := tx.Where(
				columnPlayerStatsUserID+" = ?", userID,
			).Take(&stats).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				stats = PlayerStats{UserID: userID, SummonsPerLevel: LevelCounts{}}
			} else if err != nil {
				return err
			}
			if stats.SummonsPerLevel == nil {
				stats.SummonsPerLevel = LevelCounts{}
			}
			fn(&stats)
			return tx.Save(&stats).Error
		},
	)
}

func (a *Analytics) upsertDMStats(
	ctx context.Context,
	userID string,
	fn func(stats *DMStats),
) error {
	return a.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var stats DMStats
			err := tx.Where(
				columnDMStatsUserID+" = ?", userID,
			).Take(&stats).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				stats = DMStats{UserID: userID}
			} else if err != nil {
				return err
			}
			fn(&stats)
			return tx.Save(&stats).Error
		},
	)
}

// RecordSignup bumps the member's signup counter and snapshots the
// parsed character.
func (a *Analytics) RecordSignup(
	ctx context.Context,
	userID string,
	displayName string,
	signup Signup,
) error {
	classes, err := json.Marshal(signup.Classes)
	if err != nil {
		return err
	}
	return a.upsertPlayerStats(
		ctx, userID, func(stats *PlayerStats) {
			stats.SignupCount++
			stats.DisplayName = displayName
			stats.LastLevel = signup.TotalLevel
			stats.LastClasses = string(classes)
			stats.LastSignupAt = nowUnixMilli()
		},
	)
}

// RecordLeave decrements the member's signup counter, matching the
// historical behavior of treating a leave as an undone signup.
func (a *Analytics) RecordLeave(ctx context.Context, userID string) error {
	return a.upsertPlayerStats(
		ctx, userID, func(stats *PlayerStats) {
			stats.SignupCount--
		},
	)
}

// RecordClaim writes everything a claim touches: the gate record, each
// member's summon counters and activity mark, the DM's claim counters,
// and the newest unclaimed assignment.
func (a *Analytics) RecordClaim(
	ctx context.Context,
	dmID string,
	gate Gate,
	group *Group,
) error {
	levels := LevelCounts{}
	for _, p := range group.Players {
		levels.Increment(p.TotalLevel)
	}
	rec := GateRecord{
		GateName: gate.Name,
		DMID:     dmID,
		Tier:     group.Tier,
		Levels:   levels,
	}
	if _, err := a.db.Create(ctx, &rec); err != nil {
		return err
	}

	now := nowUnixMilli()
	recordErrs := make([]error, 0, len(group.Players)+2)
	for _, p := range group.Players {
		player := p
		recordErrs = append(
			recordErrs, a.upsertPlayerStats(
				ctx, player.MemberID, func(stats *PlayerStats) {
					stats.SummonCount++
					stats.SummonsPerLevel.Increment(player.TotalLevel)
					stats.LastGateName = gate.Name
					stats.LastSummonedAt = now
					stats.Marked = false
				},
			),
		)
	}

	recordErrs = append(
		recordErrs, a.upsertDMStats(
			ctx, dmID, func(stats *DMStats) {
				stats.Claims++
				stats.LastClaimAt = now
			},
		),
	)
	recordErrs = append(recordErrs, a.claimLatestAssignment(ctx, now))
	return errors.Join(recordErrs...)
}

// claimLatestAssignment flips the newest unclaimed assignment, if any.
func (a *Analytics) claimLatestAssignment(ctx context.Context, now int64) error {
	return a.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var assignment Assignment
			err := tx.Where(
				columnAssignmentClaimed+" = ?", false,
			).Order("created_at DESC").Take(&assignment).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			assignment.Claimed = true
			assignment.ClaimedAt = now
			return tx.Save(&assignment).Error
		},
	)
}

// RecordAssignment stores a pre-claim reservation and bumps the DM's
// assignment counter.
func (a *Analytics) RecordAssignment(
	ctx context.Context,
	summonerID string,
	dmID string,
	group *Group,
) error {
	body, err := json.Marshal(group)
	if err != nil {
		return err
	}
	assignment := Assignment{
		SummonerID: summonerID,
		DMID:       dmID,
		GroupTier:  group.Tier,
		GroupSize:  len(group.Players),
		GroupBody:  string(body),
	}
	if _, err = a.db.Create(ctx, &assignment); err != nil {
		return err
	}
	return a.upsertDMStats(
		ctx, dmID, func(stats *DMStats) {
			stats.Assignments++
		},
	)
}

// RecordDMReady bumps the DM's ready-queue signup counter.
func (a *Analytics) RecordDMReady(ctx context.Context, userID string) error {
	return a.upsertDMStats(
		ctx, userID, func(stats *DMStats) {
			stats.Signups++
			stats.LastSignupAt = nowUnixMilli()
		},
	)
}

// MarkQueueActive sets the recently-active flag for every player
// currently in the queue. Called when the queue unlocks.
func (a *Analytics) MarkQueueActive(ctx context.Context, q *Queue) error {
	markErrs := make([]error, 0, q.PlayerCount())
	for _, g := range q.Groups {
		for _, p := range g.Players {
			markErrs = append(
				markErrs, a.upsertPlayerStats(
					ctx, p.MemberID, func(stats *PlayerStats) {
						stats.Marked = true
					},
				),
			)
		}
	}
	return errors.Join(markErrs...)
}

// MarkedSet returns which of the given members currently carry the
// recently-active mark.
func (a *Analytics) MarkedSet(
	ctx context.Context,
	userIDs []string,
) (map[string]bool, error) {
	marked := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return marked, nil
	}
	var rows []PlayerStats
	err := a.db.DB().WithContext(ctx).Where(
		columnPlayerStatsUserID+" IN ? AND marked = ?", userIDs, true,
	).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		marked[row.UserID] = true
	}
	return marked, nil
}

// PlayerStatsFor returns the stats row for a member, or nil when the
// member has no recorded history.
func (a *Analytics) PlayerStatsFor(
	ctx context.Context,
	userID string,
) (*PlayerStats, error) {
	var stats PlayerStats
	err := a.db.DB().WithContext(ctx).Where(
		columnPlayerStatsUserID+" = ?", userID,
	).Take(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// DMStatsFor returns the stats row for a DM, or nil when the DM has no
// recorded history.
func (a *Analytics) DMStatsFor(
	ctx context.Context,
	userID string,
) (*DMStats, error) {
	var stats DMStats
	err := a.db.DB().WithContext(ctx).Where(
		columnDMStatsUserID+" = ?", userID,
	).Take(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

package gatesbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	columnQueueRecordGuildID          = "guild_id"
	columnQueueRecordChannelID        = "channel_id"
	columnQueueRecordLocked           = "locked"
	columnQueueRecordGroups           = "groups"
	columnQueueRecordRevision         = "revision"
	columnQueueRecordSummaryMessageID = "summary_message_id"
	columnQueueRecordUpdatedAt        = "updated_at"
)

// QueueRecord is the persisted queue document, one row per scope. The
// group list is stored as a JSON body; everything queries care about
// lives in its own column.
type QueueRecord struct {
	ModelUintID
	ModelUnixTime

	GuildID          string `json:"guild_id" gorm:"uniqueIndex:idx_queue_scope;not null"`
	ChannelID        string `json:"channel_id" gorm:"uniqueIndex:idx_queue_scope;not null"`
	Locked           bool   `json:"locked"`
	Groups           string `json:"groups" gorm:"type:text"`
	Revision         int64  `json:"revision"`
	SummaryMessageID string `json:"summary_message_id"`
}

func (QueueRecord) TableName() string {
	return "queue_records"
}

func (r QueueRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(r.ID)),
		slog.String("guild_id", r.GuildID),
		slog.String("channel_id", r.ChannelID),
		slog.Int64("revision", r.Revision),
	)
}

// Scope identifies one queue: a guild plus its sign-up channel.
type Scope struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

func (s Scope) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", s.GuildID),
		slog.String("channel_id", s.ChannelID),
	)
}

// QueueStore is the persistence gateway for queues. Every mutation goes
// through Update, which holds a per-scope mutex across the whole
// load-mutate-save cycle so concurrent handlers for the same scope
// serialize instead of clobbering each other.
type QueueStore struct {
	db     DBI
	logger *slog.Logger

	mu     sync.Mutex
	scopes map[Scope]*sync.Mutex
}

// NewQueueStore creates a QueueStore. If log is nil, slog.Default()
// is used.
func NewQueueStore(db DBI, log *slog.Logger) *QueueStore {
	if log == nil {
		log = slog.Default()
	}
	return &QueueStore{
		db:     db,
		logger: log.With(loggerNameKey, "queue_store"),
		scopes: map[Scope]*sync.Mutex{},
	}
}

func (s *QueueStore) scopeLock(scope Scope) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.scopes[scope]
	if !ok {
		m = &sync.Mutex{}
		s.scopes[scope] = m
	}
	return m
}

// Load fetches the queue for the given scope, synthesizing an empty
// queue when no record exists yet. Player tiers are rederived from the
// stored total levels.
func (s *QueueStore) Load(ctx context.Context, scope Scope) (*Queue, error) {
	var rec QueueRecord
	err := s.db.DB().WithContext(ctx).Where(
		fmt.Sprintf(
			"%s = ? AND %s = ?",
			columnQueueRecordGuildID,
			columnQueueRecordChannelID,
		),
		scope.GuildID,
		scope.ChannelID,
	).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewQueue(scope.GuildID, scope.ChannelID), nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load queue", Err: err}
	}
	return queueFromRecord(rec)
}

func queueFromRecord(rec QueueRecord) (*Queue, error) {
	q := NewQueue(rec.GuildID, rec.ChannelID)
	q.Locked = rec.Locked
	q.revision = rec.Revision
	q.summaryMessageID = rec.SummaryMessageID

	if rec.Groups != "" {
		if err := json.Unmarshal([]byte(rec.Groups), &q.Groups); err != nil {
			return nil, &PersistenceError{Op: "decode queue groups", Err: err}
		}
	}
	for _, g := range q.Groups {
		for _, p := range g.Players {
			p.Tier = ResolveTier(p.TotalLevel)
		}
	}
	return q, nil
}

// Save prunes empty groups and upserts the queue document by scope,
// bumping the stored revision.
func (s *QueueStore) Save(ctx context.Context, q *Queue) error {
	q.Prune()

	body, err := json.Marshal(q.Groups)
	if err != nil {
		return &PersistenceError{Op: "encode queue groups", Err: err}
	}
	rec := QueueRecord{
		GuildID:          q.GuildID,
		ChannelID:        q.ChannelID,
		Locked:           q.Locked,
		Groups:           string(body),
		Revision:         q.revision + 1,
		SummaryMessageID: q.summaryMessageID,
	}

	s.db.Lock()
	defer s.db.Unlock()
	rv := s.db.DB().WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{
				{Name: columnQueueRecordGuildID},
				{Name: columnQueueRecordChannelID},
			},
			DoUpdates: clause.Assignments(
				map[string]any{
					columnQueueRecordLocked:           rec.Locked,
					columnQueueRecordGroups:           rec.Groups,
					columnQueueRecordSummaryMessageID: rec.SummaryMessageID,
					// OnConflict assignments bypass autoUpdateTime.
					columnQueueRecordUpdatedAt: time.Now().UnixMilli(),
					columnQueueRecordRevision: gorm.Expr(
						columnQueueRecordRevision + " + 1",
					),
				},
			),
		},
	).Create(&rec)
	if rv.Error != nil {
		return &PersistenceError{Op: "save queue", Err: rv.Error}
	}
	q.revision++
	return nil
}

// Update runs fn against the current queue for the scope and saves the
// result, holding the scope's mutex for the entire cycle. If fn returns
// an error, nothing is saved and the error is returned as-is.
func (s *QueueStore) Update(
	ctx context.Context,
	scope Scope,
	fn func(q *Queue) error,
) (*Queue, error) {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err = fn(q); err != nil {
		return nil, err
	}
	if err = s.Save(ctx, q); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "queue saved", "queue", q)
	return q, nil
}

// SetSummaryMessageID records the Discord message ID of the current
// queue summary without touching the queue body.
func (s *QueueStore) SetSummaryMessageID(
	ctx context.Context,
	scope Scope,
	messageID string,
) error {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.UpdatesWhere(
		ctx,
		&QueueRecord{},
		map[string]any{columnQueueRecordSummaryMessageID: messageID},
		fmt.Sprintf(
			"%s = ? AND %s = ?",
			columnQueueRecordGuildID,
			columnQueueRecordChannelID,
		),
		scope.GuildID,
		scope.ChannelID,
	)
	if err != nil {
		return &PersistenceError{Op: "set summary message ID", Err: err}
	}
	return nil
}

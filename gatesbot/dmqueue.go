package gatesbot

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

const columnDMQueueUserID = "user_id"

// DMQueue is the FIFO ready queue for DMs. One entry per DM; posting
// again refreshes the rank note but keeps the original position only
// if the entry still exists, otherwise re-enters at the back.
type DMQueue struct {
	db        DBI
	analytics *Analytics
	logger    *slog.Logger
}

// NewDMQueue creates a DMQueue. If log is nil, slog.Default() is used.
func NewDMQueue(db DBI, analytics *Analytics, log *slog.Logger) *DMQueue {
	if log == nil {
		log = slog.Default()
	}
	return &DMQueue{
		db:        db,
		analytics: analytics,
		logger:    log.With(loggerNameKey, "dm_queue"),
	}
}

// Ready enters (or refreshes) a DM in the ready queue and bumps their
// signup counter. ReadyAt is refreshed either way, matching the
// original behavior of a repeat ready message moving you to the back.
func (d *DMQueue) Ready(
	ctx context.Context,
	userID string,
	ranks string,
	messageID string,
) error {
	err := d.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var entry DMQueueEntry
			findErr := tx.Where(
				columnDMQueueUserID+" = ?", userID,
			).Take(&entry).Error
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				entry = DMQueueEntry{UserID: userID}
			} else if findErr != nil {
				return findErr
			}
			entry.Ranks = ranks
			entry.MessageID = messageID
			entry.ReadyAt = nowUnixMilli()
			return tx.Save(&entry).Error
		},
	)
	if err != nil {
		return &PersistenceError{Op: "dm ready", Err: err}
	}
	if statErr := d.analytics.RecordDMReady(ctx, userID); statErr != nil {
		d.logger.ErrorContext(ctx, "error recording DM ready", "error", statErr)
	}
	d.logger.InfoContext(ctx, "DM ready", "user_id", userID, "ranks", ranks)
	return nil
}

// Entries returns the ready queue in FIFO order.
func (d *DMQueue) Entries(ctx context.Context) ([]DMQueueEntry, error) {
	var entries []DMQueueEntry
	err := d.db.DB().WithContext(ctx).Order("ready_at ASC").Find(&entries).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list dm queue", Err: err}
	}
	return entries, nil
}

// UpdateRanks replaces the rank note on an existing entry without
// changing queue position. Updating a DM who isn't queued is a no-op.
func (d *DMQueue) UpdateRanks(ctx context.Context, userID, ranks string) error {
	_, err := d.db.UpdatesWhere(
		ctx,
		&DMQueueEntry{},
		map[string]any{"ranks": ranks},
		columnDMQueueUserID+" = ?", userID,
	)
	if err != nil {
		return &PersistenceError{Op: "update dm ranks", Err: err}
	}
	return nil
}

// Remove takes a DM out of the ready queue. Removing a DM who isn't
// queued is a no-op.
func (d *DMQueue) Remove(ctx context.Context, userID string) error {
	// Hard delete so the DM can re-enter later.
	d.db.Lock()
	err := d.db.DB().WithContext(ctx).Unscoped().Delete(
		&DMQueueEntry{}, columnDMQueueUserID+" = ?", userID,
	).Error
	d.db.Unlock()
	if err != nil {
		return &PersistenceError{Op: "remove dm", Err: err}
	}
	return nil
}

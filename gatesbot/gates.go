package gatesbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
)

// GateRegistry manages the named gate list. Names are stored lowercased
// so lookups are case-insensitive.
type GateRegistry struct {
	db     DBI
	logger *slog.Logger
}

// NewGateRegistry creates a GateRegistry. If log is nil, slog.Default()
// is used.
func NewGateRegistry(db DBI, log *slog.Logger) *GateRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &GateRegistry{
		db:     db,
		logger: log.With(loggerNameKey, "gate_registry"),
	}
}

// List returns all registered gates, ordered by name.
func (r *GateRegistry) List(ctx context.Context) ([]Gate, error) {
	var gates []Gate
	err := r.db.DB().WithContext(ctx).Order(columnGateName).Find(&gates).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list gates", Err: err}
	}
	return gates, nil
}

// Get looks up a gate by name. Returns ErrUnknownGate when the name is
// not registered.
func (r *GateRegistry) Get(ctx context.Context, name string) (Gate, error) {
	var gate Gate
	err := r.db.DB().WithContext(ctx).Where(
		columnGateName+" = ?", strings.ToLower(name),
	).Take(&gate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Gate{}, fmt.Errorf("%w: %s", ErrUnknownGate, name)
	}
	if err != nil {
		return Gate{}, &PersistenceError{Op: "get gate", Err: err}
	}
	return gate, nil
}

// Add registers a gate, or updates the emoji when the name already
// exists.
func (r *GateRegistry) Add(ctx context.Context, name, emoji string) (Gate, error) {
	name = strings.ToLower(name)
	var out Gate
	err := r.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var gate Gate
			err := tx.Where(columnGateName+" = ?", name).Take(&gate).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				gate = Gate{Name: name}
			} else if err != nil {
				return err
			}
			gate.Emoji = emoji
			if err = tx.Save(&gate).Error; err != nil {
				return err
			}
			out = gate
			return nil
		},
	)
	if err != nil {
		return Gate{}, &PersistenceError{Op: "add gate", Err: err}
	}
	r.logger.InfoContext(ctx, "gate registered", "gate", out)
	return out, nil
}

// Remove deletes a gate by name. Returns ErrUnknownGate when the name
// is not registered.
func (r *GateRegistry) Remove(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	if _, err := r.Get(ctx, name); err != nil {
		return err
	}
	// Hard delete so the name can be re-registered later.
	r.db.Lock()
	err := r.db.DB().Unscoped().Delete(&Gate{}, columnGateName+" = ?", name).Error
	r.db.Unlock()
	if err != nil {
		return &PersistenceError{Op: "remove gate", Err: err}
	}
	r.logger.InfoContext(ctx, "gate removed", "gate_name", name)
	return nil
}

// SetOwner records which DM is currently running the gate.
func (r *GateRegistry) SetOwner(ctx context.Context, name, ownerID string) error {
	_, err := r.db.UpdatesWhere(
		ctx,
		&Gate{},
		map[string]any{"owner_id": ownerID},
		columnGateName+" = ?", strings.ToLower(name),
	)
	if err != nil {
		return &PersistenceError{Op: "set gate owner", Err: err}
	}
	return nil
}

package gatesbot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/lmittmann/tint"
)

// QueueService orchestrates queue mutations: every operation runs as a
// single serialized load-mutate-save cycle against the store, with
// analytics recorded best-effort afterwards.
type QueueService struct {
	store     *QueueStore
	analytics *Analytics
	groupSize int
	logger    *slog.Logger
	rng       *rand.Rand
}

// NewQueueService creates a QueueService. A groupSize of 0 falls back
// to DefaultGroupSize; if log is nil, slog.Default() is used.
func NewQueueService(
	store *QueueStore,
	analytics *Analytics,
	groupSize int,
	log *slog.Logger,
	rng *rand.Rand,
) *QueueService {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &QueueService{
		store:     store,
		analytics: analytics,
		groupSize: groupSize,
		logger:    log.With(loggerNameKey, "queue_service"),
		rng:       rng,
	}
}

// GroupSize returns the configured gate group capacity.
func (s *QueueService) GroupSize() int {
	return s.groupSize
}

// Current loads the queue for display; no mutation, no lock held.
func (s *QueueService) Current(ctx context.Context, scope Scope) (*Queue, error) {
	return s.store.Load(ctx, scope)
}

// SignUp parses a sign-up message and places the member. Members
// already holding a spot are rejected; the queue being locked rejects
// everyone.
func (s *QueueService) SignUp(
	ctx context.Context,
	scope Scope,
	memberID string,
	displayName string,
	content string,
) (*Queue, *Player, error) {
	signup := ParseSignup(StripSignupMarker(content))
	player := NewPlayer(memberID, signup)

	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			if q.Locked {
				return ErrQueueLocked
			}
			if _, _, ok := q.InQueue(memberID); ok {
				return ErrAlreadyInQueue
			}
			q.Place(player, s.groupSize)
			return nil
		},
	)
	if err != nil {
		return nil, nil, err
	}

	if recordErr := s.analytics.RecordSignup(
		ctx, memberID, displayName, signup,
	); recordErr != nil {
		s.logger.ErrorContext(
			ctx, "error recording signup analytics", tint.Err(recordErr),
		)
	}
	s.logger.InfoContext(ctx, "player signed up", "player", player, "scope", scope)
	return q, player, nil
}

// Leave removes the member from their spot. Returns the 1-based group
// number they left, numbered against the tier-sorted queue so it
// matches the rendered summary, or ErrNotInQueue.
func (s *QueueService) Leave(
	ctx context.Context,
	scope Scope,
	memberID string,
) (int, *Queue, error) {
	var groupNum int
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			gi, pi, ok := q.InQueue(memberID)
			if !ok {
				return ErrNotInQueue
			}
			groupNum = gi + 1
			_, removeErr := q.Remove(gi, pi)
			return removeErr
		},
	)
	if err != nil {
		return 0, nil, err
	}

	if recordErr := s.analytics.RecordLeave(ctx, memberID); recordErr != nil {
		s.logger.ErrorContext(
			ctx, "error recording leave analytics", tint.Err(recordErr),
		)
	}
	s.logger.InfoContext(
		ctx, "player left queue", "member_id", memberID, "group_num", groupNum,
	)
	return groupNum, q, nil
}

// RemovePlayer takes a member out of the queue on an operator's behalf.
// Unlike Leave, no analytics counter is touched: the member didn't
// un-sign-up, someone removed them.
func (s *QueueService) RemovePlayer(
	ctx context.Context,
	scope Scope,
	memberID string,
) (int, *Queue, error) {
	var groupNum int
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			gi, pi, ok := q.InQueue(memberID)
			if !ok {
				return ErrNotInQueue
			}
			groupNum = gi + 1
			_, removeErr := q.Remove(gi, pi)
			return removeErr
		},
	)
	if err != nil {
		return 0, nil, err
	}
	s.logger.InfoContext(
		ctx, "player removed from queue",
		"member_id", memberID, "group_num", groupNum,
	)
	return groupNum, q, nil
}

// MovePlayer relocates a member between 1-based group numbers against
// the tier-sorted queue. Destination tier and lock state are not
// validated; this is the operator override for placement.
func (s *QueueService) MovePlayer(
	ctx context.Context,
	scope Scope,
	memberID string,
	fromGroup int,
	toGroup int,
) (*Queue, error) {
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			return q.Move(memberID, fromGroup, toGroup)
		},
	)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(
		ctx, "player moved",
		"member_id", memberID, "from_group", fromGroup, "to_group", toGroup,
	)
	return q, nil
}

// CreateGroup splits a queued member out into a fresh group of their
// own tier, inserted right after their old group.
func (s *QueueService) CreateGroup(
	ctx context.Context,
	scope Scope,
	memberID string,
) (*Group, *Queue, error) {
	var created *Group
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			var splitErr error
			created, splitErr = q.SplitOut(memberID)
			return splitErr
		},
	)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(
		ctx, "group created", "member_id", memberID, "tier", created.Tier,
	)
	return created, q, nil
}

// Shuffle redistributes the unlocked groups of one tier. Irrevocable.
func (s *QueueService) Shuffle(
	ctx context.Context,
	scope Scope,
	tier int,
	groupSize int,
) (*Queue, error) {
	if groupSize <= 0 {
		groupSize = s.groupSize
	}
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.Shuffle(tier, groupSize, s.rng)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "queue shuffled", "tier", tier, "group_size", groupSize)
	return q, nil
}

// SetLocked locks or unlocks the queue. Unlocking marks every queued
// player as recently active.
func (s *QueueService) SetLocked(
	ctx context.Context,
	scope Scope,
	locked bool,
) (*Queue, error) {
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.Locked = locked
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if !locked {
		if markErr := s.analytics.MarkQueueActive(ctx, q); markErr != nil {
			s.logger.ErrorContext(
				ctx, "error marking queue players active", tint.Err(markErr),
			)
		}
	}
	s.logger.InfoContext(ctx, "queue lock changed", "locked", locked, "scope", scope)
	return q, nil
}

// ToggleGroupLock flips the lock on one 1-based group number against
// the tier-sorted queue, returning the new state.
func (s *QueueService) ToggleGroupLock(
	ctx context.Context,
	scope Scope,
	groupNum int,
) (bool, *Queue, error) {
	var locked bool
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			var toggleErr error
			locked, toggleErr = q.ToggleGroupLock(groupNum)
			return toggleErr
		},
	)
	if err != nil {
		return false, nil, err
	}
	s.logger.InfoContext(
		ctx, "group lock toggled", "group_num", groupNum, "locked", locked,
	)
	return locked, q, nil
}

// Empty clears every group from the queue.
func (s *QueueService) Empty(ctx context.Context, scope Scope) (*Queue, error) {
	q, err := s.store.Update(
		ctx, scope, func(q *Queue) error {
			q.Groups = q.Groups[:0]
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "queue emptied", "scope", scope)
	return q, nil
}

// GroupByNumber fetches one 1-based group from the tier-sorted queue
// for display.
func (s *QueueService) GroupByNumber(
	ctx context.Context,
	scope Scope,
	groupNum int,
) (*Group, error) {
	q, err := s.store.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	q.SortByTier()
	if err = validSelection(len(q.Groups), groupNum); err != nil {
		return nil, err
	}
	return q.Groups[groupNum-1], nil
}

// statusText renders the presence line, ex: "3 Queue Groups!".
func statusText(groupCount int) string {
	return fmt.Sprintf("%d Queue Groups!", groupCount)
}

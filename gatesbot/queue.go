package gatesbot

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
)

// DefaultGroupSize is the standard gate group capacity.
const DefaultGroupSize = 5

// Player is one queued member. Tier is derived from TotalLevel exactly
// once, at construction or rehydration; class levels are immutable after
// that, so the tier is never recomputed.
type Player struct {
	MemberID   string       `json:"member_id"`
	TotalLevel int          `json:"total_level"`
	Classes    []ClassLevel `json:"classes"`

	// Tier is derived, not persisted.
	Tier int `json:"-"`
}

// NewPlayer builds a Player from a parsed sign-up.
func NewPlayer(memberID string, signup Signup) *Player {
	return &Player{
		MemberID:   memberID,
		TotalLevel: signup.TotalLevel,
		Classes:    signup.Classes,
		Tier:       ResolveTier(signup.TotalLevel),
	}
}

// Mention returns the Discord mention string for the player.
func (p *Player) Mention() string {
	return fmt.Sprintf("<@%s>", p.MemberID)
}

// LevelString renders the class list, ex:
// "Arcane Trickster Rogue 3 / Wizard 5".
func (p *Player) LevelString() string {
	out := ""
	for i, c := range p.Classes {
		if i > 0 {
			out += " / "
		}
		if c.Subclass != "None" && c.Subclass != "" {
			out += c.Subclass + " "
		}
		if c.Class == "None" || c.Class == "" {
			out += "*None*"
		} else {
			out += c.Class + " "
		}
		out += fmt.Sprintf("%d", c.Level)
	}
	return out
}

func (p *Player) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("member_id", p.MemberID),
		slog.Int("total_level", p.TotalLevel),
		slog.Int("tier", p.Tier),
	)
}

// Group is a tier-bound bucket of players awaiting claim. The tier is
// fixed at creation and is not re-derived from members; placement
// enforces tier matching, manual moves may bypass it.
type Group struct {
	Tier     int       `json:"tier"`
	Position *int      `json:"position"`
	Locked   bool      `json:"locked,omitempty"`
	Assigned string    `json:"assigned,omitempty"`
	Players  []*Player `json:"players"`
}

// NewGroup creates a group of the given tier containing players.
func NewGroup(tier int, players ...*Player) *Group {
	g := &Group{Tier: tier, Players: []*Player{}}
	g.Players = append(g.Players, players...)
	return g
}

// TierSpread renders the distinct member tiers, ex: "2/3" for a group
// holding tier 2 and tier 3 players after a manual cross-tier move.
func (g *Group) TierSpread() string {
	seen := map[int]bool{}
	tiers := []int{}
	for _, p := range g.Players {
		if !seen[p.Tier] {
			seen[p.Tier] = true
			tiers = append(tiers, p.Tier)
		}
	}
	sort.Ints(tiers)
	out := ""
	for i, t := range tiers {
		if i > 0 {
			out += "/"
		}
		out += fmt.Sprintf("%d", t)
	}
	return out
}

func (g *Group) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tier", g.Tier),
		slog.Bool("locked", g.Locked),
		slog.Int("players", len(g.Players)),
	)
}

// Queue is the full ordered collection of groups for one scope. Group
// order is insertion order; rendering sorts ascending by tier. Instances
// are short-lived: loaded from storage at the start of an operation,
// mutated, and saved back.
type Queue struct {
	GuildID   string
	ChannelID string
	Locked    bool
	Groups    []*Group

	// revision is the persisted save counter, used for staleness logging.
	revision int64

	// summaryMessageID is the Discord message ID of the last posted queue
	// summary, persisted so re-renders survive restarts.
	summaryMessageID string
}

// NewQueue returns an empty queue for the given scope.
func NewQueue(guildID, channelID string) *Queue {
	return &Queue{
		GuildID:   guildID,
		ChannelID: channelID,
		Groups:    []*Group{},
	}
}

// InQueue scans for the member and returns the (group, player) indexes of
// the last match found, so a member somehow present twice resolves
// deterministically rather than failing.
func (q *Queue) InQueue(memberID string) (groupIdx int, playerIdx int, ok bool) {
	groupIdx, playerIdx = -1, -1
	for gi, g := range q.Groups {
		for pi, p := range g.Players {
			if p.MemberID == memberID {
				groupIdx, playerIdx, ok = gi, pi, true
			}
		}
	}
	return groupIdx, playerIdx, ok
}

// CanFitInGroup returns the index of the first group, in current order,
// whose tier matches the player, which isn't locked, and which has room.
// First match wins; no least-full or most-full preference.
func (q *Queue) CanFitInGroup(p *Player, groupSize int) (int, bool) {
	for i, g := range q.Groups {
		if g.Tier != p.Tier || g.Locked {
			continue
		}
		if len(g.Players) >= groupSize {
			continue
		}
		return i, true
	}
	return -1, false
}

// Place appends the player to the first fitting group, or appends a new
// unlocked group of the player's tier when none fits.
func (q *Queue) Place(p *Player, groupSize int) {
	if i, ok := q.CanFitInGroup(p, groupSize); ok {
		q.Groups[i].Players = append(q.Groups[i].Players, p)
		return
	}
	q.Groups = append(q.Groups, NewGroup(p.Tier, p))
}

// Remove pops and returns the player at the given position. Empty groups
// left behind are pruned at save time, not here.
func (q *Queue) Remove(groupIdx, playerIdx int) (*Player, error) {
	if err := validSelection(len(q.Groups), groupIdx+1); err != nil {
		return nil, err
	}
	g := q.Groups[groupIdx]
	if playerIdx < 0 || playerIdx >= len(g.Players) {
		return nil, &InvalidSelectionError{
			Requested: playerIdx + 1,
			Groups:    len(g.Players),
			Player:    true,
		}
	}
	p := g.Players[playerIdx]
	g.Players = append(g.Players[:playerIdx], g.Players[playerIdx+1:]...)
	return p, nil
}

// Move relocates a member between groups by 1-based group numbers. No
// tier or lock validation is applied to the destination: this is the
// administrative override, intentionally looser than Place.
func (q *Queue) Move(memberID string, fromGroup, toGroup int) error {
	if err := validSelection(len(q.Groups), fromGroup); err != nil {
		return err
	}
	if err := validSelection(len(q.Groups), toGroup); err != nil {
		return err
	}

	src := q.Groups[fromGroup-1]
	idx := -1
	for i, p := range src.Players {
		if p.MemberID == memberID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotInQueue
	}

	p := src.Players[idx]
	src.Players = append(src.Players[:idx], src.Players[idx+1:]...)
	dst := q.Groups[toGroup-1]
	dst.Players = append(dst.Players, p)
	return nil
}

// SplitOut removes the member from their current group and inserts a new
// group of the member's tier directly after it.
func (q *Queue) SplitOut(memberID string) (*Group, error) {
	gi, pi, ok := q.InQueue(memberID)
	if !ok {
		return nil, ErrNotInQueue
	}
	p, err := q.Remove(gi, pi)
	if err != nil {
		return nil, err
	}
	ng := NewGroup(p.Tier, p)
	q.Groups = append(q.Groups, nil)
	copy(q.Groups[gi+2:], q.Groups[gi+1:])
	q.Groups[gi+1] = ng
	return ng, nil
}

// Shuffle collects every player from the unlocked groups of the given
// tier, removes those groups, randomly permutes the players, and places
// each back one at a time. Locked groups of the tier, and their members,
// are untouched. The permutation source is injectable for tests.
func (q *Queue) Shuffle(tier int, groupSize int, rng *rand.Rand) {
	var collected []*Player
	kept := q.Groups[:0:0]
	for _, g := range q.Groups {
		if g.Tier != tier || g.Locked {
			kept = append(kept, g)
			continue
		}
		collected = append(collected, g.Players...)
	}
	q.Groups = kept

	rng.Shuffle(
		len(collected), func(i, j int) {
			collected[i], collected[j] = collected[j], collected[i]
		},
	)

	for _, p := range collected {
		q.Place(p, groupSize)
	}
}

// PopGroup removes and returns the group at the 1-based number.
func (q *Queue) PopGroup(groupNum int) (*Group, error) {
	if err := validSelection(len(q.Groups), groupNum); err != nil {
		return nil, err
	}
	g := q.Groups[groupNum-1]
	q.Groups = append(q.Groups[:groupNum-1], q.Groups[groupNum:]...)
	return g, nil
}

// ToggleGroupLock flips the locked flag of the group at the 1-based
// number, returning the new state. Locking doesn't evict members; it
// only removes the group from Place eligibility.
func (q *Queue) ToggleGroupLock(groupNum int) (bool, error) {
	if err := validSelection(len(q.Groups), groupNum); err != nil {
		return false, err
	}
	g := q.Groups[groupNum-1]
	g.Locked = !g.Locked
	return g.Locked, nil
}

// Prune drops groups with zero players. Called on every save.
func (q *Queue) Prune() {
	kept := q.Groups[:0:0]
	for _, g := range q.Groups {
		if len(g.Players) > 0 {
			kept = append(kept, g)
		}
	}
	q.Groups = kept
}

// SortByTier orders groups ascending by tier for display. The sort is
// stable so same-tier groups keep their relative order.
func (q *Queue) SortByTier() {
	sort.SliceStable(
		q.Groups, func(i, j int) bool {
			return q.Groups[i].Tier < q.Groups[j].Tier
		},
	)
}

// PlayerCount returns the total number of queued players.
func (q *Queue) PlayerCount() int {
	n := 0
	for _, g := range q.Groups {
		n += len(g.Players)
	}
	return n
}

// GroupsPerTier returns a tier → group count map, for stats display.
func (q *Queue) GroupsPerTier() map[int]int {
	out := map[int]int{}
	for _, g := range q.Groups {
		out[g.Tier]++
	}
	return out
}

// Revision is the persisted save counter at load time.
func (q *Queue) Revision() int64 {
	return q.revision
}

// SummaryMessageID is the persisted ID of the last posted queue summary.
func (q *Queue) SummaryMessageID() string {
	return q.summaryMessageID
}

func (q *Queue) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", q.GuildID),
		slog.String("channel_id", q.ChannelID),
		slog.Bool("locked", q.Locked),
		slog.Int("groups", len(q.Groups)),
		slog.Int("players", q.PlayerCount()),
		slog.Int64("revision", q.revision),
	)
}

package gatesbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// ClaimResult is everything the transport layer needs to announce a
// successful claim.
type ClaimResult struct {
	Gate          Gate
	Group         *Group
	GroupNum      int
	Reinforcement bool

	// Summons is the message for the summons channel, mentioning every
	// member of the claimed group.
	Summons string
}

func (c *ClaimResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("gate", c.Gate.Name),
		slog.Int("group_num", c.GroupNum),
		slog.Int("players", len(c.Group.Players)),
		slog.Bool("reinforcement", c.Reinforcement),
	)
}

// AssignResult is everything the transport layer needs to announce a DM
// assignment.
type AssignResult struct {
	DM       DMQueueEntry
	Group    *Group
	GroupNum int

	// Notice is the assignment channel message directed at the DM.
	Notice string
}

// Claims runs the gate claim and DM assignment workflows. Queue
// mutations go through the store's serialized update cycle; analytics
// writes are best-effort and never fail the claim.
type Claims struct {
	store     *QueueStore
	gates     *GateRegistry
	analytics *Analytics
	discord   *DiscordConfig
	logger    *slog.Logger
}

// NewClaims creates a Claims workflow. If log is nil, slog.Default()
// is used.
func NewClaims(
	store *QueueStore,
	gates *GateRegistry,
	analytics *Analytics,
	discord *DiscordConfig,
	log *slog.Logger,
) *Claims {
	if log == nil {
		log = slog.Default()
	}
	return &Claims{
		store:     store,
		gates:     gates,
		analytics: analytics,
		discord:   discord,
		logger:    log.With(loggerNameKey, "claims"),
	}
}

// Claim pops the numbered group from the queue for the named gate.
// The group number is 1-based against the tier-sorted queue, matching
// what the summary shows. Unknown gates and invalid selections fail
// before anything is mutated.
func (c *Claims) Claim(
	ctx context.Context,
	scope Scope,
	dmID string,
	groupNum int,
	gateName string,
	reinforcement bool,
) (*ClaimResult, error) {
	gate, err := c.gates.Get(ctx, gateName)
	if err != nil {
		return nil, err
	}

	var popped *Group
	_, err = c.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			var popErr error
			popped, popErr = q.PopGroup(groupNum)
			return popErr
		},
	)
	if err != nil {
		return nil, err
	}

	if recordErr := c.analytics.RecordClaim(ctx, dmID, gate, popped); recordErr != nil {
		c.logger.ErrorContext(
			ctx, "error recording claim analytics", tint.Err(recordErr),
		)
	}
	if ownerErr := c.gates.SetOwner(ctx, gate.Name, dmID); ownerErr != nil {
		c.logger.ErrorContext(
			ctx, "error setting gate owner", tint.Err(ownerErr),
		)
	}

	result := &ClaimResult{
		Gate:          gate,
		Group:         popped,
		GroupNum:      groupNum,
		Reinforcement: reinforcement,
		Summons:       c.summonsMessage(gate, popped, dmID, reinforcement),
	}
	c.logger.InfoContext(ctx, "gate claimed", "claim", result, "dm_id", dmID)
	return result, nil
}

func (c *Claims) summonsMessage(
	gate Gate,
	group *Group,
	dmID string,
	reinforcement bool,
) string {
	mentions := make([]string, 0, len(group.Players))
	for _, p := range group.Players {
		mentions = append(mentions, p.Mention())
	}

	assignments := "#gate-assignments"
	if c.discord.AssignmentChannelID != "" {
		assignments = fmt.Sprintf("<#%s>", c.discord.AssignmentChannelID)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(mentions, ", "))
	sb.WriteString("\n")
	if reinforcement {
		sb.WriteString(
			fmt.Sprintf(
				"%s Gate is in need of reinforcements! Head to %s"+
					" and grab the %s from the list and head over to the gate!\n",
				titleCase(gate.Name), assignments, gate.Emoji,
			),
		)
	} else {
		sb.WriteString(
			fmt.Sprintf(
				"Welcome to the %s Gate! Head to %s"+
					" and grab the %s from the list and head over to the gate!\n",
				titleCase(gate.Name), assignments, gate.Emoji,
			),
		)
	}
	sb.WriteString(fmt.Sprintf("Claimed by <@%s>", dmID))
	return sb.String()
}

// Assign reserves the numbered group for the numbered DM in the ready
// queue. The group stays in the queue, flagged as assigned, until the
// DM claims it.
func (c *Claims) Assign(
	ctx context.Context,
	scope Scope,
	dmQueue *DMQueue,
	summonerID string,
	queueNum int,
	groupNum int,
) (*AssignResult, error) {
	entries, err := dmQueue.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &InvalidSelectionError{Requested: queueNum, Groups: 0}
	}
	if queueNum < 1 || queueNum > len(entries) {
		return nil, &InvalidSelectionError{
			Requested: queueNum,
			Groups:    len(entries),
		}
	}
	dm := entries[queueNum-1]

	var assigned *Group
	_, err = c.store.Update(
		ctx, scope, func(q *Queue) error {
			q.SortByTier()
			if selErr := validSelection(len(q.Groups), groupNum); selErr != nil {
				return selErr
			}
			assigned = q.Groups[groupNum-1]
			assigned.Assigned = dm.UserID
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if recordErr := c.analytics.RecordAssignment(
		ctx, summonerID, dm.UserID, assigned,
	); recordErr != nil {
		c.logger.ErrorContext(
			ctx, "error recording assignment analytics", tint.Err(recordErr),
		)
	}
	if removeErr := dmQueue.Remove(ctx, dm.UserID); removeErr != nil {
		c.logger.ErrorContext(
			ctx, "error removing DM from ready queue", tint.Err(removeErr),
		)
	}

	result := &AssignResult{
		DM:       dm,
		Group:    assigned,
		GroupNum: groupNum,
		Notice:   c.assignmentNotice(assigned, groupNum),
	}
	c.logger.InfoContext(
		ctx, "group assigned",
		"dm_id", dm.UserID, "group_num", groupNum, "summoner_id", summonerID,
	)
	return result, nil
}

func (c *Claims) assignmentNotice(group *Group, groupNum int) string {
	queueChannel := "the queue channel"
	if c.discord.QueueChannelID != "" {
		queueChannel = fmt.Sprintf("<#%s>", c.discord.QueueChannelID)
	}
	return fmt.Sprintf(
		"Group %d is yours, see above for details."+
			" Don't forget to submit your encounter once ready and claim once approved!"+
			" Kindly note that this is a **%d person Rank __%s__** group"+
			" and adjust your encounter as needed."+
			" Please react to this message if you are, indeed, claiming."+
			" **__Please double-check your group number in %s when claiming"+
			" because it may have changed.__**",
		groupNum, len(group.Players), group.TierSpread(), queueChannel,
	)
}

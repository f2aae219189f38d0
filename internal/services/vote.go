package services

import (
	"context"

	"github.com/askloop/askloop/server/internal/ids"
	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/votes"
)

// VoteService translates external vote requests into ledger operations and
// counter updates.
type VoteService struct {
	ledger     *votes.Ledger
	aggregator *votes.Aggregator
}

func NewVoteService(l *votes.Ledger, a *votes.Aggregator) *VoteService {
	return &VoteService{ledger: l, aggregator: a}
}

// Cast records actorID's vote on (targetKind, targetID) and returns the
// target's resulting counters. Re-casting the same direction is a no-op.
func (svc *VoteService) Cast(ctx context.Context, actorID, targetKind, targetID, voteKind string) (*model.ScoreCounters, error) {
	target, err := ids.ParseTarget(targetKind, targetID)
	if err != nil {
		return nil, err
	}
	kind, err := ids.ParseVoteKind(voteKind)
	if err != nil {
		return nil, err
	}
	delta, err := svc.ledger.Cast(ctx, actorID, target, kind)
	if err != nil {
		return nil, err
	}
	return svc.aggregator.Apply(ctx, target, delta)
}

// Remove withdraws actorID's vote and returns the resulting counters.
// Removing an absent vote is a no-op.
func (svc *VoteService) Remove(ctx context.Context, actorID, targetKind, targetID string) (*model.ScoreCounters, error) {
	target, err := ids.ParseTarget(targetKind, targetID)
	if err != nil {
		return nil, err
	}
	delta, err := svc.ledger.Remove(ctx, actorID, target)
	if err != nil {
		return nil, err
	}
	return svc.aggregator.Apply(ctx, target, delta)
}

// Get returns actorID's current vote, or model.ErrNotFound when none.
func (svc *VoteService) Get(ctx context.Context, actorID, targetKind, targetID string) (*model.VoteRecord, error) {
	target, err := ids.ParseTarget(targetKind, targetID)
	if err != nil {
		return nil, err
	}
	return svc.ledger.Get(ctx, actorID, target)
}

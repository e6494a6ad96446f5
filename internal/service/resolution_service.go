package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketengine/internal/config"
	"marketengine/internal/events"
	"marketengine/internal/locks"
	"marketengine/internal/models"
	"marketengine/internal/repository"
)

// ResolutionService collects resolution votes, decides the winning outcome
// and transitions the market to its terminal resolved state. The decision,
// the resolution record and settlement all commit in one transaction under
// the market's execution lock, so concurrent resolution attempts cannot
// double-resolve.
type ResolutionService struct {
	Repo       repository.Repository
	Locks      *locks.Manager
	Hub        *events.Hub
	Engine     config.EngineConfig
	Config     config.ResolutionConfig
	Settlement *SettlementService
	Logger     *zap.Logger
}

// CastVote upserts one vote per (market, voter). Votes are accepted until
// the market enters a terminal state.
func (s *ResolutionService) CastVote(ctx context.Context, marketID, voterID, outcome string, confidence, weight decimal.Decimal) error {
	market, err := s.Repo.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if market == nil {
		return ErrMarketNotFound
	}
	if market.IsTerminal() {
		return ErrVotingClosed
	}
	if !market.HasOutcome(outcome) {
		return ErrInvalidOutcome
	}
	if weight.Sign() <= 0 {
		weight = decimal.NewFromFloat(s.Config.DefaultWeight)
	}
	if confidence.Sign() <= 0 || confidence.GreaterThan(decimal.NewFromInt(1)) {
		confidence = decimal.NewFromInt(1)
	}
	return s.Repo.UpsertVote(ctx, &models.ResolutionVote{
		MarketID:      marketID,
		VoterID:       voterID,
		ChosenOutcome: outcome,
		Confidence:    confidence,
		Weight:        weight,
	})
}

// AttemptResolve tallies votes by total weight and resolves the market to
// the outcome with the highest sum. Requires the market to be ended and at
// least the configured minimum number of votes; an exact tie of top weights
// is a hard error requiring manual override. The tally runs inside the
// resolution transaction under the market lock, so a vote landing during
// resolution is either fully counted or cleanly too late.
func (s *ResolutionService) AttemptResolve(ctx context.Context, marketID, resolvedBy string) (*models.Resolution, error) {
	return s.resolve(ctx, marketID, models.ResolutionMethodVoteConsensus, resolvedBy,
		func(ctx context.Context, tx *gorm.DB) (string, error) {
			return s.tallyVotesTx(ctx, tx, marketID)
		})
}

func (s *ResolutionService) tallyVotesTx(ctx context.Context, tx *gorm.DB, marketID string) (string, error) {
	votes, err := s.Repo.ListVotesTx(ctx, tx, marketID)
	if err != nil {
		return "", err
	}
	if len(votes) < s.Config.MinVotes {
		return "", ErrNotEnoughVotes
	}

	tally := make(map[string]decimal.Decimal, len(votes))
	for _, v := range votes {
		tally[v.ChosenOutcome] = tally[v.ChosenOutcome].Add(v.Weight)
	}
	winner := ""
	best := decimal.Zero
	tied := false
	for outcome, weight := range tally {
		switch weight.Cmp(best) {
		case 1:
			best = weight
			winner = outcome
			tied = false
		case 0:
			tied = true
		}
	}
	if winner == "" || tied {
		return "", ErrResolutionTied
	}
	return winner, nil
}

// ResolveAdmin resolves the market directly to outcome, bypassing vote
// counting. Still subject to the same CAS guard as consensus resolution.
func (s *ResolutionService) ResolveAdmin(ctx context.Context, marketID, outcome, resolvedBy string) (*models.Resolution, error) {
	return s.resolve(ctx, marketID, models.ResolutionMethodAdminDecision, resolvedBy,
		func(context.Context, *gorm.DB) (string, error) {
			return outcome, nil
		})
}

// resolve decides the winning outcome via decide, transitions the market to
// resolved and settles it, all in one transaction under the market lock. Any
// error from decide rolls the whole resolution back.
func (s *ResolutionService) resolve(ctx context.Context, marketID, method, resolvedBy string, decide func(context.Context, *gorm.DB) (string, error)) (*models.Resolution, error) {
	release, err := s.Locks.Acquire(ctx, marketID, s.Engine.LockTimeout)
	if err != nil {
		if errors.Is(err, locks.ErrTimeout) {
			return nil, ErrMarketBusy
		}
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	var resolution *models.Resolution
	var payouts []models.Payout
	var outcome string

	txErr := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		market, err := s.Repo.GetMarketTx(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if market == nil {
			return ErrMarketNotFound
		}
		outcome, err = decide(ctx, tx)
		if err != nil {
			return err
		}
		if !market.HasOutcome(outcome) {
			return ErrInvalidOutcome
		}

		ok, err := s.Repo.UpdateMarketStatusTx(ctx, tx, marketID,
			[]string{models.MarketStatusEnded}, models.MarketStatusResolved)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}

		positions, err := s.Repo.ListPositionsByMarketTx(ctx, tx, marketID)
		if err != nil {
			return err
		}

		totalPool := decimal.Zero
		winningStake := decimal.Zero
		for _, pos := range positions {
			totalPool = totalPool.Add(pos.AmountPaid)
			if pos.Outcome == outcome {
				winningStake = winningStake.Add(pos.AmountPaid)
			}
		}

		resolution = &models.Resolution{
			MarketID:          marketID,
			WinningOutcome:    outcome,
			Method:            method,
			ResolvedBy:        resolvedBy,
			TotalPool:         totalPool,
			TotalWinningStake: winningStake,
			TotalLosingStake:  totalPool.Sub(winningStake),
			HouseEdgeBps:      s.Engine.HouseEdgeBps,
		}
		if s.Config.DisputeWindow > 0 {
			deadline := now.Add(s.Config.DisputeWindow)
			resolution.DisputeDeadline = &deadline
		}
		if err := s.Repo.CreateResolutionTx(ctx, tx, resolution); err != nil {
			return err
		}

		payouts, err = s.Settlement.settleResolvedTx(ctx, tx, market, resolution, positions)
		if err != nil {
			return err
		}
		return s.Repo.SetMarketSettledTx(ctx, tx, marketID, now)
	})
	if txErr != nil {
		return nil, txErr
	}

	userIDs := make([]string, 0, len(payouts))
	for _, p := range payouts {
		userIDs = append(userIDs, p.UserID)
	}
	if s.Logger != nil {
		s.Logger.Info("market resolved",
			zap.String("market_id", marketID),
			zap.String("winning_outcome", outcome),
			zap.String("method", method),
			zap.String("total_pool", resolution.TotalPool.String()),
			zap.Int("payouts", len(payouts)),
		)
	}
	s.Hub.Publish(events.Event{
		Type:     events.TypeMarketResolved,
		MarketID: marketID,
		UserIDs:  userIDs,
		Data: map[string]any{
			"winning_outcome": outcome,
			"method":          method,
		},
	})
	if len(payouts) > 0 {
		s.Hub.Publish(events.Event{
			Type:     events.TypePayoutReady,
			MarketID: marketID,
			UserIDs:  userIDs,
			Data:     map[string]any{"payouts": len(payouts)},
		})
	}
	return resolution, nil
}

// ListVotes returns all votes cast on a market.
func (s *ResolutionService) ListVotes(ctx context.Context, marketID string) ([]models.ResolutionVote, error) {
	return s.Repo.ListVotes(ctx, marketID)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const (
	claimCleanupTimeout = 2 * time.Second
	claimSettleAttempts = 3
)

// allocationClaim is the value held under an order's duplicate-allocation
// key. Lines shrink as the order is released or fulfilled and the claim is
// dropped once nothing is left reserved.
type allocationClaim struct {
	Owner string             `json:"owner"`
	Lines []domain.OrderLine `json:"lines"`
}

func (c allocationClaim) encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode allocation claim: %w", err)
	}
	return string(data), nil
}

func decodeClaim(raw string) (allocationClaim, error) {
	var c allocationClaim
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return allocationClaim{}, fmt.Errorf("decode allocation claim: %w", err)
	}
	return c, nil
}

// remainder returns the claimed lines still reserved after settled is taken off.
func (c allocationClaim) remainder(settled []domain.OrderLine) []domain.OrderLine {
	done := make(map[string]int, len(settled))
	for _, l := range settled {
		done[l.SkuID] += l.Quantity
	}

	var left []domain.OrderLine
	for _, l := range c.Lines {
		if q := l.Quantity - done[l.SkuID]; q > 0 {
			left = append(left, domain.OrderLine{SkuID: l.SkuID, Quantity: q})
		}
	}
	return left
}

// cleanupContext outlives the caller's cancellation so a claim is not
// stranded when the request that took it times out.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), claimCleanupTimeout)
}

// dropClaim removes the claim Allocate took when the allocation did not happen.
func (s *AllocationService) dropClaim(ctx context.Context, key, value string) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()

	if _, err := s.cache.ClearIdempotency(ctx, key, value); err != nil {
		s.metrics.ObserveClaimError("clear")
		s.logger.WarnContext(ctx, "failed to drop allocation claim", "key", key, "error", err)
	}
}

// settleClaim takes released or fulfilled lines off the order's claim. The
// order can be allocated again only once its claim is empty.
func (s *AllocationService) settleClaim(ctx context.Context, req domain.AllocationRequest, settled []domain.OrderLine) {
	if s.cache == nil {
		return
	}
	ctx, cancel := cleanupContext(ctx)
	defer cancel()

	key := allocationClaimKey(req.TenantID, req.OrderID, req.Location)
	for range claimSettleAttempts {
		done, err := s.trySettleClaim(ctx, key, settled)
		if err != nil {
			s.metrics.ObserveClaimError("settle")
			s.logger.WarnContext(ctx, "failed to settle allocation claim", "key", key, "error", err)
			return
		}
		if done {
			return
		}
	}
	s.metrics.ObserveClaimError("settle")
	s.logger.WarnContext(ctx, "allocation claim changed concurrently, left in place", "key", key)
}

func (s *AllocationService) trySettleClaim(ctx context.Context, key string, settled []domain.OrderLine) (bool, error) {
	raw, ok, err := s.cache.GetIdempotency(ctx, key)
	if err != nil || !ok {
		return true, err
	}

	claim, err := decodeClaim(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping unreadable allocation claim", "key", key, "error", err)
		_, err = s.cache.ClearIdempotency(ctx, key, raw)
		return true, err
	}

	claim.Lines = claim.remainder(settled)
	if len(claim.Lines) == 0 {
		return s.cache.ClearIdempotency(ctx, key, raw)
	}

	next, err := claim.encode()
	if err != nil {
		return true, err
	}
	return s.cache.ReplaceIdempotency(ctx, key, raw, next)
}

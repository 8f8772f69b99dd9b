// Package cache keeps per-party activity counters in Redis that feed the compliance gate.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "marketplace:velocity:"

// VelocityStore counts transactions and volume per party in fixed windows
type VelocityStore struct {
	client redis.Cmdable
	window time.Duration
	logger *slog.Logger
}

// NewVelocityStore creates a store; window is the length of one counting bucket
func NewVelocityStore(logger *slog.Logger, client redis.Cmdable, window time.Duration) *VelocityStore {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &VelocityStore{client: client, window: window, logger: logger}
}

func (s *VelocityStore) key(partyID uuid.UUID, now time.Time) string {
	bucket := now.Unix() / int64(s.window/time.Second)
	return keyPrefix + partyID.String() + ":" + strconv.FormatInt(bucket, 10)
}

// History returns the party's activity inside the current window
func (s *VelocityStore) History(ctx context.Context, partyID uuid.UUID, role string, now time.Time) (compliance.PartyHistory, error) {
	h := compliance.PartyHistory{PartyID: partyID, Role: role}

	data, err := s.client.HGetAll(ctx, s.key(partyID, now)).Result()
	if err != nil {
		s.logger.Error("Failed to read velocity counters", "party_id", partyID.String(), "error", err)
		return h, fmt.Errorf("failed to read velocity counters: %w", err)
	}
	if raw, ok := data["count"]; ok {
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			h.Count = n
		}
	}
	if raw, ok := data["volume"]; ok {
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			h.Volume = n
		}
	}
	return h, nil
}

// Record adds one transaction of value to the party's current window
func (s *VelocityStore) Record(ctx context.Context, partyID uuid.UUID, value int64, now time.Time) error {
	key := s.key(partyID, now)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, "count", 1)
		p.HIncrBy(ctx, key, "volume", value)
		p.Expire(ctx, key, 2*s.window)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record velocity", "party_id", partyID.String(), "error", err)
		return fmt.Errorf("failed to record velocity: %w", err)
	}
	return nil
}

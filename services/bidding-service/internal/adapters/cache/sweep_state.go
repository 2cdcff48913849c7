package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/floroz/procura/services/bidding-service/internal/closure"
)

// SweepStateKey is the Redis hash holding the last sweep report of every scheduler instance
const SweepStateKey = "procura:closure:sweeps"

// RedisSweepState implements closure.StateRecorder on a Redis hash
type RedisSweepState struct {
	client *redis.Client
	key    string
}

// NewRedisSweepState creates a new Redis sweep state store
func NewRedisSweepState(client *redis.Client) *RedisSweepState {
	return &RedisSweepState{client: client, key: SweepStateKey}
}

// RecordSweep stores report under the instance id
func (s *RedisSweepState) RecordSweep(ctx context.Context, instanceID string, report closure.SweepReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep report: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, instanceID, data).Err(); err != nil {
		return fmt.Errorf("failed to record sweep state: %w", err)
	}
	return nil
}

// ListSweeps returns the last report of every instance that has recorded one
func (s *RedisSweepState) ListSweeps(ctx context.Context) (map[string]closure.SweepReport, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep state: %w", err)
	}

	reports := make(map[string]closure.SweepReport, len(raw))
	for instanceID, data := range raw {
		var report closure.SweepReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("failed to decode sweep report of %s: %w", instanceID, err)
		}
		reports[instanceID] = report
	}
	return reports, nil
}

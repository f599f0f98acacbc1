// Package fallback supplies a lower-fidelity payload when the primary
// backend path fails terminally. The last successful response per routing
// decision is kept in Redis with a TTL; on a qualifying failure the gateway
// replays it, marked as degraded, instead of surfacing a bare error.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const keyPrefix = "hearth:fallback"

// Manager implements domain.FallbackStore on Redis. A nil client disables
// degradation: every lookup misses and stores are dropped.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewManager creates a fallback manager. client may be nil.
func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{client: client, ttl: ttl}
}

func cacheKey(decision domain.RoutingDecision) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, decision.Provider, decision.BackendModel)
}

// Lookup returns the stored payload for the decision, when one exists. The
// replay gets a fresh ID and finish time and is flagged degraded so callers
// can tell it apart from a live response.
func (m *Manager) Lookup(ctx context.Context, decision domain.RoutingDecision) (*domain.CompletionResponse, bool) {
	if m.client == nil {
		return nil, false
	}

	logger := observability.FromContext(ctx)

	data, err := m.client.Get(ctx, cacheKey(decision)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("fallback lookup failed", observability.Error(err))
		}
		return nil, false
	}

	var resp domain.CompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warn("fallback entry corrupt, dropping", observability.Error(err))
		_ = m.client.Del(ctx, cacheKey(decision)).Err()
		return nil, false
	}

	resp.ID = fmt.Sprintf("fallback-%s", uuid.New().String())
	resp.Model = decision.RequestedModel
	resp.Degraded = true
	resp.FinishTime = time.Now()

	logger.Info("serving degraded response from fallback cache",
		observability.String("provider", decision.Provider),
		observability.String("backend_model", decision.BackendModel))

	return &resp, true
}

// Store records a successful response as future fallback material. Degraded
// responses are never stored; replaying a replay would compound staleness.
func (m *Manager) Store(ctx context.Context, decision domain.RoutingDecision, resp *domain.CompletionResponse, ttl time.Duration) error {
	if m.client == nil || resp == nil || resp.Degraded {
		return nil
	}

	if ttl <= 0 {
		ttl = m.ttl
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal fallback payload: %w", err)
	}

	if err := m.client.Set(ctx, cacheKey(decision), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store fallback payload: %w", err)
	}

	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/config"
	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/repository"
)

// MaxEventPayload is the largest accepted analytics payload in bytes.
const MaxEventPayload = 8 << 10

var eventTypePattern = regexp.MustCompile(`^[a-z0-9_.:-]{1,64}$`)

// EventStore persists analytics events.
type EventStore interface {
	Insert(ctx context.Context, ev *model.AnalyticsEvent) error
	ListByType(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error)
}

// EventReward is the coin-neutral reward for an account's first event of one type.
type EventReward struct {
	Exp     int64
	Tickets int64
}

// EventRewardsFromConfig keys the configured rewards by normalized event type.
// Entries that grant nothing are dropped.
func EventRewardsFromConfig(cfg map[string]config.EventRewardConfig) map[string]EventReward {
	rewards := make(map[string]EventReward, len(cfg))
	for name, r := range cfg {
		if r.Exp == 0 && r.Tickets == 0 {
			continue
		}
		rewards[normalizeEventType(name)] = EventReward{Exp: r.Exp, Tickets: r.Tickets}
	}
	return rewards
}

// EventRewardKey returns the idempotency key of accountID's reward for eventType.
func EventRewardKey(accountID, eventType string) string {
	return "event:" + eventType + ":" + accountID
}

// AnalyticsService records client analytics events.
type AnalyticsService struct {
	events    EventStore
	schema    SchemaEnsurer
	policy    retry.Policy
	ledger    Appender
	snapshots SnapshotLoader
	rewards   map[string]EventReward
}

// NewAnalyticsService creates a new AnalyticsService instance.
func NewAnalyticsService(events EventStore, schema SchemaEnsurer, policy retry.Policy) *AnalyticsService {
	return &AnalyticsService{events: events, schema: schema, policy: policy}
}

// WithRewards enables event rewards paid through ledger.
func (s *AnalyticsService) WithRewards(ledger Appender, snapshots SnapshotLoader, rewards map[string]EventReward) *AnalyticsService {
	s.ledger = ledger
	s.snapshots = snapshots
	s.rewards = rewards
	return s
}

func normalizeEventType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Track stores an event. accountID may be empty for anonymous events.
// An authenticated event whose type carries a reward pays it the first time.
func (s *AnalyticsService) Track(ctx context.Context, accountID, eventType string, payload json.RawMessage) (*model.AnalyticsEvent, error) {
	ev := &model.AnalyticsEvent{Type: normalizeEventType(eventType)}
	if !eventTypePattern.MatchString(ev.Type) {
		return nil, fmt.Errorf("%w: invalid event type %q", ErrValidation, eventType)
	}
	if accountID != "" {
		id, err := NormalizeAccountID(accountID)
		if err != nil {
			return nil, err
		}
		ev.AccountID = &id
	}
	if len(payload) > MaxEventPayload {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrValidation, MaxEventPayload)
	}
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrValidation)
		}
		ev.Payload = payload
	}

	err := s.insert(ctx, ev)
	if err != nil && s.schema != nil && repository.IsUndefinedRelation(err) {
		log.Warn().Err(err).Msg("Analytics schema missing, running migrations")
		if ensureErr := s.schema.EnsureSchema(ctx); ensureErr != nil {
			return nil, fmt.Errorf("failed to ensure analytics schema: %w", errors.Join(ensureErr, err))
		}
		err = s.insert(ctx, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to track event: %w", err)
	}

	if err := s.payReward(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Recent returns the newest events of one type. A missing events table reads as empty.
func (s *AnalyticsService) Recent(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error) {
	t := normalizeEventType(eventType)
	if !eventTypePattern.MatchString(t) {
		return nil, fmt.Errorf("%w: invalid event type %q", ErrValidation, eventType)
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	events, err := retry.Do(ctx, s.policy, "analytics.list", func(ctx context.Context) ([]*model.AnalyticsEvent, error) {
		return s.events.ListByType(ctx, t, limit)
	})
	if err != nil {
		if repository.IsUndefinedRelation(err) {
			return []*model.AnalyticsEvent{}, nil
		}
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (s *AnalyticsService) payReward(ctx context.Context, ev *model.AnalyticsEvent) error {
	if s.ledger == nil || ev.AccountID == nil {
		return nil
	}
	r, ok := s.rewards[ev.Type]
	if !ok {
		return nil
	}
	id := *ev.AccountID

	if _, err := seedFromLegacy(ctx, s.ledger, s.snapshots, id); err != nil {
		return err
	}
	res, err := s.ledger.Append(ctx, model.Delta{
		AccountID:      id,
		Exp:            r.Exp,
		Tickets:        r.Tickets,
		Reason:         model.ReasonEventReward,
		Kind:           model.TxTypeEvent,
		RefTable:       "analytics_events",
		RefID:          strconv.FormatInt(ev.ID, 10),
		IdempotencyKey: EventRewardKey(id, ev.Type),
		Meta:           map[string]any{"event": ev.Type},
	})
	if err != nil {
		return fmt.Errorf("failed to pay event reward: %w", err)
	}
	if res.Outcome == AppendApplied {
		log.Info().
			Str("account_id", id).
			Str("event", ev.Type).
			Int64("exp", r.Exp).
			Msg("Event reward paid")
	}
	return nil
}

func (s *AnalyticsService) insert(ctx context.Context, ev *model.AnalyticsEvent) error {
	_, err := retry.Do(ctx, s.policy, "analytics.insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.events.Insert(ctx, ev)
	})
	return err
}

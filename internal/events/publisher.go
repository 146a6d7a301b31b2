// Package events publishes aggregator notifications on Redis pub/sub so other
// services (notifications, the SSE gateway) can react to fresh postings.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/aggregator-service/internal/model"
)

// Channel names.
const (
	ChannelSyncCompleted = "EVENT_SYNC_COMPLETED"
	ChannelSourceToggled = "EVENT_SOURCE_TOGGLED"
)

// SyncCompleted is the payload on ChannelSyncCompleted.
type SyncCompleted struct {
	Type        string                `json:"type"`
	RunID       string                `json:"runId"`
	StartedAt   time.Time             `json:"startedAt"`
	FinishedAt  time.Time             `json:"finishedAt"`
	TotalNew    int                   `json:"totalNew"`
	Deactivated int64                 `json:"deactivated"`
	Sources     []model.SourceOutcome `json:"sources"`
}

// SourceToggled is the payload on ChannelSourceToggled.
type SourceToggled struct {
	Type    string           `json:"type"`
	Source  model.SourceName `json:"source"`
	Enabled bool             `json:"enabled"`
	ActorID string           `json:"actorId"`
}

// Publisher writes events to Redis. A nil *Publisher, or one built without a
// client, silently drops everything so Redis stays optional.
type Publisher struct {
	rdb redis.UniversalClient
}

// NewPublisher returns a Publisher on rdb.
func NewPublisher(rdb redis.UniversalClient) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishSyncCompleted announces the end of a run.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, report *model.RunReport) error {
	return p.publish(ctx, ChannelSyncCompleted, SyncCompleted{
		Type:        ChannelSyncCompleted,
		RunID:       report.RunID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		TotalNew:    report.TotalNew,
		Deactivated: report.Deactivated,
		Sources:     report.Sources,
	})
}

// PublishSourceToggled announces an administrative enable/disable.
func (p *Publisher) PublishSourceToggled(ctx context.Context, rec *model.SourceRecord, actorID string) error {
	return p.publish(ctx, ChannelSourceToggled, SourceToggled{
		Type:    ChannelSourceToggled,
		Source:  rec.Name,
		Enabled: rec.IsEnabled,
		ActorID: actorID,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, payload any) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	event, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

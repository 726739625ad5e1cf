package anomaly

import (
	"context"
	"time"
)

// Repository defines the interface for anomaly storage operations
type Repository interface {
	Create(ctx context.Context, anomaly *Anomaly) error
	Get(ctx context.Context, id string) (*Anomaly, error)
	ListOpen(ctx context.Context) ([]*Anomaly, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Anomaly, error)
	MarkResolved(ctx context.Context, id string, resolvedBy, resolution string, resolvedAt time.Time) (*Anomaly, error)
}

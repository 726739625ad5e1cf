package paypal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ierr "github.com/splitfair/splitfair/internal/errors"
)

// CreateRemoteSubscription creates a recurring subscription at the
// provider and returns its id and the buyer approval URL. Unresolved
// template placeholders are stripped from the return URL before it is
// sent, and the activation window is forward-dated so the remote
// subscription does not expire before the user can approve it.
func (g *gateway) CreateRemoteSubscription(ctx context.Context, planRemoteID, returnURL, cancelURL, subscriberEmail string) (*CreatedSubscription, error) {
	if planRemoteID == "" {
		return nil, ierr.NewError("plan remote id is required").
			WithHint("The plan has no remote billing plan configured").
			Mark(ierr.ErrValidation)
	}

	payload := createSubscriptionPayload{
		PlanID:    planRemoteID,
		StartTime: time.Now().UTC().Add(approvalWindow).Format(time.RFC3339),
		ApplicationContext: &applicationContext{
			BrandName:  "SplitFair",
			ReturnURL:  stripTemplatePlaceholders(returnURL),
			CancelURL:  stripTemplatePlaceholders(cancelURL),
			UserAction: "SUBSCRIBE_NOW",
		},
	}
	if subscriberEmail != "" {
		payload.Subscriber = &subscriberPayload{EmailAddress: subscriberEmail}
	}

	var remote RemoteSubscription
	if err := g.send(ctx, http.MethodPost, "/v1/billing/subscriptions", payload, &remote); err != nil {
		return nil, err
	}

	approvalURL := ""
	for _, link := range remote.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, ierr.NewError("provider returned no approval link").
			WithHint("The payment provider response was incomplete").
			WithReportableDetails(map[string]any{
				"remote_id": remote.ID,
			}).
			Mark(ierr.ErrRemoteProvider)
	}

	g.log.Infow("created remote subscription",
		"remote_id", remote.ID,
		"plan_remote_id", planRemoteID,
	)

	return &CreatedSubscription{
		RemoteID:    remote.ID,
		ApprovalURL: approvalURL,
	}, nil
}

// GetRemoteSubscription pulls the provider's current view of a
// subscription
func (g *gateway) GetRemoteSubscription(ctx context.Context, remoteID string) (*RemoteSubscription, error) {
	var remote RemoteSubscription
	path := fmt.Sprintf("/v1/billing/subscriptions/%s", remoteID)
	if err := g.send(ctx, http.MethodGet, path, nil, &remote); err != nil {
		return nil, err
	}
	return &remote, nil
}

// UpdateRemoteSubscription applies JSON-patch operations to a remote
// subscription
func (g *gateway) UpdateRemoteSubscription(ctx context.Context, remoteID string, ops []UpdateSubscriptionOp) error {
	path := fmt.Sprintf("/v1/billing/subscriptions/%s", remoteID)
	return g.send(ctx, http.MethodPatch, path, ops, nil)
}

// CancelRemoteSubscription cancels the remote subscription immediately
func (g *gateway) CancelRemoteSubscription(ctx context.Context, remoteID, reason string) error {
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/cancel", remoteID)
	return g.send(ctx, http.MethodPost, path, reasonPayload{Reason: reason}, nil)
}

// SuspendRemoteSubscription suspends the remote subscription
func (g *gateway) SuspendRemoteSubscription(ctx context.Context, remoteID, reason string) error {
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/suspend", remoteID)
	return g.send(ctx, http.MethodPost, path, reasonPayload{Reason: reason}, nil)
}

// ListTransactions returns the provider transactions recorded for a
// subscription in the given window. Used only for anomaly forensics.
func (g *gateway) ListTransactions(ctx context.Context, remoteID string, startTime, endTime time.Time) ([]Transaction, error) {
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/transactions?start_time=%s&end_time=%s",
		remoteID,
		queryEscape(startTime.UTC().Format(time.RFC3339)),
		queryEscape(endTime.UTC().Format(time.RFC3339)),
	)

	var resp transactionsResponse
	if err := g.send(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

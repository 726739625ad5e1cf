package paypal

import (
	"context"
	"fmt"
	"net/http"
)

// CreateOneTimeOrder creates a capture-intent order for a lifetime
// (non-recurring) purchase
func (g *gateway) CreateOneTimeOrder(ctx context.Context, amount Money, description, customID string) (*RemoteOrder, error) {
	payload := createOrderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{
			{
				Amount:      amount,
				CustomID:    customID,
				Description: description,
			},
		},
		ApplicationContext: &applicationContext{
			BrandName: "SplitFair",
			ReturnURL: stripTemplatePlaceholders(g.cfg.ReturnURL),
			CancelURL: stripTemplatePlaceholders(g.cfg.CancelURL),
		},
	}

	var order RemoteOrder
	if err := g.send(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}

	g.log.Infow("created one-time order",
		"order_id", order.ID,
		"custom_id", customID,
	)
	return &order, nil
}

// CaptureOrder captures an approved one-time order
func (g *gateway) CaptureOrder(ctx context.Context, orderID string) (*RemoteOrder, error) {
	var order RemoteOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID)
	if err := g.send(ctx, http.MethodPost, path, struct{}{}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

package paypal

import (
	"context"
	"net/http"
)

// CreateRemotePlan provisions a billing plan at the provider for a
// catalog entry. The optional trial is modelled as a free leading cycle.
func (g *gateway) CreateRemotePlan(ctx context.Context, productID, name string, interval string, price Money, trialDays int) (*RemotePlan, error) {
	cycles := make([]billingCycle, 0, 2)
	sequence := 1

	if trialDays > 0 {
		cycles = append(cycles, billingCycle{
			Frequency:   frequency{IntervalUnit: "DAY", IntervalCount: trialDays},
			TenureType:  "TRIAL",
			Sequence:    sequence,
			TotalCycles: 1,
		})
		sequence++
	}

	cycles = append(cycles, billingCycle{
		Frequency:     frequency{IntervalUnit: interval, IntervalCount: 1},
		TenureType:    "REGULAR",
		Sequence:      sequence,
		TotalCycles:   0, // infinite
		PricingScheme: &pricingScheme{FixedPrice: price},
	})

	payload := createPlanPayload{
		ProductID:     productID,
		Name:          name,
		BillingCycles: cycles,
		PaymentPrefs:  paymentPrefs{AutoBillOutstanding: true},
	}

	var plan RemotePlan
	if err := g.send(ctx, http.MethodPost, "/v1/billing/plans", payload, &plan); err != nil {
		return nil, err
	}

	g.log.Infow("created remote billing plan",
		"remote_plan_id", plan.ID,
		"product_id", productID,
	)
	return &plan, nil
}

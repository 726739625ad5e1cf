package paypal

import (
	"context"
	"net/http"
	"strings"

	ierr "github.com/splitfair/splitfair/internal/errors"
)

// VerifyWebhookSignature checks the five provider signature headers
// against the raw body via the provider's verification endpoint. Header
// lookup is case-insensitive. With no webhook id configured the gateway
// is in non-production mode and verification always succeeds; that is
// an explicit fail-open development behavior, never acceptable in
// production (enforced at config validation).
func (g *gateway) VerifyWebhookSignature(ctx context.Context, headers map[string]string, rawBody []byte) (bool, error) {
	lookup := make(map[string]string, len(headers))
	for k, v := range headers {
		lookup[strings.ToLower(k)] = v
	}

	for _, required := range RequiredSignatureHeaders() {
		if lookup[required] == "" {
			return false, ierr.NewError("missing webhook signature header").
				WithHint("All provider signature headers must be present").
				WithReportableDetails(map[string]any{
					"missing_header": required,
				}).
				Mark(ierr.ErrSignatureVerification)
		}
	}

	if g.cfg.WebhookID == "" {
		g.log.Warnw("webhook id not configured, skipping signature verification",
			"mode", "non-production",
		)
		return true, nil
	}

	var event interface{}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return false, ierr.WithError(err).
			WithHint("Webhook body is not valid JSON").
			Mark(ierr.ErrSignatureVerification)
	}

	payload := verifySignaturePayload{
		AuthAlgo:         lookup[HeaderAuthAlgo],
		CertURL:          lookup[HeaderCertURL],
		TransmissionID:   lookup[HeaderTransmissionID],
		TransmissionSig:  lookup[HeaderTransmissionSig],
		TransmissionTime: lookup[HeaderTransmissionTime],
		WebhookID:        g.cfg.WebhookID,
		WebhookEvent:     event,
	}

	var resp verifySignatureResponse
	if err := g.send(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &resp); err != nil {
		return false, err
	}

	return resp.VerificationStatus == "SUCCESS", nil
}

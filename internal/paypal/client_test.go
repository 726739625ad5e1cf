package paypal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/httpclient"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubHTTPClient routes requests to scripted responses by URL suffix
type stubHTTPClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	calls     map[string]int
}

func newStubHTTPClient() *stubHTTPClient {
	return &stubHTTPClient{
		responses: make(map[string][]byte),
		calls:     make(map[string]int),
	}
}

func (c *stubHTTPClient) respond(pathSuffix string, body string) {
	c.responses[pathSuffix] = []byte(body)
}

func (c *stubHTTPClient) callCount(pathSuffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[pathSuffix]
}

func (c *stubHTTPClient) Send(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for suffix, body := range c.responses {
		if strings.HasSuffix(req.URL, suffix) {
			c.calls[suffix]++
			return &httpclient.Response{StatusCode: 200, Body: body}, nil
		}
	}
	return nil, httpclient.NewError(404, []byte(`{"name":"RESOURCE_NOT_FOUND"}`))
}

func newTestGateway(client httpclient.Client, webhookID string) Gateway {
	cfg := &config.Configuration{
		Cache: config.CacheConfig{Enabled: true},
		PayPal: config.PayPalConfig{
			APIBaseURL:   "https://api.sandbox.test",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			WebhookID:    webhookID,
		},
	}
	log := &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	return NewGateway(cfg, client, cache.NewInMemoryCache(cfg), log)
}

func signedHeaders() map[string]string {
	return map[string]string{
		"Paypal-Auth-Algo":         "SHA256withRSA",
		"Paypal-Transmission-Id":   "tid-1",
		"Paypal-Cert-Url":          "https://api.sandbox.test/cert",
		"Paypal-Transmission-Sig":  "sig",
		"Paypal-Transmission-Time": "2025-06-15T12:00:00Z",
	}
}

func TestMapRemoteStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   types.SubscriptionStatus
	}{
		{RemoteStatusApprovalPending, types.SubscriptionStatusApprovalPending},
		{RemoteStatusApproved, types.SubscriptionStatusApproved},
		{RemoteStatusActive, types.SubscriptionStatusActive},
		{RemoteStatusSuspended, types.SubscriptionStatusSuspended},
		{RemoteStatusCancelled, types.SubscriptionStatusCancelled},
		{RemoteStatusExpired, types.SubscriptionStatusExpired},
		{"SOMETHING_NEW", types.SubscriptionStatusApprovalPending},
		{"", types.SubscriptionStatusApprovalPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapRemoteStatus(tt.remote), "remote status %q", tt.remote)
	}
}

func TestWebhookEventSubscriptionID(t *testing.T) {
	event := &WebhookEvent{}
	event.Resource.ID = "I-DIRECT"
	assert.Equal(t, "I-DIRECT", event.SubscriptionID())

	// Sale events carry the subscription id as the billing agreement
	event.Resource.BillingAgreementID = "I-AGREEMENT"
	assert.Equal(t, "I-AGREEMENT", event.SubscriptionID())
}

func TestObtainAccessTokenIsCached(t *testing.T) {
	client := newStubHTTPClient()
	client.respond("/v1/oauth2/token", `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	g := newTestGateway(client, "wh-1")

	ctx := context.Background()
	first, err := g.ObtainAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	second, err := g.ObtainAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", second)
	assert.Equal(t, 1, client.callCount("/v1/oauth2/token"))
}

func TestObtainAccessTokenFailureSurfacesProviderError(t *testing.T) {
	g := newTestGateway(newStubHTTPClient(), "wh-1")

	_, err := g.ObtainAccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, ierr.IsRemoteProvider(err))
}

func TestVerifyWebhookSignatureRejectsMissingHeader(t *testing.T) {
	g := newTestGateway(newStubHTTPClient(), "wh-1")

	headers := signedHeaders()
	delete(headers, "Paypal-Transmission-Sig")

	ok, err := g.VerifyWebhookSignature(context.Background(), headers, []byte(`{}`))
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, ierr.IsSignatureVerification(err))
}

func TestVerifyWebhookSignatureFailOpenWithoutWebhookID(t *testing.T) {
	client := newStubHTTPClient()
	g := newTestGateway(client, "")

	ok, err := g.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)
	// fail-open still requires every signature header
	headers := signedHeaders()
	delete(headers, "Paypal-Auth-Algo")
	ok, err = g.VerifyWebhookSignature(context.Background(), headers, []byte(`{}`))
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestVerifyWebhookSignatureCallsProvider(t *testing.T) {
	client := newStubHTTPClient()
	client.respond("/v1/oauth2/token", `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	client.respond("/v1/notifications/verify-webhook-signature", `{"verification_status":"SUCCESS"}`)
	g := newTestGateway(client, "wh-1")

	ok, err := g.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{"id":"WH-1"}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, client.callCount("/v1/notifications/verify-webhook-signature"))
}

func TestVerifyWebhookSignatureFailureStatus(t *testing.T) {
	client := newStubHTTPClient()
	client.respond("/v1/oauth2/token", `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	client.respond("/v1/notifications/verify-webhook-signature", `{"verification_status":"FAILURE"}`)
	g := newTestGateway(client, "wh-1")

	ok, err := g.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{"id":"WH-1"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetRemoteSubscription(t *testing.T) {
	client := newStubHTTPClient()
	client.respond("/v1/oauth2/token", `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	client.respond("/v1/billing/subscriptions/I-ABC", `{
		"id": "I-ABC",
		"status": "ACTIVE",
		"subscriber": {"payer_id": "PAYER-9"},
		"billing_info": {"next_billing_time": "2025-07-15T00:00:00Z"}
	}`)
	g := newTestGateway(client, "wh-1")

	remote, err := g.GetRemoteSubscription(context.Background(), "I-ABC")
	require.NoError(t, err)
	assert.Equal(t, RemoteStatusActive, remote.Status)
	require.NotNil(t, remote.Subscriber)
	assert.Equal(t, "PAYER-9", remote.Subscriber.PayerID)
	require.NotNil(t, remote.BillingInfo)
	require.NotNil(t, remote.BillingInfo.NextBillingTime)
	assert.Equal(t, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), remote.BillingInfo.NextBillingTime.UTC())
}

func TestStripTemplatePlaceholders(t *testing.T) {
	assert.Equal(t, "https://app.test/billing/return", stripTemplatePlaceholders("https://app.test/billing/return"))
	assert.Equal(t, "https://app.test/billing/", stripTemplatePlaceholders("https://app.test/billing/{sessionId}"))
	assert.Equal(t, "https://app.test//done", stripTemplatePlaceholders("https://app.test/{a}/done"))
	assert.Equal(t, "https://app.test/", stripTemplatePlaceholders("https://app.test/{unclosed"))
}

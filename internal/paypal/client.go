package paypal

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/httpclient"
	"github.com/splitfair/splitfair/internal/logger"
	"golang.org/x/sync/singleflight"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// tokenRefreshWindow is how close to expiry a cached bearer token is
// considered stale
const tokenRefreshWindow = 5 * time.Minute

// approvalWindow forward-dates the remote activation window so the
// remote subscription cannot expire before the buyer completes approval
const approvalWindow = 24 * time.Hour

// Gateway is the typed client over the remote payment provider's HTTP
// API. It never retries: a non-success response surfaces as a
// RemoteProviderError and the retry decision belongs to the caller.
type Gateway interface {
	ObtainAccessToken(ctx context.Context) (string, error)
	CreateRemoteSubscription(ctx context.Context, planRemoteID, returnURL, cancelURL, subscriberEmail string) (*CreatedSubscription, error)
	GetRemoteSubscription(ctx context.Context, remoteID string) (*RemoteSubscription, error)
	UpdateRemoteSubscription(ctx context.Context, remoteID string, ops []UpdateSubscriptionOp) error
	CancelRemoteSubscription(ctx context.Context, remoteID, reason string) error
	SuspendRemoteSubscription(ctx context.Context, remoteID, reason string) error
	CreateOneTimeOrder(ctx context.Context, amount Money, description, customID string) (*RemoteOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*RemoteOrder, error)
	CreateRemotePlan(ctx context.Context, productID, name string, interval string, price Money, trialDays int) (*RemotePlan, error)
	VerifyWebhookSignature(ctx context.Context, headers map[string]string, rawBody []byte) (bool, error)
	ListTransactions(ctx context.Context, remoteID string, startTime, endTime time.Time) ([]Transaction, error)
}

type gateway struct {
	cfg    *config.PayPalConfig
	client httpclient.Client
	cache  cache.Cache
	log    *logger.Logger
	// tokenGroup collapses concurrent refreshes into one outstanding
	// network call; other callers await its result
	tokenGroup singleflight.Group
}

// NewGateway creates a new provider gateway
func NewGateway(cfg *config.Configuration, client httpclient.Client, c cache.Cache, log *logger.Logger) Gateway {
	return &gateway{
		cfg:    &cfg.PayPal,
		client: client,
		cache:  c,
		log:    log,
	}
}

// ObtainAccessToken returns a cached bearer token, refreshing it when
// within five minutes of expiry. Token-acquisition failure is fatal to
// the calling operation.
func (g *gateway) ObtainAccessToken(ctx context.Context) (string, error) {
	key := cache.GenerateKey(cache.PrefixAccessToken, g.cfg.ClientID)
	if v, ok := g.cache.Get(ctx, key); ok {
		if tok, ok := v.(cachedToken); ok && time.Until(tok.ExpiresAt) > tokenRefreshWindow {
			return tok.AccessToken, nil
		}
	}

	v, err, _ := g.tokenGroup.Do(key, func() (interface{}, error) {
		return g.fetchAccessToken(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return v.(cachedToken).AccessToken, nil
}

func (g *gateway) fetchAccessToken(ctx context.Context, key string) (interface{}, error) {
	creds := base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID + ":" + g.cfg.ClientSecret))

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    g.cfg.APIBaseURL + "/v1/oauth2/token",
		Headers: map[string]string{
			"Authorization": "Basic " + creds,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte("grant_type=client_credentials"),
	})
	if err != nil {
		return nil, g.asProviderError(err, "token acquisition failed")
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to decode token response").
			Mark(ierr.ErrRemoteProvider)
	}

	tok := cachedToken{
		AccessToken: tr.AccessToken,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	g.cache.Set(ctx, key, tok, time.Duration(tr.ExpiresIn)*time.Second)
	return tok, nil
}

// send performs an authenticated JSON call and decodes the response
// into out when out is non-nil
func (g *gateway) send(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := g.ObtainAccessToken(ctx)
	if err != nil {
		return err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to encode provider payload").
				Mark(ierr.ErrValidation)
		}
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: method,
		URL:    g.cfg.APIBaseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return g.asProviderError(err, fmt.Sprintf("%s %s failed", method, path))
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to decode provider response").
				Mark(ierr.ErrRemoteProvider)
		}
	}
	return nil
}

// asProviderError converts transport errors into RemoteProviderError
// with status and body attached
func (g *gateway) asProviderError(err error, msg string) error {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		return ierr.WithError(err).
			WithMessage(msg).
			WithHint("The payment provider rejected the request").
			WithReportableDetails(map[string]any{
				"status_code": httpErr.StatusCode,
				"body":        string(httpErr.Response),
			}).
			Mark(ierr.ErrRemoteProvider)
	}
	return ierr.WithError(err).
		WithMessage(msg).
		WithHint("The payment provider could not be reached").
		Mark(ierr.ErrRemoteProvider)
}

// stripTemplatePlaceholders removes unresolved {placeholder} segments a
// frontend template may have left in a URL before it is sent remotely
func stripTemplatePlaceholders(rawURL string) string {
	for {
		start := strings.Index(rawURL, "{")
		if start < 0 {
			return rawURL
		}
		end := strings.Index(rawURL[start:], "}")
		if end < 0 {
			return rawURL[:start]
		}
		rawURL = rawURL[:start] + rawURL[start+end+1:]
	}
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

package paypal

import (
	"time"

	"github.com/splitfair/splitfair/internal/types"
)

// Remote subscription statuses as reported by the provider
const (
	RemoteStatusApprovalPending = "APPROVAL_PENDING"
	RemoteStatusApproved        = "APPROVED"
	RemoteStatusActive          = "ACTIVE"
	RemoteStatusSuspended       = "SUSPENDED"
	RemoteStatusCancelled       = "CANCELLED"
	RemoteStatusExpired         = "EXPIRED"
)

// Remote webhook event types handled by the reconciliation engine
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	EventPaymentFailed         = "BILLING.SUBSCRIPTION.PAYMENT.FAILED"
	EventSaleCompleted         = "PAYMENT.SALE.COMPLETED"
)

// Webhook signature headers required on every delivery. Lookup is
// case-insensitive; a missing header rejects the request before any
// state change.
const (
	HeaderAuthAlgo         = "paypal-auth-algo"
	HeaderTransmissionID   = "paypal-transmission-id"
	HeaderCertURL          = "paypal-cert-url"
	HeaderTransmissionSig  = "paypal-transmission-sig"
	HeaderTransmissionTime = "paypal-transmission-time"
)

// RequiredSignatureHeaders lists the five headers a webhook delivery
// must carry
func RequiredSignatureHeaders() []string {
	return []string{
		HeaderAuthAlgo,
		HeaderTransmissionID,
		HeaderCertURL,
		HeaderTransmissionSig,
		HeaderTransmissionTime,
	}
}

// MapRemoteStatus maps a provider status onto the local state machine.
// Unrecognized statuses default to APPROVAL_PENDING and are never
// silently promoted to ACTIVE.
func MapRemoteStatus(remote string) types.SubscriptionStatus {
	switch remote {
	case RemoteStatusApprovalPending:
		return types.SubscriptionStatusApprovalPending
	case RemoteStatusApproved:
		return types.SubscriptionStatusApproved
	case RemoteStatusActive:
		return types.SubscriptionStatusActive
	case RemoteStatusSuspended:
		return types.SubscriptionStatusSuspended
	case RemoteStatusCancelled:
		return types.SubscriptionStatusCancelled
	case RemoteStatusExpired:
		return types.SubscriptionStatusExpired
	default:
		return types.SubscriptionStatusApprovalPending
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// cachedToken is the bearer token held in the injected cache
type cachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// CreateSubscriptionRequest is the payload for a remote recurring
// subscription
type createSubscriptionPayload struct {
	PlanID             string              `json:"plan_id"`
	StartTime          string              `json:"start_time,omitempty"`
	CustomID           string              `json:"custom_id,omitempty"`
	Subscriber         *subscriberPayload  `json:"subscriber,omitempty"`
	ApplicationContext *applicationContext `json:"application_context"`
}

type subscriberPayload struct {
	EmailAddress string `json:"email_address,omitempty"`
}

type applicationContext struct {
	BrandName  string `json:"brand_name,omitempty"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	UserAction string `json:"user_action,omitempty"`
}

// RemoteSubscription is the provider's view of a subscription
type RemoteSubscription struct {
	ID          string       `json:"id"`
	PlanID      string       `json:"plan_id"`
	Status      string       `json:"status"`
	StartTime   *time.Time   `json:"start_time,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Subscriber  *Subscriber  `json:"subscriber,omitempty"`
	BillingInfo *BillingInfo `json:"billing_info,omitempty"`
	Links       []Link       `json:"links,omitempty"`
}

type Subscriber struct {
	PayerID      string `json:"payer_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

type BillingInfo struct {
	NextBillingTime *time.Time   `json:"next_billing_time,omitempty"`
	LastPayment     *LastPayment `json:"last_payment,omitempty"`
}

type LastPayment struct {
	Time   *time.Time `json:"time,omitempty"`
	Amount *Money     `json:"amount,omitempty"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreatedSubscription is the gateway's answer to a create call
type CreatedSubscription struct {
	RemoteID    string
	ApprovalURL string
}

// UpdateSubscriptionOp is a single JSON-patch operation applied to a
// remote subscription
type UpdateSubscriptionOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

// Money is a provider amount
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// Order shapes for one-time (lifetime) purchases

type createOrderPayload struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      Money  `json:"amount"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// RemoteOrder is the provider's view of a one-time order
type RemoteOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  *Payer `json:"payer,omitempty"`
	Links  []Link `json:"links,omitempty"`
}

type Payer struct {
	PayerID      string `json:"payer_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

// Billing plan shapes used when the catalog provisions remote plans

type createPlanPayload struct {
	ProductID     string         `json:"product_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	BillingCycles []billingCycle `json:"billing_cycles"`
	PaymentPrefs  paymentPrefs   `json:"payment_preferences"`
}

type billingCycle struct {
	Frequency     frequency      `json:"frequency"`
	TenureType    string         `json:"tenure_type"`
	Sequence      int            `json:"sequence"`
	TotalCycles   int            `json:"total_cycles"`
	PricingScheme *pricingScheme `json:"pricing_scheme,omitempty"`
}

type frequency struct {
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
}

type pricingScheme struct {
	FixedPrice Money `json:"fixed_price"`
}

type paymentPrefs struct {
	AutoBillOutstanding bool `json:"auto_bill_outstanding"`
}

// RemotePlan is the provider's view of a billing plan
type RemotePlan struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Transaction is one provider-side payment transaction, used only for
// anomaly forensics
type Transaction struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Amount *Money     `json:"amount_with_breakdown,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// TransactionStatusCompleted marks a captured payment
const TransactionStatusCompleted = "COMPLETED"

type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type verifySignaturePayload struct {
	AuthAlgo         string      `json:"auth_algo"`
	CertURL          string      `json:"cert_url"`
	TransmissionID   string      `json:"transmission_id"`
	TransmissionSig  string      `json:"transmission_sig"`
	TransmissionTime string      `json:"transmission_time"`
	WebhookID        string      `json:"webhook_id"`
	WebhookEvent     interface{} `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// WebhookEvent is the inbound provider event envelope
type WebhookEvent struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type,omitempty"`
	Resource     struct {
		ID                 string `json:"id"`
		Status             string `json:"status,omitempty"`
		BillingAgreementID string `json:"billing_agreement_id,omitempty"`
	} `json:"resource"`
	CreateTime *time.Time `json:"create_time,omitempty"`
}

// SubscriptionID returns the provider subscription id the event refers
// to. Sale events reference it through the billing agreement id.
func (e *WebhookEvent) SubscriptionID() string {
	if e.Resource.BillingAgreementID != "" {
		return e.Resource.BillingAgreementID
	}
	return e.Resource.ID
}

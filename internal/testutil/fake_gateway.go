package testutil

import (
	"context"
	"sync"
	"time"

	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/paypal"
)

// FakeGateway is a scriptable paypal.Gateway. Tests set the remote
// state they want observed; every call is counted.
type FakeGateway struct {
	mu sync.Mutex

	// RemoteSubscriptions maps remote id to the state GetRemoteSubscription returns
	RemoteSubscriptions map[string]*paypal.RemoteSubscription
	// RemoteSubscriptionQueue, when non-empty for an id, is consumed one
	// response per Get call before falling back to RemoteSubscriptions
	RemoteSubscriptionQueue map[string][]*paypal.RemoteSubscription
	// Transactions returned by ListTransactions per remote id
	Transactions map[string][]paypal.Transaction
	// Orders maps order id to the capture result
	Orders map[string]*paypal.RemoteOrder

	CreatedSubscription *paypal.CreatedSubscription
	CreatedOrder        *paypal.RemoteOrder
	CreatedPlan         *paypal.RemotePlan

	VerifyResult bool
	VerifyErr    error
	Err          error

	GetCalls       map[string]int
	CancelCalls    []string
	SuspendCalls   []string
	CaptureCalls   []string
	CreateSubCalls int
	TxnCalls       int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		RemoteSubscriptions:     make(map[string]*paypal.RemoteSubscription),
		RemoteSubscriptionQueue: make(map[string][]*paypal.RemoteSubscription),
		Transactions:            make(map[string][]paypal.Transaction),
		Orders:                  make(map[string]*paypal.RemoteOrder),
		VerifyResult:            true,
		GetCalls:                make(map[string]int),
	}
}

// SetRemoteStatus scripts the remote status observed for a subscription
func (f *FakeGateway) SetRemoteStatus(remoteID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.RemoteSubscriptions[remoteID]
	if remote == nil {
		remote = &paypal.RemoteSubscription{ID: remoteID}
		f.RemoteSubscriptions[remoteID] = remote
	}
	remote.Status = status
}

// QueueRemoteStatus scripts a one-shot response consumed before the
// steady state, for exercising retry behavior
func (f *FakeGateway) QueueRemoteStatus(remoteID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoteSubscriptionQueue[remoteID] = append(f.RemoteSubscriptionQueue[remoteID],
		&paypal.RemoteSubscription{ID: remoteID, Status: status})
}

func (f *FakeGateway) ObtainAccessToken(context.Context) (string, error) {
	return "test-token", nil
}

func (f *FakeGateway) CreateRemoteSubscription(_ context.Context, planRemoteID, _, _, _ string) (*paypal.CreatedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateSubCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.CreatedSubscription != nil {
		return f.CreatedSubscription, nil
	}
	return &paypal.CreatedSubscription{
		RemoteID:    "I-" + planRemoteID,
		ApprovalURL: "https://provider.test/approve",
	}, nil
}

func (f *FakeGateway) GetRemoteSubscription(_ context.Context, remoteID string) (*paypal.RemoteSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls[remoteID]++
	if f.Err != nil {
		return nil, f.Err
	}
	if queue := f.RemoteSubscriptionQueue[remoteID]; len(queue) > 0 {
		next := queue[0]
		f.RemoteSubscriptionQueue[remoteID] = queue[1:]
		return next, nil
	}
	remote, ok := f.RemoteSubscriptions[remoteID]
	if !ok {
		return nil, ierr.NewError("remote subscription not found").
			WithHint("The payment provider rejected the request").
			Mark(ierr.ErrRemoteProvider)
	}
	clone := *remote
	return &clone, nil
}

func (f *FakeGateway) UpdateRemoteSubscription(context.Context, string, []paypal.UpdateSubscriptionOp) error {
	return f.Err
}

func (f *FakeGateway) CancelRemoteSubscription(_ context.Context, remoteID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls = append(f.CancelCalls, remoteID)
	return f.Err
}

func (f *FakeGateway) SuspendRemoteSubscription(_ context.Context, remoteID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SuspendCalls = append(f.SuspendCalls, remoteID)
	return f.Err
}

func (f *FakeGateway) CreateOneTimeOrder(context.Context, paypal.Money, string, string) (*paypal.RemoteOrder, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.CreatedOrder != nil {
		return f.CreatedOrder, nil
	}
	return &paypal.RemoteOrder{
		ID:     "ORDER-1",
		Status: "CREATED",
		Links:  []paypal.Link{{Rel: "approve", Href: "https://provider.test/approve-order"}},
	}, nil
}

func (f *FakeGateway) CaptureOrder(_ context.Context, orderID string) (*paypal.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CaptureCalls = append(f.CaptureCalls, orderID)
	if f.Err != nil {
		return nil, f.Err
	}
	if order, ok := f.Orders[orderID]; ok {
		clone := *order
		return &clone, nil
	}
	return &paypal.RemoteOrder{ID: orderID, Status: "COMPLETED"}, nil
}

func (f *FakeGateway) CreateRemotePlan(context.Context, string, string, string, paypal.Money, int) (*paypal.RemotePlan, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.CreatedPlan != nil {
		return f.CreatedPlan, nil
	}
	return &paypal.RemotePlan{ID: "P-TEST", Status: "ACTIVE"}, nil
}

func (f *FakeGateway) VerifyWebhookSignature(context.Context, map[string]string, []byte) (bool, error) {
	return f.VerifyResult, f.VerifyErr
}

func (f *FakeGateway) ListTransactions(_ context.Context, remoteID string, _, _ time.Time) ([]paypal.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TxnCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Transactions[remoteID], nil
}

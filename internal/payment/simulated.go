package payment

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/vala/car-rental-reservation/internal/model"
)

// SimulatedProvider settles payments in-process.  Orders need no payer
// approval and can be captured right away.  Each order can be captured
// once; a second capture reports ErrOrderAlreadyCaptured.
type SimulatedProvider struct {
	mu     sync.Mutex
	orders map[string]bool
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{orders: make(map[string]bool)}
}

func (p *SimulatedProvider) Method() model.PaymentMethod { return model.PaymentMethodSimulated }

func (p *SimulatedProvider) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	if !req.Amount.IsPositive() {
		return nil, &ProviderError{StatusCode: http.StatusUnprocessableEntity, Issue: "INVALID_AMOUNT", Message: "amount must be positive", Err: ErrProviderRejected}
	}
	id := "SIM-" + uuid.NewString()
	p.mu.Lock()
	p.orders[id] = false
	p.mu.Unlock()
	return &Order{TransactionID: id, Status: "CREATED"}, nil
}

func (p *SimulatedProvider) CaptureOrder(_ context.Context, transactionID string) (*Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	captured, ok := p.orders[transactionID]
	if !ok {
		return nil, &ProviderError{StatusCode: http.StatusNotFound, Issue: "INVALID_RESOURCE_ID", Message: "unknown order", Err: ErrOrderNotFound}
	}
	if captured {
		return nil, &ProviderError{StatusCode: http.StatusUnprocessableEntity, Issue: "ORDER_ALREADY_CAPTURED", Message: "order already captured", Err: ErrOrderAlreadyCaptured}
	}
	p.orders[transactionID] = true
	return &Capture{TransactionID: transactionID, CaptureID: "SIMCAP-" + uuid.NewString(), Status: "COMPLETED"}, nil
}

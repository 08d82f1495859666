package order

import (
	"context"
	"errors"
	"log"
	"sync"

	"apex-trader/internal/metrics"
	"apex-trader/internal/model"
)

// Placer sends an order to the trading backend. Business rejections come
// back as *model.RejectedError; anything else is treated as a transport
// failure.
type Placer interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error)
}

// Outcome classifies one submission attempt.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "transport_error"
	}
}

// Result is produced exactly once per submission attempt that reached the
// network. It is for immediate display only.
type Result struct {
	Outcome        Outcome
	ConfirmationID string
	Message        string
	// Err is the underlying failure for Rejected and TransportFailed.
	Err error
}

var (
	ErrNoDraft          = errors.New("order panel is not open")
	ErrSubmitInProgress = errors.New("an order from this panel is already being submitted")
)

// Panel is one order panel: it owns the draft, the error shown with it and
// the in-flight flag. At most one submission is outstanding at a time.
type Panel struct {
	placer     Placer
	onAccepted func(model.OrderAck)

	mu       sync.Mutex
	draft    *Draft
	err      error
	inFlight bool
	// gen changes whenever the panel is opened or closed, so a response
	// that arrives later does not touch a draft it was not made from.
	gen uint64
}

// NewPanel returns a closed panel. onAccepted runs after every accepted
// order, even one whose panel was closed while the request was in flight.
func NewPanel(placer Placer, onAccepted func(model.OrderAck)) *Panel {
	return &Panel{placer: placer, onAccepted: onAccepted}
}

// Open starts a fresh draft for t, discarding any previous one.
func (p *Panel) Open(t model.Tradeable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := NewDraft(t)
	p.draft = &d
	p.err = nil
	p.gen++
}

// Close discards the draft.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = nil
	p.err = nil
	p.gen++
}

func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft != nil
}

// Draft returns a copy of the current draft.
func (p *Panel) Draft() (Draft, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draft == nil {
		return Draft{}, false
	}
	return *p.draft, true
}

// Err is the error attached to the draft by the last failed submission.
func (p *Panel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Panel) Submitting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Edit mutates the draft and clears any attached error. Edits are refused
// while a submission is outstanding.
func (p *Panel) Edit(fn func(d *Draft)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draft == nil {
		return ErrNoDraft
	}
	if p.inFlight {
		return ErrSubmitInProgress
	}
	fn(p.draft)
	p.err = nil
	return nil
}

func (p *Panel) SetSymbol(t model.Tradeable) error {
	return p.Edit(func(d *Draft) { d.Reseed(t) })
}

func (p *Panel) SetSide(s model.Side) error {
	return p.Edit(func(d *Draft) { d.Side = s })
}

func (p *Panel) SetKind(k model.OrderKind) error {
	return p.Edit(func(d *Draft) { d.Kind = k })
}

func (p *Panel) SetQuantity(q string) error {
	return p.Edit(func(d *Draft) { d.Quantity = q })
}

func (p *Panel) SetLimitPrice(price string) error {
	return p.Edit(func(d *Draft) { d.LimitPrice = price })
}

// Submit validates the draft and, if valid, sends it. Validation failures,
// a closed panel and a duplicate submission are returned as errors without
// any network call. Otherwise the network outcome is returned as a Result:
// an accepted order closes the panel, a rejected or failed one leaves the
// draft untouched with the error attached.
func (p *Panel) Submit(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.draft == nil {
		p.mu.Unlock()
		return Result{}, ErrNoDraft
	}
	if p.inFlight {
		p.mu.Unlock()
		return Result{}, ErrSubmitInProgress
	}
	p.err = nil
	req, err := p.draft.Request()
	if err != nil {
		p.err = err
		p.mu.Unlock()
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.IncValidationFailure(ve.Field)
		}
		return Result{}, err
	}
	p.inFlight = true
	gen := p.gen
	p.mu.Unlock()

	ack, err := p.placer.PlaceOrder(ctx, req)
	res := classify(ack, err)
	metrics.IncOrder(string(req.ActionType), res.Outcome.String())

	p.mu.Lock()
	p.inFlight = false
	current := p.gen == gen
	switch res.Outcome {
	case Accepted:
		if current {
			p.draft = nil
			p.err = nil
			p.gen++
		}
	default:
		if current {
			p.err = res.Err
		}
	}
	p.mu.Unlock()

	switch res.Outcome {
	case Accepted:
		log.Printf("order accepted: %s %d %s id=%s", req.ActionType, req.Quantity, req.Symbol, ack.ConfirmationID)
		if p.onAccepted != nil {
			p.onAccepted(ack)
		}
	case Rejected:
		log.Printf("order rejected: %s %d %s reason=%s", req.ActionType, req.Quantity, req.Symbol, res.Message)
	default:
		log.Printf("order transport error: %s %d %s err=%v", req.ActionType, req.Quantity, req.Symbol, res.Err)
	}
	return res, nil
}

func classify(ack model.OrderAck, err error) Result {
	if err == nil {
		return Result{Outcome: Accepted, ConfirmationID: ack.ConfirmationID, Message: ack.Message}
	}
	var re *model.RejectedError
	if errors.As(err, &re) {
		return Result{Outcome: Rejected, Message: re.Error(), Err: err}
	}
	var te *model.TransportError
	if !errors.As(err, &te) {
		err = &model.TransportError{Op: "place order", Err: err}
	}
	return Result{Outcome: TransportFailed, Message: err.Error(), Err: err}
}

package ledger

import (
	"context"
	"time"

	"motoledger/internal/core/fsm"
	"motoledger/internal/core/id"
	"motoledger/pkg/logger"
)

// LotState is the lifecycle of a lot.
type LotState string

const (
	LotActive    LotState = "active"
	LotExhausted LotState = "exhausted"
)

// LotStates is the lot transition table. A lot flips back to active when a reversal re-credits it.
var LotStates = fsm.New("lot", map[LotState][]LotState{
	LotActive:    {LotExhausted},
	LotExhausted: {LotActive},
})

// OpState is the lifecycle of a single consumption or reversal.
type OpState string

const (
	OpPlanning   OpState = "planning"
	OpValidating OpState = "validating"
	OpCommitting OpState = "committing"
	OpCommitted  OpState = "committed"
	OpAborted    OpState = "aborted"
)

// OpStates is the operation transition table. Committed and Aborted are terminal.
var OpStates = fsm.New("operation", map[OpState][]OpState{
	OpPlanning:   {OpValidating, OpAborted},
	OpValidating: {OpCommitting, OpAborted},
	OpCommitting: {OpCommitted, OpAborted},
	OpCommitted:  nil,
	OpAborted:    nil,
})

// OpKind names what an operation does.
type OpKind string

const (
	OpConsume OpKind = "consume"
	OpReverse OpKind = "reverse"
	OpReceive OpKind = "receive"
	OpReprice OpKind = "recalculate_cost"
)

// operation tracks one ledger call through its states.
// Each transaction attempt gets its own operation.
type operation struct {
	kind      OpKind
	productID id.ID
	state     OpState
	startedAt time.Time
}

func newOperation(kind OpKind, productID id.ID) *operation {
	return &operation{
		kind:      kind,
		productID: productID,
		state:     OpPlanning,
		startedAt: time.Now(),
	}
}

func (o *operation) advance(to OpState) error {
	next, err := OpStates.Transition(o.state, to)
	if err != nil {
		return err
	}
	o.state = next
	return nil
}

// fail moves the operation to Aborted and passes cause through.
func (o *operation) fail(ctx context.Context, cause error) error {
	if !OpStates.Terminal(o.state) {
		o.state = OpAborted
	}
	logger.Warn(ctx, "ledger operation aborted",
		"kind", o.kind,
		"product_id", o.productID,
		"elapsed", time.Since(o.startedAt),
		"error", cause,
	)
	return cause
}

func (o *operation) State() OpState {
	return o.state
}

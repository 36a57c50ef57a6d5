package observability

import (
	"math/big"

	"flasharb/core/events"
	"flasharb/core/types"
)

// settledEventType mirrors the settlement engine's event constant. Declared
// locally so the metrics layer stays import-free of the engine packages.
const settledEventType = "settlement.settled"

// CycleObserver is an event emitter that feeds settled-cycle outcomes into
// the Prometheus registry. Chain it behind the log emitter so every settled
// event also bumps the cycle and profit counters.
type CycleObserver struct {
	Metrics *SettlementMetrics
	Next    events.Emitter
}

// Emit implements the events.Emitter interface.
func (o CycleObserver) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if typed, ok := evt.(*types.Event); ok && typed.Type == settledEventType {
		metrics := o.Metrics
		if metrics == nil {
			metrics = Metrics()
		}
		var net *big.Int
		if raw, ok := typed.Attributes["net"]; ok {
			net, _ = new(big.Int).SetString(raw, 10)
		}
		metrics.ObserveCycle(typed.Attributes["asset"], "settled", net)
	}
	if o.Next != nil {
		o.Next.Emit(evt)
	}
}

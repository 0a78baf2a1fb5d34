package aggregation

// State is the progress of one bus message through the worker.
//
//	received → persisted → aggregated → acknowledged
//
// A duplicate delivery goes from persisted straight to acknowledged.
// Any failure leaves the message where it stopped; the transaction is rolled
// back and the bus redelivers it from received.
type State int

const (
	StateReceived State = iota
	StatePersisted
	StateAggregated
	StateAcknowledged
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StatePersisted:
		return "persisted"
	case StateAggregated:
		return "aggregated"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Outcome reports where processing of one event ended.
type Outcome struct {
	State     State
	Duplicate bool
	NewUser   bool
	Deltas    int
}

package sweep

import "time"

// Metrics observes sweeps. A nil Metrics disables collection.
type Metrics interface {
	// ObservePhase records the wall time of one phase.
	ObservePhase(phase Phase, d time.Duration)

	// RecordSweep records the totals of one finished sweep.
	RecordSweep(policy Policy, visited, dropped, failures int)

	// RecordEvent counts a vm event.
	RecordEvent(event Event)
}

package taskname

const (
	// Outbox tasks
	EventRelay = "escrow:event:relay"
	EventSweep = "escrow:event:sweep"
)

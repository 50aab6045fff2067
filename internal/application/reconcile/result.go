package reconcile

// Outcome is the variant of a reconciliation result
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Machine-readable skip reasons
const (
	SkipOrderNotFound    = "order_not_found"
	SkipOrderCancelled   = "order_cancelled"
	SkipVoidTransaction  = "void_transaction"
	SkipNoRefundLines    = "no_refund_lines"
	SkipOrderEdit        = "order_edit"
	SkipNoMoneyMovement  = "no_money_movement"
	SkipShipmentUnlinked = "shipment_not_linked"
	SkipNoVariants       = "no_variants"
)

// Result is the explicit outcome of a reconciliation call. A skip is never an
// error and an error is never a skip.
type Result[T any] struct {
	Outcome    Outcome
	Entity     T
	SkipReason string
	Err        error
}

// Created wraps a newly created entity
func Created[T any](entity T) Result[T] {
	return Result[T]{Outcome: OutcomeCreated, Entity: entity}
}

// Updated wraps an existing entity that was refreshed
func Updated[T any](entity T) Result[T] {
	return Result[T]{Outcome: OutcomeUpdated, Entity: entity}
}

// Unchanged wraps an entity the payload did not modify
func Unchanged[T any](entity T) Result[T] {
	return Result[T]{Outcome: OutcomeUnchanged, Entity: entity}
}

// Skipped reports a non-applicable event
func Skipped[T any](reason string) Result[T] {
	return Result[T]{Outcome: OutcomeSkipped, SkipReason: reason}
}

// Failed reports an error that rolled the reconciliation back
func Failed[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFailed, Err: err}
}

// IsSkipped returns true for non-applicable events
func (r Result[T]) IsSkipped() bool { return r.Outcome == OutcomeSkipped }

// IsFailed returns true when the reconciliation rolled back
func (r Result[T]) IsFailed() bool { return r.Outcome == OutcomeFailed }

// skip is returned from inside a transaction to abort it without error semantics
type skip struct{ reason string }

func (s *skip) Error() string { return "skipped: " + s.reason }

func skipWith(reason string) error { return &skip{reason: reason} }

package returns

// Status represents the lifecycle state of an order return
type Status string

const (
	StatusRequested      Status = "REQUESTED"
	StatusPendingReview  Status = "PENDING_REVIEW"
	StatusApproved       Status = "APPROVED"
	StatusLabelGenerated Status = "LABEL_GENERATED"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusReceived       Status = "RECEIVED"
	StatusInspecting     Status = "INSPECTING"
	StatusCompleted      Status = "COMPLETED"
	StatusRejected       Status = "REJECTED"
	StatusCancelled      Status = "CANCELLED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusPendingReview, StatusApproved, StatusLabelGenerated, StatusInTransit,
		StatusReceived, StatusInspecting, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// IsOpen reports whether the return is still in progress
func (s Status) IsOpen() bool {
	return s.IsValid() && !s.IsTerminal()
}

// rank orders the forward path. Side exits share the terminal rank.
func (s Status) rank() int {
	switch s {
	case StatusRequested:
		return 1
	case StatusPendingReview:
		return 2
	case StatusApproved:
		return 3
	case StatusLabelGenerated:
		return 4
	case StatusInTransit:
		return 5
	case StatusReceived:
		return 6
	case StatusInspecting:
		return 7
	case StatusCompleted, StatusRejected, StatusCancelled:
		return 8
	}
	return 0
}

// IsAhead reports whether target lies strictly further along the lifecycle
func (s Status) IsAhead(target Status) bool {
	return target.rank() > s.rank()
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch target {
	case StatusRejected, StatusCancelled:
		return true
	}
	switch s {
	case StatusRequested:
		return target == StatusPendingReview || target == StatusApproved
	case StatusPendingReview:
		return target == StatusApproved
	case StatusApproved:
		return target == StatusLabelGenerated || target == StatusInTransit
	case StatusLabelGenerated:
		return target == StatusInTransit || target == StatusReceived
	case StatusInTransit:
		return target == StatusReceived
	case StatusReceived:
		return target == StatusInspecting || target == StatusCompleted
	case StatusInspecting:
		return target == StatusCompleted
	}
	return false
}

// Action names a guarded lifecycle action
type Action string

const (
	ActionSubmitForReview Action = "submit_for_review"
	ActionApprove         Action = "approve"
	ActionGenerateLabel   Action = "generate_label"
	ActionMarkInTransit   Action = "mark_in_transit"
	ActionMarkReceived    Action = "mark_received"
	ActionStartInspection Action = "start_inspection"
	ActionComplete        Action = "complete"
	ActionReject          Action = "reject"
	ActionCancel          Action = "cancel"
)

// Target returns the status an action moves a return to
func (a Action) Target() Status {
	switch a {
	case ActionSubmitForReview:
		return StatusPendingReview
	case ActionApprove:
		return StatusApproved
	case ActionGenerateLabel:
		return StatusLabelGenerated
	case ActionMarkInTransit:
		return StatusInTransit
	case ActionMarkReceived:
		return StatusReceived
	case ActionStartInspection:
		return StatusInspecting
	case ActionComplete:
		return StatusCompleted
	case ActionReject:
		return StatusRejected
	case ActionCancel:
		return StatusCancelled
	}
	return ""
}

// RefundStatus is the settlement state of a refund transaction
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Kind is the channel event shape a return was first seen as
type Kind string

const (
	KindRefund        Kind = "REFUND"
	KindReturnRequest Kind = "RETURN_REQUEST"
	KindClaim         Kind = "CLAIM"
)

// ItemCondition is the inspection verdict for a returned item
type ItemCondition string

const (
	ConditionUnknown    ItemCondition = ""
	ConditionResellable ItemCondition = "resellable"
	ConditionDamaged    ItemCondition = "damaged"
	ConditionDefective  ItemCondition = "defective"
	ConditionWrongItem  ItemCondition = "wrong_item"
)

package audithook

// Action constants for audit events.
const (
	// Product actions
	ActionProductCreated = "product.created"
	ActionWithdrawn      = "product.withdrawn"

	// Subscription actions
	ActionSubscribed   = "subscription.created"
	ActionUnsubscribed = "subscription.canceled"
	ActionEvicted      = "subscription.evicted"

	// Charge actions
	ActionCharged      = "charge.applied"
	ActionChargeFailed = "charge.failed"

	// Run actions
	ActionProcessCompleted = "process.completed"
)

// Resource constants for audit events.
const (
	ResourceProduct      = "product"
	ResourceSubscription = "subscription"
	ResourceCharge       = "charge"
	ResourceWithdrawal   = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

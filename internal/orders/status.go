package orders

type Status string

const (
	StatusConfirmed      Status = "CONFIRMED"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPlaceholder    Status = "PLACEHOLDER"
	StatusReconciled     Status = "RECONCILED"
	StatusAbandoned      Status = "ABANDONED"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusConfirmed: true, StatusAbandoned: true},
	StatusPlaceholder:    {StatusReconciled: true, StatusAbandoned: true},
	StatusConfirmed:      {},
	StatusReconciled:     {},
	StatusAbandoned:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Final statuses never change again.
func (s Status) Final() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

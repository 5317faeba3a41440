package domain

// PaymentStatus reflects what the payment provider has told us about
// the money. It only ever changes in response to provider events.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether the payment status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Status reflects fulfillment progress. Admins drive it forward along
// the chain; cancelled is the only exit before delivery.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// Valid reports whether the fulfillment status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// fulfillmentRank orders the forward chain. Statuses outside the
// chain (cancelled, returned) have no rank.
var fulfillmentRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// cancellable holds the statuses an order may be cancelled from: any
// state before delivery. Delivered orders go through returned instead.
var cancellable = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
	StatusShipped:    true,
}

// CanTransition reports whether an admin may move fulfillment from one
// status to another. Forward moves may jump ahead in the chain (a
// confirmed order can ship directly) but never go backwards.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusCancelled:
		return cancellable[from]
	case StatusReturned:
		return from == StatusDelivered
	default:
		fromRank, fromOK := fulfillmentRank[from]
		toRank, toOK := fulfillmentRank[to]
		return fromOK && toOK && toRank > fromRank
	}
}

// RequiresPayment reports whether the transition needs the order to be
// paid. Cancellation is the only move allowed on unpaid orders.
func RequiresPayment(to Status) bool {
	return to != StatusCancelled
}

package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"confirmed to processing", StatusConfirmed, StatusProcessing, true},
		{"processing to shipped", StatusProcessing, StatusShipped, true},
		{"shipped to delivered", StatusShipped, StatusDelivered, true},
		{"confirmed ships directly", StatusConfirmed, StatusShipped, true},
		{"pending jumps to delivered", StatusPending, StatusDelivered, true},
		{"no backwards move", StatusShipped, StatusProcessing, false},
		{"same status", StatusConfirmed, StatusConfirmed, false},
		{"cancel from pending", StatusPending, StatusCancelled, true},
		{"cancel from confirmed", StatusConfirmed, StatusCancelled, true},
		{"cancel from processing", StatusProcessing, StatusCancelled, true},
		{"cancel from shipped", StatusShipped, StatusCancelled, true},
		{"no cancel after delivery", StatusDelivered, StatusCancelled, false},
		{"return from delivered", StatusDelivered, StatusReturned, true},
		{"no return before delivery", StatusShipped, StatusReturned, false},
		{"cancelled is terminal", StatusCancelled, StatusConfirmed, false},
		{"returned is terminal", StatusReturned, StatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRequiresPayment(t *testing.T) {
	if RequiresPayment(StatusCancelled) {
		t.Fatalf("cancellation must be allowed on unpaid orders")
	}
	for _, to := range []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusReturned} {
		if !RequiresPayment(to) {
			t.Fatalf("transition to %s must require payment", to)
		}
	}
}

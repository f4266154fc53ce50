package orders

import "fmt"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Transitions only staff may perform. Cancellation is the one move a
// customer keeps for their own orders.
var staffOnly = map[Status]bool{
	StatusProcessing: true,
	StatusCompleted:  true,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func StaffOnly(to Status) bool {
	return staffOnly[to]
}

// Terminal: tidak ada mutasi lagi setelah ini.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

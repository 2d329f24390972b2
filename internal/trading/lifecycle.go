package trading

import "github.com/ksred/klear-brokerage/internal/types"

// operation is a client-initiated change to an existing order
type operation string

const (
	opModify operation = "modified"
	opCancel operation = "cancelled"
)

// allowedOperations is the order state machine. Statuses absent from the table,
// and EXECUTED/CANCELLED which map to nothing, are terminal.
var allowedOperations = map[types.OrderStatus]map[operation]bool{
	types.StatusPending: {
		opModify: true,
		opCancel: true,
	},
	types.StatusExecuted:  {},
	types.StatusCancelled: {},
}

// checkTransition returns an INVALID_STATE error unless op is allowed from the order's status
func checkTransition(order *types.Order, op operation) error {
	if allowedOperations[order.Status][op] {
		return nil
	}
	return types.InvalidState("only PENDING orders can be %s. Current status: %s", op, order.Status).
		WithDetail("status", string(order.Status))
}

// IsTerminal reports whether no client operation is allowed from status
func IsTerminal(status types.OrderStatus) bool {
	return len(allowedOperations[status]) == 0
}

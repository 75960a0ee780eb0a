package lifecycle

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/validation"
)

// Transition is one guarded command in a document state machine: the states
// it may leave, the state it enters, a guard that collects refusal reasons,
// and an effect run inside the transaction before the status write.
type Transition[T any] struct {
	From        []string
	To          string
	ManagerOnly bool
	Guard       func(ctx context.Context, entity T) error
	Effect      func(ctx context.Context, entity T) error
}

// Resolve finds the transition covering (from, to). Returns nil when the pair
// is not in the table.
func Resolve[T any](table []Transition[T], from, to string) *Transition[T] {
	for i := range table {
		transition := &table[i]
		if transition.To != to {
			continue
		}
		for _, state := range transition.From {
			if state == from {
				return transition
			}
		}
	}
	return nil
}

// IllegalTransition builds the refusal for a (from, to) pair outside the
// table.
func IllegalTransition(from, to string) error {
	return validation.New("illegal transition").Addf("status", "cannot transition from %s to %s", from, to)
}

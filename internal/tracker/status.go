package tracker

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

// ErrInvalidTransition is returned for a status change outside the table.
var ErrInvalidTransition = eris.New("tracker: invalid status transition")

// transitions lists the statuses reachable from each status.
var transitions = map[model.Status][]model.Status{
	model.StatusPromised: {
		model.StatusInDevelopment,
		model.StatusOperating,
		model.StatusUnfulfilled,
		model.StatusAbandoned,
	},
	model.StatusInDevelopment: {model.StatusOperating, model.StatusAbandoned},
	model.StatusOperating:     {model.StatusAbandoned},
	model.StatusUnfulfilled:   {model.StatusAbandoned},
	model.StatusAbandoned:     {},
}

// NextStatuses returns the statuses reachable from s in table order.
func NextStatuses(s model.Status) []model.Status {
	return slices.Clone(transitions[s])
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to model.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition validates from -> to. Same-state and unknown statuses are
// rejected.
func Transition(from, to model.Status) error {
	if !from.Valid() {
		return eris.Wrapf(ErrInvalidTransition, "unknown current status %q", from)
	}
	if !to.Valid() {
		return eris.Wrapf(ErrInvalidTransition, "unknown target status %q", to)
	}
	if !CanTransition(from, to) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	return nil
}

// Package lifecycle owns the legality of item state transitions and
// resolves a caller-supplied desired state into the concrete event that
// must fire.
package lifecycle

import (
	"errors"

	"github.com/shoplist-api/shoplist/internal/model"
)

// ErrInvalidStateChange is returned when a desired state cannot be
// resolved to a legal event from the item's current state, or is not a
// recognized state at all. The item is left unchanged.
var ErrInvalidStateChange = errors.New("invalid state change")

// Event is a named transition of the item state machine.
type Event string

// Item lifecycle events.
const (
	EventBuy       Event = "buy"
	EventNotInShop Event = "not_in_shop"
	EventUndo      Event = "undo"
	EventDelete    Event = "delete_item"
	EventRevive    Event = "revive_item"
)

// Transition is one legal edge of the state machine.
type Transition struct {
	Event Event
	From  []model.ItemState
	To    model.ItemState
}

// Transitions is the complete transition table. The table is consulted
// in order; it must not be mutated after package init.
//
// Note that delete_item lists deleted among its from-states: archiving
// an already archived item is accepted and leaves it archived.
var Transitions = []Transition{
	{
		Event: EventBuy,
		From:  []model.ItemState{model.StateToBuy},
		To:    model.StateBought,
	},
	{
		Event: EventNotInShop,
		From:  []model.ItemState{model.StateToBuy},
		To:    model.StateMissing,
	},
	{
		Event: EventUndo,
		From:  []model.ItemState{model.StateBought, model.StateMissing},
		To:    model.StateToBuy,
	},
	{
		Event: EventDelete,
		From: []model.ItemState{
			model.StateToBuy,
			model.StateBought,
			model.StateMissing,
			model.StateDeleted,
		},
		To: model.StateDeleted,
	},
	{
		Event: EventRevive,
		From:  []model.ItemState{model.StateDeleted},
		To:    model.StateToBuy,
	},
}

// desiredMapping binds a requested target state to its candidate
// events. Candidate order is significant: when several events could
// reach the target, the first permissible one fires.
type desiredMapping struct {
	State  model.ItemState
	Events []Event
}

// desiredStateEvents is the target-state to candidate-event index.
var desiredStateEvents = []desiredMapping{
	{State: model.StateToBuy, Events: []Event{EventUndo, EventRevive}},
	{State: model.StateMissing, Events: []Event{EventNotInShop}},
	{State: model.StateBought, Events: []Event{EventBuy}},
	{State: model.StateDeleted, Events: []Event{EventDelete}},
}

// transitionFires reports whether the transition is legal from the
// given state.
func (t *Transition) fires(from model.ItemState) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// PermissibleEvents returns the events legal from the given state, in
// table order.
func PermissibleEvents(from model.ItemState) []Event {
	var events []Event
	for i := range Transitions {
		if Transitions[i].fires(from) {
			events = append(events, Transitions[i].Event)
		}
	}
	return events
}

// PermissibleDestinations returns the states reachable from the given
// state via a single legal event, in table order without duplicates.
func PermissibleDestinations(from model.ItemState) []model.ItemState {
	var destinations []model.ItemState
	seen := make(map[model.ItemState]bool)
	for i := range Transitions {
		if Transitions[i].fires(from) && !seen[Transitions[i].To] {
			seen[Transitions[i].To] = true
			destinations = append(destinations, Transitions[i].To)
		}
	}
	return destinations
}

// candidateEvents returns the candidate events for the desired state
// and whether the state is a recognized target at all.
func candidateEvents(desired model.ItemState) ([]Event, bool) {
	for i := range desiredStateEvents {
		if desiredStateEvents[i].State == desired {
			return desiredStateEvents[i].Events, true
		}
	}
	return nil, false
}

// Fire applies the named event to the item, updating its state. It
// fails with ErrInvalidStateChange when the event is not legal from the
// item's current state.
func Fire(item *model.Item, event Event) error {
	for i := range Transitions {
		if Transitions[i].Event != event {
			continue
		}
		if !Transitions[i].fires(item.State) {
			return ErrInvalidStateChange
		}
		item.State = Transitions[i].To
		return nil
	}
	return ErrInvalidStateChange
}

// ApplyDesiredState resolves the desired-state token into an event and
// fires it. An empty token is a no-op, not an error; callers that set
// the raw state directly must not invoke the resolver at all.
//
// The desired state must be a recognized target, must be reachable from
// the item's current state by a single legal event, and at least one of
// its candidate events must be permissible; otherwise the item is left
// unchanged and ErrInvalidStateChange is returned.
func ApplyDesiredState(item *model.Item, desired string) error {
	if desired == "" {
		return nil
	}

	target := model.ItemState(desired)

	candidates, known := candidateEvents(target)
	if !known {
		return ErrInvalidStateChange
	}

	reachable := false
	for _, dest := range PermissibleDestinations(item.State) {
		if dest == target {
			reachable = true
			break
		}
	}
	if !reachable {
		return ErrInvalidStateChange
	}

	permissible := make(map[Event]bool)
	for _, ev := range PermissibleEvents(item.State) {
		permissible[ev] = true
	}

	for _, candidate := range candidates {
		if permissible[candidate] {
			return Fire(item, candidate)
		}
	}

	return ErrInvalidStateChange
}

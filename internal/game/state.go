package game

import (
	"time"

	"github.com/google/uuid"
)

// NewState returns a fresh session positioned at the start of route.
func NewState(route Route) *State {
	s := &State{ID: uuid.NewString()}
	s.Reset(route)
	return s
}

// Reset puts the session back to round 1, keeping its ID.
func (s *State) Reset(route Route) {
	*s = State{
		ID:                  s.ID,
		RoundNumber:         1,
		Coins:               StartCoins,
		CurrentCountry:      route.Start,
		Phase:               PhaseAwaitingFirstHint,
		SecondHintAvailable: true,
		StartedAt:           time.Now().UTC(),
	}
}

// Finished reports whether an outcome has been decided.
func (s *State) Finished() bool { return s.Outcome != OutcomeNone }

// Clone returns a copy safe to hand out while the controller keeps mutating.
func (s *State) Clone() State { return *s }

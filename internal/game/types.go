// internal/game/types.go
//
// Core type definitions for the fugitive chase.
// Defines:
//   - Phase: where a session sits in the round state machine.
//   - Outcome: terminal result of a session (win/lose).
//   - State: the single mutable record of one game session.
//   - Route: the fixed sequence of countries the fugitive flees through.

package game

import "time"

// Phase is a step of the per-round state machine.
type Phase string

const (
	PhaseAwaitingFirstHint Phase = "awaiting_first_hint"
	PhaseFirstHintShown    Phase = "first_hint_shown"
	PhaseSecondHintShown   Phase = "second_hint_shown"
	PhaseEvaluating        Phase = "evaluating"
	PhaseRoundAdvanced     Phase = "round_advanced"
	PhaseTerminal          Phase = "terminal"
)

// Outcome is the terminal result of a session. Empty while playing.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
)

// Scoring constants.
const (
	StartCoins      = 5
	CorrectReward   = 2
	WrongPenalty    = 1
	SecondHintPrice = 1

	WinMinRound    = 5
	WinMinCoins    = 9
	WinMinCrimes   = 3
	WinMaxDistance = 1.30 // travelled / reference sum
)

// Unavailable is shown in place of the local time when it cannot be fetched.
const Unavailable = "UNAVAILABLE"

// State holds everything about one game session.
type State struct {
	ID                string    `json:"id"`
	RoundNumber       int       `json:"roundNumber"`
	Coins             int       `json:"coins"`
	CrimesStopped     int       `json:"crimesStopped"`
	DistanceTravelled int       `json:"distanceTravelled"` // km, penalty adjusted
	CurrentCountry    string    `json:"currentCountry"`
	NextCountry       string    `json:"nextCountry,omitempty"`
	SecondHintGiven   bool      `json:"secondHintGiven"`
	Phase             Phase     `json:"phase"`
	Outcome           Outcome   `json:"outcome,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt,omitempty"`

	// Presentation fields, refreshed by the controller.
	FirstHint           string `json:"firstHint,omitempty"`
	SecondHint          string `json:"secondHint,omitempty"`
	SecondHintAvailable bool   `json:"secondHintAvailable"`
	LocalTime           string `json:"localTime,omitempty"`

	// Set once the presenter has been told about the outcome.
	Announced bool `json:"announced,omitempty"`
}

// internal/game/remote.go
//
// Contracts between the round controller and its collaborators.
//   - Remote: the hint / distance / time backend (in-process atlas or HTTP).
//   - Presenter: whoever shows the session to the player.
//
// Errors returned by Controller operations are the sentinels below, possibly
// wrapped; callers match them with errors.Is.

package game

import (
	"context"
	"errors"
)

var (
	ErrValidation        = errors.New("empty submission")
	ErrNotFound          = errors.New("country not found")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrHintUsed          = errors.New("second hint already used this round")
	ErrBusy              = errors.New("another action is in progress")
	ErrGameOver          = errors.New("game over")
)

// LocalTime is the wall clock of a country, as reported by Remote.
type LocalTime struct {
	Time    string `json:"time"` // "15:04"
	Seconds int    `json:"seconds"`
}

// Remote is the backend that knows countries, hints and distances.
type Remote interface {
	FirstHint(ctx context.Context, country string) (string, error)
	SecondHint(ctx context.Context, country string) (string, error)
	CountryExists(ctx context.Context, name string) (bool, error)
	// TravelPenalty returns the penalty-adjusted distance (km) for flying
	// from → to on the given leg (1-based).
	TravelPenalty(ctx context.Context, from, to string, leg int) (int, error)
	// LocalTime returns ErrNotFound when the country has no known time.
	LocalTime(ctx context.Context, country string) (LocalTime, error)
}

// Presenter receives terminal and validation events.
type Presenter interface {
	OnWin(s State)
	OnLose(s State)
	OnValidationError(field string)
}

// NopPresenter ignores every event.
type NopPresenter struct{}

func (NopPresenter) OnWin(State)              {}
func (NopPresenter) OnLose(State)             {}
func (NopPresenter) OnValidationError(string) {}

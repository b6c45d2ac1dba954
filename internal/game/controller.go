// internal/game/controller.go
//
// Round controller for a single chase session.
// Responsibilities:
//   - Fetch first/second hints for the current round.
//   - Validate and apply answers: existence check, travel penalty, scoring.
//   - Advance the round and the hint flow; restart the local-time clock.
//   - Run the outcome evaluation on coin exhaustion and after the final round.
//
// Notes:
//   - One action at a time: overlapping calls fail fast with ErrBusy.
//   - Remote calls are made without holding the state lock so Snapshot stays
//     responsive while a round transition is in flight.
//   - Hint and time failures degrade to empty/UNAVAILABLE content; a failed
//     existence check blocks the transition.
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ValidationField names the input the presenter should highlight on an empty submission.
const ValidationField = "country"

// Controller drives one session's rounds.
type Controller struct {
	route     Route
	remote    Remote
	presenter Presenter
	clock     *Clock
	log       zerolog.Logger
	logSet    bool

	busy sync.Mutex // held for the whole of one player action

	mu    sync.RWMutex // guards state
	state *State
}

// Option configures a Controller.
type Option func(*Controller)

// WithRoute overrides DefaultRoute.
func WithRoute(r Route) Option { return func(c *Controller) { c.route = r } }

// WithPresenter sets the event sink.
func WithPresenter(p Presenter) Option { return func(c *Controller) { c.presenter = p } }

// WithClock attaches a local-time clock restarted on every round transition.
func WithClock(cl *Clock) Option { return func(c *Controller) { c.clock = cl } }

// WithLogger overrides the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log, c.logSet = l, true }
}

// NewController wraps s. A nil s starts a new session on the route.
func NewController(s *State, remote Remote, opts ...Option) *Controller {
	c := &Controller{
		route:     DefaultRoute,
		remote:    remote,
		presenter: NopPresenter{},
	}
	for _, o := range opts {
		o(c)
	}
	if s == nil {
		s = NewState(c.route)
	}
	c.state = s
	if !c.logSet {
		c.log = log.With().Str("session", s.ID).Logger()
	}
	return c
}

// ID returns the session ID.
func (c *Controller) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.ID
}

// Route returns the route the session is played on.
func (c *Controller) Route() Route { return c.route }

// Snapshot returns a copy of the state with the current local time filled in.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	s := c.state.Clone()
	c.mu.RUnlock()
	if c.clock != nil {
		s.LocalTime = c.clock.Display()
	}
	return s
}

// Start shows the first hint of the current round and starts the clock on
// the current country. Used when a session is created or restored.
func (c *Controller) Start(ctx context.Context) error {
	if !c.busy.TryLock() {
		return ErrBusy
	}
	defer c.busy.Unlock()

	c.mu.RLock()
	terminal := c.terminalLocked()
	country := c.state.CurrentCountry
	hint := c.state.FirstHint
	c.mu.RUnlock()
	if terminal {
		return ErrGameOver
	}
	if c.clock != nil {
		c.clock.Restart(country)
	}
	if hint != "" {
		return nil
	}
	_, err := c.requestFirstHint(ctx)
	return err
}

// ClockRunning reports whether the session's local-time clock is ticking.
func (c *Controller) ClockRunning() bool { return c.clock != nil && c.clock.Running() }

// Close stops the session's background work.
func (c *Controller) Close() {
	if c.clock != nil {
		c.clock.Stop()
	}
}

// RequestFirstHint fetches the first hint of the current round. At the start
// of a round it also resets the second-hint guard; once the round's hint has
// been shown it only re-reads the hint. Remote failures are logged and
// produce an empty hint.
func (c *Controller) RequestFirstHint(ctx context.Context) (string, error) {
	if !c.busy.TryLock() {
		return "", ErrBusy
	}
	defer c.busy.Unlock()
	return c.requestFirstHint(ctx)
}

func (c *Controller) requestFirstHint(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.terminalLocked() {
		c.mu.Unlock()
		return "", ErrGameOver
	}
	round := c.state.RoundNumber
	// Only the round's first showing opens a new second-hint purchase;
	// later calls just re-read the hint.
	opening := c.state.Phase == PhaseAwaitingFirstHint || c.state.Phase == PhaseRoundAdvanced
	if opening {
		c.state.SecondHintGiven = false
		c.state.SecondHint = ""
	}
	c.mu.Unlock()

	key, ok := c.route.HintKeyFor(round)
	if !ok {
		return "", ErrGameOver
	}
	hint, err := c.remote.FirstHint(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Int("round", round).Msg("first hint unavailable")
		hint = ""
	}

	c.mu.Lock()
	c.state.FirstHint = hint
	if c.state.Phase != PhaseSecondHintShown {
		c.state.Phase = PhaseFirstHintShown
	}
	c.mu.Unlock()
	return hint, nil
}

// RequestSecondHint spends a coin on the second hint of the current round.
// Only one per round; the hint is disclosed only if coins stay positive,
// otherwise the spend ends the game.
func (c *Controller) RequestSecondHint(ctx context.Context) (string, error) {
	if !c.busy.TryLock() {
		return "", ErrBusy
	}
	defer c.busy.Unlock()

	c.mu.Lock()
	if c.terminalLocked() {
		c.mu.Unlock()
		return "", ErrGameOver
	}
	if c.state.SecondHintGiven {
		c.mu.Unlock()
		return "", ErrHintUsed
	}
	c.state.Coins -= SecondHintPrice
	c.state.SecondHintGiven = true
	c.state.SecondHintAvailable = false
	round, coins := c.state.RoundNumber, c.state.Coins
	c.mu.Unlock()

	if c.gameOver() {
		return "", ErrGameOver
	}
	c.log.Debug().Int("round", round).Int("coins", coins).Msg("second hint bought")

	key, _ := c.route.HintKeyFor(round)
	hint, err := c.remote.SecondHint(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Int("round", round).Msg("second hint unavailable")
		hint = ""
	}

	c.mu.Lock()
	c.state.SecondHint = hint
	c.state.Phase = PhaseSecondHintShown
	c.mu.Unlock()
	return hint, nil
}

// AnswerResult describes an accepted answer.
type AnswerResult struct {
	Country  string  `json:"country"`
	Expected string  `json:"-"`
	Correct  bool    `json:"correct"`
	Distance int     `json:"distance"`
	Round    int     `json:"round"`
	Outcome  Outcome `json:"outcome,omitempty"`
}

// SubmitAnswer flies the player to name and scores the round.
func (c *Controller) SubmitAnswer(ctx context.Context, name string) (AnswerResult, error) {
	if !c.busy.TryLock() {
		return AnswerResult{}, ErrBusy
	}
	defer c.busy.Unlock()

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		c.presenter.OnValidationError(ValidationField)
		return AnswerResult{}, ErrValidation
	}

	c.mu.RLock()
	terminal := c.terminalLocked()
	from, leg := c.state.CurrentCountry, c.state.RoundNumber
	c.mu.RUnlock()
	if terminal {
		return AnswerResult{}, ErrGameOver
	}

	exists, err := c.remote.CountryExists(ctx, name)
	if err != nil {
		c.log.Warn().Err(err).Str("country", name).Msg("existence check failed")
		return AnswerResult{}, fmt.Errorf("check %q: %w", name, ErrNotFound)
	}
	if !exists {
		return AnswerResult{}, fmt.Errorf("check %q: %w", name, ErrNotFound)
	}

	if c.clock != nil {
		c.clock.Stop()
	}
	c.mu.Lock()
	prevNext, prevPhase := c.state.NextCountry, c.state.Phase
	c.state.NextCountry = name
	c.state.Phase = PhaseEvaluating
	c.mu.Unlock()

	dist, err := c.remote.TravelPenalty(ctx, from, name, leg)
	if err != nil {
		c.log.Error().Err(err).Str("from", from).Str("to", name).Int("leg", leg).Msg("travel penalty failed")
		c.mu.Lock()
		c.state.NextCountry, c.state.Phase = prevNext, prevPhase
		c.mu.Unlock()
		if c.clock != nil {
			c.clock.Restart(from)
		}
		return AnswerResult{}, fmt.Errorf("travel penalty: %w", ErrRemoteUnavailable)
	}

	c.mu.Lock()
	c.state.DistanceTravelled += dist
	c.state.RoundNumber++
	res := AnswerResult{Country: name, Distance: dist, Round: c.state.RoundNumber}
	res.Expected, _ = c.route.TargetFor(c.state.RoundNumber)
	if name == res.Expected {
		res.Correct = true
		c.state.CrimesStopped++
		c.state.Coins += CorrectReward
	} else {
		c.state.Coins -= WrongPenalty
	}
	c.state.Phase = PhaseRoundAdvanced
	round := c.state.RoundNumber
	c.mu.Unlock()

	c.log.Info().
		Str("country", name).
		Bool("correct", res.Correct).
		Int("distance", dist).
		Int("round", round).
		Msg("round advanced")

	if !res.Correct {
		c.gameOver()
	}
	if round >= c.route.FinalRound() {
		c.finish()
	}

	c.mu.RLock()
	terminal = c.terminalLocked()
	c.mu.RUnlock()
	if c.clock != nil && !terminal {
		c.clock.Restart(name)
	}

	c.advanceHintFlow(ctx)

	c.mu.Lock()
	c.state.CurrentCountry = name
	res.Outcome = c.state.Outcome
	c.mu.Unlock()
	return res, nil
}

// AdvanceHintFlow prepares hints for the round just entered.
func (c *Controller) AdvanceHintFlow(ctx context.Context) error {
	if !c.busy.TryLock() {
		return ErrBusy
	}
	defer c.busy.Unlock()
	c.advanceHintFlow(ctx)
	return nil
}

func (c *Controller) advanceHintFlow(ctx context.Context) {
	c.mu.Lock()
	c.state.FirstHint = ""
	c.state.SecondHint = ""
	prior := c.state.SecondHintGiven
	if c.terminalLocked() {
		c.state.SecondHintAvailable = false
		c.mu.Unlock()
		return
	}
	c.state.SecondHintGiven = false
	c.state.Phase = PhaseRoundAdvanced
	c.mu.Unlock()

	if _, err := c.requestFirstHint(ctx); err != nil {
		return
	}
	if prior {
		c.mu.Lock()
		c.state.SecondHintAvailable = true
		c.mu.Unlock()
	}
}

// gameOver evaluates the outcome once coins are exhausted.
func (c *Controller) gameOver() bool {
	c.mu.RLock()
	coins := c.state.Coins
	c.mu.RUnlock()
	if coins > 0 {
		return false
	}
	c.finish()
	return true
}

// finish records the evaluated outcome and tells the presenter, once.
func (c *Controller) finish() {
	c.mu.Lock()
	out := Evaluate(*c.state, c.route)
	c.state.Outcome = out
	c.state.Phase = PhaseTerminal
	c.state.SecondHintAvailable = false
	if c.state.FinishedAt.IsZero() {
		c.state.FinishedAt = time.Now().UTC()
	}
	announced := c.state.Announced
	c.state.Announced = true
	snap := c.state.Clone()
	c.mu.Unlock()

	if c.clock != nil {
		c.clock.Stop()
	}
	if announced {
		return
	}
	c.log.Info().
		Str("outcome", string(out)).
		Int("coins", snap.Coins).
		Int("crimes", snap.CrimesStopped).
		Int("distance", snap.DistanceTravelled).
		Msg("game finished")
	if out == OutcomeWin {
		c.presenter.OnWin(snap)
	} else {
		c.presenter.OnLose(snap)
	}
}

// terminalLocked reports whether no further rounds may be played. c.mu must be held.
func (c *Controller) terminalLocked() bool {
	s := c.state
	return s.Finished() || s.Coins <= 0 || s.RoundNumber >= c.route.FinalRound()
}

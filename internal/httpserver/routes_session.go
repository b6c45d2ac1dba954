// internal/httpserver/routes_session.go
//
// HTTP routes for playing a chase session. Mounted under /session:
//   - POST   /session/new              → start a session (first hint shown, clock started)
//   - GET    /session/{id}             → current state incl. local time
//   - POST   /session/{id}/hint/first  → re-fetch the first hint of the round
//   - POST   /session/{id}/hint/second → buy the second hint (1 coin, once per round)
//   - POST   /session/{id}/answer      → fly to {"country": "..."} and score the round
//   - DELETE /session/{id}             → stop the session's clock and forget it
//
// Live controllers are kept in memory; every action saves a snapshot (with
// the session's owner) to the store so a session can be rebuilt after a
// restart or eviction. Idle sessions are evicted after Config.IdleTTL and
// finished ones as soon as their final snapshot is saved.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/fugitive/internal/game"
	"github.com/robalobadob/fugitive/internal/results"
	"github.com/robalobadob/fugitive/internal/store"
)

// owner identifies who plays a session.
type owner struct {
	userID string
	anonID string
}

func (s *Server) ownerOf(w http.ResponseWriter, r *http.Request) owner {
	if me := userFrom(r); me != nil {
		return owner{userID: me.ID}
	}
	return owner{anonID: ensureAnonID(w, r)}
}

// sessionPresenter persists finished games and logs presenter events.
type sessionPresenter struct {
	srv   *Server
	owner owner
	log   zerolog.Logger
}

func (p *sessionPresenter) OnWin(st game.State)  { p.record(st, true) }
func (p *sessionPresenter) OnLose(st game.State) { p.record(st, false) }

func (p *sessionPresenter) OnValidationError(field string) {
	p.log.Debug().Str("field", field).Msg("empty submission")
}

func (p *sessionPresenter) record(st game.State, won bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrote, err := p.srv.results.InsertResult(ctx, results.FromState(st, p.owner.userID, p.owner.anonID))
	if err != nil {
		p.log.Error().Err(err).Msg("insert result")
		return
	}
	if wrote && p.owner.userID != "" {
		if err := p.srv.bumpStats(ctx, p.owner.userID, won); err != nil {
			p.log.Warn().Err(err).Str("user", p.owner.userID).Msg("bump stats")
		}
	}
}

// DefaultIdleTTL is how long a live session may go untouched before its
// controller is dropped from memory. It is rebuilt from the store on demand.
const DefaultIdleTTL = 30 * time.Minute

// liveSession is a registry entry.
type liveSession struct {
	c     *game.Controller
	owner owner
	seen  time.Time
}

// registry holds live controllers keyed by session ID and evicts idle ones.
type registry struct {
	srv *Server
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	live map[string]*liveSession

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newRegistry(s *Server, ttl time.Duration) *registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &registry{
		srv:  s,
		ttl:  ttl,
		now:  time.Now,
		live: make(map[string]*liveSession),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// run sweeps idle sessions until close is called.
func (g *registry) run() {
	defer close(g.done)
	every := g.ttl / 2
	switch {
	case every > time.Minute:
		every = time.Minute
	case every <= 0:
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-t.C:
			if n := g.sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}

// sweep drops every session idle for longer than the TTL and returns how many.
func (g *registry) sweep() int {
	cutoff := g.now().Add(-g.ttl)
	var idle []*game.Controller
	g.mu.Lock()
	for id, ls := range g.live {
		if ls.seen.Before(cutoff) {
			idle = append(idle, ls.c)
			delete(g.live, id)
		}
	}
	g.mu.Unlock()
	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}

// build wires a controller with its presenter and clock.
func (g *registry) build(st *game.State, o owner) *liveSession {
	l := log.With().Str("session", st.ID).Logger()
	c := game.NewController(st, g.srv.cfg.Remote,
		game.WithPresenter(&sessionPresenter{srv: g.srv, owner: o, log: l}),
		game.WithClock(game.NewClock(g.srv.cfg.Remote, g.srv.cfg.ClockInterval, l)),
		game.WithLogger(l),
	)
	return &liveSession{c: c, owner: o, seen: g.now()}
}

func (g *registry) add(ls *liveSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[ls.c.ID()] = ls
}

// get returns the live session for id, restoring it from the store if
// needed. A restored session keeps the owner it was started by. Finished
// sessions are served from the store without being kept live.
func (g *registry) get(ctx context.Context, id string) (*liveSession, error) {
	g.mu.Lock()
	ls, ok := g.live[id]
	if ok {
		ls.seen = g.now()
	}
	g.mu.Unlock()
	if ok {
		return ls, nil
	}

	rec, err := g.srv.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ls = g.build(&rec.State, owner{userID: rec.UserID, anonID: rec.AnonID})
	if rec.State.Finished() {
		return ls, nil
	}
	if err := ls.c.Start(ctx); err != nil && !errors.Is(err, game.ErrGameOver) {
		ls.c.Close()
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.live[id]; ok {
		ls.c.Close()
		existing.seen = g.now()
		return existing, nil
	}
	g.live[id] = ls
	log.Info().Str("session", id).Msg("session restored")
	return ls, nil
}

func (g *registry) remove(id string) {
	g.mu.Lock()
	ls, ok := g.live[id]
	delete(g.live, id)
	g.mu.Unlock()
	if ok {
		ls.c.Close()
	}
}

func (g *registry) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// close stops the sweeper and every live session. Safe to call repeatedly.
func (g *registry) close() {
	g.stopOnce.Do(func() {
		close(g.stop)
		<-g.done
	})
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ls := range g.live {
		ls.c.Close()
		delete(g.live, id)
	}
}

// mountSessions registers all /session routes.
func (s *Server) mountSessions(r chi.Router) {
	r.Post("/new", s.handleNewSession)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleEndSession)
		r.Post("/hint/first", s.handleFirstHint)
		r.Post("/hint/second", s.handleSecondHint)
		r.Post("/answer", s.handleAnswer)
	})
}

// sessionRes is the response of every session route.
type sessionRes struct {
	State  game.State         `json:"state"`
	Hint   string             `json:"hint,omitempty"`
	Answer *game.AnswerResult `json:"answer,omitempty"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	ls := s.sessions.build(game.NewState(game.DefaultRoute), s.ownerOf(w, r))
	if err := ls.c.Start(r.Context()); err != nil {
		ls.c.Close()
		s.writeGameErr(w, err)
		return
	}
	s.sessions.add(ls)
	if !s.save(w, r, ls) {
		return
	}
	log.Info().Str("session", ls.c.ID()).Msg("session started")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sessionRes{State: ls.c.Snapshot()})
}

// session resolves {id} or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	ls, err := s.sessions.get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"session_not_found"}`, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Msg("load session")
		http.Error(w, `{"error":"load_failed"}`, http.StatusInternalServerError)
		return nil, false
	}
	return ls, true
}

// save snapshots the session into the store. A finished session is then
// dropped from the live registry; later reads come from the store.
func (s *Server) save(w http.ResponseWriter, r *http.Request, ls *liveSession) bool {
	snap := ls.c.Snapshot()
	rec := store.Record{State: snap, UserID: ls.owner.userID, AnonID: ls.owner.anonID}
	if err := s.store.Save(r.Context(), rec); err != nil {
		log.Error().Err(err).Str("session", snap.ID).Msg("save session")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return false
	}
	if snap.Finished() {
		s.sessions.remove(snap.ID)
	}
	return true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(sessionRes{State: ls.c.Snapshot()})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.remove(id)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) handleFirstHint(w http.ResponseWriter, r *http.Request) {
	s.hint(w, r, (*game.Controller).RequestFirstHint)
}

func (s *Server) handleSecondHint(w http.ResponseWriter, r *http.Request) {
	s.hint(w, r, (*game.Controller).RequestSecondHint)
}

func (s *Server) hint(w http.ResponseWriter, r *http.Request,
	fetch func(*game.Controller, context.Context) (string, error)) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	hint, err := fetch(ls.c, r.Context())
	// Coins may have been spent even when the hint was refused.
	if !s.save(w, r, ls) {
		return
	}
	if err != nil {
		s.writeGameErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(sessionRes{State: ls.c.Snapshot(), Hint: hint})
}

type answerReq struct {
	Country string `json:"country"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ls.c.SubmitAnswer(r.Context(), req.Country)
	if err != nil {
		s.writeGameErr(w, err)
		return
	}
	if !s.save(w, r, ls) {
		return
	}
	_ = json.NewEncoder(w).Encode(sessionRes{State: ls.c.Snapshot(), Answer: &res})
}

// writeGameErr maps controller errors to HTTP responses.
func (s *Server) writeGameErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "validation", "field": game.ValidationField})
	case errors.Is(err, game.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "unknown_country")
	case errors.Is(err, game.ErrBusy):
		writeJSONError(w, http.StatusConflict, "busy")
	case errors.Is(err, game.ErrGameOver):
		writeJSONError(w, http.StatusConflict, "game_over")
	case errors.Is(err, game.ErrHintUsed):
		writeJSONError(w, http.StatusConflict, "hint_used")
	case errors.Is(err, game.ErrRemoteUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "remote_unavailable")
	default:
		log.Error().Err(err).Msg("session action")
		writeJSONError(w, http.StatusInternalServerError, "internal")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

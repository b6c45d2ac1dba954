package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalobadob/fugitive/assets"
	"github.com/robalobadob/fugitive/internal/atlas"
	"github.com/robalobadob/fugitive/internal/database"
	"github.com/robalobadob/fugitive/internal/game"
	"github.com/robalobadob/fugitive/internal/store"
)

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, Config{ClockInterval: 10 * time.Millisecond})
}

// newTestEnvWith serves an in-process atlas; cfg.Remote and cfg.Atlas are filled in.
func newTestEnvWith(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db, assets.Migrations()); err != nil {
		t.Fatal(err)
	}
	at := atlas.New(db)
	cfg.Remote, cfg.Atlas = at, at
	srv := New(store.NewMemoryStore(), db, cfg)
	hs := httptest.NewServer(srv.Router())
	jar, _ := cookiejar.New(nil)
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
		_ = db.Close()
	})
	return &testEnv{srv: srv, http: hs, client: &http.Client{Jar: jar}}
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := e.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

// guest returns a view of e with an empty cookie jar.
func (e *testEnv) guest() *testEnv {
	jar, _ := cookiejar.New(nil)
	return &testEnv{srv: e.srv, http: e.http, client: &http.Client{Jar: jar}}
}

// live returns the registry entry for id, if the session is held in memory.
func (e *testEnv) live(id string) (*liveSession, bool) {
	e.srv.sessions.mu.Lock()
	defer e.srv.sessions.mu.Unlock()
	ls, ok := e.srv.sessions.live[id]
	return ls, ok
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *testEnv) newSession(t *testing.T) game.State {
	t.Helper()
	var res sessionRes
	if code := e.do(t, http.MethodPost, "/session/new", nil, &res); code != http.StatusCreated {
		t.Fatalf("new session status %d", code)
	}
	return res.State
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	var body map[string]bool
	if code := e.do(t, http.MethodGet, "/health", nil, &body); code != http.StatusOK || !body["ok"] {
		t.Errorf("health = %d %v", code, body)
	}
	var nf map[string]string
	if code := e.do(t, http.MethodGet, "/nope", nil, &nf); code != http.StatusNotFound {
		t.Errorf("unknown path status %d", code)
	}
}

func TestSession_NewShowsFirstHint(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)
	if st.ID == "" || st.RoundNumber != 1 || st.Coins != 5 || st.CurrentCountry != "tsekki" {
		t.Errorf("new session state %+v", st)
	}
	if st.FirstHint == "" {
		t.Error("first hint missing")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var res sessionRes
		e.do(t, http.MethodGet, "/session/"+st.ID, nil, &res)
		if res.State.LocalTime != "" {
			if res.State.LocalTime == game.Unavailable {
				t.Errorf("tsekki local time unavailable")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("local time never shown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_AnswerErrors(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)
	path := "/session/" + st.ID + "/answer"

	var verr map[string]string
	if code := e.do(t, http.MethodPost, path, answerReq{Country: "  "}, &verr); code != http.StatusBadRequest {
		t.Errorf("empty answer status %d", code)
	}
	if verr["field"] != "country" {
		t.Errorf("validation body %v", verr)
	}

	var nf map[string]string
	if code := e.do(t, http.MethodPost, path, answerReq{Country: "atlantis"}, &nf); code != http.StatusNotFound {
		t.Errorf("unknown country status %d", code)
	}
	if nf["error"] != "unknown_country" {
		t.Errorf("unknown country body %v", nf)
	}

	var res sessionRes
	e.do(t, http.MethodGet, "/session/"+st.ID, nil, &res)
	if res.State.RoundNumber != 1 || res.State.Coins != 5 || res.State.DistanceTravelled != 0 {
		t.Errorf("rejected answers changed state: %+v", res.State)
	}

	if code := e.do(t, http.MethodGet, "/session/does-not-exist", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown session status %d", code)
	}
}

func TestSession_FullChase(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)

	var res sessionRes
	for i, country := range game.DefaultRoute.Targets {
		res = sessionRes{}
		code := e.do(t, http.MethodPost, "/session/"+st.ID+"/answer", answerReq{Country: country}, &res)
		if code != http.StatusOK {
			t.Fatalf("answer %q status %d", country, code)
		}
		if res.Answer == nil || !res.Answer.Correct || res.Answer.Round != i+2 {
			t.Fatalf("answer %q result %+v", country, res.Answer)
		}
	}
	final := res.State
	if final.RoundNumber != 5 || final.Coins != 13 || final.CrimesStopped != 4 {
		t.Errorf("final state %+v", final)
	}
	if final.Outcome == game.OutcomeNone || final.Phase != game.PhaseTerminal {
		t.Errorf("outcome=%q phase=%q", final.Outcome, final.Phase)
	}

	if _, ok := e.live(st.ID); ok {
		t.Error("finished session still held live")
	}

	var over map[string]string
	if code := e.do(t, http.MethodPost, "/session/"+st.ID+"/answer", answerReq{Country: "saksa"}, &over); code != http.StatusConflict {
		t.Errorf("answer after end status %d", code)
	}
	if _, ok := e.live(st.ID); ok {
		t.Error("reading a finished session brought it back to life")
	}

	var lb lbRes
	if code := e.do(t, http.MethodGet, "/results/leaderboard", nil, &lb); code != http.StatusOK {
		t.Fatalf("leaderboard status %d", code)
	}
	if len(lb.Top) != 1 || lb.Top[0].ID != st.ID || lb.Top[0].Outcome != string(final.Outcome) {
		t.Errorf("leaderboard %+v", lb.Top)
	}
}

func TestSession_SecondHint(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)
	path := "/session/" + st.ID + "/hint/second"

	var res sessionRes
	if code := e.do(t, http.MethodPost, path, nil, &res); code != http.StatusOK {
		t.Fatalf("second hint status %d", code)
	}
	if res.Hint == "" || res.State.Coins != 4 || !res.State.SecondHintGiven {
		t.Errorf("second hint response %+v", res)
	}

	var again map[string]string
	if code := e.do(t, http.MethodPost, path, nil, &again); code != http.StatusConflict || again["error"] != "hint_used" {
		t.Errorf("repeat second hint = %d %v", code, again)
	}
	var after sessionRes
	e.do(t, http.MethodGet, "/session/"+st.ID, nil, &after)
	if after.State.Coins != 4 {
		t.Errorf("coins %d after refused hint, want 4", after.State.Coins)
	}
}

func TestSession_RestoredFromStore(t *testing.T) {
	e := newTestEnv(t)
	st := game.NewState(game.DefaultRoute)
	st.RoundNumber = 3
	st.Coins = 6
	st.CurrentCountry = "islanti"
	st.FirstHint = "boot-shaped"
	if err := e.srv.store.Save(context.Background(), store.Record{State: *st, AnonID: "someone"}); err != nil {
		t.Fatal(err)
	}

	var res sessionRes
	if code := e.do(t, http.MethodGet, "/session/"+st.ID, nil, &res); code != http.StatusOK {
		t.Fatalf("restore status %d", code)
	}
	if res.State.RoundNumber != 3 || res.State.CurrentCountry != "islanti" || res.State.FirstHint != "boot-shaped" {
		t.Errorf("restored state %+v", res.State)
	}

	res = sessionRes{}
	if code := e.do(t, http.MethodPost, "/session/"+st.ID+"/answer", answerReq{Country: "italia"}, &res); code != http.StatusOK {
		t.Fatalf("answer on restored session status %d", code)
	}
	if !res.Answer.Correct || res.State.RoundNumber != 4 {
		t.Errorf("answer on restored session %+v", res)
	}
}

func TestAuth_LossBumpsStats(t *testing.T) {
	e := newTestEnv(t)
	var me map[string]any
	if code := e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "sleuth", Password: "correct-horse"}, &me); code != http.StatusOK {
		t.Fatalf("signup status %d (%v)", code, me)
	}
	if code := e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "SLEUTH", Password: "correct-horse"}, nil); code != http.StatusConflict {
		t.Errorf("duplicate signup status %d", code)
	}

	st := e.newSession(t)
	base := "/session/" + st.ID
	for _, wrong := range []string{"ranska", "suomi"} {
		if code := e.do(t, http.MethodPost, base+"/hint/second", nil, nil); code != http.StatusOK {
			t.Fatalf("second hint status %d", code)
		}
		if code := e.do(t, http.MethodPost, base+"/answer", answerReq{Country: wrong}, nil); code != http.StatusOK {
			t.Fatalf("answer %q status %d", wrong, code)
		}
	}
	var over map[string]string
	if code := e.do(t, http.MethodPost, base+"/hint/second", nil, &over); code != http.StatusConflict || over["error"] != "game_over" {
		t.Fatalf("final hint = %d %v", code, over)
	}

	var stats map[string]float64
	if code := e.do(t, http.MethodGet, "/stats/me", nil, &stats); code != http.StatusOK {
		t.Fatalf("stats status %d", code)
	}
	if stats["gamesPlayed"] != 1 || stats["wins"] != 0 || stats["streak"] != 0 {
		t.Errorf("stats %v", stats)
	}

	var mine []map[string]any
	if code := e.do(t, http.MethodGet, "/results/mine", nil, &mine); code != http.StatusOK {
		t.Fatalf("results/mine status %d", code)
	}
	if len(mine) != 1 || mine[0]["outcome"] != "lose" {
		t.Errorf("results/mine %v", mine)
	}

	if code := e.do(t, http.MethodPost, "/auth/logout", nil, nil); code != http.StatusOK {
		t.Errorf("logout status %d", code)
	}
	if code := e.do(t, http.MethodGet, "/auth/me", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("me after logout status %d", code)
	}
}

func TestAtlasMounted(t *testing.T) {
	e := newTestEnv(t)
	var body map[string]bool
	if code := e.do(t, http.MethodGet, "/atlas/checkcountry/saksa", nil, &body); code != http.StatusOK || !body["exists"] {
		t.Errorf("atlas checkcountry = %d %v", code, body)
	}
}

func TestSession_FirstHintDoesNotReopenSecondHint(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)
	base := "/session/" + st.ID

	if code := e.do(t, http.MethodPost, base+"/hint/second", nil, nil); code != http.StatusOK {
		t.Fatalf("second hint status %d", code)
	}
	for i := 0; i < 2; i++ {
		var first sessionRes
		if code := e.do(t, http.MethodPost, base+"/hint/first", nil, &first); code != http.StatusOK || first.Hint == "" {
			t.Fatalf("first hint = %d %+v", code, first)
		}
		var again map[string]string
		if code := e.do(t, http.MethodPost, base+"/hint/second", nil, &again); code != http.StatusConflict || again["error"] != "hint_used" {
			t.Errorf("second hint after first hint = %d %v", code, again)
		}
	}

	var res sessionRes
	e.do(t, http.MethodGet, base, nil, &res)
	if res.State.RoundNumber != 1 || res.State.Coins != 4 {
		t.Errorf("round=%d coins=%d, want 1 4", res.State.RoundNumber, res.State.Coins)
	}
}

func TestSessions_IdleEvicted(t *testing.T) {
	e := newTestEnvWith(t, Config{ClockInterval: 5 * time.Millisecond, IdleTTL: 40 * time.Millisecond})
	st := e.newSession(t)
	ls, ok := e.live(st.ID)
	if !ok {
		t.Fatal("new session not held live")
	}
	eventually(t, ls.c.ClockRunning)

	eventually(t, func() bool { _, ok := e.live(st.ID); return !ok })
	if ls.c.ClockRunning() {
		t.Error("evicted session's clock still running")
	}

	var res sessionRes
	if code := e.do(t, http.MethodGet, "/session/"+st.ID, nil, &res); code != http.StatusOK {
		t.Fatalf("get after eviction status %d", code)
	}
	if res.State.ID != st.ID || res.State.FirstHint != st.FirstHint {
		t.Errorf("restored state %+v", res.State)
	}
	if _, ok := e.live(st.ID); !ok {
		t.Error("restored session not held live")
	}
}

func TestRegistry_Sweep(t *testing.T) {
	e := newTestEnv(t)
	old := e.newSession(t)
	fresh := e.newSession(t)

	g := e.srv.sessions
	stale, _ := e.live(old.ID)
	g.mu.Lock()
	stale.seen = time.Now().Add(-2 * DefaultIdleTTL)
	g.mu.Unlock()

	if n := g.sweep(); n != 1 {
		t.Fatalf("sweep evicted %d sessions, want 1", n)
	}
	if _, ok := e.live(old.ID); ok {
		t.Error("idle session still live")
	}
	if stale.c.ClockRunning() {
		t.Error("idle session's clock still running")
	}
	if _, ok := e.live(fresh.ID); !ok {
		t.Error("active session was evicted")
	}
}

func TestSession_RestoredKeepsOwner(t *testing.T) {
	e := newTestEnv(t)
	var me map[string]any
	if code := e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "owner", Password: "correct-horse"}, &me); code != http.StatusOK {
		t.Fatalf("signup status %d", code)
	}
	userID, _ := me["id"].(string)

	st := game.NewState(game.DefaultRoute)
	st.RoundNumber = 4
	st.Coins = 1
	st.CurrentCountry = "italia"
	st.FirstHint = "olive groves"
	if err := e.srv.store.Save(context.Background(), store.Record{State: *st, UserID: userID}); err != nil {
		t.Fatal(err)
	}

	// Someone else loads the session after a restart and ends it.
	other := e.guest()
	var res sessionRes
	if code := other.do(t, http.MethodPost, "/session/"+st.ID+"/answer", answerReq{Country: "suomi"}, &res); code != http.StatusOK {
		t.Fatalf("answer status %d", code)
	}
	if res.State.Outcome != game.OutcomeLose {
		t.Fatalf("outcome %q, want lose", res.State.Outcome)
	}

	var stats map[string]float64
	if code := e.do(t, http.MethodGet, "/stats/me", nil, &stats); code != http.StatusOK {
		t.Fatalf("stats status %d", code)
	}
	if stats["gamesPlayed"] != 1 {
		t.Errorf("owner stats %v, want one game played", stats)
	}
	var mine []map[string]any
	e.do(t, http.MethodGet, "/results/mine", nil, &mine)
	if len(mine) != 1 || mine[0]["id"] != st.ID {
		t.Errorf("owner results %v", mine)
	}
}

func TestServer_RunShutsDown(t *testing.T) {
	e := newTestEnv(t)
	st := e.newSession(t)
	ls, _ := e.live(st.ID)
	eventually(t, ls.c.ClockRunning)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if ls.c.ClockRunning() {
		t.Error("session clock still running after shutdown")
	}
	if n := e.srv.sessions.size(); n != 0 {
		t.Errorf("%d sessions still live after shutdown", n)
	}
}

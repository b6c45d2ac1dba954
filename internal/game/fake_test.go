package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errBackend = errors.New("backend down")

// fakeRemote is an in-memory Remote for controller and clock tests.
type fakeRemote struct {
	mu         sync.Mutex
	countries  map[string]bool
	hintsDown  bool
	existsErr  error
	penaltyErr error
	times      map[string]LocalTime

	// When set, CountryExists signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	inflight    atomic.Int32
	maxInflight atomic.Int32
	timeCalls   atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		countries: map[string]bool{
			"tsekki": true, "saksa": true, "islanti": true, "italia": true,
			"espanja": true, "ranska": true, "suomi": true,
		},
		times: map[string]LocalTime{
			"tsekki": {Time: "12:30", Seconds: 7},
			"saksa":  {Time: "12:31", Seconds: 9},
		},
	}
}

func (f *fakeRemote) FirstHint(ctx context.Context, country string) (string, error) {
	if f.hintsDown {
		return "", errBackend
	}
	return "first:" + country, nil
}

func (f *fakeRemote) SecondHint(ctx context.Context, country string) (string, error) {
	if f.hintsDown {
		return "", errBackend
	}
	return "second:" + country, nil
}

func (f *fakeRemote) CountryExists(ctx context.Context, name string) (bool, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countries[name], nil
}

// TravelPenalty charges the reference leg for the right country and doubles
// it for any other destination.
func (f *fakeRemote) TravelPenalty(ctx context.Context, from, to string, leg int) (int, error) {
	if f.penaltyErr != nil {
		return 0, f.penaltyErr
	}
	ref := DefaultRoute.Legs[leg-1]
	if want, _ := DefaultRoute.TargetFor(leg + 1); want == to {
		return ref, nil
	}
	return ref * 2, nil
}

func (f *fakeRemote) LocalTime(ctx context.Context, country string) (LocalTime, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	f.timeCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	lt, ok := f.times[country]
	if !ok {
		return LocalTime{}, ErrNotFound
	}
	return lt, nil
}

// recordingPresenter counts presenter events.
type recordingPresenter struct {
	mu        sync.Mutex
	wins      int
	losses    int
	fields    []string
	lastState State
}

func (p *recordingPresenter) OnWin(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wins++
	p.lastState = s
}

func (p *recordingPresenter) OnLose(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.losses++
	p.lastState = s
}

func (p *recordingPresenter) OnValidationError(field string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields = append(p.fields, field)
}

package game

// Route is the fixed chase: a starting country followed by the country the
// fugitive must be caught in at each round 2..len(Targets)+1. Legs holds the
// reference distance (km) of each leg, indexed like Targets.
type Route struct {
	Start   string
	Targets []string
	Legs    []int
}

// DefaultRoute is Czechia → Germany → Iceland → Italy → Spain.
var DefaultRoute = Route{
	Start:   "tsekki",
	Targets: []string{"saksa", "islanti", "italia", "espanja"},
	Legs:    []int{256, 2439, 3090, 799},
}

// FinalRound is the round number reached after the last target was answered.
func (r Route) FinalRound() int { return len(r.Targets) + 1 }

// TargetFor returns the expected country for the given round (2-based).
func (r Route) TargetFor(round int) (string, bool) {
	i := round - 2
	if i < 0 || i >= len(r.Targets) {
		return "", false
	}
	return r.Targets[i], true
}

// HintKeyFor returns the country whose hints lead to the target of the given
// round (1-based): the start for round 1, the previous target afterwards.
func (r Route) HintKeyFor(round int) (string, bool) {
	if round == 1 {
		return r.Start, true
	}
	if round < 1 || round > len(r.Targets) {
		return "", false
	}
	return r.Targets[round-2], true
}

// ReferenceSum is the total of the reference leg distances.
func (r Route) ReferenceSum() int {
	sum := 0
	for _, d := range r.Legs {
		sum += d
	}
	return sum
}

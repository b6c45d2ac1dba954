package game

// Evaluate decides the terminal outcome of s against route. It never mutates
// s, so calling it twice for the same frame yields the same answer.
//
// Win requires all of: the final round reached, enough coins, enough crimes
// stopped and a travelled distance within 130% of the reference route.
func Evaluate(s State, route Route) Outcome {
	ref := route.ReferenceSum()
	if ref <= 0 {
		return OutcomeLose
	}
	ratio := float64(s.DistanceTravelled) / float64(ref)
	if s.RoundNumber >= WinMinRound &&
		s.Coins >= WinMinCoins &&
		s.CrimesStopped >= WinMinCrimes &&
		ratio < WinMaxDistance {
		return OutcomeWin
	}
	return OutcomeLose
}

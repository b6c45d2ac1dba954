package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/fugitive/internal/results"
)

// lbRes is returned by /results/leaderboard.
type lbRes struct {
	Top []results.Result `json:"top"`
}

// mountResults registers /results/leaderboard (public) and /results/mine (auth).
func (s *Server) mountResults(r chi.Router) {
	r.Get("/leaderboard", s.handleLeaderboard)
	r.With(s.requireAuth()).Get("/mine", s.handleMyResults)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 100 {
		limit = 100
	}
	rows, err := s.results.Leaderboard(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Top: rows})
}

func (s *Server) handleMyResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.ForUser(r.Context(), userFrom(r).ID, 50)
	if err != nil {
		log.Error().Err(err).Msg("my results")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

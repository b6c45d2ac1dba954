// internal/atlas/routes.go
//
// HTTP routes exposing the atlas to remote game servers.
//   - GET /fetchfirst/{country}                   → {"first_hint": "..."}
//   - GET /fetchsecond/{country}                  → {"second_hint": "..."}
//   - GET /checkcountry/{name}                    → {"exists": bool}
//   - GET /penaltycalculator/{from}/{to}/{leg}    → {"distanceKm": n}
//   - GET /localtime/{country}                    → {"time": "15:04", "seconds": n} | 404

package atlas

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/fugitive/internal/game"
)

// Routes returns a router to be mounted (e.g. under /atlas).
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/fetchfirst/{country}", s.handleFirst)
	r.Get("/fetchsecond/{country}", s.handleSecond)
	r.Get("/checkcountry/{name}", s.handleCheck)
	r.Get("/penaltycalculator/{from}/{to}/{leg}", s.handlePenalty)
	r.Get("/localtime/{country}", s.handleLocalTime)
	return r
}

func (s *Service) handleFirst(w http.ResponseWriter, r *http.Request) {
	hint, err := s.FirstHint(r.Context(), chi.URLParam(r, "country"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"first_hint": hint})
}

func (s *Service) handleSecond(w http.ResponseWriter, r *http.Request) {
	hint, err := s.SecondHint(r.Context(), chi.URLParam(r, "country"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"second_hint": hint})
}

func (s *Service) handleCheck(w http.ResponseWriter, r *http.Request) {
	ok, err := s.CountryExists(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"exists": ok})
}

func (s *Service) handlePenalty(w http.ResponseWriter, r *http.Request) {
	leg, err := strconv.Atoi(chi.URLParam(r, "leg"))
	if err != nil {
		http.Error(w, `{"error":"bad_leg"}`, http.StatusBadRequest)
		return
	}
	d, err := s.TravelPenalty(r.Context(), chi.URLParam(r, "from"), chi.URLParam(r, "to"), leg)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]int{"distanceKm": d})
}

func (s *Service) handleLocalTime(w http.ResponseWriter, r *http.Request) {
	lt, err := s.LocalTime(r.Context(), chi.URLParam(r, "country"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(lt)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	case errors.Is(err, ErrBadLeg):
		http.Error(w, `{"error":"bad_leg"}`, http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Msg("atlas query")
	http.Error(w, `{"error":"atlas_error"}`, http.StatusInternalServerError)
}

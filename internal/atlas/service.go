// internal/atlas/service.go
//
// Country registry backed by SQLite: existence checks, hints, airport
// coordinates for travel distances, and local time per country.
// Service satisfies game.Remote so a session can run against it in-process.

package atlas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robalobadob/fugitive/internal/game"
)

// Service answers game.Remote queries from the atlas tables.
type Service struct {
	db    *sql.DB
	route game.Route
	now   func() time.Time
}

// New returns a Service scoring legs against the default route.
func New(db *sql.DB) *Service {
	return &Service{db: db, route: game.DefaultRoute, now: time.Now}
}

var _ game.Remote = (*Service)(nil)

// ErrBadLeg is returned for a leg outside the route.
var ErrBadLeg = errors.New("leg out of range")

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// CountryExists reports whether name is a known country.
func (s *Service) CountryExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM country WHERE name = ? COLLATE NOCASE`, normalize(name)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("country exists: %w", err)
	}
	return true, nil
}

// FirstHint returns tip_1 of the country's reference airport.
func (s *Service) FirstHint(ctx context.Context, country string) (string, error) {
	return s.tip(ctx, "tip_1", country)
}

// SecondHint returns tip_2 of the country's reference airport.
func (s *Service) SecondHint(ctx context.Context, country string) (string, error) {
	return s.tip(ctx, "tip_2", country)
}

func (s *Service) tip(ctx context.Context, column, country string) (string, error) {
	var tip sql.NullString
	// column is one of two constants above.
	err := s.db.QueryRowContext(ctx, `
		SELECT a.`+column+`
		FROM airport a JOIN country c ON a.iso_country = c.iso_country
		WHERE c.name = ? COLLATE NOCASE AND a.`+column+` IS NOT NULL
		ORDER BY a.ident LIMIT 1`, normalize(country)).Scan(&tip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s for %q: %w", column, country, game.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s for %q: %w", column, country, err)
	}
	return tip.String, nil
}

type coord struct{ lat, lon float64 }

func (s *Service) location(ctx context.Context, country string) (coord, error) {
	var c coord
	err := s.db.QueryRowContext(ctx, `
		SELECT a.latitude_deg, a.longitude_deg
		FROM airport a JOIN country c ON a.iso_country = c.iso_country
		WHERE c.name = ? COLLATE NOCASE
		ORDER BY a.ident LIMIT 1`, normalize(country)).Scan(&c.lat, &c.lon)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("location of %q: %w", country, game.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("location of %q: %w", country, err)
	}
	return c, nil
}

// Distance returns the rounded great-circle distance in km between the
// reference airports of two countries.
func (s *Service) Distance(ctx context.Context, from, to string) (int, error) {
	a, err := s.location(ctx, from)
	if err != nil {
		return 0, err
	}
	b, err := s.location(ctx, to)
	if err != nil {
		return 0, err
	}
	return int(math.Round(greatCircleKm(a.lat, a.lon, b.lat, b.lon))), nil
}

// TravelPenalty returns the penalty-adjusted distance for the given leg (1-based).
func (s *Service) TravelPenalty(ctx context.Context, from, to string, leg int) (int, error) {
	if leg < 1 || leg > len(s.route.Legs) {
		return 0, fmt.Errorf("leg %d of %d: %w", leg, len(s.route.Legs), ErrBadLeg)
	}
	d, err := s.Distance(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return Penalty(d, s.route.Legs[leg-1]), nil
}

// LocalTime returns the wall clock in the country's time zone.
func (s *Service) LocalTime(ctx context.Context, country string) (game.LocalTime, error) {
	var zone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT time_zone FROM country WHERE name = ? COLLATE NOCASE`, normalize(country)).Scan(&zone)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && zone.String == "") {
		return game.LocalTime{}, fmt.Errorf("time zone of %q: %w", country, game.ErrNotFound)
	}
	if err != nil {
		return game.LocalTime{}, fmt.Errorf("time zone of %q: %w", country, err)
	}
	loc, err := time.LoadLocation(zone.String)
	if err != nil {
		return game.LocalTime{}, fmt.Errorf("load %s: %w", zone.String, game.ErrNotFound)
	}
	now := s.now().In(loc)
	return game.LocalTime{Time: now.Format("15:04"), Seconds: now.Second()}, nil
}

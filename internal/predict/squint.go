// Package predict computes pass geometry the transponder editor needs from
// TLE element sets.
package predict

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/flyby/internal/tledb"
	"github.com/signalsfoundry/flyby/model"
)

var (
	// ErrNoAttitude is returned for entries without squint data.
	ErrNoAttitude = errors.New("entry has no attitude")
	// ErrPropagation is returned when SGP4 yields no usable position.
	ErrPropagation = errors.New("propagation failed")
)

// WGS72 ellipsoid, matching the gravity model used for propagation.
const (
	earthRadiusKm = 6378.135
	flattening    = 1.0 / 298.26
)

// Observer is a ground station position.
type Observer struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// Squint is the angle between the satellite antenna axis and the direction
// to the observer, together with where the satellite sits in the sky.
type Squint struct {
	AngleDeg     float64
	RangeKm      float64
	ElevationDeg float64
}

// Visible reports whether the satellite is above the observer's horizon.
func (s Squint) Visible() bool { return s.ElevationDeg > 0 }

// SquintAngle propagates elem to t and returns the squint angle for the
// attitude stored in entry.
func SquintAngle(elem tledb.Element, entry model.SatDbEntry, obs Observer, t time.Time) (Squint, error) {
	if !entry.Squint {
		return Squint{}, fmt.Errorf("%w: satellite %d", ErrNoAttitude, elem.Number)
	}
	orb, err := orbitalPlane(elem.Line2)
	if err != nil {
		return Squint{}, err
	}

	sat := satellite.TLEToSat(elem.Line1, elem.Line2, satellite.GravityWGS72)
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	eci, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	pos := fromSatellite(eci)
	if !pos.finite() {
		return Squint{}, fmt.Errorf("%w: satellite %d at %s", ErrPropagation, elem.Number, t.Format(time.RFC3339))
	}
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))

	o := observerECI(obs, gmst)
	r := pos.sub(o)
	rng := r.norm()
	if rng == 0 {
		return Squint{}, fmt.Errorf("%w: zero range", ErrPropagation)
	}

	a := attitudeECI(entry.AttitudeLat*deg2rad, entry.AttitudeLon*deg2rad, orb)
	return Squint{
		AngleDeg:     clampedAcos(-a.dot(r) / rng),
		RangeKm:      rng,
		ElevationDeg: elevationDegrees(o, pos),
	}, nil
}

const deg2rad = math.Pi / 180

type plane struct {
	inclination float64
	raan        float64
	argPerigee  float64
}

// orbitalPlane reads inclination, right ascension and argument of perigee
// (degrees) from TLE line 2.
func orbitalPlane(line2 string) (plane, error) {
	if len(line2) < 42 {
		return plane{}, fmt.Errorf("line 2 too short for orbital elements")
	}
	var p plane
	for _, f := range []struct {
		dst  *float64
		cols string
	}{
		{&p.inclination, line2[8:16]},
		{&p.raan, line2[17:25]},
		{&p.argPerigee, line2[34:42]},
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.cols), 64)
		if err != nil {
			return plane{}, fmt.Errorf("orbital element %q: %w", f.cols, err)
		}
		*f.dst = v * deg2rad
	}
	return p, nil
}

// attitudeECI rotates the antenna direction, given in the orbital frame as
// latitude and longitude (radians), into inertial coordinates.
func attitudeECI(alat, alon float64, p plane) vec3 {
	bx := math.Cos(alat) * math.Cos(alon+p.argPerigee)
	by := math.Cos(alat) * math.Sin(alon+p.argPerigee)
	bz := math.Sin(alat)

	cx := bx
	cy := by*math.Cos(p.inclination) - bz*math.Sin(p.inclination)
	cz := by*math.Sin(p.inclination) + bz*math.Cos(p.inclination)

	return vec3{
		X: cx*math.Cos(p.raan) - cy*math.Sin(p.raan),
		Y: cx*math.Sin(p.raan) + cy*math.Cos(p.raan),
		Z: cz,
	}
}

func observerECI(obs Observer, gmst float64) vec3 {
	lat := obs.LatitudeDeg * deg2rad
	theta := gmst + obs.LongitudeDeg*deg2rad
	e2 := flattening * (2 - flattening)
	n := earthRadiusKm / math.Sqrt(1-e2*math.Sin(lat)*math.Sin(lat))
	r := (n + obs.AltitudeKm) * math.Cos(lat)
	return vec3{
		X: r * math.Cos(theta),
		Y: r * math.Sin(theta),
		Z: (n*(1-e2) + obs.AltitudeKm) * math.Sin(lat),
	}
}

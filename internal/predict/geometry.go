package predict

import (
	"math"

	satellite "github.com/joshuaferrara/go-satellite"
)

// vec3 is an ECI vector in kilometres.
type vec3 struct {
	X, Y, Z float64
}

func fromSatellite(v satellite.Vector3) vec3 { return vec3{X: v.X, Y: v.Y, Z: v.Z} }

func (v vec3) sub(o vec3) vec3 { return vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v vec3) dot(o vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v vec3) norm() float64 { return math.Sqrt(v.dot(v)) }

func (v vec3) finite() bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return v.X != 0 || v.Y != 0 || v.Z != 0
}

// clampedAcos returns acos(x) in degrees with x clamped to [-1, 1].
func clampedAcos(x float64) float64 {
	return math.Acos(math.Max(-1, math.Min(1, x))) / deg2rad
}

// elevationDegrees returns the geocentric elevation of target seen from
// observer. 0 is the horizon, 90 is overhead.
func elevationDegrees(observer, target vec3) float64 {
	v := target.sub(observer)
	vn, r := v.norm(), observer.norm()
	if vn == 0 || r == 0 {
		return 90
	}
	return 90 - clampedAcos(v.dot(observer)/(vn*r))
}

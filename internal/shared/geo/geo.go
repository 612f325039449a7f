package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean earth radius used for all great-circle distances.
const EarthRadiusKm = 6371.0

const rad = math.Pi / 180

var ErrInvalidBBox = errors.New("bbox must be minLng,minLat,maxLng,maxLat")

// HaversineKm returns the great-circle distance between two coordinates in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm is HaversineKm for orb points (lng, lat order).
func DistanceKm(a, b orb.Point) float64 {
	return HaversineKm(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// PathLengthKm sums the pairwise haversine distances along a line.
func PathLengthKm(ls orb.LineString) float64 {
	total := 0.0
	for i := 1; i < len(ls); i++ {
		total += DistanceKm(ls[i-1], ls[i])
	}
	return total
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, ErrInvalidBBox
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %v", ErrInvalidBBox, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, ErrInvalidBBox
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// FormatBBox is the inverse of ParseBBox.
func FormatBBox(b orb.Bound) string {
	return FormatCoord(b.Min) + "," + FormatCoord(b.Max)
}

// FormatCoord renders a point as "lng,lat" without trailing zeros.
func FormatCoord(p orb.Point) string {
	return strconv.FormatFloat(p.Lon(), 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat(), 'f', -1, 64)
}

// Extend grows b to include every point of ls.
func Extend(b orb.Bound, ls orb.LineString) orb.Bound {
	for _, p := range ls {
		b = b.Extend(p)
	}
	return b
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package proximum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat and Lon are in radians, Hei in meters above the WGS84 ellipsoid.
type PosLLH struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Hei float64 `json:"hei"`
}

func NewPosLLH(lat, lon, hei float64) *PosLLH {
	return &PosLLH{
		Lat: lat,
		Lon: lon,
		Hei: hei,
	}
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	sinLat := math.Sin(llh.Lat)
	n := a / math.Sqrt(1-e*e*sinLat*sinLat)
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-e*e) + llh.Hei) * sinLat,
	}
}

// Latitude and longitude in degrees
func (llh *PosLLH) Deg() (lat, lon float64) {
	return ToDeg(llh.Lat), ToDeg(llh.Lon)
}

func (llh *PosLLH) String() string {
	lat, lon := llh.Deg()
	return fmt.Sprintf("%.8f %.8f %.4f", lat, lon, llh.Hei)
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// Earth-centered, earth-fixed cartesian position [m]
type PosXYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PosXYZFromVec reads the first three components of v.
func PosXYZFromVec(v mat.Vector) PosXYZ {
	return PosXYZ{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
}

func (pos PosXYZ) Vec() *mat.VecDense {
	return mat.NewVecDense(3, []float64{pos.X, pos.Y, pos.Z})
}

func (pos PosXYZ) Add(o PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X + o.X, Y: pos.Y + o.Y, Z: pos.Z + o.Z}
}

func (pos PosXYZ) Sub(o PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X - o.X, Y: pos.Y - o.Y, Z: pos.Z - o.Z}
}

func (pos PosXYZ) Scale(k float64) PosXYZ {
	return PosXYZ{X: pos.X * k, Y: pos.Y * k, Z: pos.Z * k}
}

func (pos PosXYZ) Dot(o PosXYZ) float64 {
	return pos.X*o.X + pos.Y*o.Y + pos.Z*o.Z
}

func (pos PosXYZ) Norm() float64 {
	return math.Sqrt(pos.Dot(pos))
}

// SpringToward moves pos 1/SpringFactor of the way toward anchor.
func (pos PosXYZ) SpringToward(anchor PosXYZ) PosXYZ {
	return pos.Add(anchor.Sub(pos).Scale(1 / SpringFactor))
}

func (pos PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	b := a * (1 - f)            // Semi-minor axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Bowring's parametric latitude
	h := a*a - b*b
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	t := math.Atan2(pos.Z*a, p*b)
	sint := math.Sin(t)
	cost := math.Cos(t)

	lat := math.Atan2(pos.Z+h/b*sint*sint*sint, p-h/a*cost*cost*cost)
	lon := math.Atan2(pos.Y, pos.X)
	n := a / math.Sqrt(1-e*e*math.Sin(lat)*math.Sin(lat)) // Radius of curvature in the prime vertical
	hei := p/math.Cos(lat) - n
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}
}

// ClampToEllipsoid drops the point onto the WGS84 surface along the ellipsoid normal.
func (pos PosXYZ) ClampToEllipsoid() PosXYZ {
	llh := pos.ToLLH()
	llh.Hei = 0
	return llh.ToXYZ()
}

// ENURotation returns the 3x3 matrix whose rows are the local east, north and up
// unit vectors at base, expressed in ECEF.
func ENURotation(base PosXYZ) *mat.Dense {
	llh := base.ToLLH()
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)
	return mat.NewDense(3, 3, []float64{
		-s1, c1, 0,
		-c1 * s2, -s1 * s2, c2,
		c1 * c2, s1 * c2, s2,
	})
}

func (pos PosXYZ) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f", pos.X, pos.Y, pos.Z)
}

//-------------------------------------------------------------------
// PosENU
//-------------------------------------------------------------------

type PosENU struct {
	E float64 `json:"e"`
	N float64 `json:"n"`
	U float64 `json:"u"`
}

func NewPosENU(e, n, u float64) *PosENU {
	return &PosENU{
		E: e,
		N: n,
		U: u,
	}
}

func (enu *PosENU) ToXYZ(base PosXYZ) PosXYZ {
	// Transpose of the ENU rotation maps local offsets back to ECEF
	v := mat.NewVecDense(3, nil)
	v.MulVec(ENURotation(base).T(), mat.NewVecDense(3, []float64{enu.E, enu.N, enu.U}))
	return base.Add(PosXYZFromVec(v))
}

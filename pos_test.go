// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package proximum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestLLHRoundTrip(t *testing.T) {
	tests := []PosLLH{
		{Lat: ToRad(35.681236), Lon: ToRad(139.767125), Hei: 40},
		{Lat: ToRad(-33.8688), Lon: ToRad(151.2093), Hei: 0},
		{Lat: ToRad(78.2232), Lon: ToRad(15.6267), Hei: -120},
		{Lat: 0, Lon: ToRad(-179.9), Hei: 1000},
	}
	for _, llh := range tests {
		xyz := llh.ToXYZ()
		back := xyz.ToLLH()
		assert.InDelta(t, llh.Lat, back.Lat, 1e-9, "lat %s", llh.String())
		assert.InDelta(t, llh.Lon, back.Lon, 1e-9, "lon %s", llh.String())
		assert.InDelta(t, llh.Hei, back.Hei, 1e-3, "hei %s", llh.String())
	}
}

func TestClampToEllipsoid(t *testing.T) {
	llh := PosLLH{Lat: ToRad(45), Lon: ToRad(10), Hei: 25e3}
	xyz := llh.ToXYZ()
	clamped := xyz.ClampToEllipsoid()
	back := clamped.ToLLH()
	assert.InDelta(t, 0, back.Hei, 1e-3)
	assert.InDelta(t, llh.Lat, back.Lat, 1e-9)
	assert.InDelta(t, 25e3, EucDist(&xyz, &clamped), 1e-3)

	// Works on intermediate values
	assert.InDelta(t, 0, xyz.Scale(1.001).ClampToEllipsoid().ToLLH().Hei, 1e-3)
}

func TestENURoundTrip(t *testing.T) {
	b := NewPosLLH(ToRad(-12), ToRad(77), 0).ToXYZ()

	enu := NewPosENU(1200, -800, 15)
	xyz := enu.ToXYZ(b)
	var back mat.VecDense
	back.MulVec(ENURotation(b), xyz.Sub(b).Vec())
	assert.InDelta(t, enu.E, back.AtVec(0), 1e-6)
	assert.InDelta(t, enu.N, back.AtVec(1), 1e-6)
	assert.InDelta(t, enu.U, back.AtVec(2), 1e-6)

	// Up points away from the earth center
	up := PosENU{U: 1000}
	u := up.ToXYZ(b)
	assert.Greater(t, u.Norm(), b.Norm())
}

func TestSpringToward(t *testing.T) {
	p := PosXYZ{X: 1000}
	anchor := PosXYZ{X: 6000}
	got := p.SpringToward(anchor)
	assert.InDelta(t, 1010, got.X, 1e-9)
	assert.Equal(t, 0.0, got.Y)
}

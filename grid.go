// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.5
//

// Surface grid used to place nodes and to display estimates.

package proximum

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/uber/h3-go/v4"
	"gonum.org/v1/gonum/stat/distuv"
)

// Cell is a surface grid cell index.
type Cell uint64

func (c Cell) String() string {
	return fmt.Sprintf("%x", uint64(c))
}

func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cell) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 16, 64)
	if err != nil {
		return fmt.Errorf("invalid cell %q: %w", text, err)
	}
	*c = Cell(v)
	return nil
}

// Geodesy converts between cartesian positions and surface grid cells.
type Geodesy interface {
	CartesianToCell(pos PosXYZ, res int) Cell
	CellToCartesian(c Cell) PosXYZ
	ClampToEllipsoid(pos PosXYZ) PosXYZ
	RandomCell(res int, rng *rand.Rand) Cell
	GaussianNeighbor(c Cell, variance float64, res int, rng *rand.Rand) Cell
}

// H3Grid implements Geodesy on the H3 hexagonal grid. Cell centers sit on the ellipsoid surface.
type H3Grid struct{}

func NewH3Grid() *H3Grid {
	return &H3Grid{}
}

func (g *H3Grid) CartesianToCell(pos PosXYZ, res int) Cell {
	llh := pos.ToLLH()
	lat, lon := llh.Deg()
	return Cell(h3.LatLngToCell(h3.NewLatLng(lat, lon), res))
}

func (g *H3Grid) CellToCartesian(c Cell) PosXYZ {
	ll := h3.CellToLatLng(h3.Cell(c))
	return NewPosLLH(ToRad(ll.Lat), ToRad(ll.Lng), 0).ToXYZ()
}

func (g *H3Grid) ClampToEllipsoid(pos PosXYZ) PosXYZ {
	return pos.ClampToEllipsoid()
}

// RandomCell draws a cell uniformly over the sphere.
func (g *H3Grid) RandomCell(res int, rng *rand.Rand) Cell {
	u := rng.Float64()
	v := rng.Float64()
	llh := PosLLH{
		Lat: math.Asin(2*v - 1),
		Lon: 2*PI*u - PI,
	}
	lat, lon := llh.Deg()
	return Cell(h3.LatLngToCell(h3.NewLatLng(lat, lon), res))
}

// GaussianNeighbor offsets the center of c by a horizontal ENU displacement whose
// east and north components are independent N(0, variance), and returns the cell under it.
func (g *H3Grid) GaussianNeighbor(c Cell, variance float64, res int, rng *rand.Rand) Cell {
	center := g.CellToCartesian(c)
	d := distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: rng}
	enu := NewPosENU(d.Rand(), d.Rand(), 0)
	return g.CartesianToCell(g.ClampToEllipsoid(enu.ToXYZ(center)), res)
}

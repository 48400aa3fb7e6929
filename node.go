// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.9
//

package proximum

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Node is one participant of the network. True and asserted values are fixed at
// creation; the two estimates are replaced by their own estimator only.
type Node struct {
	ID int

	TrueCell     Cell
	TruePosition PosXYZ
	TrueBeta     float64
	TrueTau      float64

	AssertedCell     Cell
	AssertedPosition PosXYZ

	// Least squares estimate
	LSEstimatedPosition PosXYZ
	LSEstimatedCell     Cell
	LSEstimatedLLH      PosLLH

	// Kalman filter estimate
	KF                  *StateAndCovariance
	KFEstimatedPosition PosXYZ
	KFEstimatedCell     Cell
	KFEstimatedLLH      PosLLH
	KFEstimatedBeta     float64
	KFEstimatedTau      float64
	KFPositionVariance  [3]float64 // Diagonal of the position covariance [m^2]
	KFEllipse           Ellipse
}

// Ellipse summarizes the horizontal position covariance in the local east-north plane.
// Lengths are variances [m^2]; axes are unit vectors (east, north).
type Ellipse struct {
	SemiMajorAxis   [2]float64 `json:"semimajor_axis"`
	SemiMinorAxis   [2]float64 `json:"semiminor_axis"`
	SemiMajorLength float64    `json:"semimajor_axis_length"`
	SemiMinorLength float64    `json:"semiminor_axis_length"`
}

// NewNode places a node at trueCell claiming assertedCell. Both estimates start at the asserted
// position; the filter starts with the model beta and tau and an identity covariance in internal units.
func NewNode(id int, trueCell, assertedCell Cell, trueBeta, trueTau float64, cfg *SimulationConfig, geo Geodesy) *Node {
	n := &Node{
		ID:               id,
		TrueCell:         trueCell,
		TruePosition:     geo.CellToCartesian(trueCell),
		TrueBeta:         trueBeta,
		TrueTau:          trueTau,
		AssertedCell:     assertedCell,
		AssertedPosition: geo.CellToCartesian(assertedCell),
	}

	a := n.AssertedPosition
	state := Normalize(mat.NewVecDense(StateDim, []float64{a.X, a.Y, a.Z, cfg.KFModelBeta, cfg.KFModelTau}))
	cov := mat.NewSymDense(StateDim, nil)
	for i := range StateDim {
		cov.SetSym(i, i, 1)
	}
	n.KF = NewStateAndCovariance(state, cov)
	n.logKFEstimate(geo)

	n.LSEstimatedPosition = n.AssertedPosition
	n.logLSEstimate(geo)
	return n
}

func (n *Node) TrueEndpoint() Endpoint {
	return Endpoint{Position: n.TruePosition, Beta: n.TrueBeta, Tau: n.TrueTau}
}

// ApplyKFEstimate stores a posterior after pulling its position toward the asserted position.
func (n *Node) ApplyKFEstimate(post *StateAndCovariance, geo Geodesy) {
	rs := post.RealState()
	pos := PosXYZFromVec(rs).SpringToward(n.AssertedPosition)
	rs.SetVec(0, pos.X)
	rs.SetVec(1, pos.Y)
	rs.SetVec(2, pos.Z)
	n.KF = NewStateAndCovariance(Normalize(rs), post.Covariance)
	n.logKFEstimate(geo)
}

// ApplyLSEstimate stores a least squares position.
func (n *Node) ApplyLSEstimate(pos PosXYZ, geo Geodesy) {
	n.LSEstimatedPosition = pos
	n.logLSEstimate(geo)
}

func (n *Node) logLSEstimate(geo Geodesy) {
	n.LSEstimatedCell = geo.CartesianToCell(n.LSEstimatedPosition, EstimateH3Res)
	n.LSEstimatedLLH = n.LSEstimatedPosition.ToLLH()
}

func (n *Node) logKFEstimate(geo Geodesy) {
	rs := n.KF.RealState()
	n.KFEstimatedPosition = PosXYZFromVec(rs)
	n.KFEstimatedBeta = rs.AtVec(3)
	n.KFEstimatedTau = rs.AtVec(4)
	n.KFEstimatedCell = geo.CartesianToCell(n.KFEstimatedPosition, EstimateH3Res)
	n.KFEstimatedLLH = n.KFEstimatedPosition.ToLLH()

	Pxyz := n.positionCovariance()
	for i := range 3 {
		n.KFPositionVariance[i] = Pxyz.At(i, i)
	}
	n.KFEllipse = horizontalEllipse(Pxyz, n.KFEstimatedPosition)
}

// Position block of the filter covariance in real units [m^2]
func (n *Node) positionCovariance() *mat.SymDense {
	P := mat.NewSymDense(3, nil)
	for i := range 3 {
		for j := i; j < 3; j++ {
			P.SetSym(i, j, n.KF.Covariance.At(i, j)*STATE_FACTOR[i]*STATE_FACTOR[j])
		}
	}
	return P
}

// horizontalEllipse rotates Pxyz into the ENU frame at base and decomposes the east-north block.
func horizontalEllipse(Pxyz mat.Symmetric, base PosXYZ) Ellipse {
	R := ENURotation(base)
	var RP, Penu mat.Dense
	RP.Mul(R, Pxyz)
	Penu.Mul(&RP, R.T())

	en := symmetrize(Penu.Slice(0, 2, 0, 2))
	var es mat.EigenSym
	if ok := es.Factorize(en, true); !ok {
		return Ellipse{}
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Values are ascending
	return Ellipse{
		SemiMajorAxis:   [2]float64{vecs.At(0, 1), vecs.At(1, 1)},
		SemiMinorAxis:   [2]float64{vecs.At(0, 0), vecs.At(1, 0)},
		SemiMajorLength: math.Max(vals[1], 0),
		SemiMinorLength: math.Max(vals[0], 0),
	}
}

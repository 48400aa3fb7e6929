// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.7
//

package proximum

import (
	"gonum.org/v1/gonum/mat"
)

// NonlinearObservationModel predicts round trip times from a node's filter state
// against the filter states of its counterparts.
type NonlinearObservationModel struct {
	Variance float64 // Time of flight observation variance [s^2]
}

func NewNonlinearObservationModel(variance float64) *NonlinearObservationModel {
	return &NonlinearObservationModel{Variance: variance}
}

// LinearizedObservation is the observation model linearized at one state,
// for a fixed set of counterpart states. All states are in internal units.
type LinearizedObservation struct {
	counterparts []*mat.VecDense
	h            *mat.Dense
	r            *mat.DiagDense
}

// LinearizeAt evaluates the Jacobian of the round trip prediction with respect
// to the internal state at state. The counterpart states are held fixed.
func (om *NonlinearObservationModel) LinearizeAt(state mat.Vector, counterparts []*mat.VecDense) *LinearizedObservation {
	nm := len(counterparts)
	mine := Denormalize(state)
	pm := PosXYZFromVec(mine)
	betaM := mine.AtVec(3)

	H := mat.NewDense(nm, StateDim, nil)
	for i, cp := range counterparts {
		theirs := Denormalize(cp)
		delta := PosXYZFromVec(theirs).Sub(pm)
		d := delta.Norm()
		betaT := theirs.AtVec(3)

		// Position columns carry direction only when the nodes are apart
		if d > MinimumDistance {
			speed := 1/(C*betaM) + 1/(C*betaT)
			H.Set(i, 0, -delta.X/d*speed*STATE_FACTOR[0])
			H.Set(i, 1, -delta.Y/d*speed*STATE_FACTOR[1])
			H.Set(i, 2, -delta.Z/d*speed*STATE_FACTOR[2])
		}
		H.Set(i, 3, -d/(C*betaM*betaM)*STATE_FACTOR[3])
		H.Set(i, 4, STATE_FACTOR[4])
	}

	diag := make([]float64, nm)
	for i := range diag {
		diag[i] = om.Variance
	}
	return &LinearizedObservation{
		counterparts: counterparts,
		h:            H,
		r:            mat.NewDiagDense(nm, diag),
	}
}

// Predict returns the round trip time to every counterpart for state.
func (lo *LinearizedObservation) Predict(state mat.Vector) *mat.VecDense {
	mine := Denormalize(state)
	me := Endpoint{Position: PosXYZFromVec(mine), Beta: mine.AtVec(3), Tau: mine.AtVec(4)}
	y := mat.NewVecDense(len(lo.counterparts), nil)
	for i, cp := range lo.counterparts {
		theirs := Denormalize(cp)
		other := Endpoint{Position: PosXYZFromVec(theirs), Beta: theirs.AtVec(3), Tau: theirs.AtVec(4)}
		y.SetVec(i, modelRoundTrip(me, other))
	}
	return y
}

func (lo *LinearizedObservation) H() mat.Matrix { return lo.h }
func (lo *LinearizedObservation) HT() mat.Matrix { return lo.h.T() }
func (lo *LinearizedObservation) R() mat.Symmetric { return lo.r }
func (lo *LinearizedObservation) Len() int { return len(lo.counterparts) }

// Noise free round trip between two endpoints
func modelRoundTrip(a, b Endpoint) float64 {
	d := EucDist(&a.Position, &b.Position)
	return d/(C*a.Beta) + a.Tau + d/(C*b.Beta) + b.Tau
}

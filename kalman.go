// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.8
//

// Extended Kalman filter over the per-node state [x, y, z, beta, tau].

package proximum

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrCovarianceNotPSD = errors.New("covariance not positive semi-definite")

// Relative tolerance for negative eigenvalues of an updated covariance
const psdTolerance = 1e-9

// StateAndCovariance is a filter estimate in internal units.
type StateAndCovariance struct {
	State      *mat.VecDense
	Covariance *mat.SymDense
}

func NewStateAndCovariance(state *mat.VecDense, covariance *mat.SymDense) *StateAndCovariance {
	return &StateAndCovariance{State: state, Covariance: covariance}
}

// RealState returns the state in real units.
func (sc *StateAndCovariance) RealState() *mat.VecDense {
	return Denormalize(sc.State)
}

func (sc *StateAndCovariance) Clone() *StateAndCovariance {
	x := mat.VecDenseCopyOf(sc.State)
	P := mat.NewSymDense(StateDim, nil)
	P.CopySym(sc.Covariance)
	return &StateAndCovariance{State: x, Covariance: P}
}

// KFStep runs one predict and update of node nodeIndex against the current
// filter states of the nodes in meas.
//
// Parameters:
//   - nodeIndex: index of the node being updated
//   - meas: counterparts and measured round trip times
//   - nodes: all nodes, read only
//   - obs: observation model generator
//   - sm: state transition model
//
// Returns:
//   - StateAndCovariance: posterior estimate in internal units
//   - error: wraps ErrCovarianceNotPSD when the innovation covariance has no Cholesky factor
func KFStep(
	nodeIndex int, // Node to update
	meas *MeasurementSet, // Measurements taken by the node
	nodes []*Node, // All nodes
	obs *NonlinearObservationModel, // Observation model
	sm *StationaryStateModel, // State model
) (*StateAndCovariance, error) {

	prior := nodes[nodeIndex].KF

	// Time update
	x, P := sm.Predict(prior.State, prior.Covariance)

	// Counterpart states are taken as they are at this moment of the epoch
	counterparts := make([]*mat.VecDense, meas.Len())
	for k, idx := range meas.Indices {
		counterparts[k] = nodes[idx].KF.State
	}
	lin := obs.LinearizeAt(x, counterparts)

	post, err := kfUpdate(x, P, meas.Times, lin)
	if err != nil {
		return nil, fmt.Errorf("kfUpdate() failed, node=%d, err= %w", nodeIndex, err)
	}
	return post, nil
}

// Measurement update with the Joseph form covariance
func kfUpdate(x *mat.VecDense, P *mat.SymDense, z mat.Vector, lin *LinearizedObservation) (*StateAndCovariance, error) {

	S := makeS(P, lin.H(), lin.R())
	var chol mat.Cholesky
	if ok := chol.Factorize(S); !ok {
		return nil, fmt.Errorf("makeS() failed, err= %w", ErrCovarianceNotPSD)
	}

	K, err := makeK(P, lin.HT(), &chol)
	if err != nil {
		return nil, fmt.Errorf("makeK() failed, err= %w", err)
	}
	PrintMatD(4, "\tH", lin.H())
	PrintMatD(4, "\tK", K)

	// Innovation
	var dy mat.VecDense
	dy.SubVec(z, lin.Predict(x))
	PrintD(3, "\tinnovation: %v\n", mat.Formatted(dy.T(), mat.Squeeze()))

	x2 := updateX(x, K, &dy)
	P2 := updateP(K, lin.H(), P, lin.R())
	if err := checkPSD(P2); err != nil {
		return nil, fmt.Errorf("updateP() failed, err= %w", err)
	}
	return &StateAndCovariance{State: x2, Covariance: P2}, nil
}

// makeS calculates S = H P H^t + R
func makeS(P mat.Symmetric, H mat.Matrix, R mat.Symmetric) *mat.SymDense {
	var HP, HPHt mat.Dense
	HP.Mul(H, P)
	HPHt.Mul(&HP, H.T())
	HPHt.Add(&HPHt, R)
	return symmetrize(&HPHt)
}

// makeK calculates K = P H^t S^-1 using the Cholesky factor of S
func makeK(P mat.Symmetric, HT mat.Matrix, chol *mat.Cholesky) (*mat.Dense, error) {
	var PHt mat.Dense
	PHt.Mul(P, HT)

	// S X = (P H^t)^t, so K = X^t because S is symmetric
	var X mat.Dense
	if err := chol.SolveTo(&X, PHt.T()); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
		PrintD(2, "\tS is ill-conditioned, cond=%g\n", float64(cond))
	}
	K := mat.DenseCopyOf(X.T())
	return K, nil
}

// updateX calculates x' = x + K dy
func updateX(x *mat.VecDense, K mat.Matrix, dy mat.Vector) *mat.VecDense {
	var dx, x2 mat.VecDense
	dx.MulVec(K, dy)
	x2.AddVec(x, &dx)
	return &x2
}

// updateP calculates P' = (I - K H) P (I - K H)^t + K R K^t
func updateP(K, H mat.Matrix, P mat.Symmetric, R mat.Symmetric) *mat.SymDense {
	var KH, A mat.Dense
	KH.Mul(K, H)
	A.Sub(identity(StateDim), &KH)

	var AP, APAt mat.Dense
	AP.Mul(&A, P)
	APAt.Mul(&AP, A.T())

	var KR, KRKt mat.Dense
	KR.Mul(K, R)
	KRKt.Mul(&KR, K.T())

	APAt.Add(&APAt, &KRKt)
	return symmetrize(&APAt)
}

// checkPSD fails when P has an eigenvalue below -psdTolerance * max|eigenvalue|
func checkPSD(P *mat.SymDense) error {
	var es mat.EigenSym
	if ok := es.Factorize(P, false); !ok {
		return fmt.Errorf("%w: eigen decomposition failed", ErrCovarianceNotPSD)
	}
	vals := es.Values(nil)
	scale := math.Max(math.Abs(vals[0]), math.Abs(vals[len(vals)-1]))
	if vals[0] < -psdTolerance*scale {
		return fmt.Errorf("%w: min eigenvalue %g", ErrCovarianceNotPSD, vals[0])
	}
	return nil
}

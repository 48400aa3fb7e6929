// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.8
//

// Multilateration from round trip times with Levenberg-Marquardt damped Gauss-Newton.

package proximum

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewMeasurements      = errors.New("at least 4 measurements are required for 3D position estimation")
	ErrSingularNormalEquations = errors.New("normal equations are singular")
)

// LSOpt contains the parameters of the least squares solver
type LSOpt struct {
	ModelBeta     float64 // Assumed message speed for every node [fraction of C]
	ModelTau      float64 // Assumed latency for every node [s]
	Tolerance     float64 // Step norm at which iteration stops [earth radii]
	MaxIterations int     // Iteration cap
	InitialLambda float64 // Initial Levenberg-Marquardt damping
}

// Create LSOpt with default values
func NewLSOpt() *LSOpt {
	return &LSOpt{
		ModelBeta:     0.5,
		ModelTau:      0.015,
		Tolerance:     1,
		MaxIterations: 1,
		InitialLambda: 1,
	}
}

func NewLSOptFromConfig(cfg *SimulationConfig) *LSOpt {
	return &LSOpt{
		ModelBeta:     cfg.LSModelBeta,
		ModelTau:      cfg.LSModelTau,
		Tolerance:     cfg.LSTolerance,
		MaxIterations: cfg.LSIterations,
		InitialLambda: cfg.LSInitialLambda,
	}
}

// LSSol is the result of the least squares solver
type LSSol struct {
	Position     PosXYZ  // Estimate after the spring correction [m]
	Iterations   int     // Iterations performed
	Lambda       float64 // Damping after the last iteration
	Converged    bool    // Step norm fell below the tolerance
	StepNorm     float64 // Norm of the last applied step [earth radii]
	ResidualNorm float64 // Norm of the time residuals before the spring correction [s]
}

// LSEstimatePosition refines initial from the round trip times in meas. The counterparts
// are located at their current least squares estimates.
func LSEstimatePosition(initial, asserted PosXYZ, meas *MeasurementSet, nodes []*Node, opt *LSOpt) (*LSSol, error) {
	positions := make([]PosXYZ, meas.Len())
	for k, idx := range meas.Indices {
		positions[k] = nodes[idx].LSEstimatedPosition
	}
	return SolveMultilateration(initial, asserted, meas.Times, positions, opt)
}

// SolveMultilateration runs the damped iteration in earth radius units.
//
// Parameters:
//   - initial: starting estimate [m]
//   - asserted: anchor of the spring correction [m]
//   - times: measured round trip times [s]
//   - counterparts: position of the node at the other end of each time [m]
//   - opt: solver options
func SolveMultilateration(initial, asserted PosXYZ, times mat.Vector, counterparts []PosXYZ, opt *LSOpt) (*LSSol, error) {

	n := len(counterparts)
	if n < 4 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewMeasurements, n)
	}
	if times.Len() != n {
		return nil, fmt.Errorf("invalid measurement size. times(%d), counterparts(%d)", times.Len(), n)
	}

	// Normalized positions
	x := initial.Scale(1 / EarthRadius).Vec()
	scaled := make([]*mat.VecDense, n)
	for i, p := range counterparts {
		scaled[i] = p.Scale(1 / EarthRadius).Vec()
	}

	sol := &LSSol{}
	lambda := opt.InitialLambda
	for it := range opt.MaxIterations {

		H, z := makeLSSystem(x, scaled, times, opt)
		dx, err := solveDamped(H, z, lambda)
		if err != nil {
			return nil, fmt.Errorf("solveDamped() failed, iteration=%d, err= %w", it, err)
		}

		// Keep the candidate within the band around the unit sphere
		var cand mat.VecDense
		cand.AddVec(x, dx)
		norm := mat.Norm(&cand, 2)
		if norm == 0 {
			return nil, fmt.Errorf("%w: step lands on the origin", ErrSingularNormalEquations)
		}
		rescaled := norm > 1+SphereBand || norm < 1-SphereBand
		if rescaled {
			cand.ScaleVec(1/norm, &cand)
		}
		var step mat.VecDense
		step.SubVec(&cand, x)
		constrained := mat.Norm(&step, 2)
		raw := mat.Norm(dx, 2)

		// Half step
		step.ScaleVec(0.5, &step)
		x.AddVec(x, &step)
		sol.Iterations = it + 1
		sol.StepNorm = mat.Norm(&step, 2)

		// Damping grows while the band limits the step
		if rescaled && constrained < raw {
			lambda *= 10
		} else {
			lambda = max(lambda/10, LambdaFloor)
		}
		PrintD(3, "\tls iteration=%d |x|=%.6f |dx|=%.3e |step|=%.3e lambda=%.1e\n", it+1, mat.Norm(x, 2), raw, sol.StepNorm, lambda)

		if sol.StepNorm < opt.Tolerance {
			sol.Converged = true
			break
		}
	}
	sol.Lambda = lambda

	_, z := makeLSSystem(x, scaled, times, opt)
	sol.ResidualNorm = mat.Norm(z, 2)

	estimate := PosXYZFromVec(x).Scale(EarthRadius)
	sol.Position = estimate.SpringToward(asserted)
	return sol, nil
}

// makeLSSystem builds the time-scaled range Jacobian H and the residuals z at x.
// Predicted times use 2 (range / (beta C) + tau) with the model beta and tau.
func makeLSSystem(x *mat.VecDense, counterparts []*mat.VecDense, times mat.Vector, opt *LSOpt) (*mat.Dense, *mat.VecDense) {
	n := len(counterparts)
	H := mat.NewDense(n, 3, nil)
	z := mat.NewVecDense(n, nil)
	timeScale := EarthRadius / (opt.ModelBeta * C)
	for i, cp := range counterparts {
		var d mat.VecDense
		d.SubVec(x, cp)
		r := mat.Norm(&d, 2)
		if r*EarthRadius > MinimumDistance {
			row := []float64{d.AtVec(0), d.AtVec(1), d.AtVec(2)}
			floats.Scale(timeScale/r, row)
			H.SetRow(i, row)
		}
		predicted := 2 * (r*EarthRadius/(opt.ModelBeta*C) + opt.ModelTau)
		z.SetVec(i, times.AtVec(i)-predicted)
	}
	return H, z
}

// solveDamped solves (H^t H + lambda I) dx = H^t z
func solveDamped(H mat.Matrix, z mat.Vector, lambda float64) (*mat.VecDense, error) {
	var A mat.Dense
	A.Mul(H.T(), H)
	for j := range 3 {
		A.Set(j, j, A.At(j, j)+lambda)
	}
	var b mat.VecDense
	b.MulVec(H.T(), z)

	var dx mat.VecDense
	if err := dx.SolveVec(&A, &b); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSingularNormalEquations, err.Error())
	}
	return &dx, nil
}

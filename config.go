// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.6
//

package proximum

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// SimulationConfig holds the run parameters. All values are in SI units:
// meters, seconds, fractions of c, and variances (not standard deviations).
type SimulationConfig struct {
	NNodes        int    `json:"n_nodes" yaml:"n_nodes"`               // Number of nodes
	NEpochs       int    `json:"n_epochs" yaml:"n_epochs"`             // Number of epochs
	NMeasurements int    `json:"n_measurements" yaml:"n_measurements"` // Counterparts sampled per node update
	H3Resolution  int    `json:"h3_resolution" yaml:"h3_resolution"`   // Grid resolution for node placement (0-15)
	Seed          uint64 `json:"seed" yaml:"seed"`                     // Seed of the run-scoped random source

	// Truth model
	AssertedPositionVariance float64 `json:"asserted_position_variance" yaml:"asserted_position_variance"` // [m^2]
	BetaMin                  float64 `json:"beta_min" yaml:"beta_min"`
	BetaMax                  float64 `json:"beta_max" yaml:"beta_max"`
	BetaVariance             float64 `json:"beta_variance" yaml:"beta_variance"`               // Per message
	TauMin                   float64 `json:"tau_min" yaml:"tau_min"`                           // [s]
	TauMax                   float64 `json:"tau_max" yaml:"tau_max"`                           // [s]
	TauVariance              float64 `json:"tau_variance" yaml:"tau_variance"`                 // Per message [s^2]
	MessageDistanceMax       float64 `json:"message_distance_max" yaml:"message_distance_max"` // [m]

	// Least squares
	LSModelBeta     float64 `json:"ls_model_beta" yaml:"ls_model_beta"`
	LSModelTau      float64 `json:"ls_model_tau" yaml:"ls_model_tau"` // [s]
	LSTolerance     float64 `json:"ls_tolerance" yaml:"ls_tolerance"` // Step norm in earth radii
	LSIterations    int     `json:"ls_iterations" yaml:"ls_iterations"`
	LSInitialLambda float64 `json:"ls_initial_lambda" yaml:"ls_initial_lambda"`

	// Kalman filter
	KFModelPositionVariance       float64 `json:"kf_model_position_variance" yaml:"kf_model_position_variance"` // [m^2]
	KFModelBeta                   float64 `json:"kf_model_beta" yaml:"kf_model_beta"`
	KFModelBetaVariance           float64 `json:"kf_model_beta_variance" yaml:"kf_model_beta_variance"`
	KFModelTau                    float64 `json:"kf_model_tau" yaml:"kf_model_tau"`                                           // [s]
	KFModelTauVariance            float64 `json:"kf_model_tau_variance" yaml:"kf_model_tau_variance"`                         // [s^2]
	KFModelTofObservationVariance float64 `json:"kf_model_tof_observation_variance" yaml:"kf_model_tof_observation_variance"` // [s^2]
}

// NewSimulationConfig returns the default run parameters.
func NewSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		NNodes:        100,
		NEpochs:       100,
		NMeasurements: 10,
		H3Resolution:  7,
		Seed:          1,

		AssertedPositionVariance: SQ(1000e3),
		BetaMin:                  0.2,
		BetaMax:                  0.8,
		BetaVariance:             SQ(0.001),
		TauMin:                   0.002,
		TauMax:                   0.030,
		TauVariance:              SQ(0.001),
		MessageDistanceMax:       13_000e3,

		LSModelBeta:     0.5,
		LSModelTau:      0.015,
		LSTolerance:     1,
		LSIterations:    1,
		LSInitialLambda: 1,

		KFModelPositionVariance:       SQ(10e3),
		KFModelBeta:                   0.5,
		KFModelBetaVariance:           SQ(0.001),
		KFModelTau:                    0.015,
		KFModelTauVariance:            SQ(0.01e-3),
		KFModelTofObservationVariance: SQ(1e-3),
	}
}

// Validate reports the first problem that prevents a run from starting.
// The returned error wraps ErrInvalidConfig.
func (cfg *SimulationConfig) Validate() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	return nil
}

func (cfg *SimulationConfig) validate() error {
	switch {
	case cfg.NMeasurements < 1:
		return fmt.Errorf("n_measurements must be at least 1, got %d", cfg.NMeasurements)
	case cfg.NNodes <= cfg.NMeasurements:
		return fmt.Errorf("n_nodes (%d) must exceed n_measurements (%d)", cfg.NNodes, cfg.NMeasurements)
	case cfg.NEpochs < 0:
		return fmt.Errorf("n_epochs must not be negative, got %d", cfg.NEpochs)
	case cfg.H3Resolution < 0 || cfg.H3Resolution > 15:
		return fmt.Errorf("h3_resolution must be within 0..15, got %d", cfg.H3Resolution)
	case cfg.BetaMin > cfg.BetaMax:
		return fmt.Errorf("beta_min (%g) > beta_max (%g)", cfg.BetaMin, cfg.BetaMax)
	case cfg.BetaMin <= 0:
		return fmt.Errorf("beta_min must be positive, got %g", cfg.BetaMin)
	case cfg.TauMin > cfg.TauMax:
		return fmt.Errorf("tau_min (%g) > tau_max (%g)", cfg.TauMin, cfg.TauMax)
	case cfg.TauMin < 0:
		return fmt.Errorf("tau_min must not be negative, got %g", cfg.TauMin)
	case !(cfg.MessageDistanceMax > 0):
		return fmt.Errorf("message_distance_max must be positive, got %g", cfg.MessageDistanceMax)
	case cfg.LSModelBeta <= 0 || cfg.KFModelBeta <= 0:
		return fmt.Errorf("model beta must be positive, got ls=%g kf=%g", cfg.LSModelBeta, cfg.KFModelBeta)
	case cfg.LSIterations < 0:
		return fmt.Errorf("ls_iterations must not be negative, got %d", cfg.LSIterations)
	case cfg.LSInitialLambda <= 0:
		return fmt.Errorf("ls_initial_lambda must be positive, got %g", cfg.LSInitialLambda)
	}
	variances := []struct {
		name string
		v    float64
	}{
		{"asserted_position_variance", cfg.AssertedPositionVariance},
		{"beta_variance", cfg.BetaVariance},
		{"tau_variance", cfg.TauVariance},
		{"kf_model_position_variance", cfg.KFModelPositionVariance},
		{"kf_model_beta_variance", cfg.KFModelBetaVariance},
		{"kf_model_tau_variance", cfg.KFModelTauVariance},
		{"kf_model_tof_observation_variance", cfg.KFModelTofObservationVariance},
	}
	for _, p := range variances {
		if p.v < 0 || math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%s must be a finite non-negative variance, got %g", p.name, p.v)
		}
	}
	return nil
}

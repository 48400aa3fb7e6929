// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package proximum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, NewSimulationConfig().Validate())
	assert.NoError(t, zeroNoiseConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SimulationConfig)
		message string
	}{
		{"no measurements", func(c *SimulationConfig) { c.NMeasurements = 0 }, "n_measurements"},
		{"nodes", func(c *SimulationConfig) { c.NNodes = 10 }, "n_nodes"},
		{"epochs", func(c *SimulationConfig) { c.NEpochs = -1 }, "n_epochs"},
		{"resolution", func(c *SimulationConfig) { c.H3Resolution = -1 }, "h3_resolution"},
		{"beta order", func(c *SimulationConfig) { c.BetaMin = 0.9 }, "beta_min"},
		{"beta zero", func(c *SimulationConfig) { c.BetaMin = 0 }, "beta_min"},
		{"tau order", func(c *SimulationConfig) { c.TauMax = 0.001 }, "tau_min"},
		{"tau negative", func(c *SimulationConfig) { c.TauMin = -0.001 }, "tau_min"},
		{"range", func(c *SimulationConfig) { c.MessageDistanceMax = 0 }, "message_distance_max"},
		{"model beta", func(c *SimulationConfig) { c.KFModelBeta = 0 }, "model beta"},
		{"iterations", func(c *SimulationConfig) { c.LSIterations = -1 }, "ls_iterations"},
		{"lambda", func(c *SimulationConfig) { c.LSInitialLambda = 0 }, "ls_initial_lambda"},
		{"variance", func(c *SimulationConfig) { c.BetaVariance = -1 }, "beta_variance"},
		{"nan variance", func(c *SimulationConfig) { c.KFModelTofObservationVariance = math.NaN() }, "kf_model_tof_observation_variance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewSimulationConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.11
//

package proximum

// NodeSnapshot is an immutable copy of one node's truth and estimates.
type NodeSnapshot struct {
	ID int `json:"id"`

	TrueCell     Cell    `json:"true_index"`
	TruePosition PosXYZ  `json:"true_position"`
	TrueLLH      PosLLH  `json:"true_position_llh"`
	TrueBeta     float64 `json:"true_beta"`
	TrueTau      float64 `json:"true_tau"`

	AssertedCell     Cell   `json:"asserted_index"`
	AssertedPosition PosXYZ `json:"asserted_position"`
	AssertedLLH      PosLLH `json:"asserted_position_llh"`

	LSEstimatedCell     Cell   `json:"ls_estimated_index"`
	LSEstimatedPosition PosXYZ `json:"ls_estimated_position"`
	LSEstimatedLLH      PosLLH `json:"ls_estimated_position_llh"`

	KFEstimatedCell     Cell       `json:"kf_estimated_index"`
	KFEstimatedPosition PosXYZ     `json:"kf_estimated_position"`
	KFEstimatedLLH      PosLLH     `json:"kf_estimated_position_llh"`
	KFEstimatedBeta     float64    `json:"kf_estimated_beta"`
	KFEstimatedTau      float64    `json:"kf_estimated_tau"`
	KFPositionVariance  [3]float64 `json:"kf_estimation_variance"`
	KFEllipse           Ellipse    `json:"kf_en_variance"`
}

// ChunkResult is the state reached after a batch of epochs.
type ChunkResult struct {
	Nodes []NodeSnapshot `json:"nodes"`
	Stats Stats          `json:"stats"`
}

// Snapshot is a ChunkResult labeled with its run and progress.
type Snapshot struct {
	RunID   string `json:"run_id"`
	Epoch   int    `json:"epoch"`
	NEpochs int    `json:"n_epochs"`
	State   string `json:"state"`
	ChunkResult
}

func (n *Node) Snapshot() NodeSnapshot {
	return NodeSnapshot{
		ID:                  n.ID,
		TrueCell:            n.TrueCell,
		TruePosition:        n.TruePosition,
		TrueLLH:             n.TruePosition.ToLLH(),
		TrueBeta:            n.TrueBeta,
		TrueTau:             n.TrueTau,
		AssertedCell:        n.AssertedCell,
		AssertedPosition:    n.AssertedPosition,
		AssertedLLH:         n.AssertedPosition.ToLLH(),
		LSEstimatedCell:     n.LSEstimatedCell,
		LSEstimatedPosition: n.LSEstimatedPosition,
		LSEstimatedLLH:      n.LSEstimatedLLH,
		KFEstimatedCell:     n.KFEstimatedCell,
		KFEstimatedPosition: n.KFEstimatedPosition,
		KFEstimatedLLH:      n.KFEstimatedLLH,
		KFEstimatedBeta:     n.KFEstimatedBeta,
		KFEstimatedTau:      n.KFEstimatedTau,
		KFPositionVariance:  n.KFPositionVariance,
		KFEllipse:           n.KFEllipse,
	}
}

func (s *Simulation) chunk() *ChunkResult {
	nodes := make([]NodeSnapshot, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = n.Snapshot()
	}
	return &ChunkResult{Nodes: nodes, Stats: s.stats.Clone()}
}

// Snapshot copies the current state of every node and the stats.
func (s *Simulation) Snapshot() *Snapshot {
	return &Snapshot{
		RunID:       s.ID.String(),
		Epoch:       s.epoch,
		NEpochs:     s.cfg.NEpochs,
		State:       s.state.String(),
		ChunkResult: *s.chunk(),
	}
}

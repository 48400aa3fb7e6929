// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.9
//

package proximum

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
)

// Stats holds one RMS position error [m] per recorded epoch for each estimate.
// Entry 0 is recorded before the first epoch.
type Stats struct {
	KFRMSError       []float64 `json:"kf_rms_error"`
	LSRMSError       []float64 `json:"ls_rms_error"`
	AssertedRMSError []float64 `json:"asserted_rms_error"`
}

func (s Stats) Len() int {
	return len(s.KFRMSError)
}

func (s Stats) Clone() Stats {
	return Stats{
		KFRMSError:       slices.Clone(s.KFRMSError),
		LSRMSError:       slices.Clone(s.LSRMSError),
		AssertedRMSError: slices.Clone(s.AssertedRMSError),
	}
}

// Last returns the most recent entry of each sequence.
func (s Stats) Last() (kf, ls, asserted float64) {
	i := s.Len() - 1
	if i < 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return s.KFRMSError[i], s.LSRMSError[i], s.AssertedRMSError[i]
}

func (s *Stats) record(nodes []*Node) {
	s.KFRMSError = append(s.KFRMSError, rmsError(nodes, func(n *Node) PosXYZ { return n.KFEstimatedPosition }))
	s.LSRMSError = append(s.LSRMSError, rmsError(nodes, func(n *Node) PosXYZ { return n.LSEstimatedPosition }))
	s.AssertedRMSError = append(s.AssertedRMSError, rmsError(nodes, func(n *Node) PosXYZ { return n.AssertedPosition }))
}

// rmsError is sqrt(sum |true - estimate|^2 / n)
func rmsError(nodes []*Node, estimate func(*Node) PosXYZ) float64 {
	if len(nodes) == 0 {
		return 0
	}
	sq := make([]float64, len(nodes))
	for i, n := range nodes {
		e := estimate(n)
		sq[i] = SQ(EucDist(&n.TruePosition, &e))
	}
	return math.Sqrt(floats.Sum(sq) / float64(len(nodes)))
}

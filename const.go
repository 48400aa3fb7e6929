// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package proximum

const (
	PI          = 3.1415926535897932  // Pi
	C           = 299_792_458.0       // Speed of light [m/s]
	Re          = 6378137.0           // WGS84 semi-major axis [m]
	Fe          = 1.0 / 298.257223563 // WGS84 flattening
	EarthRadius = 6_371_000.0         // Mean earth radius, used for normalization [m]

	MinimumDistance = 100.0 // Jacobian rows below this distance carry no direction [m]
	SpringFactor    = 500.0 // Estimates move 1/SpringFactor of the way toward the asserted position
	LambdaFloor     = 1e-7  // Lower bound of the Levenberg-Marquardt damping
	SphereBand      = 0.01  // Allowed relative deviation from the unit sphere in the LS solver

	StateDim      = 5  // [x, y, z, beta, tau]
	EstimateH3Res = 10 // Grid resolution used to display estimates
)

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package proximum

import (
	"fmt"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func EucDist(a, b *PosXYZ) float64 {
	return math.Sqrt(SQ(a.X-b.X) + SQ(a.Y-b.Y) + SQ(a.Z-b.Z))
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func ToRad(deg float64) float64 {
	return deg / 180.0 * PI
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func identity(n int) *mat.Dense {
	I := mat.NewDense(n, n, nil)
	for j := range n {
		I.Set(j, j, 1)
	}
	return I
}

// ------------------------------------
// Log output
// ------------------------------------

var (
	logMu sync.Mutex
	logf  = func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, format, a...)
	}
)

// SetLogger replaces the sink used by every Print function.
// Passing nil restores the stderr sink.
func SetLogger(f func(format string, a ...any)) {
	logMu.Lock()
	defer logMu.Unlock()
	if f == nil {
		f = func(format string, a ...any) {
			fmt.Fprintf(os.Stderr, format, a...)
		}
	}
	logf = f
}

// Logf formats according to a format specifier and writes to the current sink.
func Logf(format string, a ...any) {
	logMu.Lock()
	f := logf
	logMu.Unlock()
	f(format, a...)
}

// ------------------------------------
// Debug print function
// ------------------------------------

func PrintMat(X mat.Matrix) {
	r, c := X.Dims()
	Logf("(%d x %d)\n", r, c)
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	Logf("%v\n", fa)
}

func PrintA(format string, a ...any) {
	Logf(format, a...)
}

func PrintAIf(cond bool, format string, a ...any) {
	if cond {
		PrintA(format, a...)
	}
}

// Debug display level
var DBG_ int

// Debug display
func PrintD(v int, format string, a ...any) {
	PrintAIf(DBG_ >= v, format, a...)
}

// Debug display of a matrix
func PrintMatD(v int, name string, X mat.Matrix) {
	if DBG_ >= v {
		PrintA("%s ", name)
		PrintMat(X)
	}
}

func PrintE(err error) {
	Logf("err=%s\n", err.Error())
}

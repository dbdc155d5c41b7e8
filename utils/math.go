// Package utils contains math helpers shared by the shape detection
// pipeline.
package utils

import (
	"math"
	"math/rand"
)

func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// QuickSelect returns the k-th smallest value of a (zero indexed), partially
// reordering a in place. It panics if k is out of range.
func QuickSelect(a []float64, k int) float64 {
	left, right := 0, len(a)-1
	for left < right {
		pivot := a[k]
		i, j := left, right
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		if j < k {
			left = i
		}
		if k < i {
			right = j
		}
	}
	return a[k]
}

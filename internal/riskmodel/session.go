package riskmodel

import (
	"context"
	"fmt"
	"math"
)

// Output is what a classifier returns for a single input row.
type Output struct {
	Probabilities []float32
	Label         int64
}

// PositiveProbability returns the probability of class 1.
// Classifiers export a [1, 2] probability tensor; a single value is taken as-is.
func (o Output) PositiveProbability() (float64, error) {
	var p float64
	switch {
	case len(o.Probabilities) >= 2:
		p = float64(o.Probabilities[1])
	case len(o.Probabilities) == 1:
		p = float64(o.Probabilities[0])
	default:
		return 0, fmt.Errorf("classifier returned no probabilities")
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("classifier probability %v outside [0, 1]", p)
	}
	return p, nil
}

// Session is a loaded classifier that scores one row at a time.
type Session interface {
	// Run scores a single row of features.
	Run(input []float32) (Output, error)

	// InputWidth returns the number of features the model expects, or 0 if unknown.
	InputWidth() int

	// Close releases the session.
	Close() error
}

// Loader opens a Session from a model artifact.
type Loader interface {
	Load(ctx context.Context, path string) (Session, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) (Session, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) (Session, error) {
	return f(ctx, path)
}

// Package fitter implements the califo peak-fitter control loop of
// spec §4.10: an accumulation phase that only republishes
// scale-corrected events, and a normal phase that periodically sums
// recent histogram snapshots, optionally background-subtracts via
// SNIP, and fits a Gaussian-plus-exponential model with a
// Levenberg-Marquardt solver using geodesic acceleration.
package fitter

import "math"

// Params is the five free parameters of the peak model
// A·exp(-½((t-μ)/σ)²) + B·exp(-α·t), spec §4.10.
type Params struct {
	A, Mu, Sigma, B, Alpha float64
}

// vector returns p as a 5-element slice in a fixed order, the layout
// lm.go's Jacobian/parameter vectors use throughout.
func (p Params) vector() [5]float64 {
	return [5]float64{p.A, p.Mu, p.Sigma, p.B, p.Alpha}
}

func paramsFromVector(v [5]float64) Params {
	return Params{A: v[0], Mu: v[1], Sigma: v[2], B: v[3], Alpha: v[4]}
}

// evalModel evaluates the model at t for parameter vector v.
func evalModel(t float64, v [5]float64) float64 {
	a, mu, sigma, b, alpha := v[0], v[1], v[2], v[3], v[4]
	if sigma == 0 {
		sigma = 1e-9
	}
	z := (t - mu) / sigma
	return a*math.Exp(-0.5*z*z) + b*math.Exp(-alpha*t)
}

// modelJacobianRow computes ∂f/∂(A,Mu,Sigma,B,Alpha) at t, the
// analytic gradient of evalModel.
func modelJacobianRow(t float64, v [5]float64) [5]float64 {
	a, mu, sigma, _, alpha := v[0], v[1], v[2], v[3], v[4]
	if sigma == 0 {
		sigma = 1e-9
	}
	z := (t - mu) / sigma
	gauss := math.Exp(-0.5 * z * z)
	expTerm := math.Exp(-alpha * t)

	return [5]float64{
		gauss,                     // dA
		a * gauss * z / sigma,     // dMu
		a * gauss * z * z / sigma, // dSigma
		expTerm,                   // dB
		-v[3] * t * expTerm,       // dAlpha
	}
}

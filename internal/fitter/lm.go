package fitter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample is one (t, y) pair the solver fits against — a histogram bin
// center and its (possibly background-subtracted) count.
type Sample struct {
	T, Y float64
}

// FitResult is the outcome of one Fit call.
type FitResult struct {
	Params     Params
	Converged  bool
	Iterations int
}

const (
	nParams           = 5
	geodesicStepScale = 0.1  // h in the finite-difference second directional derivative
	accelRatioLimit   = 0.75 // spec §4.10's Transtrum-Sethna acceptance ratio for geodesic acceleration
	convergenceTol    = 1e-9
)

// Fit runs Levenberg-Marquardt with geodesic acceleration (spec
// §4.10) on samples, starting from initial (normally the last accepted
// fit). The damped normal equations at each iteration are solved via
// gonum's Cholesky factorization of J^T J, the linear-algebra
// workhorse spec expansion §4.10 grounds on gonum/mat.
func Fit(samples []Sample, initial Params, maxIterations int) FitResult {
	v := initial.vector()
	lambda := 1e-3

	r := residual(samples, v)
	c := cost(r)

	result := FitResult{Params: initial}
	for iter := 0; iter < maxIterations; iter++ {
		result.Iterations = iter + 1

		J := jacobian(samples, v)
		jtj := gramian(J)
		jtr := matTVec(J, r)

		damped := dampedCopy(jtj, lambda)
		step, ok := solveNormalEquations(damped, negate(jtr))
		if !ok {
			lambda *= 10
			continue
		}
		step = applyGeodesicCorrection(samples, J, jtj, v, step, lambda)

		candidate := addVec(v, step)
		rCand := residual(samples, candidate)
		cCand := cost(rCand)

		if cCand < c {
			if relativeStepSize(step, v) < convergenceTol {
				v = candidate
				result.Converged = true
				result.Params = paramsFromVector(v)
				return result
			}
			v, r, c = candidate, rCand, cCand
			lambda = math.Max(lambda/10, 1e-12)
		} else {
			lambda *= 10
		}
	}

	result.Params = paramsFromVector(v)
	return result
}

func residual(samples []Sample, v [nParams]float64) []float64 {
	r := make([]float64, len(samples))
	for i, s := range samples {
		r[i] = evalModel(s.T, v) - s.Y
	}
	return r
}

func cost(r []float64) float64 {
	var sum float64
	for _, e := range r {
		sum += e * e
	}
	return 0.5 * sum
}

func jacobian(samples []Sample, v [nParams]float64) *mat.Dense {
	J := mat.NewDense(len(samples), nParams, nil)
	for i, s := range samples {
		row := modelJacobianRow(s.T, v)
		for k := 0; k < nParams; k++ {
			J.Set(i, k, row[k])
		}
	}
	return J
}

// gramian returns J^T J as a dense matrix.
func gramian(J *mat.Dense) *mat.Dense {
	var jtj mat.Dense
	jtj.Mul(J.T(), J)
	return &jtj
}

func matTVec(J *mat.Dense, r []float64) []float64 {
	rv := mat.NewVecDense(len(r), r)
	var out mat.VecDense
	out.MulVec(J.T(), rv)
	result := make([]float64, nParams)
	for i := 0; i < nParams; i++ {
		result[i] = out.AtVec(i)
	}
	return result
}

func dampedCopy(jtj *mat.Dense, lambda float64) *mat.Dense {
	var damped mat.Dense
	damped.CloneFrom(jtj)
	for k := 0; k < nParams; k++ {
		damped.Set(k, k, damped.At(k, k)*(1+lambda))
	}
	return &damped
}

// solveNormalEquations solves damped·x = b via a Cholesky
// factorization of the symmetrized damped matrix, reporting ok=false
// if damped is not positive definite (the caller backs off by raising
// lambda, the standard LM damping-increase response).
func solveNormalEquations(damped *mat.Dense, b []float64) ([nParams]float64, bool) {
	sym := mat.NewSymDense(nParams, nil)
	for i := 0; i < nParams; i++ {
		for j := i; j < nParams; j++ {
			sym.SetSym(i, j, damped.At(i, j))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return [nParams]float64{}, false
	}
	bv := mat.NewVecDense(nParams, b)
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, bv); err != nil {
		return [nParams]float64{}, false
	}
	var out [nParams]float64
	for i := 0; i < nParams; i++ {
		out[i] = x.AtVec(i)
	}
	return out, true
}

// applyGeodesicCorrection adds the geodesic acceleration term to step,
// per spec §4.10, using the finite-difference second directional
// derivative of the residual along step. The correction is dropped
// when its norm relative to step exceeds accelRatioLimit (Transtrum &
// Sethna's acceptance criterion), since a large correction signals the
// local quadratic approximation has broken down.
func applyGeodesicCorrection(samples []Sample, J *mat.Dense, jtj *mat.Dense, v, step [nParams]float64, lambda float64) [nParams]float64 {
	h := geodesicStepScale
	vStep := addVec(v, scaleVec(step, h))
	r0 := residual(samples, v)
	rStep := residual(samples, vStep)

	jStep := make([]float64, len(samples))
	jv := mat.NewVecDense(nParams, step[:])
	var jvOut mat.VecDense
	jvOut.MulVec(J, jv)
	for i := range jStep {
		jStep[i] = jvOut.AtVec(i)
	}

	rvv := make([]float64, len(samples))
	for i := range rvv {
		rvv[i] = 2.0 / (h * h) * (rStep[i] - r0[i] - h*jStep[i])
	}

	jtRvv := matTVec(J, rvv)
	damped := dampedCopy(jtj, lambda)
	accel, ok := solveNormalEquations(damped, negate(jtRvv))
	if !ok {
		return step
	}

	if norm(step) == 0 || norm(accel)/norm(step) >= accelRatioLimit {
		return step
	}
	return addVec(step, scaleVec(accel, 0.5))
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

func addVec(a [nParams]float64, b [nParams]float64) [nParams]float64 {
	var out [nParams]float64
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}

func scaleVec(a [nParams]float64, k float64) [nParams]float64 {
	var out [nParams]float64
	for i := range out {
		out[i] = a[i] * k
	}
	return out
}

func norm(a [nParams]float64) float64 {
	var sum float64
	for _, x := range a {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func relativeStepSize(step, v [nParams]float64) float64 {
	vn := norm(v)
	if vn == 0 {
		return norm(step)
	}
	return norm(step) / vn
}

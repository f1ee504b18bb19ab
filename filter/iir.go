package filter

import (
	"fmt"
	"math"
	"math/cmplx"
)

// biquad is one second-order IIR section in direct form II transposed.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	s1, s2 float64
}

func (q *biquad) step(x float64) float64 {
	y := q.b0*x + q.s1
	q.s1 = q.b1*x - q.a1*y + q.s2
	q.s2 = q.b2*x - q.a2*y
	return y
}

func (q *biquad) reset() {
	q.s1, q.s2 = 0, 0
}

// lowPass is a streaming low-pass filter realized as a cascade of biquad
// sections.
type lowPass struct {
	sections []biquad
}

// newLowPass designs a Chebyshev type II low-pass filter with the given
// order, cutoff frequency and stop-band attenuation (dB) for a stream
// sampled at sampleHz, discretized with the bilinear transform.
func newLowPass(order int, cutoffHz, attenuationDB, sampleHz float64) (*lowPass, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order %d must be at least 1", order)
	}
	if cutoffHz <= 0 || cutoffHz >= sampleHz/2 {
		return nil, fmt.Errorf("cutoff %.3fHz outside (0, %.3fHz)", cutoffHz, sampleHz/2)
	}
	if attenuationDB <= 0 {
		return nil, fmt.Errorf("attenuation %.1fdB must be positive", attenuationDB)
	}

	zeros, poles, gain := chebyshev2Prototype(order, attenuationDB)

	// Pre-warp the cutoff so the digital response hits it exactly, then
	// scale the normalized prototype to that corner frequency.
	warped := 2 * sampleHz * math.Tan(math.Pi*cutoffHz/sampleHz)
	for i := range zeros {
		zeros[i] *= complex(warped, 0)
	}
	for i := range poles {
		poles[i] *= complex(warped, 0)
	}
	gain *= math.Pow(warped, float64(len(poles)-len(zeros)))

	zd, pd, kd := bilinear(zeros, poles, gain, sampleHz)
	return &lowPass{sections: toSections(zd, pd, kd)}, nil
}

func (f *lowPass) Filter(x float64) float64 {
	for i := range f.sections {
		x = f.sections[i].step(x)
	}
	return x
}

func (f *lowPass) Reset() {
	for i := range f.sections {
		f.sections[i].reset()
	}
}

// chebyshev2Prototype returns the zeros, poles and gain of an analog
// Chebyshev type II low-pass prototype with its stop-band edge at 1 rad/s.
func chebyshev2Prototype(order int, attenuationDB float64) (zeros, poles []complex128, gain float64) {
	n := float64(order)
	eps := 1.0 / math.Sqrt(math.Pow(10, attenuationDB/10)-1)
	mu := math.Asinh(1.0/eps) / n

	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+1) / (2 * n)

		// Zeros sit on the imaginary axis; the middle angle of an odd
		// order filter has no finite zero.
		if c := math.Cos(theta); math.Abs(c) > 1e-12 {
			zeros = append(zeros, complex(0, 1/c))
		}

		// Type II poles are the reciprocals of the type I pole locations.
		p := complex(-math.Sinh(mu)*math.Sin(theta), math.Cosh(mu)*math.Cos(theta))
		poles = append(poles, 1/p)
	}

	num := complex(1, 0)
	for _, p := range poles {
		num *= -p
	}
	den := complex(1, 0)
	for _, z := range zeros {
		den *= -z
	}
	gain = real(num) / real(den)
	return zeros, poles, gain
}

// bilinear maps analog zeros, poles and gain into the z domain, padding the
// zero deficit at z = -1.
func bilinear(zeros, poles []complex128, gain, sampleHz float64) ([]complex128, []complex128, float64) {
	fs2 := complex(2*sampleHz, 0)

	zd := make([]complex128, 0, len(poles))
	pd := make([]complex128, 0, len(poles))
	num := complex(1, 0)
	den := complex(1, 0)

	for _, z := range zeros {
		zd = append(zd, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	for _, p := range poles {
		pd = append(pd, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}
	for len(zd) < len(pd) {
		zd = append(zd, complex(-1, 0))
	}
	return zd, pd, gain * real(num/den)
}

// toSections pairs conjugate roots into biquad sections. The prototype
// produces floor(order/2) conjugate pairs plus, for odd orders, one real
// pole matched with one real zero. The overall gain is folded into the
// first section.
func toSections(zeros, poles []complex128, gain float64) []biquad {
	zPairs, zReals := splitConjugates(zeros)
	pPairs, pReals := splitConjugates(poles)

	var sections []biquad
	for i, p := range pPairs {
		q := biquad{a1: -2 * real(p), a2: real(p * cmplx.Conj(p))}
		if i < len(zPairs) {
			z := zPairs[i]
			q.b0, q.b1, q.b2 = 1, -2*real(z), real(z*cmplx.Conj(z))
		} else {
			q.b0 = 1
		}
		sections = append(sections, q)
	}
	for i, p := range pReals {
		q := biquad{a1: -p}
		if i < len(zReals) {
			q.b0, q.b1 = 1, -zReals[i]
		} else {
			q.b0 = 1
		}
		sections = append(sections, q)
	}

	if len(sections) > 0 {
		sections[0].b0 *= gain
		sections[0].b1 *= gain
		sections[0].b2 *= gain
	}
	return sections
}

func splitConjugates(roots []complex128) (pairs []complex128, reals []float64) {
	for _, r := range roots {
		switch {
		case imag(r) > 1e-12:
			pairs = append(pairs, r)
		case imag(r) < -1e-12:
			// Counterpart of a pair already collected.
		default:
			reals = append(reals, real(r))
		}
	}
	return pairs, reals
}

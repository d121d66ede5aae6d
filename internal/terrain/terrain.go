// Package terrain provides the height-field samplers used to validate
// placement positions. Samplers are pure: equal inputs yield equal
// outputs, so placement decisions derived from them stay deterministic
// across peers that share the same terrain parameters.
package terrain

import (
	"math"

	"github.com/aquilax/go-perlin"
)

type Config struct {
	Seed      int64
	Amplitude float64
	Frequency float64
	Octaves   int
}

// Perlin is a fractal perlin height field.
type Perlin struct {
	noise     *perlin.Perlin
	amplitude float64
	frequency float64
}

func NewPerlin(cfg Config) *Perlin {
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 24
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 0.004
	}
	oct := cfg.Octaves
	if oct <= 0 {
		oct = 4
	}
	return &Perlin{
		noise:     perlin.NewPerlin(2, 2, int32(oct), cfg.Seed),
		amplitude: cfg.Amplitude,
		frequency: cfg.Frequency,
	}
}

func (p *Perlin) HeightAt(x, z float64) float64 {
	return p.noise.Noise2D(x*p.frequency, z*p.frequency) * p.amplitude
}

// NormalAt estimates the unit surface normal by central differences.
func (p *Perlin) NormalAt(x, z float64) (float64, float64, float64) {
	const eps = 0.5
	dhx := (p.HeightAt(x+eps, z) - p.HeightAt(x-eps, z)) / (2 * eps)
	dhz := (p.HeightAt(x, z+eps) - p.HeightAt(x, z-eps)) / (2 * eps)
	nx, ny, nz := -dhx, 1.0, -dhz
	inv := 1 / math.Sqrt(nx*nx+ny*ny+nz*nz)
	return nx * inv, ny * inv, nz * inv
}

// Flat is the constant-height sampler used in tests and benchmarks.
type Flat struct {
	Height float64
}

func (f Flat) HeightAt(x, z float64) float64 { return f.Height }

func (f Flat) NormalAt(x, z float64) (float64, float64, float64) { return 0, 1, 0 }

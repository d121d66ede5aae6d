package terrain

import (
	"math"
	"testing"
)

func TestPerlin_Pure(t *testing.T) {
	p := NewPerlin(Config{Seed: 42})
	for i := 0; i < 10; i++ {
		x, z := float64(i)*13.7, float64(i)*-7.3
		if p.HeightAt(x, z) != p.HeightAt(x, z) {
			t.Fatalf("height not stable at (%v,%v)", x, z)
		}
	}
	q := NewPerlin(Config{Seed: 42})
	if p.HeightAt(100, 200) != q.HeightAt(100, 200) {
		t.Fatalf("independent samplers with equal seed disagree")
	}
}

func TestPerlin_SeedChangesField(t *testing.T) {
	a := NewPerlin(Config{Seed: 1})
	b := NewPerlin(Config{Seed: 2})
	same := true
	for i := 0; i < 20 && same; i++ {
		x := float64(i) * 31.7
		if a.HeightAt(x, x) != b.HeightAt(x, x) {
			same = false
		}
	}
	if same {
		t.Fatalf("seed had no effect on 20 samples")
	}
}

func TestPerlin_HeightsVary(t *testing.T) {
	p := NewPerlin(Config{Seed: 7, Amplitude: 24})
	first := p.HeightAt(0, 0)
	varied := false
	for i := 1; i < 50; i++ {
		if p.HeightAt(float64(i)*40, float64(i)*25) != first {
			varied = true
			break
		}
	}
	if !varied {
		t.Fatalf("height field constant")
	}
}

func TestPerlin_NormalUnitLength(t *testing.T) {
	p := NewPerlin(Config{Seed: 7})
	nx, ny, nz := p.NormalAt(123, -456)
	l := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if math.Abs(l-1) > 1e-9 {
		t.Fatalf("normal length %v", l)
	}
	if ny <= 0 {
		t.Fatalf("normal points down: ny=%v", ny)
	}
}

func TestFlat(t *testing.T) {
	f := Flat{Height: 3}
	if f.HeightAt(99, -99) != 3 {
		t.Fatalf("flat height wrong")
	}
	nx, ny, nz := f.NormalAt(0, 0)
	if nx != 0 || ny != 1 || nz != 0 {
		t.Fatalf("flat normal (%v,%v,%v)", nx, ny, nz)
	}
}

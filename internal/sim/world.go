// Package sim is the in-process physics collaborator: a small rigid-body
// and particle sandbox good enough to exercise the orchestration loop.
// It is deterministic given the same command sequence.
package sim

import (
	"fmt"
	"math"
	"sync"
)

const (
	gravityY = -9.81
	fixedDt  = 1.0 / 60.0

	boxHalfExtent  = 0.5
	sphereRadius   = 0.5
	particleRadius = 0.1

	boxRestitution    = 0.7
	liquidRestitution = 0.05

	clothSpacing    = 0.25
	springStiffness = 220.0
	springDamping   = 1.5

	liquidBlobSize = 4 // particles per spawn_liquid, 2x2 jittered grid
)

type Vec3 struct {
	X, Y, Z float64
}

type BodyKind string

const (
	KindBox      BodyKind = "box"
	KindSphere   BodyKind = "sphere"
	KindParticle BodyKind = "particle"
)

// Body is one simulated point mass. Cloth and liquid spawns expand into
// several particle bodies; boxes and spheres are single bodies.
type Body struct {
	Kind        BodyKind
	Pos         Vec3
	Vel         Vec3
	HalfHeight  float64
	Restitution float64
	Pinned      bool
}

// Spring couples two bodies at a rest length (cloth structure).
type Spring struct {
	A, B int
	Rest float64
}

// World owns all simulation state. Methods are safe for concurrent use;
// in practice each transport drives the world from a single goroutine.
type World struct {
	mu       sync.Mutex
	bodies   []*Body
	springs  []Spring
	hasFloor bool
	steps    uint64
}

func NewWorld() *World {
	return &World{}
}

func validCoord(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate %v", v)
		}
	}
	return nil
}

func (w *World) SpawnBox(x, y, z float64) error {
	if err := validCoord(x, y, z); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bodies = append(w.bodies, &Body{
		Kind:        KindBox,
		Pos:         Vec3{x, y, z},
		HalfHeight:  boxHalfExtent,
		Restitution: boxRestitution,
	})
	return nil
}

func (w *World) SpawnSphere(x, y, z float64) error {
	if err := validCoord(x, y, z); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bodies = append(w.bodies, &Body{
		Kind:        KindSphere,
		Pos:         Vec3{x, y, z},
		HalfHeight:  sphereRadius,
		Restitution: boxRestitution,
	})
	return nil
}

// SpawnLiquid drops a small blob of loose particles around the given
// point. The jitter is index-derived, not random, so runs replay exactly.
func (w *World) SpawnLiquid(x, y, z float64) error {
	if err := validCoord(x, y, z); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < liquidBlobSize; i++ {
		dx := float64(i%2)*particleRadius*2 - particleRadius
		dz := float64(i/2)*particleRadius*2 - particleRadius
		w.bodies = append(w.bodies, &Body{
			Kind:        KindParticle,
			Pos:         Vec3{x + dx, y, z + dz},
			HalfHeight:  particleRadius,
			Restitution: liquidRestitution,
		})
	}
	return nil
}

// SpawnCloth builds a width x height particle grid hanging from its two
// top corners, with structural springs along both axes.
func (w *World) SpawnCloth(x, y, z float64, width, height int) error {
	if err := validCoord(x, y, z); err != nil {
		return err
	}
	if width < 2 || height < 2 {
		return fmt.Errorf("cloth grid must be at least 2x2, got %dx%d", width, height)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	base := len(w.bodies)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			b := &Body{
				Kind:        KindParticle,
				Pos:         Vec3{x + float64(c)*clothSpacing, y, z + float64(r)*clothSpacing},
				HalfHeight:  particleRadius,
				Restitution: 0,
			}
			if r == 0 && (c == 0 || c == width-1) {
				b.Pinned = true
			}
			w.bodies = append(w.bodies, b)
		}
	}
	idx := func(r, c int) int { return base + r*width + c }
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			if c+1 < width {
				w.springs = append(w.springs, Spring{A: idx(r, c), B: idx(r, c+1), Rest: clothSpacing})
			}
			if r+1 < height {
				w.springs = append(w.springs, Spring{A: idx(r, c), B: idx(r+1, c), Rest: clothSpacing})
			}
		}
	}
	return nil
}

func (w *World) SpawnFloor() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hasFloor = true
	return nil
}

// Step advances the world by one fixed timestep: spring forces, gravity,
// Euler integration, then floor contact.
func (w *World) Step() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	forces := make([]Vec3, len(w.bodies))
	for _, s := range w.springs {
		a, b := w.bodies[s.A], w.bodies[s.B]
		dx := b.Pos.X - a.Pos.X
		dy := b.Pos.Y - a.Pos.Y
		dz := b.Pos.Z - a.Pos.Z
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist == 0 {
			continue
		}
		mag := springStiffness * (dist - s.Rest)
		relVX := b.Vel.X - a.Vel.X
		relVY := b.Vel.Y - a.Vel.Y
		relVZ := b.Vel.Z - a.Vel.Z
		mag += springDamping * (relVX*dx + relVY*dy + relVZ*dz) / dist
		fx, fy, fz := mag*dx/dist, mag*dy/dist, mag*dz/dist
		forces[s.A].X += fx
		forces[s.A].Y += fy
		forces[s.A].Z += fz
		forces[s.B].X -= fx
		forces[s.B].Y -= fy
		forces[s.B].Z -= fz
	}

	for i, b := range w.bodies {
		if b.Pinned {
			b.Vel = Vec3{}
			continue
		}
		b.Vel.X += forces[i].X * fixedDt
		b.Vel.Y += (forces[i].Y + gravityY) * fixedDt
		b.Vel.Z += forces[i].Z * fixedDt
		b.Pos.X += b.Vel.X * fixedDt
		b.Pos.Y += b.Vel.Y * fixedDt
		b.Pos.Z += b.Vel.Z * fixedDt

		if w.hasFloor && b.Pos.Y < b.HalfHeight {
			b.Pos.Y = b.HalfHeight
			if b.Vel.Y < 0 {
				b.Vel.Y = -b.Vel.Y * b.Restitution
			}
		}
	}
	w.steps++
	return nil
}

// FirstObjectY reports the vertical coordinate of the first body spawned.
// The bool is false while the world is empty.
func (w *World) FirstObjectY() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.bodies) == 0 {
		return 0, false
	}
	return w.bodies[0].Pos.Y, true
}

func (w *World) BodyCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func (w *World) Steps() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

// Package interact turns a pointer ray into a target cell and dispatches dig and build
// mutations for it.
package interact

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
}

func (r Ray) At(t float32) mgl32.Vec3 { return r.Origin.Add(r.Dir.Mul(t)) }

// RayFromNDC unprojects a normalized device coordinate through the camera. The ray starts
// on the near plane and points at the far plane. ok is false for a singular camera.
func RayFromNDC(ndc mgl32.Vec2, view, proj mgl32.Mat4) (Ray, bool) {
	vp := proj.Mul4(view)
	if vp.Det() == 0 {
		return Ray{}, false
	}
	inv := vp.Inv()
	near := mgl32.TransformCoordinate(mgl32.Vec3{ndc.X(), ndc.Y(), -1}, inv)
	far := mgl32.TransformCoordinate(mgl32.Vec3{ndc.X(), ndc.Y(), 1}, inv)
	dir := far.Sub(near)
	if dir.Len() == 0 {
		return Ray{}, false
	}
	return Ray{Origin: near, Dir: dir.Normalize()}, true
}

const parallelEps = 1e-9

// slab runs the slab test against an axis-aligned box. It returns the entry distance and
// the outward normal of the entry face. Boxes containing the origin report no entry.
func slab(r Ray, min, max mgl32.Vec3) (tNear float32, normal mgl32.Vec3, ok bool) {
	tmin := float32(math.Inf(-1))
	tmax := float32(math.Inf(1))
	axis := -1
	for a := 0; a < 3; a++ {
		o, d := r.Origin[a], r.Dir[a]
		if math.Abs(float64(d)) < parallelEps {
			if o < min[a] || o > max[a] {
				return 0, normal, false
			}
			continue
		}
		t1 := (min[a] - o) / d
		t2 := (max[a] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
			axis = a
		}
		if t2 < tmax {
			tmax = t2
		}
	}
	if axis < 0 || tmin > tmax || tmin < 0 {
		return 0, normal, false
	}
	if r.Dir[axis] > 0 {
		normal[axis] = -1
	} else {
		normal[axis] = 1
	}
	return tmin, normal, true
}

// overlaps reports whether the ray passes through the box at all, including from inside.
func overlaps(r Ray, min, max mgl32.Vec3) bool {
	tmin := float32(math.Inf(-1))
	tmax := float32(math.Inf(1))
	for a := 0; a < 3; a++ {
		o, d := r.Origin[a], r.Dir[a]
		if math.Abs(float64(d)) < parallelEps {
			if o < min[a] || o > max[a] {
				return false
			}
			continue
		}
		t1 := (min[a] - o) / d
		t2 := (max[a] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = float32(math.Max(float64(tmin), float64(t1)))
		tmax = float32(math.Min(float64(tmax), float64(t2)))
	}
	return tmax >= 0 && tmin <= tmax
}

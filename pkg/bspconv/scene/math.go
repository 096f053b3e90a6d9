package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Lerp3 returns a + (b-a)*t.
func Lerp3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Lerp2 returns a + (b-a)*t.
func Lerp2(a, b mgl32.Vec2, t float32) mgl32.Vec2 {
	return a.Add(b.Sub(a).Mul(t))
}

// DoublePrecDot projects p onto the texture axis (v[0], v[1], v[2]) plus offset v[3],
// accumulating in float64. Large world coordinates otherwise drift by whole texels.
func DoublePrecDot(p mgl32.Vec3, v [4]float32) float64 {
	return float64(p[0])*float64(v[0]) +
		float64(p[1])*float64(v[1]) +
		float64(p[2])*float64(v[2]) +
		float64(v[3])
}

// Project is the float32 form of DoublePrecDot.
func Project(p mgl32.Vec3, v [4]float32) float32 {
	return p.Dot(mgl32.Vec3{v[0], v[1], v[2]}) + v[3]
}

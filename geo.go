package reco

import "math"

// Cartesian is a 3D point or direction vector with x=north, y=west, z=up.
type Cartesian struct {
	X, Y, Z float64
}

// Spherical is an astronomical direction expressed as azimuth (measured from
// north, increasing towards east) and altitude above the horizon, both in radians.
type Spherical struct {
	Az, Alt float64
}

// ToCartesian converts an AltAz direction into a unit Cartesian vector using
// the convention x=north, y=west, z=up.
func (s Spherical) ToCartesian() Cartesian {
	cos_alt := math.Cos(s.Alt)
	return Cartesian{
		X: math.Cos(s.Az) * cos_alt,
		Y: -math.Sin(s.Az) * cos_alt,
		Z: math.Sin(s.Alt),
	}
}

// ToSpherical recovers the (az, alt) direction of a Cartesian vector.
func (c Cartesian) ToSpherical() Spherical {
	r := math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
	if r == 0 {
		return Spherical{Az: 0, Alt: 0}
	}
	return Spherical{
		Az:  math.Atan2(-c.Y, c.X),
		Alt: math.Asin(c.Z / r),
	}
}

func (c Cartesian) dot(o Cartesian) float64 { return c.X*o.X + c.Y*o.Y + c.Z*o.Z }
func (c Cartesian) norm() float64           { return math.Sqrt(c.dot(c)) }

func (c Cartesian) unit() Cartesian {
	n := c.norm()
	if n == 0 {
		return c
	}
	return Cartesian{c.X / n, c.Y / n, c.Z / n}
}

func (c Cartesian) sub(o Cartesian) Cartesian    { return Cartesian{c.X - o.X, c.Y - o.Y, c.Z - o.Z} }
func (c Cartesian) scale(f float64) Cartesian    { return Cartesian{c.X * f, c.Y * f, c.Z * f} }

// AngleSeparation returns the angular distance, in radians, between two sky
// directions via acos of the dot product of their unit vectors.
func AngleSeparation(a, b Spherical) float64 {
	au := a.ToCartesian().unit()
	bu := b.ToCartesian().unit()
	dot := au.dot(bu)
	// clamp; floating point drift can push |dot| fractionally past 1
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

// Point2D is a point in a 2D plane (focal plane, nominal frame, tilted
// ground frame).
type Point2D struct {
	X, Y float64
}

// Line2D is a line defined by a point it passes through and a direction
// vector, not necessarily normalised.
type Line2D struct {
	Point     Point2D
	Direction Point2D
}

// DistanceToPoint returns the perpendicular distance from p to the line.
func (l Line2D) DistanceToPoint(p Point2D) float64 {
	dx := p.X - l.Point.X
	dy := p.Y - l.Point.Y
	norm := math.Hypot(l.Direction.X, l.Direction.Y)
	if norm == 0 {
		return math.Hypot(dx, dy)
	}
	cross := dx*l.Direction.Y - dy*l.Direction.X
	return math.Abs(cross) / norm
}

// Intersection returns the point where l and o cross. The second return
// value is false when the lines are parallel (including coincident), in
// which case the point's coordinates are non-finite.
func (l Line2D) Intersection(o Line2D) (Point2D, bool) {
	denom := l.Direction.X*o.Direction.Y - l.Direction.Y*o.Direction.X
	if denom == 0 {
		return Point2D{math.NaN(), math.NaN()}, false
	}
	dx := o.Point.X - l.Point.X
	dy := o.Point.Y - l.Point.Y
	t := (dx*o.Direction.Y - dy*o.Direction.X) / denom
	return Point2D{
		X: l.Point.X + t*l.Direction.X,
		Y: l.Point.Y + t*l.Direction.Y,
	}, true
}

// rotationMatrix3 is a plain 3x3 row-major rotation matrix; a general matrix
// type would be overkill since frame rotations never compose more than two
// elementary rotations.
type rotationMatrix3 [3][3]float64

func rotY(theta float64) rotationMatrix3 {
	c, s := math.Cos(theta), math.Sin(theta)
	return rotationMatrix3{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

func rotZ(theta float64) rotationMatrix3 {
	c, s := math.Cos(theta), math.Sin(theta)
	return rotationMatrix3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

func matmul3(a, b rotationMatrix3) rotationMatrix3 {
	var out rotationMatrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func (m rotationMatrix3) apply(v Cartesian) Cartesian {
	return Cartesian{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func (m rotationMatrix3) transpose() rotationMatrix3 {
	var out rotationMatrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// PointingFrameRotation builds the rotation matrix shared by TelescopeFrame
// and TiltedGroundFrame: Rot_y(-(pi/2 - alt)) * Rot_z(az).
func PointingFrameRotation(pointing Spherical) rotationMatrix3 {
	return matmul3(rotY(-(math.Pi/2 - pointing.Alt)), rotZ(pointing.Az))
}

// TelescopeFrame is a tangent-plane projection of the sky centred on a
// telescope's pointing direction.
type TelescopeFrame struct {
	Pointing Spherical
	rot      rotationMatrix3
}

// NewTelescopeFrame constructs a TelescopeFrame for the given pointing
// direction, precomputing its rotation matrix.
func NewTelescopeFrame(pointing Spherical) TelescopeFrame {
	return TelescopeFrame{Pointing: pointing, rot: PointingFrameRotation(pointing)}
}

// ToTelescopeFrame projects an AltAz sky direction into the telescope's
// tangent plane, returning the (x, y) position in radians on that plane.
func (f TelescopeFrame) ToTelescopeFrame(dir Spherical) Point2D {
	rotated := f.rot.apply(dir.ToCartesian())
	return Point2D{X: rotated.X / rotated.Z, Y: rotated.Y / rotated.Z}
}

// ToAltAz is the inverse of ToTelescopeFrame.
func (f TelescopeFrame) ToAltAz(p Point2D) Spherical {
	r := math.Hypot(p.X, p.Y)
	local := Spherical{Az: math.Atan2(p.Y, p.X), Alt: math.Atan(r)}
	rotated := local.ToCartesian()
	world := f.rot.transpose().apply(rotated)
	return world.ToSpherical()
}

// TiltedGroundFrame is a ground plane rotated to be perpendicular to the
// array pointing direction; used to intersect shower axes in 3D space.
type TiltedGroundFrame struct {
	Pointing Spherical
	rot      rotationMatrix3
}

// NewTiltedGroundFrame constructs a TiltedGroundFrame for the given array
// pointing direction.
func NewTiltedGroundFrame(pointing Spherical) TiltedGroundFrame {
	return TiltedGroundFrame{Pointing: pointing, rot: PointingFrameRotation(pointing)}
}

// ToTilted rotates a ground position into the tilted frame (no projection).
func (f TiltedGroundFrame) ToTilted(ground Cartesian) Cartesian {
	return f.rot.apply(ground)
}

// ToGround is the inverse rotation, back to the untilted ground frame.
func (f TiltedGroundFrame) ToGround(tilted Cartesian) Cartesian {
	return f.rot.transpose().apply(tilted)
}

// ProjectToGround projects a 3D point along a direction vector onto the
// ground plane z=0, returning the (x, y) intersection. If the direction is
// parallel to the ground (no z component) the point's own (x, y) is
// returned unchanged.
func ProjectToGround(point Cartesian, direction Cartesian) Point2D {
	dir := direction.unit()
	if math.Abs(dir.Z) < 1e-10 {
		return Point2D{point.X, point.Y}
	}
	t := -point.Z / dir.Z
	return Point2D{
		X: point.X + t*dir.X,
		Y: point.Y + t*dir.Y,
	}
}

// PointLineDistance returns the shortest distance in 3D from point to the
// infinite line passing through linePoint along direction.
func PointLineDistance(point, linePoint, direction Cartesian) float64 {
	dir := direction.unit()
	diff := point.sub(linePoint)
	proj := dir.scale(diff.dot(dir))
	perp := diff.sub(proj)
	return perp.norm()
}

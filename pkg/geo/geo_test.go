package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMetersZero(t *testing.T) {
	p := Point{Lat: 6.5244, Lng: 3.3792}
	assert.Equal(t, 0.0, DistanceMeters(p, p))
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := Point{Lat: 6.5244, Lng: 3.3792}
	b := Point{Lat: 6.6018, Lng: 3.3515}

	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)

	assert.InDelta(t, d1, d2, 1e-9)
	assert.Greater(t, d1, 0.0)
}

func TestDistanceMetersKnownValue(t *testing.T) {
	// 赤道上经度相差 1 度约 111.32 公里
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 1}

	d := DistanceMeters(a, b)
	assert.InDelta(t, 111195, d, 500)
}

func TestInsideCircle(t *testing.T) {
	center := Point{Lat: 6.5244, Lng: 3.3792}

	// 距中心约 111 米的点
	near := Point{Lat: 6.5254, Lng: 3.3792}

	assert.True(t, InsideCircle(near, center, 200, 0))
	assert.False(t, InsideCircle(near, center, 50, 0))
	// 容差把边界外 50 米内的点也算作在内
	assert.True(t, InsideCircle(near, center, 70, 50))
}

func TestInsideCircleCenterPoint(t *testing.T) {
	center := Point{Lat: 6.5244, Lng: 3.3792}
	assert.True(t, InsideCircle(center, center, 1, 0))
}

func TestInsidePolygon(t *testing.T) {
	ring := []Point{
		{Lat: 6.50, Lng: 3.30},
		{Lat: 6.50, Lng: 3.40},
		{Lat: 6.60, Lng: 3.40},
		{Lat: 6.60, Lng: 3.30},
	}

	assert.True(t, InsidePolygon(Point{Lat: 6.55, Lng: 3.35}, ring))
	assert.False(t, InsidePolygon(Point{Lat: 6.70, Lng: 3.35}, ring))
}

func TestInsidePolygonClockwiseRing(t *testing.T) {
	// 顶点按顺时针给出也应判断正确
	ring := []Point{
		{Lat: 6.60, Lng: 3.30},
		{Lat: 6.60, Lng: 3.40},
		{Lat: 6.50, Lng: 3.40},
		{Lat: 6.50, Lng: 3.30},
	}

	assert.True(t, InsidePolygon(Point{Lat: 6.55, Lng: 3.35}, ring))
	assert.False(t, InsidePolygon(Point{Lat: 6.40, Lng: 3.35}, ring))
}

func TestInsidePolygonDegenerate(t *testing.T) {
	assert.False(t, InsidePolygon(Point{Lat: 6.55, Lng: 3.35}, nil))
	assert.False(t, InsidePolygon(Point{Lat: 6.55, Lng: 3.35}, []Point{{Lat: 6.5, Lng: 3.3}, {Lat: 6.6, Lng: 3.4}}))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(6.5244, 3.3792))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
}

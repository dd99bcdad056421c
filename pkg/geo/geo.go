package geo

import (
	"github.com/golang/geo/s2"
)

// 平均地球半径（米），与 s2 的单位球面角配合换算距离
const earthRadiusMeters = 6371008.8

// Point 经纬度坐标点
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ValidCoordinate 检查经纬度是否在合法范围内
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// DistanceMeters 计算两点间的大圆距离（米）
func DistanceMeters(a, b Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return float64(la.Distance(lb)) * earthRadiusMeters
}

// InsideCircle 判断点是否落在圆形围栏内，tolerance 为边界容差（米）
func InsideCircle(pt, center Point, radiusMeters, toleranceMeters float64) bool {
	return DistanceMeters(pt, center) <= radiusMeters+toleranceMeters
}

// InsidePolygon 判断点是否落在多边形围栏内
// ring 为顶点序列，首尾无需闭合；顶点数不足时返回 false
func InsidePolygon(pt Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}

	points := make([]s2.Point, 0, len(ring))
	for _, v := range ring {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lng)))
	}

	loop := s2.LoopFromPoints(points)
	// Normalize 保证 loop 表示较小的那一侧区域，顶点顺逆时针都能处理
	loop.Normalize()

	return loop.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(pt.Lat, pt.Lng)))
}

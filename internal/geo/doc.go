// Package geo holds the coordinate types the photo search is scoped by: the
// pin location, the clamped bounding box sent to the photo API, and an R-Tree
// index of dropped pins.
package geo

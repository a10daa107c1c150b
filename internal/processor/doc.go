// Package processor contains the core logic of the photo album. It drops and
// deletes pins, fills a pin's album from the photo search, keeps the image
// cache in line with the stored photo records and exports albums to disk.
// This package serves as the main coordinator between all other components.
package processor

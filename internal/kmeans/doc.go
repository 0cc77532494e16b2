// Package kmeans implements stepwise Lloyd's k-means clustering.
//
// The package exposes the building blocks (initializers, assignment, update)
// and a Run loop that reports the state after every iteration through a
// callback. Callers own all slices they pass in; Run mutates the centroid
// slice in place.
package kmeans

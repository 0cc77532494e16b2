// Package distance provides the squared Euclidean distance used by K-means
// and nearest-centroid search.
//
// Squared distances are compared directly; no square root is taken.
//
//	d := distance.SquaredL2(a, b)
//	idx, d := distance.Nearest(p, centroids)
package distance

// Package pointcloud defines the sampled point cloud handed to the hull
// pipeline: real-space coordinates on a regular grid plus the six
// symmetric-tensor components measured at each point.
package pointcloud

// Package assembly turns compiled pipeline definitions into live pipelines
// on a dataset.
//
// Pipelines are built upstream first. A pipeline whose source names another
// pipeline reads that pipeline's head node, so branches share every cached
// result up to the branch point.
package assembly

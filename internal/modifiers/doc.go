// Package modifiers provides the built-in modifiers and the registry that
// maps modifier type names from pipeline definitions to constructors.
//
// The modifiers are small on purpose. Each one exercises a different part
// of the modifier contract:
//   - Scale runs asynchronously on the worker pool through delegates
//   - AffineTransformation needs a simulation cell and rejects singular matrices
//   - ComputeCount is synchronous and only adds an attribute
//   - TimeRamp depends on animation time and keeps cached frames outside an
//     upstream change
package modifiers

// Package ir provides the portable representation of pipeline definitions
// and flow state descriptions for flowstate.
//
// This package contains type definitions and canonical serialization only.
// All other internal packages may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are sealed (String, Int, Float, Bool, Array, Object); no null
//   - Floats must be finite
//   - Digests are SHA-256 over RFC 8785 canonical JSON with domain separation
//   - All JSON tags use snake_case
package ir

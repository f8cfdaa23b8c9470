// Package ir provides the value model shared by the Vault DSL parser, the
// archive compiler and the inspector.
//
// This package contains value types and their canonical encoding only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed set: String, Int, Number, Bool, Array, Object, Null
//   - Number keeps the decimal literal text, never a float64
//   - MarshalCanonical is the only encoding used for sealed payloads and digests
package ir

// Package loader reads bench and plan files.
//
// The same schema is accepted in three syntaxes, picked by extension:
// YAML (.yaml, .yml), CUE (.cue) and HCL (.hcl). Decoding is strict:
// unknown fields are errors.
//
// Ranges may be written as {min, max} mappings, "lo..hi" strings or
// [lo, hi] lists. Connections are [source, signal, dest, signal] lists, or
// connection blocks in HCL. A plan's phases may be inline or names of
// include files, which are resolved recursively; see LoadPlan.
//
// Files are only decoded here. Whether a bench or plan makes sense is
// decided by network.Build and plan.Check.
package loader

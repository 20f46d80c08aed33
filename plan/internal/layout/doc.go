// Package layout computes native sizes, alignments and field offsets for
// declaration types.
//
// # Layout Rules
//
//   - Primitives: size equals alignment; glong, gsize and friends are
//     pointer sized
//   - Pointers, strings, objects and callbacks: one address
//   - Enumerations and bitfields: 32-bit integers
//   - Records: fields laid out sequentially with padding for alignment
//   - Unions: largest member, all fields at offset zero
//   - Fixed-size arrays inside records: laid out inline
//
// Each scalar layout carries the flat value type used to pass it across the
// call boundary.
//
// This package is internal to the planner.
package layout

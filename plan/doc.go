// Package plan derives Call Plans: per-callable marshaling recipes covering
// native layouts, argument classes, ownership, array sizing and the GError
// slot.
//
// # Classification
//
// Each parameter is assigned one Class. Rules are tried in order and the
// first match wins:
//
//	array           -> ClassArray (ClassOutArray when written by the callee)
//	instance        -> ClassInstance
//	out, inout      -> ClassOut
//	T**             -> ClassPointerPointer
//	primitive*      -> ClassPrimitivePointer
//	utf8, filename  -> ClassString
//	gboolean        -> ClassBoolean (native 0/1)
//	registered type -> ClassRegistered (delegates to the type's Lowering)
//	anything else   -> ClassScalar (identity)
//
// The string rule is an addition to the primitive rules and sits after the
// primitive pointer rule. utf8 and filename are never primitive names, so a
// string declared as gchar* still classifies as ClassString.
//
// # Steps
//
// A plan's Steps are ordered: marshal inputs and reserve out slots, reserve
// the error slot, invoke, check the error slot, read out lengths, read other
// outs, materialize arrays, return. A non-null error slot ends execution
// before any demarshaling step.
//
// # Failures
//
// The Filter drops unsupported shapes before planning. Malformed
// declarations found while planning are defects (errors.IsDefect) and abort
// the unit they occur in; other units are unaffected.
package plan

package plan

import (
	"github.com/wippyai/gibind/gir"
)

// Release is the discipline used to give back a tracked native value.
type Release uint8

const (
	ReleaseNone Release = iota
	ReleaseUnref
	ReleaseFree
	ReleaseContainer
)

func (r Release) String() string {
	switch r {
	case ReleaseUnref:
		return "unref"
	case ReleaseFree:
		return "free"
	case ReleaseContainer:
		return "container"
	default:
		return "none"
	}
}

// Ownership records who releases a value after the call.
//
// HandOver marks a value passed in whose allocation the callee takes. Track
// marks a value the host holds after the call and gives back with Release.
// For arrays, ReleaseFree covers the container and its elements while
// ReleaseContainer covers the container only.
type Ownership struct {
	Transfer gir.Transfer `cbor:"transfer"`
	Release  Release      `cbor:"release,omitempty"`
	Track    bool         `cbor:"track,omitempty"`
	HandOver bool         `cbor:"hand_over,omitempty"`
}

// OwnsElements reports whether the host owns the elements of a tracked
// array, not just its container.
func (o Ownership) OwnsElements() bool {
	return o.Track && o.Release == ReleaseFree
}

// ownership derives the ownership rule for a value crossing the call.
// Values passed in with transfer full go to the callee. Values coming back
// (returns, out and inout parameters) with transfer full or container
// belong to the host; with transfer none they stay with the native side.
func ownership(transfer gir.Transfer, dir gir.Direction, returned bool, class Class, lowering Lowering) Ownership {
	o := Ownership{Transfer: transfer}
	in := !returned && dir != gir.DirectionOut
	out := returned || dir != gir.DirectionIn
	if in {
		o.HandOver = transfer == gir.TransferFull
	}
	if out {
		o.Track = transfer != gir.TransferNone
	} else {
		o.Track = !o.HandOver
	}
	if o.Track {
		o.Release = release(transfer, class, lowering)
	}
	o.Track = o.Release != ReleaseNone
	return o
}

func release(transfer gir.Transfer, class Class, lowering Lowering) Release {
	switch {
	case class == ClassArray || class == ClassOutArray:
		if transfer == gir.TransferContainer {
			return ReleaseContainer
		}
		return ReleaseFree
	case lowering == LowerObject:
		return ReleaseUnref
	case lowering == LowerBoxed, class == ClassString:
		return ReleaseFree
	}
	return ReleaseNone
}

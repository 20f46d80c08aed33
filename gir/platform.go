package gir

import "strings"

// Platform is a bitmask of the platforms a declaration is available on.
type Platform uint8

const (
	PlatformLinux Platform = 1 << iota
	PlatformWindows
	PlatformMacOS

	PlatformAll = PlatformLinux | PlatformWindows | PlatformMacOS
)

// Has reports whether p includes every platform in other.
func (p Platform) Has(other Platform) bool {
	return p&other == other
}

func (p Platform) String() string {
	if p == 0 {
		return "none"
	}
	if p == PlatformAll {
		return "all"
	}
	var names []string
	if p&PlatformLinux != 0 {
		names = append(names, "linux")
	}
	if p&PlatformWindows != 0 {
		names = append(names, "windows")
	}
	if p&PlatformMacOS != 0 {
		names = append(names, "macos")
	}
	return strings.Join(names, "|")
}

// ParsePlatform parses a platform name as used in configuration files.
func ParsePlatform(s string) (Platform, bool) {
	switch strings.ToLower(s) {
	case "linux":
		return PlatformLinux, true
	case "windows":
		return PlatformWindows, true
	case "macos", "darwin":
		return PlatformMacOS, true
	case "all", "":
		return PlatformAll, true
	}
	return 0, false
}

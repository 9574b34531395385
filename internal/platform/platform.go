// Package platform identifies the host the monitor is running on.
package platform

import (
	"os"
	"runtime"
	"strings"
)

// Platform names a host family. The value is persisted in the state file.
type Platform string

const (
	Linux   Platform = "linux"
	Android Platform = "android"
	Windows Platform = "windows"
	Mac     Platform = "mac"
)

// Termux markers checked when the kernel release does not mention android.
var androidMarkers = []string{
	"/system/bin/termux-am",
	"/data/data/com.termux",
}

// Detect returns the platform of the running process.
func Detect() Platform {
	return detect(runtime.GOOS, kernelRelease(), fileExists)
}

func detect(goos, release string, exists func(string) bool) Platform {
	switch goos {
	case "android":
		return Android
	case "linux":
		if strings.Contains(strings.ToLower(release), "android") {
			return Android
		}
		for _, path := range androidMarkers {
			if exists(path) {
				return Android
			}
		}
		return Linux
	case "windows":
		return Windows
	case "darwin":
		return Mac
	default:
		return Platform(goos)
	}
}

// In reports whether p is one of the given platforms.
func (p Platform) In(set ...Platform) bool {
	for _, s := range set {
		if p == s {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

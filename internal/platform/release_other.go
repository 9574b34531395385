//go:build !linux && !android

package platform

func kernelRelease() string {
	return ""
}

package service

import "os"

// Status returns whether the plist exists.
func Status(label string) (string, bool) {
	plist := LaunchdPath(label)
	if _, err := os.Stat(plist); err == nil {
		return plist, true
	}
	return plist, false
}

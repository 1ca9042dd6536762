//go:build windows

package learning

// restrictDir is a no-op; Windows ACLs are not managed here.
func restrictDir(string) error { return nil }

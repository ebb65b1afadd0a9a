//go:build unix

package config

import (
	"fmt"
	"os"
)

// permissionWarning returns a warning when path is readable by group or
// others. what names the file in the message and hint says what it holds.
func permissionWarning(path, what, hint string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	mode := info.Mode().Perm()
	if mode&0077 == 0 {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: %s '%s' has insecure permissions (%04o)\n"+
			"         %s\n"+
			"         Run: chmod 600 %s\n\n",
		what, path, mode, hint, path,
	)
}

//go:build windows

package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var insecurePrincipals = []string{
	"everyone",
	"authenticated users",
	"builtin\\users",
	"users",
}

// permissionWarning returns a warning when icacls grants path to a broad
// principal. what names the file in the message and hint says what it holds.
func permissionWarning(path, what, hint string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	output, err := exec.Command("icacls", path).Output()
	if err != nil {
		return ""
	}

	acl := strings.ToLower(string(output))
	for _, p := range insecurePrincipals {
		if strings.Contains(acl, p) {
			return fmt.Sprintf(
				"WARNING: %s '%s' may have insecure permissions\n"+
					"         %s\n"+
					"         Run in PowerShell to secure:\n"+
					"         icacls \"%s\" /inheritance:r /grant:r \"%%USERNAME%%:F\"\n\n",
				what, path, hint, path,
			)
		}
	}
	return ""
}

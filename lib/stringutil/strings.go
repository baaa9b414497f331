package stringutil

import "strings"

// Empty returns true if any of the values is blank.
func Empty(vals ...string) bool {
	for _, val := range vals {
		if strings.TrimSpace(val) == "" {
			return true
		}
	}

	return false
}

// Override - pass in a list of vals, the right most value that is not empty will override.
func Override(vals ...string) string {
	var retVal string
	for _, val := range vals {
		if val != "" {
			retVal = val
		}
	}

	return retVal
}

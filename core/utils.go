package core

import "strings"

// CleanString trims surrounding whitespace from s. With lower set it
// also folds the result to lower case, used for emails and kind fields.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		s = strings.ToLower(s)
	}
	return s
}

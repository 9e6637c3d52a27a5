package secrets

import (
	"sort"
	"strings"

	"github.com/slipway/slipway/internal/vars"
)

// suspiciousPatterns are substrings of variable names that usually hold
// sensitive values. A plain variable matching one of these most likely
// belongs in the secret store instead.
var suspiciousPatterns = []string{
	"SECRET",
	"TOKEN",
	"PASSWORD",
	"API_KEY",
	"API_SECRET",
	"PRIVATE_KEY",
	"ACCESS_KEY",
	"SECRET_KEY",
	"CREDENTIAL",
}

// SuspiciousVariables returns the names in the set that look like secrets,
// sorted for stable warning output. Matching is case-insensitive.
func SuspiciousVariables(set vars.Set) []string {
	var names []string

	for name := range set {
		upper := strings.ToUpper(name)
		for _, pattern := range suspiciousPatterns {
			if strings.Contains(upper, pattern) {
				names = append(names, name)
				break
			}
		}
	}

	sort.Strings(names)
	return names
}

package core

import (
	"fmt"
	"strconv"
	"strings"
)

// NextNumber returns the next sequential document number for prefix given
// the numbers already in use, e.g. INV-0041 after INV-0040. Numbers that do
// not carry the prefix and a numeric suffix are ignored. The width of the
// widest existing suffix is kept, with a minimum of four digits.
func NextNumber(prefix string, existing []string) string {
	maxN, width := 0, 4
	for _, num := range existing {
		rest, ok := strings.CutPrefix(num, prefix)
		if !ok || rest == "" {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			continue
		}
		if n > maxN {
			maxN = n
		}
		if len(rest) > width {
			width = len(rest)
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, maxN+1)
}

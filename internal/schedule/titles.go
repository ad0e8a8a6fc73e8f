package schedule

import "golang.org/x/text/unicode/norm"

// sameTitle compares titles after NFC normalization so composed and
// decomposed accents match.
func sameTitle(a, b string) bool {
	if a == b {
		return true
	}
	return norm.NFC.String(a) == norm.NFC.String(b)
}

package payment

import "strings"

// NormalizeCardNumber strips spaces and dashes.
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

func LastFour(number string) string {
	n := NormalizeCardNumber(number)
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

// CardBrand guesses the card association from the IIN prefix.
func CardBrand(number string) string {
	n := NormalizeCardNumber(number)
	switch {
	case strings.HasPrefix(n, "4"):
		return "VISA"
	case hasPrefixInRange(n, 2, 51, 55), hasPrefixInRange(n, 4, 2221, 2720):
		return "MASTER_CARD"
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "AMERICAN_EXPRESS"
	case strings.HasPrefix(n, "9792"):
		return "TROY"
	}
	return "UNKNOWN"
}

func hasPrefixInRange(n string, digits, lo, hi int) bool {
	if len(n) < digits {
		return false
	}
	v := 0
	for _, c := range n[:digits] {
		if c < '0' || c > '9' {
			return false
		}
		v = v*10 + int(c-'0')
	}
	return v >= lo && v <= hi
}

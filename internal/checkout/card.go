package checkout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/example/ec-checkout/internal/payment"
)

// Field names match the inputs of the checkout form so the caller can move
// focus to the offending one.
const (
	FieldCardHolder  = "cardHolder"
	FieldCardNumber  = "cardNumber"
	FieldExpiryMonth = "expiryMonth"
	FieldExpiryYear  = "expiryYear"
	FieldCVV         = "cvv"
	FieldCart        = "cart"
	FieldAddress     = "shippingAddress"
	FieldMethod      = "paymentMethod"
)

var (
	monthPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	yearPattern  = regexp.MustCompile(`^[0-9]{2}$`)
	cvvPattern   = regexp.MustCompile(`^[0-9]{3,4}$`)
	cardPattern  = regexp.MustCompile(`^[0-9]{16}$`)
)

// ValidationError reports the first input that failed a checkout check.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

// ValidateCard checks a card in form order and returns the first failure.
// now decides whether the expiry date has passed.
func ValidateCard(card payment.Card, now time.Time) error {
	if !validHolderName(card.HolderName) {
		return invalid(FieldCardHolder, "invalid_card_holder",
			"card holder name must be at least 3 letters and contain only letters and spaces")
	}

	number := payment.NormalizeCardNumber(card.Number)
	if !cardPattern.MatchString(number) || !Luhn(number) {
		return invalid(FieldCardNumber, "invalid_card_number", "card number is not valid")
	}

	if !monthPattern.MatchString(card.ExpireMonth) {
		return invalid(FieldExpiryMonth, "invalid_expiry_month", "expiry month must be between 01 and 12")
	}

	if !yearPattern.MatchString(card.ExpireYear) {
		return invalid(FieldExpiryYear, "invalid_expiry_year", "expiry year must be two digits")
	}
	month, _ := strconv.Atoi(card.ExpireMonth)
	year, _ := strconv.Atoi(card.ExpireYear)
	if expired(2000+year, month, now) {
		return invalid(FieldExpiryYear, "card_expired", "card has expired")
	}

	if !cvvPattern.MatchString(card.CVC) {
		return invalid(FieldCVV, "invalid_cvv", "security code must be 3 or 4 digits")
	}
	return nil
}

func validHolderName(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < 3 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}

// expired reports whether the card month lies before the current month.
// A card is valid through the last day of its expiry month.
func expired(year, month int, now time.Time) bool {
	cy, cm := now.Year(), int(now.Month())
	if year != cy {
		return year < cy
	}
	return month < cm
}

// Luhn reports whether a string of digits passes the mod-10 checksum.
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

package address

import (
	"strconv"
	"strings"
)

// Field aliases accepted from older clients, canonical name first.
var aliases = map[string][]string{
	"title":      {"title", "label"},
	"fullName":   {"fullName", "full_name", "name", "recipient"},
	"phone":      {"phone", "phoneNumber", "phone_number", "tel"},
	"street":     {"street", "address", "line", "line1", "addressLine1", "address_line1"},
	"city":       {"city", "town"},
	"state":      {"state", "district", "province", "region"},
	"postalCode": {"postalCode", "postal_code", "zip", "zipCode", "zip_code"},
	"country":    {"country", "countryName"},
	"isDefault":  {"isDefault", "is_default", "default"},
}

// Normalize maps a decoded JSON address in any of the legacy shapes onto
// the canonical Input.
func Normalize(raw map[string]any) Input {
	return Input{
		Title:      pickString(raw, "title"),
		FullName:   pickString(raw, "fullName"),
		Phone:      pickString(raw, "phone"),
		Street:     pickString(raw, "street"),
		City:       pickString(raw, "city"),
		State:      pickString(raw, "state"),
		PostalCode: pickString(raw, "postalCode"),
		Country:    pickString(raw, "country"),
		IsDefault:  pickBool(raw, "isDefault"),
	}
}

func pickString(raw map[string]any, field string) string {
	for _, key := range aliases[field] {
		if s := asString(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func pickBool(raw map[string]any, field string) bool {
	for _, key := range aliases[field] {
		switch v := raw[key].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		case float64:
			return v != 0
		}
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

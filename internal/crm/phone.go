package crm

import "strings"

// FormatPhone normalizes a phone number to E.164 assuming US/PR numbers when
// no country code is present.
func FormatPhone(phone string) string {
	cleaned := digitsOnly(phone)
	switch {
	case len(cleaned) == 11 && strings.HasPrefix(cleaned, "1"):
		return "+" + cleaned
	case len(cleaned) == 10:
		return "+1" + cleaned
	default:
		return "+" + cleaned
	}
}

// PhoneVariations returns the forms a number may be stored under in the CRM,
// used to match an incoming lead against existing contacts.
func PhoneVariations(phone string) []string {
	cleaned := digitsOnly(phone)
	variations := []string{phone, cleaned, "+" + cleaned}
	if len(cleaned) == 10 {
		variations = append(variations, "+1"+cleaned, "1"+cleaned)
	}
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "1") {
		variations = append(variations, cleaned[1:])
	}
	seen := make(map[string]struct{}, len(variations))
	out := variations[:0]
	for _, v := range variations {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

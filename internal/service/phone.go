package service

import "strings"

// NormalizePhone reduces a chat address or free-form number to its digits.
// "5511999999999:12@c.us" and "+55 (11) 99999-9999" both yield "5511999999999".
func NormalizePhone(address string) string {
	user, _, _ := strings.Cut(address, "@")
	user, _, _ = strings.Cut(user, ":")

	var b strings.Builder
	b.Grow(len(user))
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

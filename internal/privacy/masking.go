package privacy

import (
	"strings"

	"crmbridge/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+919999999999" -> "+********9999"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], constants.DefaultPhoneMaskLength)
	}
	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskChatID masks the user part of a chat ID and keeps the network suffix
// Example: "919999999999@c.us" -> "********9999@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	user, domain, found := strings.Cut(chatID, "@")
	if !found {
		return maskString(chatID, 4)
	}
	return maskString(user, 4) + "@" + domain
}

// MaskSecret hides a shared key entirely, keeping only whether it was set
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

// MaskURL keeps scheme and host of a URL and drops path and query
// Example: "https://crm.example.com/api/whatsapp?token=x" -> "https://crm.example.com/..."
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return maskString(raw, 4)
	}
	host, _, hasPath := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	if hasPath || strings.Contains(rest, "?") {
		return scheme + "://" + host + "/..."
	}
	return scheme + "://" + host
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "phone", "from", "to":
			masked[k] = MaskPhoneNumber(s)
		case "chat_id", "chatId":
			masked[k] = MaskChatID(s)
		case "key", "sync_key", "api_key":
			masked[k] = MaskSecret(s)
		case "webhook_url", "url":
			masked[k] = MaskURL(s)
		default:
			masked[k] = v
		}
	}

	return masked
}

package models

import (
	"fmt"
	"strings"
)

const telegramDomain = "telegram.io"

// NormalizeAccountKey trims and lowercases an account identifier.
func NormalizeAccountKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// TelegramAccountKey synthesizes the account key used for Telegram users.
// Users without a public username are addressed by their numeric id.
func TelegramAccountKey(username string, telegramID int64) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		username = fmt.Sprintf("user%d", telegramID)
	}
	return NormalizeAccountKey(username + "@" + telegramDomain)
}

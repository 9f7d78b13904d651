package broker

import "fmt"

// Channel naming conventions shared by publishers and the gateway.

// UserNotifications is the personal real-time notification channel for one
// user.
func UserNotifications(ownerID string) string {
	return fmt.Sprintf("user.%s.notifications", ownerID)
}

// DocumentUpdates carries change events for a document-store collection.
func DocumentUpdates(collection string) string {
	return fmt.Sprintf("documents.%s", collection)
}

// CacheInvalidation coordinates cache drops across server instances.
func CacheInvalidation() string {
	return "cache.invalidate"
}

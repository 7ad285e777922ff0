package cache

import "fmt"

// ShortCodeKey holds either a reservation marker or the Link for code.
func ShortCodeKey(code string) string {
	return "short_code_" + code
}

// LinkKey holds a single Link as seen by its owner.
func LinkKey(ownerID, linkID uint64) string {
	return fmt.Sprintf("link_%d_%d", ownerID, linkID)
}

// LinkListKey holds the owner's links, newest first.
func LinkListKey(ownerID uint64) string {
	return fmt.Sprintf("links_%d", ownerID)
}

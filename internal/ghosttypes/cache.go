package ghosttypes

import "time"

// CacheEntry is the envelope a Cache backend stores for one key: a
// type-tagged value plus an optional expiry.
type CacheEntry struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	TypeName  string     `json:"type_name"`
}

// IsExpired reports whether the entry's TTL has elapsed as of now.
func (e CacheEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

package event

import (
	"fmt"
	"time"
)

// DeriveID returns a stable event id for a change. The same
// (entity, action, record, millisecond) always yields the same id, so a change
// that reaches the client through both the push channel and a poll cycle
// within the same millisecond collapses to one delivery.
func DeriveID(entity Entity, action Action, recordID string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%d", entity, action, recordID, at.UnixMilli())
}

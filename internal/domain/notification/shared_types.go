// internal/domain/notification/shared_types.go
package notification

import (
	"fmt"
	"strings"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// Key identifies a notification: a case may be notified at most once per bucket.
type Key struct {
	Protocol string
	Bucket   deadline.Bucket
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Protocol, k.Bucket)
}

// JoinRecipients renders resolved addresses for the ledger's recipients column.
func JoinRecipients(addrs []string) string {
	return strings.Join(addrs, ", ")
}

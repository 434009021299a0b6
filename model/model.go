package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Channel identifies the delivery route for an outbound message.
type Channel string

const (
	ChannelLinkedIn Channel = "linkedin"
	ChannelEmail    Channel = "email"
)

// GenerateUUIDWithSuffix generates a UUID prefixed with a module name,
// e.g. "rev_4f9f...". The prefix makes identifiers self-describing in
// logs and stores.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

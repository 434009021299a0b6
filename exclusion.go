/*
Copyright 2025 Outbound Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cadence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/notification"
)

const exclusionCacheTTL = 24 * time.Hour

func exclusionCacheKey(accountID string) string {
	return fmt.Sprintf("cadence:exclusions:%s", accountID)
}

// exclusionSnapshot wraps the cached set so an account with nothing
// excluded still gets a cache hit. A nil snapshot is a miss; an empty
// ContactIDs is a valid answer for the rest of the day.
type exclusionSnapshot struct {
	ContactIDs []string
	BuiltAt    time.Time
}

// GetExcludedContacts returns the account's do-not-contact set: the
// union of already-engaged contacts, contacts with a pending connection
// request and contacts still warming up. The set is cached for a day;
// on a miss it is rebuilt from the datasource. A single source failing
// degrades the set instead of failing the read, because a partial
// exclusion list over-sends less than a hard error that callers might
// be tempted to skip.
func (c *Cadence) GetExcludedContacts(ctx context.Context, accountID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Fetching Excluded Contacts")
	defer span.End()

	var snapshot *exclusionSnapshot
	if err := c.cache.Get(ctx, exclusionCacheKey(accountID), &snapshot); err != nil {
		notification.NotifyError(fmt.Errorf("exclusion cache read failed for account %s: %w", accountID, err))
	}
	if snapshot != nil {
		span.AddEvent("Exclusion cache hit", trace.WithAttributes(
			attribute.Int("exclusion.count", len(snapshot.ContactIDs))))
		return snapshot.ContactIDs, nil
	}

	excluded := c.buildExclusionSet(ctx, accountID)

	snapshot = &exclusionSnapshot{ContactIDs: excluded, BuiltAt: time.Now()}
	if err := c.cache.Set(ctx, exclusionCacheKey(accountID), snapshot, exclusionCacheTTL); err != nil {
		notification.NotifyError(fmt.Errorf("exclusion cache write failed for account %s: %w", accountID, err))
	}

	span.AddEvent("Exclusion set rebuilt", trace.WithAttributes(
		attribute.Int("exclusion.count", len(excluded))))
	return excluded, nil
}

// buildExclusionSet unions the three exclusion sources, skipping any
// source that errors.
func (c *Cadence) buildExclusionSet(ctx context.Context, accountID string) []string {
	seen := make(map[string]struct{})

	sources := []struct {
		name  string
		fetch func(context.Context, string) ([]string, error)
	}{
		{"engaged contacts", c.datasource.GetEngagedContactIDs},
		{"pending connections", c.datasource.GetPendingConnectionContactIDs},
		{"warming contacts", c.datasource.GetWarmingContactIDs},
	}

	for _, source := range sources {
		ids, err := source.fetch(ctx, accountID)
		if err != nil {
			notification.NotifyError(fmt.Errorf("exclusion source %s failed for account %s: %w", source.name, accountID, err))
			continue
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	excluded := make([]string, 0, len(seen))
	for id := range seen {
		excluded = append(excluded, id)
	}
	sort.Strings(excluded)
	return excluded
}

// IsExcluded reports whether the contact is in the account's exclusion
// set.
func (c *Cadence) IsExcluded(ctx context.Context, accountID, contactID string) (bool, error) {
	excluded, err := c.GetExcludedContacts(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, id := range excluded {
		if id == contactID {
			return true, nil
		}
	}
	return false, nil
}

// ClearExclusionCache drops the cached set so the next read rebuilds
// it. Called when a contact's status changes mid-day and the 24h TTL is
// too slow.
func (c *Cadence) ClearExclusionCache(ctx context.Context, accountID string) error {
	return c.cache.Delete(ctx, exclusionCacheKey(accountID))
}

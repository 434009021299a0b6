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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/notification"
	"github.com/outboundlabs/cadence/model"
)

// AddToValidationQueue stages a contact for human validation before any
// outreach begins. Adding the same contact twice returns the existing
// entry instead of creating a duplicate.
func (c *Cadence) AddToValidationQueue(ctx context.Context, accountID, contactID string) (*model.ValidationEntry, error) {
	ctx, span := tracer.Start(ctx, "Adding Contact To Validation Queue")
	defer span.End()

	entry, err := c.datasource.AddToValidationQueue(ctx, &model.ValidationEntry{
		ContactID: contactID,
		AccountID: accountID,
	})
	if err != nil {
		return nil, err
	}

	span.AddEvent("Validation entry staged", trace.WithAttributes(
		attribute.String("queue.id", entry.QueueID),
		attribute.String("contact.id", contactID)))
	return entry, nil
}

// ApproveValidation marks a pending entry approved and moves the
// contact to ready_for_outreach. Warm-up is then started best-effort: a
// warm-up failure is reported but never rolls back the approval, since
// the status change has already happened and warm-up can be started
// again by hand.
func (c *Cadence) ApproveValidation(ctx context.Context, accountID, queueID string) (*model.ValidationEntry, error) {
	ctx, span := tracer.Start(ctx, "Approving Validation Entry")
	defer span.End()

	entry, err := c.datasource.UpdateValidationStatus(ctx, accountID, queueID, model.ValidationApproved)
	if err != nil {
		return nil, err
	}

	if err := c.datasource.UpdateContactStatus(ctx, accountID, entry.ContactID, model.ContactStatusReadyForOutreach); err != nil {
		return nil, err
	}

	if _, err := c.StartWarmup(ctx, accountID, entry.ContactID); err != nil {
		notification.NotifyError(fmt.Errorf("failed to start warm-up for validated contact %s: %w", entry.ContactID, err))
	}

	span.AddEvent("Validation approved", trace.WithAttributes(
		attribute.String("queue.id", queueID),
		attribute.String("contact.id", entry.ContactID)))
	return entry, nil
}

// RejectValidation marks a pending entry rejected and parks the contact
// in nurture. No warm-up ever starts for a rejected contact.
func (c *Cadence) RejectValidation(ctx context.Context, accountID, queueID string) (*model.ValidationEntry, error) {
	ctx, span := tracer.Start(ctx, "Rejecting Validation Entry")
	defer span.End()

	entry, err := c.datasource.UpdateValidationStatus(ctx, accountID, queueID, model.ValidationRejected)
	if err != nil {
		return nil, err
	}

	if err := c.datasource.UpdateContactStatus(ctx, accountID, entry.ContactID, model.ContactStatusNurture); err != nil {
		notification.NotifyError(fmt.Errorf("failed to move rejected contact %s to nurture: %w", entry.ContactID, err))
	}

	span.AddEvent("Validation rejected", trace.WithAttributes(
		attribute.String("queue.id", queueID),
		attribute.String("contact.id", entry.ContactID)))
	return entry, nil
}

// GetPendingValidations lists the account's pending validation entries,
// oldest first.
func (c *Cadence) GetPendingValidations(ctx context.Context, accountID string, limit int) ([]*model.ValidationEntry, error) {
	return c.datasource.GetPendingValidationQueue(ctx, accountID, limit)
}

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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/database"
	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/internal/cache"
	"github.com/outboundlabs/cadence/model"
)

func newTestEngine(t *testing.T) (*Cadence, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Transport: config.TransportConfig{
			LinkedInUrl: "http://providers.local/linkedin",
			EmailUrl:    "http://providers.local/email",
			TimeoutSec:  1,
		},
	})
	cnf, err := config.Fetch()
	assert.NoError(t, err)

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	engine := &Cadence{
		redis:      client,
		cache:      cache.NewCacheWithClient(client),
		datasource: &database.Datasource{Conn: db},
		transports: NewTransportRegistry(cnf),
	}
	return engine, mock, mr
}

func expectEmptyExclusionSources(mock sqlmock.Sqlmock, accountID string) {
	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs(accountID, model.ContactStatusContacted).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))
	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs(accountID, model.ContactStatusConnectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))
	mock.ExpectQuery("SELECT contact_id FROM warmup_schedules").
		WithArgs(accountID, model.WarmupInProgress).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))
}

func scheduleRow(contactID, accountID, phase string, readyAt time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"schedule_id", "contact_id", "account_id", "started_at", "ready_at",
		"phase", "likes_count", "comments_count", "created_at",
	}).AddRow("wmp_1", contactID, accountID, now.Add(-24*time.Hour), readyAt, phase, 0, 0, now)
}

func emptySettingsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"confidence_threshold", "warmup_duration_days", "tier", "domain_warmup_started_at"}).
		AddRow(nil, nil, nil, nil)
}

func domainWarmedSettingsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"confidence_threshold", "warmup_duration_days", "tier", "domain_warmup_started_at"}).
		AddRow(nil, nil, nil, time.Now().Add(-30*24*time.Hour))
}

func TestAdmitCandidate_ExcludedContactConflicts(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs("acc_1", model.ContactStatusContacted).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}).AddRow("ctt_1"))
	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs("acc_1", model.ContactStatusConnectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))
	mock.ExpectQuery("SELECT contact_id FROM warmup_schedules").
		WithArgs("acc_1", model.WarmupInProgress).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))

	candidate := &model.Candidate{
		AccountID:    "acc_1",
		ContactID:    "ctt_1",
		Channel:      model.ChannelEmail,
		Body:         "Hi there",
		EmailAddress: "prospect@example.com",
		Confidence:   90,
	}

	entry, item, err := engine.AdmitCandidate(context.Background(), candidate)
	assert.Error(t, err)
	assert.Nil(t, entry)
	assert.Nil(t, item)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestAdmitCandidate_BelowThresholdGoesToReview(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	expectEmptyExclusionSources(mock, "acc_1")
	mock.ExpectQuery("SELECT (.+) FROM warmup_schedules").
		WithArgs("ctt_1", "acc_1").
		WillReturnRows(scheduleRow("ctt_1", "acc_1", model.WarmupCompleted, time.Now().Add(-time.Hour)))
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(domainWarmedSettingsRows())
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(emptySettingsRows())
	mock.ExpectExec("INSERT INTO review_items").
		WillReturnResult(sqlmock.NewResult(1, 1))

	candidate := &model.Candidate{
		AccountID:    "acc_1",
		ContactID:    "ctt_1",
		Channel:      model.ChannelEmail,
		Body:         "Hi there",
		EmailAddress: "prospect@example.com",
		Confidence:   72,
	}

	entry, item, err := engine.AdmitCandidate(context.Background(), candidate)
	assert.NoError(t, err)
	assert.Nil(t, entry)
	assert.NotNil(t, item)
	assert.Equal(t, model.ReviewPending, item.Status)
	assert.Contains(t, item.ReviewID, "rev_")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitCandidate_ClearPathLandsInSendQueue(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	expectEmptyExclusionSources(mock, "acc_1")
	mock.ExpectQuery("SELECT (.+) FROM warmup_schedules").
		WithArgs("ctt_1", "acc_1").
		WillReturnRows(scheduleRow("ctt_1", "acc_1", model.WarmupSkipped, time.Now().Add(24*time.Hour)))
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(domainWarmedSettingsRows())
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(emptySettingsRows())

	candidate := &model.Candidate{
		AccountID:    "acc_1",
		ContactID:    "ctt_1",
		Channel:      model.ChannelEmail,
		Body:         "Hi there",
		EmailAddress: "prospect@example.com",
		Confidence:   80,
	}

	entry, item, err := engine.AdmitCandidate(context.Background(), candidate)
	assert.NoError(t, err)
	assert.Nil(t, item)
	assert.NotNil(t, entry)
	assert.Equal(t, "prospect@example.com", entry.Recipient)

	size, err := engine.QueueSize(context.Background(), "acc_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestAdmitCandidate_NotWarmRejected(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	expectEmptyExclusionSources(mock, "acc_1")
	mock.ExpectQuery("SELECT (.+) FROM warmup_schedules").
		WithArgs("ctt_1", "acc_1").
		WillReturnRows(scheduleRow("ctt_1", "acc_1", model.WarmupInProgress, time.Now().Add(3*24*time.Hour)))

	candidate := &model.Candidate{
		AccountID:    "acc_1",
		ContactID:    "ctt_1",
		Channel:      model.ChannelEmail,
		Body:         "Hi there",
		EmailAddress: "prospect@example.com",
		Confidence:   90,
	}

	_, _, err := engine.AdmitCandidate(context.Background(), candidate)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotEligible, apiErr.Code)
	details, ok := apiErr.Details.(apierror.EligibilityDetails)
	assert.True(t, ok)
	assert.Equal(t, 3, details.DaysRemaining)
}

func TestAdmitCandidate_DomainWarmupNotStarted(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	expectEmptyExclusionSources(mock, "acc_1")
	mock.ExpectQuery("SELECT (.+) FROM warmup_schedules").
		WithArgs("ctt_1", "acc_1").
		WillReturnRows(scheduleRow("ctt_1", "acc_1", model.WarmupCompleted, time.Now().Add(-time.Hour)))
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(emptySettingsRows())

	candidate := &model.Candidate{
		AccountID:    "acc_1",
		ContactID:    "ctt_1",
		Channel:      model.ChannelEmail,
		Body:         "Hi there",
		EmailAddress: "prospect@example.com",
		Confidence:   90,
	}

	entry, item, err := engine.AdmitCandidate(context.Background(), candidate)
	assert.Error(t, err)
	assert.Nil(t, entry)
	assert.Nil(t, item)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotEligible, apiErr.Code)
	details, ok := apiErr.Details.(apierror.EligibilityDetails)
	assert.True(t, ok)
	assert.Equal(t, DomainWarmupMinDays, details.DaysRemaining)

	// nothing buffered for a domain that never started warming
	size, err := engine.QueueSize(context.Background(), "acc_1")
	assert.NoError(t, err)
	assert.Zero(t, size)
}

func TestAdmitCandidate_InvalidCandidate(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, _, err := engine.AdmitCandidate(context.Background(), &model.Candidate{AccountID: "acc_1"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestDispatchBatch_DomainWarmupNotStarted(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(emptySettingsRows())

	dispatched, err := engine.DispatchBatch(context.Background(), "acc_1", "id_1", 10)
	assert.Error(t, err)
	assert.Zero(t, dispatched)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotEligible, apiErr.Code)
	details, ok := apiErr.Details.(apierror.EligibilityDetails)
	assert.True(t, ok)
	assert.Equal(t, DomainWarmupMinDays, details.DaysRemaining)
}

func TestDispatchBatch_WarmingDomainStopsAtReducedCap(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	ctx := context.Background()

	startedAt := time.Now().Add(-5 * 24 * time.Hour)
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(sqlmock.NewRows([]string{"confidence_threshold", "warmup_duration_days", "tier", "domain_warmup_started_at"}).
			AddRow(nil, nil, nil, startedAt))

	// reduced cap already consumed today
	err := engine.redis.Set(ctx, sendLimitKey("acc_1", "id_1"), DomainWarmupReducedCap, 0).Err()
	assert.NoError(t, err)

	entry := &model.QueueEntry{
		EntryID:    "ent_1",
		AccountID:  "acc_1",
		ContactID:  "ctt_1",
		Channel:    model.ChannelEmail,
		Body:       "Hi there",
		Recipient:  "prospect@example.com",
		EnqueuedAt: time.Now(),
	}
	assert.NoError(t, engine.restoreEntry(ctx, entry))

	dispatched, err := engine.DispatchBatch(ctx, "acc_1", "id_1", 10)
	assert.Error(t, err)
	assert.Zero(t, dispatched)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotEligible, apiErr.Code)

	// undispatched entry went back to the queue
	size, err := engine.QueueSize(ctx, "acc_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestDispatchBatch_WarmedDomainHitsDailyCap(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	ctx := context.Background()

	startedAt := time.Now().Add(-20 * 24 * time.Hour)
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnRows(sqlmock.NewRows([]string{"confidence_threshold", "warmup_duration_days", "tier", "domain_warmup_started_at"}).
			AddRow(nil, nil, nil, startedAt))

	err := engine.redis.Set(ctx, sendLimitKey("acc_1", "id_1"), DailySendCap, 0).Err()
	assert.NoError(t, err)

	entry := &model.QueueEntry{
		EntryID:    "ent_1",
		AccountID:  "acc_1",
		ContactID:  "ctt_1",
		Channel:    model.ChannelEmail,
		Body:       "Hi there",
		Recipient:  "prospect@example.com",
		EnqueuedAt: time.Now(),
	}
	assert.NoError(t, engine.restoreEntry(ctx, entry))

	dispatched, err := engine.DispatchBatch(ctx, "acc_1", "id_1", 10)
	assert.Error(t, err)
	assert.Zero(t, dispatched)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrCapacityExceeded, apiErr.Code)
	details, ok := apiErr.Details.(apierror.CapacityDetails)
	assert.True(t, ok)
	assert.Equal(t, DailySendCap+1, details.Count)
	assert.Equal(t, DailySendCap, details.Limit)
	assert.Zero(t, details.Remaining)
}

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
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

func TestAddToValidationQueue_Idempotent(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO validation_queue").
		WithArgs(sqlmock.AnyArg(), "ctt_1", "acc_1", model.ValidationPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	first, err := engine.AddToValidationQueue(ctx, "acc_1", "ctt_1")
	assert.NoError(t, err)
	assert.Contains(t, first.QueueID, "vld_")

	// second add hits the conflict path and returns the original entry
	mock.ExpectExec("INSERT INTO validation_queue").
		WithArgs(sqlmock.AnyArg(), "ctt_1", "acc_1", model.ValidationPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT queue_id, contact_id, account_id, status, created_at FROM validation_queue").
		WithArgs("ctt_1", "acc_1").
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "contact_id", "account_id", "status", "created_at"}).
			AddRow(first.QueueID, "ctt_1", "acc_1", "pending", first.CreatedAt))

	second, err := engine.AddToValidationQueue(ctx, "acc_1", "ctt_1")
	assert.NoError(t, err)
	assert.Equal(t, first.QueueID, second.QueueID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveValidation_StartsWarmup(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("UPDATE validation_queue SET status").
		WithArgs("vld_1", "acc_1", model.ValidationApproved, model.ValidationPending).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "contact_id", "account_id", "status", "created_at"}).
			AddRow("vld_1", "ctt_1", "acc_1", "approved", time.Now()))
	mock.ExpectExec("UPDATE contacts SET status").
		WithArgs("ctt_1", "acc_1", model.ContactStatusReadyForOutreach).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO warmup_schedules").
		WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "created_at"}).AddRow("wmp_1", time.Now()))

	entry, err := engine.ApproveValidation(context.Background(), "acc_1", "vld_1")
	assert.NoError(t, err)
	assert.Equal(t, model.ValidationApproved, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveValidation_WarmupFailureDoesNotRollBack(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("UPDATE validation_queue SET status").
		WithArgs("vld_1", "acc_1", model.ValidationApproved, model.ValidationPending).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "contact_id", "account_id", "status", "created_at"}).
			AddRow("vld_1", "ctt_1", "acc_1", "approved", time.Now()))
	mock.ExpectExec("UPDATE contacts SET status").
		WithArgs("ctt_1", "acc_1", model.ContactStatusReadyForOutreach).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT confidence_threshold").
		WithArgs("acc_1").
		WillReturnError(errors.New("settings store down"))

	entry, err := engine.ApproveValidation(context.Background(), "acc_1", "vld_1")
	assert.NoError(t, err)
	assert.Equal(t, model.ValidationApproved, entry.Status)
}

func TestApproveValidation_AlreadyDecided(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("UPDATE validation_queue SET status").
		WithArgs("vld_1", "acc_1", model.ValidationApproved, model.ValidationPending).
		WillReturnError(sql.ErrNoRows)

	_, err := engine.ApproveValidation(context.Background(), "acc_1", "vld_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestRejectValidation_ParksContactInNurture(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("UPDATE validation_queue SET status").
		WithArgs("vld_1", "acc_1", model.ValidationRejected, model.ValidationPending).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "contact_id", "account_id", "status", "created_at"}).
			AddRow("vld_1", "ctt_1", "acc_1", "rejected", time.Now()))
	mock.ExpectExec("UPDATE contacts SET status").
		WithArgs("ctt_1", "acc_1", model.ContactStatusNurture).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := engine.RejectValidation(context.Background(), "acc_1", "vld_1")
	assert.NoError(t, err)
	assert.Equal(t, model.ValidationRejected, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingValidations(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("SELECT queue_id, contact_id, account_id, status, created_at FROM validation_queue").
		WithArgs("acc_1", model.ValidationPending, 50).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "contact_id", "account_id", "status", "created_at"}).
			AddRow("vld_1", "ctt_1", "acc_1", "pending", time.Now()))

	entries, err := engine.GetPendingValidations(context.Background(), "acc_1", 0)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

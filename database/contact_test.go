package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

func TestUpdateContactStatus_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE contacts SET status").
		WithArgs("ctt_1", "acc_1", model.ContactStatusNurture).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateContactStatus(context.Background(), "acc_1", "ctt_1", model.ContactStatusNurture)
	assert.NoError(t, err)
}

func TestUpdateContactStatus_WrongAccountNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE contacts SET status").
		WithArgs("ctt_1", "acc_other", model.ContactStatusNurture).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateContactStatus(context.Background(), "acc_other", "ctt_1", model.ContactStatusNurture)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetEngagedContactIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs("acc_1", model.ContactStatusContacted).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}).AddRow("ctt_1").AddRow("ctt_3"))

	ids, err := ds.GetEngagedContactIDs(context.Background(), "acc_1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"ctt_1", "ctt_3"}, ids)
}

func TestGetPendingConnectionContactIDs_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT contact_id FROM contacts").
		WithArgs("acc_1", model.ContactStatusConnectionPending).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}))

	ids, err := ds.GetPendingConnectionContactIDs(context.Background(), "acc_1")
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

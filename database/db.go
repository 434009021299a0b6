package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/internal/cache"
)

var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, errors.Wrap(err, "failed to ping database")
	}
	err = CreateTables(db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tables")
	}
	return db, nil
}

// CreateTables creates the engine's tables if they do not exist. Every
// table carries account_id so reads and writes stay tenant-scoped.
func CreateTables(db *sql.DB) error {
	err := createContactTable(db)
	if err != nil {
		return err
	}
	err = createAccountSettingsTable(db)
	if err != nil {
		return err
	}
	err = createWarmupScheduleTable(db)
	if err != nil {
		return err
	}
	err = createReviewItemTable(db)
	if err != nil {
		return err
	}
	err = createValidationQueueTable(db)
	if err != nil {
		return err
	}
	err = createConversationLogTable(db)
	if err != nil {
		return err
	}
	return createAuditLogTable(db)
}

func createContactTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id SERIAL PRIMARY KEY,
			contact_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			full_name TEXT,
			profile_url TEXT,
			email_address TEXT,
			status TEXT NOT NULL,
			vip BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createAccountSettingsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS account_settings (
			id SERIAL PRIMARY KEY,
			account_id TEXT NOT NULL UNIQUE,
			confidence_threshold INT,
			warmup_duration_days INT,
			tier TEXT NOT NULL DEFAULT 'basic',
			domain_warmup_started_at TIMESTAMP
		)
	`)
	return err
}

func createWarmupScheduleTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS warmup_schedules (
			id SERIAL PRIMARY KEY,
			schedule_id TEXT NOT NULL UNIQUE,
			contact_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ready_at TIMESTAMP NOT NULL,
			phase TEXT NOT NULL,
			likes_count INT NOT NULL DEFAULT 0,
			comments_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (contact_id, account_id)
		)
	`)
	return err
}

func createReviewItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS review_items (
			id SERIAL PRIMARY KEY,
			review_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			profile_url TEXT,
			email_address TEXT,
			proposed_subject TEXT,
			proposed_body TEXT NOT NULL,
			confidence INT NOT NULL,
			priority BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'pending',
			rejection_reason TEXT,
			decided_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createValidationQueueTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS validation_queue (
			id SERIAL PRIMARY KEY,
			queue_id TEXT NOT NULL UNIQUE,
			contact_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (contact_id, account_id)
		)
	`)
	return err
}

func createConversationLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_log (
			id SERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			subject TEXT,
			body TEXT NOT NULL,
			provider_message_id TEXT,
			delivery_status TEXT NOT NULL,
			generated_by_ai BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createAuditLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id SERIAL PRIMARY KEY,
			audit_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

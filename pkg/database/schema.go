package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the tables backing consultation request history
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	statements := []string{
		createConsultationRequestsTable,
		createConsultationRequestsIndexes,
		createMeetingHistoryTable,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// Requests are retained after reaching a terminal status. The CHECK keeps
// meeting_id populated exactly when the request is confirmed.
const createConsultationRequestsTable = `
CREATE TABLE IF NOT EXISTS consultation_requests (
	id               VARCHAR(64) PRIMARY KEY,
	patient_id       VARCHAR(64) NOT NULL,
	doctor_id        VARCHAR(64) NOT NULL DEFAULT '',
	doctor_snapshot  JSONB NOT NULL DEFAULT '{}',
	patient_snapshot JSONB NOT NULL DEFAULT '{}',
	status           VARCHAR(16) NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'confirmed', 'cancelled')),
	meeting_id       VARCHAR(128),
	reason           TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((status = 'confirmed') = (meeting_id IS NOT NULL))
);`

const createConsultationRequestsIndexes = `
CREATE INDEX IF NOT EXISTS idx_consultation_requests_patient ON consultation_requests (patient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_consultation_requests_doctor ON consultation_requests (doctor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_consultation_requests_status ON consultation_requests (status);`

// Superseded meeting ids are kept for audit.
const createMeetingHistoryTable = `
CREATE TABLE IF NOT EXISTS consultation_meeting_history (
	request_id    VARCHAR(64) NOT NULL REFERENCES consultation_requests (id),
	meeting_id    VARCHAR(128) NOT NULL,
	superseded_by VARCHAR(128) NOT NULL,
	superseded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

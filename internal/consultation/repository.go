package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medrex/teleconsult/pkg/database"
	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

const selectColumns = `id, patient_id, doctor_id, doctor_snapshot, patient_snapshot, status, meeting_id, reason, created_at, updated_at`

// Repository stores consultation requests in postgres
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new consultation repository
func NewRepository(db *database.DB, log *logger.Logger) interfaces.ConsultationRepository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// Create inserts a new pending request
func (r *Repository) Create(ctx context.Context, req *types.ConsultationRequest) error {
	doctor, err := json.Marshal(req.Doctor)
	if err != nil {
		return fmt.Errorf("failed to marshal doctor snapshot: %w", err)
	}
	patient, err := json.Marshal(req.Patient)
	if err != nil {
		return fmt.Errorf("failed to marshal patient snapshot: %w", err)
	}

	query := `
		INSERT INTO consultation_requests (
			id, patient_id, doctor_id, doctor_snapshot, patient_snapshot,
			status, meeting_id, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		req.ID,
		req.PatientID,
		req.DoctorID,
		doctor,
		patient,
		string(req.Status),
		req.MeetingID,
		req.Reason,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.WithConsultation(req.ID).WithError(err).Error("Failed to create consultation request")
		return fmt.Errorf("failed to create consultation request: %w", err)
	}

	r.logger.WithConsultation(req.ID).Infof("Created consultation request for patient %s with doctor %s", req.PatientID, req.DoctorID)
	return nil
}

// GetByID retrieves a request by id
func (r *Repository) GetByID(ctx context.Context, id string) (*types.ConsultationRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM consultation_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError(fmt.Sprintf("consultation request not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get consultation request: %w", err)
	}
	return req, nil
}

// List retrieves requests matching filters, newest first
func (r *Repository) List(ctx context.Context, filters *types.ConsultationFilters) ([]*types.ConsultationRequest, error) {
	if filters == nil {
		filters = &types.ConsultationFilters{}
	}

	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filters.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argIndex))
		args = append(args, filters.PatientID)
		argIndex++
	}
	if filters.DoctorID != "" {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", argIndex))
		args = append(args, filters.DoctorID)
		argIndex++
	}
	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(filters.Status))
		argIndex++
	}

	query := `SELECT ` + selectColumns + ` FROM consultation_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, max(filters.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultation requests: %w", err)
	}
	defer rows.Close()

	var out []*types.ConsultationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consultation requests: %w", err)
	}
	return out, nil
}

// Transition persists req's new status only while the stored row is still
// pending. Zero affected rows means another actor got there first.
func (r *Repository) Transition(ctx context.Context, req *types.ConsultationRequest) error {
	query := `
		UPDATE consultation_requests
		SET status = $1, meeting_id = $2, doctor_id = $3, updated_at = $4
		WHERE id = $5 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query,
		string(req.Status),
		req.MeetingID,
		req.DoctorID,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to transition consultation request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewStateConflictError(req.ID, "no longer pending")
	}

	r.logger.WithConsultation(req.ID).Infof("Consultation request moved to %s", req.Status)
	return nil
}

// ReplaceMeeting supersedes the meeting of a confirmed request and records the old id
func (r *Repository) ReplaceMeeting(ctx context.Context, id, oldMeetingID, newMeetingID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE consultation_requests
		SET meeting_id = $1, updated_at = $2
		WHERE id = $3 AND status = 'confirmed' AND meeting_id = $4`,
		newMeetingID, time.Now().UTC(), id, oldMeetingID)
	if err != nil {
		return fmt.Errorf("failed to replace meeting: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return types.NewStateConflictError(id, "meeting already replaced")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO consultation_meeting_history (request_id, meeting_id, superseded_by)
		VALUES ($1, $2, $3)`, id, oldMeetingID, newMeetingID); err != nil {
		return fmt.Errorf("failed to record superseded meeting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meeting replacement: %w", err)
	}

	r.logger.WithConsultation(id).Infof("Meeting %s superseded by %s", oldMeetingID, newMeetingID)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*types.ConsultationRequest, error) {
	var (
		req             types.ConsultationRequest
		doctor, patient []byte
		status          string
		meetingID       sql.NullString
	)

	if err := row.Scan(
		&req.ID,
		&req.PatientID,
		&req.DoctorID,
		&doctor,
		&patient,
		&status,
		&meetingID,
		&req.Reason,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	req.Status = types.ConsultationStatus(status)
	if meetingID.Valid {
		req.MeetingID = &meetingID.String
	}
	if len(doctor) > 0 {
		if err := json.Unmarshal(doctor, &req.Doctor); err != nil {
			return nil, fmt.Errorf("failed to decode doctor snapshot: %w", err)
		}
	}
	if len(patient) > 0 {
		if err := json.Unmarshal(patient, &req.Patient); err != nil {
			return nil, fmt.Errorf("failed to decode patient snapshot: %w", err)
		}
	}
	return &req, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/nudge/internal/model"
)

// MedicationStore holds the entities medication reminders link to, plus the
// log of doses taken.
type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

func (s *MedicationStore) Create(ctx context.Context, ownerID, name, dosage, notes string) (*model.Medication, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medications (id, owner_id, name, dosage, notes) VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, name, dosage, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MedicationStore) GetByID(ctx context.Context, id string) (*model.Medication, error) {
	var m model.Medication
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, dosage, notes, created_at FROM medications WHERE id = ?`, id,
	).Scan(&m.ID, &m.OwnerID, &m.Name, &m.Dosage, &m.Notes, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return &m, nil
}

func (s *MedicationStore) List(ctx context.Context, ownerID string) ([]model.Medication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, dosage, notes, created_at FROM medications WHERE owner_id = ? ORDER BY name ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		var m model.Medication
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Dosage, &m.Notes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// AddLog records a dose event against a medication.
func (s *MedicationStore) AddLog(ctx context.Context, ownerID, medicationID string, takenAt time.Time, scheduledTime, status string) (*model.MedicationLog, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO medication_logs (owner_id, medication_id, taken_at, scheduled_time, status) VALUES (?, ?, ?, ?, ?)`,
		ownerID, medicationID, takenAt.UTC(), scheduledTime, status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.MedicationLog{
		ID:            id,
		OwnerID:       ownerID,
		MedicationID:  medicationID,
		TakenAt:       takenAt.UTC(),
		ScheduledTime: scheduledTime,
		Status:        status,
	}, nil
}

// ListLogs returns a medication's dose log, newest first.
func (s *MedicationStore) ListLogs(ctx context.Context, medicationID string) ([]model.MedicationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, medication_id, taken_at, scheduled_time, status
		 FROM medication_logs WHERE medication_id = ? ORDER BY taken_at DESC, id DESC`,
		medicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list medication logs: %w", err)
	}
	defer rows.Close()

	var logs []model.MedicationLog
	for rows.Next() {
		var l model.MedicationLog
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.MedicationID, &l.TakenAt, &l.ScheduledTime, &l.Status); err != nil {
			return nil, fmt.Errorf("scan medication log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Lookup returns the enrichment view of a medication, or nil if it does not exist.
func (s *MedicationStore) Lookup(ctx context.Context, entityID string) (*model.LinkedEntity, error) {
	m, err := s.GetByID(ctx, entityID)
	if err != nil || m == nil {
		return nil, err
	}
	return &model.LinkedEntity{ID: m.ID, Name: m.Name, Detail: m.Dosage}, nil
}

// RecordCompletion logs a "taken" dose for a completed medication reminder.
func (s *MedicationStore) RecordCompletion(ctx context.Context, ownerID, entityID string, at time.Time, scheduledTime string) error {
	_, err := s.AddLog(ctx, ownerID, entityID, at, scheduledTime, model.MedicationTaken)
	return err
}

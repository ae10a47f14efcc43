package model

import "time"

// Medication log statuses
const (
	MedicationTaken   = "taken"
	MedicationSkipped = "skipped"
)

type Medication struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type MedicationLog struct {
	ID            int64     `json:"id"`
	OwnerID       string    `json:"owner_id"`
	MedicationID  string    `json:"medication_id"`
	TakenAt       time.Time `json:"taken_at"`
	ScheduledTime string    `json:"scheduled_time"`
	Status        string    `json:"status"`
}

// LinkedEntity is the enrichment view of a record a reminder points at.
type LinkedEntity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindListings RunKind = "listings"
	RunKindPhones   RunKind = "phones"
)

type ScrapeRun struct {
	ID             int64      `json:"id" db:"id"`
	PassID         string     `json:"pass_id" db:"pass_id"`
	Kind           RunKind    `json:"kind" db:"kind"`
	Region         string     `json:"region" db:"region"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	ListingsFound  int        `json:"listings_found" db:"listings_found"`
	PhonesResolved int        `json:"phones_resolved" db:"phones_resolved"`
	PhonesFailed   int        `json:"phones_failed" db:"phones_failed"`
	ErrorMessage   string     `json:"error_message" db:"error_message"`
}

package models

import "time"

// SettingKeyStatusConfig is the settings key holding the enrollment status
// vocabulary JSON document.
const SettingKeyStatusConfig = "enrollment_status_config"

// Setting represents a persisted tenant-wide setting entry.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

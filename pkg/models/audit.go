package models

import "time"

// AuditEntry is the compliance record of one completed analysis. It never
// carries session content; SubjectHash is a SHA-256 of the subject id when
// hashing is enabled.
type AuditEntry struct {
	ID               string     `json:"audit_id"`
	SubjectHash      string     `json:"subject_hash"`
	OverallBiasScore float64    `json:"overall_bias_score"`
	Confidence       float64    `json:"confidence"`
	AlertLevel       AlertLevel `json:"alert_level"`
	Layers           []string   `json:"analysis_layers"`
	ParticipantTag   string     `json:"participant_tag,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DBPath         string `yaml:"db_path"`
	RetentionDays  int    `yaml:"retention_days"`
	HashSubjectIDs bool   `yaml:"hash_subject_ids"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	AlertLevel  AlertLevel
	MinScore    float64
	Since       time.Time
	SubjectHash string
	Limit       int
}

// AuditStat holds aggregate audit counts for an alert level/day combination.
type AuditStat struct {
	AlertLevel AlertLevel `json:"alert_level"`
	Day        string     `json:"day"`
	Count      int        `json:"count"`
	AvgScore   float64    `json:"average_bias_score"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// RequestLog is one append-only telemetry row per inbound request.
type RequestLog struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	UserID     *uint          `json:"user_id" gorm:"index"`
	Method     string         `json:"method" gorm:"size:10"`
	Path       string         `json:"path" gorm:"type:text"`
	Headers    datatypes.JSON `json:"headers"`
	Body       string         `json:"body,omitempty" gorm:"type:text"`
	RemoteAddr string         `json:"remote_addr" gorm:"size:64"`
	Referrer   string         `json:"referrer,omitempty" gorm:"type:text"`
	UserAgent  string         `json:"user_agent,omitempty" gorm:"type:text"`
	Device     string         `json:"device,omitempty" gorm:"size:100"`
	Browser    string         `json:"browser,omitempty" gorm:"size:100"`
	OS         string         `json:"os,omitempty" gorm:"column:os;size:100"`
	Country    string         `json:"country,omitempty" gorm:"size:100"`
	Timezone   string         `json:"timezone,omitempty" gorm:"size:100"`
	StatusCode int            `json:"status_code"`
	DurationMs float64        `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at" gorm:"index"`
}

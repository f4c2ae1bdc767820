package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportCache is a stored report keyed by input and config fingerprint.
type ReportCache struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Key          string             `bson:"key" json:"key"`
	Profile      string             `bson:"profile" json:"profile"`
	ConfigPrint  string             `bson:"config_fingerprint" json:"config_fingerprint"`
	Report       Report             `bson:"report" json:"report"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	LastAccessed time.Time          `bson:"last_accessed" json:"last_accessed"`
	AccessCount  int                `bson:"access_count" json:"access_count"`
}

func NewReportCache(key, configPrint string, report Report) *ReportCache {
	now := time.Now()
	return &ReportCache{
		Key:          key,
		Profile:      report.Profile,
		ConfigPrint:  configPrint,
		Report:       report,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
	}
}

// UpdateAccess records a cache hit.
func (rc *ReportCache) UpdateAccess() {
	rc.LastAccessed = time.Now()
	rc.AccessCount++
}

// IsExpired reports whether the entry is older than ttl.
func (rc *ReportCache) IsExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(rc.CreatedAt) > ttl
}

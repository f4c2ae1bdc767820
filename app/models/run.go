package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunRecord is the history entry written for each completed check.
type RunRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RunID       string             `bson:"run_id" json:"run_id"`
	Source      string             `bson:"source" json:"source"`
	Profile     string             `bson:"profile" json:"profile"`
	ConfigPrint string             `bson:"config_fingerprint" json:"config_fingerprint"`
	ReportKey   string             `bson:"report_key" json:"report_key"`
	Cached      bool               `bson:"cached" json:"cached"`
	Summary     Summary            `bson:"summary" json:"summary"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

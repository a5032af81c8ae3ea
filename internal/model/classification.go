// Copyright 2025 James Ross
package model

// ClassificationEntry is the persisted output of the out-of-scope
// classifier, consumed read-only by the core (§3 ClassificationCache).
type ClassificationEntry struct {
	ParkID          int64        `json:"park_id" db:"park_id"`
	RideID          int64        `json:"ride_id" db:"ride_id"`
	Tier            Tier         `json:"tier" db:"tier"`
	Category        RideCategory `json:"category" db:"category"`
	Confidence      float64      `json:"confidence" db:"confidence"`
	Reasoning       string       `json:"reasoning" db:"reasoning"`
	ResearchSources []string     `json:"research_sources" db:"research_sources"`
	SchemaVersion   int          `json:"schema_version" db:"schema_version"`
}

// ClassificationOverride is a human-entered correction that outranks both
// the classifier cache and the default, keyed by (park_id, ride_id).
type ClassificationOverride struct {
	ParkID   int64        `json:"park_id" db:"park_id"`
	RideID   int64        `json:"ride_id" db:"ride_id"`
	Tier     Tier         `json:"tier" db:"tier"`
	Category RideCategory `json:"category" db:"category"`
	Reason   string       `json:"reason" db:"reason"`
}

// DefaultClassification is the fallback applied when neither an override
// nor a cached classification exists: tier weight 2, category ATTRACTION,
// never an error (§7).
func DefaultClassification(parkID, rideID int64) ClassificationEntry {
	return ClassificationEntry{
		ParkID:   parkID,
		RideID:   rideID,
		Tier:     TierUnknown,
		Category: CategoryAttraction,
	}
}

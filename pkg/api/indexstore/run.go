package indexstore

import "time"

// Run represents a single indexed hive run in the database. It
// denormalizes the listing entry so grouped and historical queries do
// not have to refetch listings from the source backend.
type Run struct {
	ID        uint   `gorm:"primaryKey"`
	Directory string `gorm:"not null;uniqueIndex:idx_runs_dir_file"`
	FileName  string `gorm:"not null;uniqueIndex:idx_runs_dir_file"`

	Name       string `gorm:"index"`
	NTests     int
	Passes     int
	Fails      int
	Timeout    bool
	Start      time.Time
	ClientsKey string `gorm:"index"`

	// Client versions serialized as JSON.
	VersionsJSON string `gorm:"type:text"`

	HasDetail bool
	IndexedAt time.Time
}

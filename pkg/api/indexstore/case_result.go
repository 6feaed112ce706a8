package indexstore

import "time"

// CaseResult represents one test case outcome extracted from a run's
// detail file. It backs the per-case history view.
type CaseResult struct {
	ID        uint   `gorm:"primaryKey"`
	Directory string `gorm:"not null;uniqueIndex:idx_cases_dir_file_case"`
	FileName  string `gorm:"not null;uniqueIndex:idx_cases_dir_file_case"`
	CaseID    string `gorm:"not null;uniqueIndex:idx_cases_dir_file_case"`

	Name  string `gorm:"index"`
	Pass  bool
	Start time.Time
	End   time.Time
}

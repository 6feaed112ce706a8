// Package hive defines the test-run data model shared by the sources,
// engines, and API layers. The JSON field names follow the hive result
// file conventions so files written by a hive simulator run can be
// decoded without translation.
package hive

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// RunRecord is one recorded execution of a test suite against a
// specific set of clients. It corresponds to a single line of a
// directory's listing.jsonl file.
type RunRecord struct {
	Name     string            `json:"name"`
	NTests   int               `json:"ntests"`
	Passes   int               `json:"passes"`
	Fails    int               `json:"fails"`
	Timeout  bool              `json:"timeout"`
	Clients  []string          `json:"clients"`
	Versions map[string]string `json:"versions,omitempty"`
	Start    time.Time         `json:"start"`
	FileName string            `json:"fileName"`
	SimLog   string            `json:"simLog,omitempty"`
}

// TestDetail is the full per-test-case breakdown backing one RunRecord.
// It is fetched lazily by fileName and is immutable once decoded.
type TestDetail struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	ClientVersions map[string]string   `json:"clientVersions,omitempty"`
	TestCases      map[string]TestCase `json:"testCases"`
	RunMetadata    *RunMetadata        `json:"runMetadata,omitempty"`
}

// TestCase is a single test case inside a TestDetail.
type TestCase struct {
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Start         time.Time             `json:"start"`
	End           time.Time             `json:"end"`
	SummaryResult SummaryResult         `json:"summaryResult"`
	ClientInfo    map[string]ClientInfo `json:"clientInfo,omitempty"`
}

// SummaryResult is the outcome of a single test case.
type SummaryResult struct {
	Pass    bool   `json:"pass"`
	Details string `json:"details,omitempty"`
}

// ClientInfo describes one client container that participated in a
// test case.
type ClientInfo struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name"`
	IP             string    `json:"ip,omitempty"`
	InstantiatedAt time.Time `json:"instantiatedAt"`
	LogFile        string    `json:"logFile,omitempty"`
}

// RunMetadata carries provenance information about how a run was
// produced. It is passthrough data: the engines never interpret it.
type RunMetadata struct {
	HiveCommand  []string        `json:"hiveCommand,omitempty"`
	HiveVersion  json.RawMessage `json:"hiveVersion,omitempty"`
	ClientConfig json.RawMessage `json:"clientConfig,omitempty"`
}

// Sanitize substitutes safe defaults for malformed or missing fields
// so that downstream transformations never have to deal with nil
// slices or negative counts. It is applied once at the fetch boundary.
func (r *RunRecord) Sanitize() {
	if r.Clients == nil {
		r.Clients = []string{}
	}

	if r.NTests < 0 {
		r.NTests = 0
	}

	if r.Passes < 0 {
		r.Passes = 0
	}

	if r.Fails < 0 {
		r.Fails = 0
	}
}

// BaseName returns the record's test name stripped of any directory
// prefix, e.g. "devp2p/discv4" becomes "discv4".
func (r *RunRecord) BaseName() string {
	if idx := strings.LastIndex(r.Name, "/"); idx >= 0 {
		return r.Name[idx+1:]
	}

	return r.Name
}

// ClientSetKey returns the canonical client-set key: the client names
// sorted and joined with "+". Client order in the record is not
// significant, so two records with the same clients in a different
// order produce the same key.
func (r *RunRecord) ClientSetKey() string {
	if len(r.Clients) == 0 {
		return ""
	}

	clients := make([]string, len(r.Clients))
	copy(clients, r.Clients)
	sort.Strings(clients)

	return strings.Join(clients, "+")
}

// IdentityKey returns the test identity used to correlate historical
// runs of "the same" test: the base name plus the canonical client-set
// key. Two records share an identity iff both components match.
func (r *RunRecord) IdentityKey() string {
	return r.BaseName() + "@" + r.ClientSetKey()
}

// PassRate returns passes/ntests as a percentage. A run with zero
// tests has a 0% pass rate, never NaN.
func (r *RunRecord) PassRate() float64 {
	if r.NTests == 0 {
		return 0
	}

	return float64(r.Passes) / float64(r.NTests) * 100
}

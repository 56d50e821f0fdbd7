// Package loadtest drives a running crowdfund API with synthetic wallets
// and checks that every participant reads back what was last written.
package loadtest

import (
	"time"

	"github.com/okian/crowdfund/internal/domain/funding"
	"github.com/okian/crowdfund/internal/domain/model"
	"github.com/okian/crowdfund/internal/domain/selection"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Participants int           // Number of synthetic wallets
	Rounds       int           // Writes issued per wallet
	Workers      int           // Wallets driven concurrently
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool          // Log every failed request
}

// Stats holds run statistics.
type Stats struct {
	Participants  int
	WritesIssued  int
	WritesOK      int
	WritesFailed  int
	RateLimited   int
	Verified      int
	Mismatches    int
	Failures      []string // first few mismatch descriptions
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	WritesPerSec  float64
	SuccessRatePc float64
}

// write is one PUT against a wallet. Milestone 0 targets the tier.
type write struct {
	Milestone int
	Value     float64
}

// plan is the ordered writes for one wallet plus the state they leave.
type plan struct {
	Wallet   string
	Writes   []write
	Expected model.ParticipantRecord
	Failed   bool // a write was rejected; Expected is unreliable
}

// participantView mirrors the GET /participants/{wallet} body.
type participantView struct {
	Record    model.ParticipantRecord `json:"record"`
	Funding   []funding.Amount        `json:"funding"`
	Total     string                  `json:"total"`
	Selection selection.Selection     `json:"selection"`
	Stale     bool                    `json:"stale"`
}

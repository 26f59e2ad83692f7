package housing

import (
	"strings"
	"time"
)

// Location is a world's hosting region.
type Location struct {
	Label string `json:"label"`
	Code  int    `json:"code"`
}

// UnknownCode marks a location or PvP ruleset that was not recognised; the
// label then carries the raw source text.
const UnknownCode = -1

// Known world locations.
var (
	LocationNorthAmerica = Location{Label: "North America", Code: 0}
	LocationSouthAmerica = Location{Label: "South America", Code: 1}
	LocationEurope       = Location{Label: "Europe", Code: 2}
)

// PvPType is a world's combat ruleset.
type PvPType struct {
	Label string `json:"label"`
	Code  int    `json:"code"`
}

// Known PvP rulesets.
var (
	PvPOptional      = PvPType{Label: "Optional PvP", Code: 0}
	PvPOpen          = PvPType{Label: "Open PvP", Code: 1}
	PvPRetroOpen     = PvPType{Label: "Retro Open PvP", Code: 2}
	PvPHardcore      = PvPType{Label: "Hardcore PvP", Code: 3}
	PvPRetroHardcore = PvPType{Label: "Retro Hardcore PvP", Code: 4}
)

// Server is a discovered game world.
type Server struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Location     Location `json:"location"`
	PvPType      PvPType  `json:"pvpType"`
	BattlEye     bool     `json:"battleye"`
	Experimental bool     `json:"experimental"`
}

// Status is a listing's market state.
type Status string

// Listing states in precedence order.
const (
	StatusRented    Status = "rented"
	StatusAuctioned Status = "auctioned"
	StatusAvailable Status = "available"
)

// Category selects which listing family a fetch targets.
type Category string

// Listing categories understood by the remote source.
const (
	CategoryAll        Category = ""
	CategoryHouses     Category = "houses"
	CategoryGuildhalls Category = "guildhalls"
)

// Listing is a single house or guildhall on one world.
type Listing struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	ServerID   int64      `json:"serverId"`
	ServerName string     `json:"serverName"`
	Town       string     `json:"town"`
	Size       int64      `json:"size"`
	Rent       int64      `json:"rent"`
	Status     Status     `json:"status"`
	CurrentBid *int64     `json:"currentBid,omitempty"`
	AuctionEnd *time.Time `json:"auctionEnd,omitempty"`
	Guildhall  bool       `json:"isGuildhall"`
	URL        string     `json:"url"`
}

// Family names the table a listing belongs to.
func (l Listing) Family() Family {
	if l.Guildhall {
		return FamilyGuildhall
	}
	return FamilyHouse
}

// Family discriminates the two listing tables.
type Family string

// Listing families.
const (
	FamilyHouse     Family = "house"
	FamilyGuildhall Family = "guildhall"
)

// IsGuildhallName reports whether a listing name marks it as a guildhall.
func IsGuildhallName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "guildhall") || strings.Contains(lower, "guild")
}

// ExtractRequest carries the context a page was fetched for.
type ExtractRequest struct {
	ServerName string
	ServerID   int64
	Category   Category
}

// ServerResult summarises one world's ingest.
type ServerResult struct {
	Server     string
	Houses     int
	Guildhalls int
	Skipped    int
	Failed     int
}

// RunStatus mirrors the scraping_runs status column.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats are the aggregate counters recorded when a run finishes.
type RunStats struct {
	Houses     int
	Guildhalls int
	Servers    int
}

// Add folds one server's result into the run totals.
func (s *RunStats) Add(r ServerResult) {
	s.Houses += r.Houses
	s.Guildhalls += r.Guildhalls
	s.Servers++
}

// Run models one row of scraping_runs.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Stats      RunStats
	Status     RunStatus
	Error      *string
}

// RequestPolicy groups the pacing knobs shared by the task runner and retrier.
type RequestPolicy struct {
	Delay       time.Duration
	Concurrency int
	MaxRetries  int
	RetryBase   float64
	RetryUnit   time.Duration
}

package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

const houseRowSelector = `.TableContent tr[bgcolor], tr[bgcolor="#F1E0C6"], tr[bgcolor="#D4C0A1"]`

// Extractor parses listing and world pages.
type Extractor struct {
	baseURL string
	logger  *zap.Logger
}

// New builds an Extractor; baseURL prefixes listing and pagination links.
func New(baseURL string, logger *zap.Logger) *Extractor {
	if baseURL == "" {
		baseURL = housing.DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{baseURL: strings.TrimRight(baseURL, "/"), logger: logger.Named("extract")}
}

// Houses reads every listing row on a house search page. Rows without an id
// or a name are skipped. A page without a results table is treated as
// maintenance.
func (e *Extractor) Houses(doc Scope, req housing.ExtractRequest) ([]housing.Listing, error) {
	if doc.Len(".TableContainer") == 0 {
		return nil, ErrMaintenance
	}

	var listings []housing.Listing
	skipped := 0
	doc.Each(houseRowSelector, func(row Scope) {
		listing, ok := e.listing(row, req)
		if !ok {
			skipped++
			return
		}
		listings = append(listings, listing)
	})
	if skipped > 0 {
		e.logger.Debug("skipped unparsable rows",
			zap.String("server", req.ServerName),
			zap.Int("rows", skipped),
		)
	}
	return listings, nil
}

func (e *Extractor) listing(row Scope, req housing.ExtractRequest) (housing.Listing, bool) {
	name := row.Text("td:nth-child(1)")

	var form Scope
	row.Each("td", func(td Scope) { form = td })
	if form == nil {
		return housing.Listing{}, false
	}
	rawID, _ := form.Attr(`form input[name="houseid"]`, "value")
	id := StringToNumber(rawID)
	if id == 0 || name == "" {
		return housing.Listing{}, false
	}

	town, _ := form.Attr(`form input[name="town"]`, "value")
	if town == "" {
		town = housing.UnknownTown
	}
	world, _ := form.Attr(`form input[name="world"]`, "value")
	if world == "" {
		world = req.ServerName
	}

	status := ClassifyStatus(row.Text("td:nth-child(4)"))
	return housing.Listing{
		ID:         id,
		Name:       name,
		ServerID:   req.ServerID,
		ServerName: req.ServerName,
		Town:       town,
		Size:       ParseSize(row.Text("td:nth-child(2)")),
		Rent:       ParseRent(row.Text("td:nth-child(3)")),
		Status:     status.Status,
		CurrentBid: status.CurrentBid,
		AuctionEnd: status.AuctionEnd,
		Guildhall:  req.Category == housing.CategoryGuildhalls || housing.IsGuildhallName(name),
		URL:        housing.HouseURL(e.baseURL, id, world),
	}, true
}

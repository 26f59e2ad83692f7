package extract

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // auction times are published in Central European time

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

var (
	bidPattern     = regexp.MustCompile(`(\d+(?:,\d+)*)\s*gold`)
	auctionPattern = regexp.MustCompile(`(\w{3}\s+\d{1,2}\s+\d{4},\s+\d{1,2}:\d{2}:\d{2})`)

	auctionLayout   = "Jan 2 2006, 15:04:05"
	auctionLocation = loadAuctionLocation()
)

func loadAuctionLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.FixedZone("CET", 60*60)
	}
	return loc
}

// StatusDetail is a classified status cell.
type StatusDetail struct {
	Status     housing.Status
	CurrentBid *int64
	AuctionEnd *time.Time
}

// ClassifyStatus applies the precedence rented > auctioned > available to
// the lower-cased cell text. Bid and auction end are only read for auctioned
// listings and stay nil when their pattern does not match.
func ClassifyStatus(text string) StatusDetail {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case strings.Contains(lower, "rented"):
		return StatusDetail{Status: housing.StatusRented}
	case strings.Contains(lower, "auctioned"):
		detail := StatusDetail{Status: housing.StatusAuctioned}
		if m := bidPattern.FindStringSubmatch(lower); m != nil {
			bid := StringToNumber(m[1])
			detail.CurrentBid = &bid
		}
		if m := auctionPattern.FindStringSubmatch(lower); m != nil {
			if end, ok := ParseAuctionEnd(m[1]); ok {
				detail.AuctionEnd = &end
			}
		}
		return detail
	default:
		return StatusDetail{Status: housing.StatusAvailable}
	}
}

// ParseAuctionEnd reads "Dec 15 2024, 15:30:00" as Central European time and
// returns it in UTC.
func ParseAuctionEnd(s string) (time.Time, bool) {
	clean := strings.Join(strings.Fields(s), " ")
	clean = strings.TrimSuffix(strings.TrimSuffix(clean, " CEST"), " CET")
	if clean == "" {
		return time.Time{}, false
	}
	clean = strings.ToUpper(clean[:1]) + clean[1:]
	t, err := time.ParseInLocation(auctionLayout, clean, auctionLocation)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

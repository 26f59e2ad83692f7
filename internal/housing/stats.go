package housing

// FamilyStats counts one family's listings by status.
type FamilyStats struct {
	Total     int     `json:"total"`
	Rented    int     `json:"rented"`
	Auctioned int     `json:"auctioned"`
	Available int     `json:"available"`
	AvgRent   float64 `json:"avgRent"`
}

// ServerStats aggregates a world's listings per family.
type ServerStats struct {
	Houses     FamilyStats `json:"houses"`
	Guildhalls FamilyStats `json:"guildhalls"`
}

// Summarize counts listings by family and status.
func Summarize(listings []Listing) ServerStats {
	var out ServerStats
	var houseRent, guildRent int64
	for _, l := range listings {
		fs := &out.Houses
		rent := &houseRent
		if l.Guildhall {
			fs = &out.Guildhalls
			rent = &guildRent
		}
		fs.Total++
		*rent += l.Rent
		switch l.Status {
		case StatusRented:
			fs.Rented++
		case StatusAuctioned:
			fs.Auctioned++
		default:
			fs.Available++
		}
	}
	if out.Houses.Total > 0 {
		out.Houses.AvgRent = float64(houseRent) / float64(out.Houses.Total)
	}
	if out.Guildhalls.Total > 0 {
		out.Guildhalls.AvgRent = float64(guildRent) / float64(out.Guildhalls.Total)
	}
	return out
}

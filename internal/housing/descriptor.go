package housing

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the community site every descriptor resolves against.
const DefaultBaseURL = "https://www.tibia.com"

// Page selects which community page a descriptor targets.
type Page int

// Community pages the crawler reads.
const (
	PageHouses Page = iota
	PageWorlds
	PageHouseDetail
)

// Descriptor identifies one remote page: a world/town/category listing, the
// world overview, a house detail page, or an explicit absolute URL produced
// by pagination.
type Descriptor struct {
	Page     Page
	World    string
	Town     string
	Category Category
	State    string
	Order    string
	HouseID  int64
	URL      string
}

// WorldsPage targets the world overview used for discovery.
func WorldsPage() Descriptor {
	return Descriptor{Page: PageWorlds}
}

// ListingPage targets one world's listings for a town and category. An empty
// town covers every town.
func ListingPage(world, town string, category Category) Descriptor {
	return Descriptor{Page: PageHouses, World: world, Town: town, Category: category}
}

// Resolve renders the descriptor as an absolute URL under base.
func (d Descriptor) Resolve(base string) string {
	if d.URL != "" {
		return d.URL
	}
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")

	switch d.Page {
	case PageWorlds:
		return base + "/community/?subtopic=worlds"
	case PageHouseDetail:
		return HouseURL(base, d.HouseID, d.World)
	}

	params := url.Values{}
	if d.World != "" {
		params.Set("world", d.World)
	}
	if d.Town != "" && d.Town != "all" {
		params.Set("town", d.Town)
	}
	if d.State != "" && d.State != "all" {
		params.Set("state", d.State)
	}
	if d.Category != CategoryAll {
		params.Set("type", string(d.Category))
	}
	if d.Order != "" {
		params.Set("order", d.Order)
	}
	out := base + "/community/?subtopic=houses"
	if q := params.Encode(); q != "" {
		out += "&" + q
	}
	return out
}

// HouseURL is the public detail page of one listing.
func HouseURL(base string, houseID int64, world string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/community/?subtopic=houses&page=view&houseid=" +
		strconv.FormatInt(houseID, 10) + "&world=" + world
}

// String is used as the log label of a descriptor.
func (d Descriptor) String() string {
	switch {
	case d.URL != "":
		return d.URL
	case d.Page == PageWorlds:
		return "worlds"
	case d.Page == PageHouseDetail:
		return "house " + strconv.FormatInt(d.HouseID, 10) + "@" + d.World
	}
	town := d.Town
	if town == "" {
		town = "all towns"
	}
	category := string(d.Category)
	if category == "" {
		category = "all"
	}
	return d.World + "/" + town + "/" + category
}

package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

const battlEyeIcon = "https://static.tibia.com/images/global/content/icon_battleyeinitial.gif"

// Servers reads the world overview. Test worlds are excluded. A page without
// the overview heading is treated as maintenance.
func (e *Extractor) Servers(doc Scope) ([]housing.Server, error) {
	if doc.Len(`.Text:contains("Game World Overview")`) == 0 {
		return nil, ErrMaintenance
	}

	var servers []housing.Server
	doc.Each(".Odd, .Even", func(row Scope) {
		name := row.Text("td:nth-child(1)")
		if name == "" {
			return
		}
		if strings.Contains(strings.ToLower(name), "test") {
			e.logger.Debug("skipping test world", zap.String("server", name))
			return
		}
		icon, _ := row.Attr("td:nth-child(5) img", "src")
		servers = append(servers, housing.Server{
			ID:           housing.ServerID(name),
			Name:         name,
			Location:     ParseLocation(row.Text("td:nth-child(3)")),
			PvPType:      ParsePvPType(row.Text("td:nth-child(4)")),
			BattlEye:     icon == battlEyeIcon,
			Experimental: strings.Contains(strings.ToLower(row.Text("td:nth-child(6)")), "experimental"),
		})
	})
	return servers, nil
}

// ParseLocation classifies a world's region. Unknown regions keep their text.
func ParseLocation(text string) housing.Location {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case strings.Contains(lower, "north america"):
		return housing.LocationNorthAmerica
	case strings.Contains(lower, "south america"):
		return housing.LocationSouthAmerica
	case strings.Contains(lower, "europe"):
		return housing.LocationEurope
	}
	return housing.Location{Label: normalizeSpace(text), Code: housing.UnknownCode}
}

// ParsePvPType classifies a world's ruleset. Retro variants are matched
// before the plain ones they contain.
func ParsePvPType(text string) housing.PvPType {
	lower := strings.ToLower(normalizeSpace(text))
	switch {
	case strings.Contains(lower, "optional pvp"):
		return housing.PvPOptional
	case strings.Contains(lower, "retro open pvp"):
		return housing.PvPRetroOpen
	case strings.Contains(lower, "retro hardcore pvp"):
		return housing.PvPRetroHardcore
	case strings.Contains(lower, "open pvp"):
		return housing.PvPOpen
	case strings.Contains(lower, "hardcore pvp"):
		return housing.PvPHardcore
	}
	return housing.PvPType{Label: normalizeSpace(text), Code: housing.UnknownCode}
}

package housing

// Towns lists every town that can hold houses.
var Towns = []string{
	"Ab'Dendriel",
	"Ankrahmun",
	"Candia",
	"Carlin",
	"Darashia",
	"Edron",
	"Farmine",
	"Gray Beach",
	"Issavi",
	"Kazordoon",
	"Liberty Bay",
	"Moonfall",
	"Port Hope",
	"Rathleton",
	"Silvertides",
	"Svargrond",
	"Thais",
	"Venore",
	"Yalahar",
}

// UnknownTown is used when a row carries no town.
const UnknownTown = "Unknown"

package model

import "github.com/shopspring/decimal"

// Vehicle is the rentable item referenced by reservations.  The workflow
// reads it but never mutates it: Quantity is a capacity ceiling and the
// number of units in use is derived by counting overlapping reservations.
//
// Fields:
//  ID        – primary key.
//  Name      – model name.
//  Brand     – manufacturer.
//  Category  – catalog category.
//  DailyRate – price per rental day.
//  Quantity  – number of identical units in the fleet.
//  ImageURL  – catalog image.
type Vehicle struct {
	ID        uint64          // produits.id
	Name      string          // produits.nom
	Brand     string          // produits.marque
	Category  string          // produits.categorie
	DailyRate decimal.Decimal // produits.prix
	Quantity  int             // produits.quantite
	ImageURL  string          // produits.image_url
}

// Location is one of the fixed pickup and return points.
type Location string

const (
	LocationCasablancaCentre Location = "casablanca-centre"
	LocationAirportMohammedV Location = "aeroport-mohammed-v"
	LocationGareCasaPort     Location = "gare-casa-port"
	LocationAinDiab          Location = "ain-diab"
)

var locationLabels = map[Location]string{
	LocationCasablancaCentre: "Casablanca Centre",
	LocationAirportMohammedV: "Aéroport Mohammed V",
	LocationGareCasaPort:     "Gare Casa Port",
	LocationAinDiab:          "Ain Diab",
}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	_, ok := locationLabels[l]
	return ok
}

// Label returns the display name of the location.
func (l Location) Label() string {
	if s, ok := locationLabels[l]; ok {
		return s
	}
	return string(l)
}

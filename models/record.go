package models

import "strings"

// Record represents one agency entry scraped from the directory
type Record struct {
	ID       string // Stable identifier assigned at extraction time
	Name     string
	Phone    string
	Email    string // Canonical address, empty if absent or rejected
	Locality string
	GroupKey string // Search term (province) the record was found under
}

// RejectedEmail is an address the normalizer could not repair.
// It lives for one run and is resolved by the correction workflow or discarded.
type RejectedEmail struct {
	RecordID   string
	RecordName string
	RawValue   string // Original value before normalization
}

// PaginationState tracks traversal progress for a single run
type PaginationState struct {
	PageIndex int
	HasNext   bool
}

// Columns returns the tabular export header for records
func Columns() []string {
	return []string{"name", "phone", "email", "locality", "groupKey", "id"}
}

// Row returns the record as a row matching Columns
func (r Record) Row() []string {
	return []string{r.Name, r.Phone, r.Email, r.Locality, r.GroupKey, r.ID}
}

// RecordFromRow builds a record from a row in Columns order.
// Missing trailing cells are left empty so rows written without an id column still load.
func RecordFromRow(row []string) Record {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Record{
		Name:     get(0),
		Phone:    get(1),
		Email:    get(2),
		Locality: get(3),
		GroupKey: get(4),
		ID:       get(5),
	}
}

// Provinces lists the Argentine provinces offered as search terms
var Provinces = []string{
	"Buenos Aires",
	"Catamarca",
	"Chaco",
	"Chubut",
	"Córdoba",
	"Corrientes",
	"Entre Ríos",
	"Formosa",
	"Jujuy",
	"La Pampa",
	"La Rioja",
	"Mendoza",
	"Misiones",
	"Neuquén",
	"Río Negro",
	"Salta",
	"San Juan",
	"San Luis",
	"Santa Cruz",
	"Santa Fe",
	"Santiago del Estero",
	"Tierra del Fuego",
	"Tucumán",
}

// Slug turns a group key into a file name component: "Entre Ríos" becomes "entre_ríos"
func Slug(groupKey string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(groupKey)), " ", "_")
}

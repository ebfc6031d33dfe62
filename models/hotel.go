package models

import "sort"

// NotAvailable is stored for hotel fields missing from the detail page
const NotAvailable = "No disponible"

// Hotel represents a hotel detail page from the AHTRA directory
type Hotel struct {
	Name    string
	Address string
	Phone   string
	Email   string
	Website string
	URL     string
}

// Filiales maps AHTRA branch IDs to their display names
var Filiales = map[int]string{
	1:  "Bariloche & Villa La Angostura",
	2:  "Ciudad de Buenos Aires",
	3:  "Córdoba",
	4:  "Santa Cruz",
	6:  "Mar de las Pampas",
	7:  "Jujuy",
	9:  "Buenos Aires",
	11: "Pinamar - Cariló",
	12: "Iguazú",
	13: "Chubut",
	14: "Salta",
	15: "Tucumán",
	16: "Tierra del Fuego",
	21: "Mendoza",
	24: "Litoral",
	99: "Más Hoteles Asociados",
}

// FilialIDs returns the branch IDs in ascending order
func FilialIDs() []int {
	ids := make([]int, 0, len(Filiales))
	for id := range Filiales {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

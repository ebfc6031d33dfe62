package parser

import (
	"errors"
	"fmt"
	"strings"

	"rnav-scraper/email"
	"rnav-scraper/models"
	"rnav-scraper/page"

	"github.com/google/uuid"
)

// ErrNoName is returned for cards whose name cannot be read; such cards are dropped
var ErrNoName = errors.New("card has no readable name")

const (
	LabelPhone    = "Teléfono"
	LabelEmail    = "Correo electrónico"
	LabelLocality = "Localidad"
)

// DefaultDetailSelector matches the "<Label>: <value>" paragraphs of a card
const DefaultDetailSelector = "p.leading-relaxed.text-sm"

// Extraction is the outcome of reading one card
type Extraction struct {
	Record    models.Record
	Rejection *models.RejectedEmail // set when the email failed normalization
	Missing   []error               // detail reads that failed and were left empty
}

// CardExtractor turns listing cards into records
type CardExtractor struct {
	// ContainerDepth is how many levels above the name element the detail paragraphs live
	ContainerDepth int
	DetailSelector string
	Normalize      func(raw string) (string, error)
	NewID          func() string
}

// NewCardExtractor creates a CardExtractor for the agency directory layout
func NewCardExtractor() *CardExtractor {
	return &CardExtractor{
		ContainerDepth: 2,
		DetailSelector: DefaultDetailSelector,
		Normalize:      email.Normalize,
		NewID:          uuid.NewString,
	}
}

// Extract reads one card. The card element holds the name; the detail
// paragraphs sit in an ancestor container. Detail read failures never abort
// the card, they are reported in Extraction.Missing.
func (ce *CardExtractor) Extract(card page.Element, groupKey string) (Extraction, error) {
	text, err := card.Text()
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrNoName, err)
	}
	name := strings.TrimSpace(text)
	if name == "" {
		return Extraction{}, ErrNoName
	}

	ex := Extraction{
		Record: models.Record{
			ID:       ce.NewID(),
			Name:     name,
			GroupKey: groupKey,
		},
	}

	paragraphs, err := ce.details(card)
	if err != nil {
		ex.Missing = append(ex.Missing, err)
		return ex, nil
	}

	var rawEmail string
	for i, p := range paragraphs {
		line, err := p.Text()
		if err != nil {
			ex.Missing = append(ex.Missing, fmt.Errorf("detail paragraph %d: %w", i+1, err))
			continue
		}
		if v, ok := labelValue(line, LabelPhone); ok {
			ex.Record.Phone = v
		}
		if v, ok := labelValue(line, LabelEmail); ok {
			rawEmail = v
		}
		if v, ok := labelValue(line, LabelLocality); ok {
			ex.Record.Locality = v
		}
	}

	canonical, err := ce.Normalize(rawEmail)
	if err != nil {
		ex.Rejection = &models.RejectedEmail{
			RecordID:   ex.Record.ID,
			RecordName: name,
			RawValue:   rawEmail,
		}
		return ex, nil
	}
	ex.Record.Email = canonical
	return ex, nil
}

func (ce *CardExtractor) details(card page.Element) ([]page.Element, error) {
	container := card
	for i := 0; i < ce.ContainerDepth; i++ {
		parent, err := container.Parent()
		if err != nil {
			return nil, fmt.Errorf("detail container: %w", err)
		}
		container = parent
	}
	paragraphs, err := container.Elements(ce.DetailSelector)
	if err != nil {
		return nil, fmt.Errorf("detail paragraphs: %w", err)
	}
	return paragraphs, nil
}

// labelValue returns the text after "<label>:" when the line carries that label
func labelValue(line, label string) (string, bool) {
	marker := label + ":"
	if !strings.Contains(line, marker) {
		return "", false
	}
	return strings.TrimSpace(strings.ReplaceAll(line, marker, "")), true
}

package parser

import (
	"fmt"
	"strings"

	"rnav-scraper/models"

	"github.com/PuerkitoBio/goquery"
)

// HotelLinkSelector matches the detail links on a branch's hotel index
const HotelLinkSelector = ".row.app-brief #hoteles-foto a"

// HotelParser extracts contact data from AHTRA hotel detail pages
type HotelParser struct{}

// NewHotelParser creates a new HotelParser instance
func NewHotelParser() *HotelParser {
	return &HotelParser{}
}

// ParseHotel reads one detail page. Fields that are absent or blank are set
// to models.NotAvailable.
func (hp *HotelParser) ParseHotel(htmlContent, url string) (*models.Hotel, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &models.Hotel{
		Name:    optionalText(doc, "#hotel-interno-nombre-hotel"),
		Address: optionalText(doc, "#hotel-interno-direccion"),
		Phone:   optionalText(doc, "#hotel-interno-teléfono"),
		Email:   optionalText(doc, "#hotel-interno-mail"),
		Website: optionalText(doc, "#hotel-interno-web a"),
		URL:     url,
	}, nil
}

func optionalText(doc *goquery.Document, selector string) string {
	text := strings.TrimSpace(doc.Find(selector).First().Text())
	if text == "" {
		return models.NotAvailable
	}
	return text
}

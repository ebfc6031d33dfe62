// Package hotels collects contact details from the AHTRA associated-hotels directory
package hotels

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rnav-scraper/email"
	"rnav-scraper/fetcher"
	"rnav-scraper/models"
	"rnav-scraper/parser"

	"go.uber.org/zap"
)

// DefaultBaseURL is the AHTRA site root
const DefaultBaseURL = "https://www.ahtra.com.ar/"

// Scraper walks one branch index and every hotel it links to
type Scraper struct {
	fetcher fetcher.Fetcher
	parser  *parser.HotelParser
	baseURL string
	logger  *zap.SugaredLogger
}

// NewScraper creates a Scraper
func NewScraper(f fetcher.Fetcher, baseURL string, logger *zap.SugaredLogger) *Scraper {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Scraper{
		fetcher: f,
		parser:  parser.NewHotelParser(),
		baseURL: baseURL,
		logger:  logger,
	}
}

// IndexURL returns the hotel list of a branch
func (s *Scraper) IndexURL(filialID int) string {
	return fmt.Sprintf("%shoteles_asociados.php?fil=%d", s.baseURL, filialID)
}

// Scrape returns every hotel of the branch. A detail page that fails to load
// or parse is logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, filialID int) ([]models.Hotel, error) {
	name, ok := models.Filiales[filialID]
	if !ok {
		return nil, fmt.Errorf("unknown filial %d", filialID)
	}

	links, err := s.fetcher.Links(ctx, s.IndexURL(filialID), parser.HotelLinkSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotels: %w", err)
	}
	s.logger.Infof("Found %d hotels in %s (filial %d)", len(links), name, filialID)

	hotels := make([]models.Hotel, 0, len(links))
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return hotels, err
		}

		html, err := s.fetcher.Fetch(ctx, link)
		if err != nil {
			s.logger.Errorf("Error processing %s: %v", link, err)
			continue
		}
		hotel, err := s.parser.ParseHotel(html, link)
		if err != nil {
			s.logger.Errorf("Error processing %s: %v", link, err)
			continue
		}
		hotel.Email = s.cleanEmail(hotel.Email, link)
		hotels = append(hotels, *hotel)
		s.logger.Debugf("Hotel %d/%d: %s", i+1, len(links), hotel.Name)
	}
	return hotels, nil
}

// cleanEmail normalizes the address, keeping the scraped text when it cannot be repaired
func (s *Scraper) cleanEmail(raw, link string) string {
	if raw == models.NotAvailable {
		return raw
	}
	canonical, err := email.Normalize(raw)
	if err != nil {
		s.logger.Warnf("Keeping unrepaired email for %s: %v", link, err)
		return raw
	}
	if canonical == "" {
		return models.NotAvailable
	}
	return canonical
}

// FileName returns the CSV name for a branch: "Bariloche & Villa La Angostura"
// becomes "Bariloche_y_Villa_La_Angostura_AHTRA_hoteles_detalle.csv"
func FileName(filialName string) string {
	safe := strings.ReplaceAll(filialName, " ", "_")
	safe = strings.ReplaceAll(safe, "&", "y")
	return safe + "_AHTRA_hoteles_detalle.csv"
}

// WriteCSV writes the hotels of a branch under dir and returns the file path
func WriteCSV(dir string, filialID int, hotels []models.Hotel) (string, error) {
	name, ok := models.Filiales[filialID]
	if !ok {
		return "", fmt.Errorf("unknown filial %d", filialID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"nombre", "direccion", "telefono", "email", "sitio_web", "url"}); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, h := range hotels {
		if err := w.Write([]string{h.Name, h.Address, h.Phone, h.Email, h.Website, h.URL}); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return path, nil
}

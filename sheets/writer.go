package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"rnav-scraper/models"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer stores each group's records in its own sheet of one spreadsheet
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zap.SugaredLogger
}

// NewWriter creates a new Google Sheets writer. Credentials come from
// credentialsPath when set, otherwise from credentialsJSON (the
// GOOGLE_SHEETS_CREDENTIALS variable).
func NewWriter(ctx context.Context, spreadsheetID, credentialsPath, credentialsJSON string, logger *zap.SugaredLogger) (*Writer, error) {
	var credsJSON []byte
	var err error

	if credentialsPath != "" {
		credsJSON, err = os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	} else {
		credsEnv := strings.TrimSpace(credentialsJSON)
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		logger.Debugf("Reading credentials from GOOGLE_SHEETS_CREDENTIALS (%d bytes)", len(credsEnv))
		credsJSON = []byte(credsEnv)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}
	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewWriterWithService(service, spreadsheetID, logger), nil
}

// NewWriterWithService wraps an already configured service
func NewWriterWithService(service *sheets.Service, spreadsheetID string, logger *zap.SugaredLogger) *Writer {
	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
		logger:        logger,
	}
}

// AppendRecords adds rows after the last used row, writing the header on an empty sheet
func (w *Writer) AppendRecords(ctx context.Context, groupKey string, records []models.Record) error {
	if len(records) == 0 {
		w.logger.Debug("No records to append")
		return nil
	}
	sheetName, err := w.ensureSheet(ctx, groupKey)
	if err != nil {
		return err
	}

	resp, err := w.service.Spreadsheets.Values.Get(w.spreadsheetID, cellRange(sheetName, "A:A")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read existing data: %w", err)
	}

	nextRow := len(resp.Values) + 1
	var values [][]interface{}
	if nextRow == 1 {
		values = append(values, toRow(models.Columns()))
	}
	for _, r := range records {
		values = append(values, toRow(r.Row()))
	}

	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, cellRange(sheetName, fmt.Sprintf("A%d", nextRow)), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to sheets: %w", err)
	}

	w.logger.Infof("Appended %d records to sheet '%s' (starting at row %d)", len(records), sheetName, nextRow)
	return nil
}

// LoadLatest reads the group's sheet; a missing sheet yields no records
func (w *Writer) LoadLatest(ctx context.Context, groupKey string) ([]models.Record, error) {
	sheetName := sanitizeSheetName(groupKey)
	exists, err := w.sheetExists(ctx, sheetName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	resp, err := w.service.Spreadsheets.Values.Get(w.spreadsheetID, cellRange(sheetName, "A:F")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet '%s': %w", sheetName, err)
	}

	var records []models.Record
	for i, row := range resp.Values {
		cells := fromRow(row)
		if i == 0 && len(cells) > 0 && cells[0] == models.Columns()[0] {
			continue
		}
		records = append(records, models.RecordFromRow(cells))
	}
	return records, nil
}

// Overwrite clears the group's sheet and writes header and rows from A1
func (w *Writer) Overwrite(ctx context.Context, groupKey string, records []models.Record) error {
	sheetName, err := w.ensureSheet(ctx, groupKey)
	if err != nil {
		return err
	}

	_, err = w.service.Spreadsheets.Values.Clear(w.spreadsheetID, cellRange(sheetName, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet '%s': %w", sheetName, err)
	}

	values := [][]interface{}{toRow(models.Columns())}
	for _, r := range records {
		values = append(values, toRow(r.Row()))
	}
	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, cellRange(sheetName, "A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write to sheet: %w", err)
	}

	w.logger.Infof("Wrote %d records to sheet '%s'", len(records), sheetName)
	return nil
}

func (w *Writer) sheetExists(ctx context.Context, sheetName string) (bool, error) {
	ss, err := w.service.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheetName {
			return true, nil
		}
	}
	return false, nil
}

// ensureSheet creates the group's sheet when missing and returns its name
func (w *Writer) ensureSheet(ctx context.Context, groupKey string) (string, error) {
	sheetName := sanitizeSheetName(groupKey)
	exists, err := w.sheetExists(ctx, sheetName)
	if err != nil {
		return "", err
	}
	if exists {
		return sheetName, nil
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
		},
	}
	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}
	w.logger.Infof("Created sheet '%s' with ID %d", sheetName, sheetID)
	return sheetName, nil
}

func cellRange(sheetName, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheetName, "'", "''"), cells)
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func fromRow(row []interface{}) []string {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = fmt.Sprint(c)
	}
	return cells
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ]
	invalidChars := []string{"/", "\\", "?", "*", "[", "]"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL.
// A bare ID is returned unchanged.
func ExtractSpreadsheetID(url string) string {
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return strings.TrimSpace(url)
	}

	idPart := parts[1]
	if idx := strings.Index(idPart, "/"); idx != -1 {
		idPart = idPart[:idx]
	}
	if idx := strings.Index(idPart, "?"); idx != -1 {
		idPart = idPart[:idx]
	}
	return strings.TrimSpace(idPart)
}

package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
)

// unitBracketPattern captures the bracketed unit tail of a series header,
// e.g. "Kupfer [€/kg]".
var unitBracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// unitCharReplacer strips the currency and separator noise around a unit
var unitCharReplacer = strings.NewReplacer("€", "", "/", "", "{", "", "}", "")

// IngestFlow handles bulk file ingestion of index and order data
type IngestFlow interface {
	UploadIndicesCSV(ctx context.Context, file []byte, metadata *ClientMetadata) (*dto.UploadReportResponse, error)
	UploadIndicesExcel(ctx context.Context, file []byte, skipSheets int, metadata *ClientMetadata) (*dto.UploadReportResponse, error)
	UploadOrdersCSV(ctx context.Context, file []byte, metadata *ClientMetadata) (*dto.UploadReportResponse, error)
}

// IngestFlowImpl implements the ingestion business flow
type IngestFlowImpl struct {
	indexRepo   repository.IndexRepository
	orderRepo   repository.OrderRepository
	articleRepo repository.ArticleRepository
	db          *gorm.DB
	cacheConfig *config.CacheConfig
	rc          *redis.Client
}

// NewIngestFlow creates a new ingestion flow instance
func NewIngestFlow(
	indexRepo repository.IndexRepository,
	orderRepo repository.OrderRepository,
	articleRepo repository.ArticleRepository,
	db *gorm.DB,
	cacheConfig *config.CacheConfig,
	rc *redis.Client,
) IngestFlow {
	return &IngestFlowImpl{
		indexRepo:   indexRepo,
		orderRepo:   orderRepo,
		articleRepo: articleRepo,
		db:          db,
		cacheConfig: cacheConfig,
		rc:          rc,
	}
}

// UploadIndicesCSV imports a wide CSV of index observations: one date column
// ("Date" or "Datum", DD.MM.YYYY) and one column per series, named by its
// full header. Cells use German decimal notation and may be empty or "-".
// Rows are upserted on (name, date), so re-uploading a file is idempotent
// and the last value wins.
func (s *IngestFlowImpl) UploadIndicesCSV(ctx context.Context, file []byte, metadata *ClientMetadata) (*dto.UploadReportResponse, error) {
	records, err := readCSV(file)
	if err != nil {
		return nil, NewBusinessError("INVALID_CSV", "Cannot parse CSV file", err)
	}
	if len(records) == 0 {
		return nil, NewBusinessError("INVALID_CSV", "CSV file is empty", ErrInvalidUpload)
	}

	headers := records[0]
	dateCol := -1
	for i, h := range headers {
		lowered := strings.ToLower(h)
		if lowered == "date" || lowered == "datum" {
			dateCol = i
			break
		}
	}
	if dateCol < 0 {
		return nil, NewBusinessError("INVALID_CSV", "CSV must include a Date column", ErrInvalidUpload)
	}

	type seriesUnit struct {
		unit  string
		grams float64
	}
	units := make(map[int]seriesUnit)

	var created, updated, skipped int
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		for _, row := range records[1:] {
			if dateCol >= len(row) || strings.TrimSpace(row[dateCol]) == "" {
				skipped++
				continue
			}
			date, err := parseGermanDate(row[dateCol])
			if err != nil {
				skipped++
				continue
			}

			for col, raw := range row {
				if col == dateCol || col >= len(headers) {
					continue
				}
				name := strings.TrimSpace(headers[col])
				if name == "" {
					continue
				}
				value, ok := parseGermanNumber(raw)
				if !ok {
					continue
				}

				info, cached := units[col]
				if !cached {
					info.unit, info.grams = csvHeaderUnit(headers[col])
					units[col] = info
				}

				index := &models.Index{
					Name:        name,
					Value:       utils.Round6(value),
					Date:        date,
					PriceFactor: utils.ToPtr(1.0),
				}
				if info.unit != "" {
					index.Unit = utils.ToPtr(info.unit)
				}
				if info.grams > 0 {
					index.PriceFactor = utils.ToPtr(info.grams)
					index.ValuePerGram = utils.ToPtr(utils.Round6(value / info.grams))
				}

				wasNew, err := s.upsertIndexRecord(txCtx, index)
				if err != nil {
					return err
				}
				if wasNew {
					created++
				} else {
					updated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("INDEX_IMPORT_FAILED", "Failed to import index rows", err)
	}

	return &dto.UploadReportResponse{
		Message: "Index rows imported successfully",
		Created: created,
		Updated: updated,
		Skipped: skipped,
	}, nil
}

// UploadIndicesExcel imports a TAC workbook: after the leading summary
// sheets, every sheet holds one series named by the sheet, with a "Datum"
// column and a price column whose header starts with "TAC -" and carries a
// mass unit. Rows are upserted on (name, date).
func (s *IngestFlowImpl) UploadIndicesExcel(ctx context.Context, file []byte, skipSheets int, metadata *ClientMetadata) (*dto.UploadReportResponse, error) {
	f, err := excelize.OpenReader(bytes.NewReader(file))
	if err != nil {
		return nil, NewBusinessError("INVALID_EXCEL", "Cannot open Excel workbook", err)
	}
	defer f.Close()

	if skipSheets < 0 {
		skipSheets = 0
	}
	sheets := f.GetSheetList()
	if skipSheets >= len(sheets) {
		sheets = nil
	} else {
		sheets = sheets[skipSheets:]
	}

	var created, updated, skipped int
	var importErrors []string

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		for _, sheet := range sheets {
			rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
			if err != nil {
				importErrors = append(importErrors, fmt.Sprintf("sheet %q skipped: %v", sheet, err))
				continue
			}
			if len(rows) == 0 {
				importErrors = append(importErrors, fmt.Sprintf("sheet %q skipped: no rows", sheet))
				continue
			}

			dateCol, priceCol := -1, -1
			var priceHeader string
			for i, h := range rows[0] {
				if dateCol < 0 && h == "Datum" {
					dateCol = i
				}
				if priceCol < 0 && strings.HasPrefix(strings.ToLower(h), "tac -") {
					priceCol = i
					priceHeader = h
				}
			}
			if dateCol < 0 {
				importErrors = append(importErrors, fmt.Sprintf("sheet %q skipped: missing Datum column", sheet))
				continue
			}
			if priceCol < 0 {
				importErrors = append(importErrors, fmt.Sprintf("sheet %q skipped: missing TAC price column", sheet))
				continue
			}

			unit := excelHeaderUnit(priceHeader)
			grams := models.GramsPerUnit(unit)
			if grams == 0 {
				importErrors = append(importErrors, fmt.Sprintf("sheet %q skipped: unsupported unit in column %q", sheet, priceHeader))
				continue
			}

			name := strings.TrimSpace(sheet)
			for _, row := range rows[1:] {
				if dateCol >= len(row) || priceCol >= len(row) {
					skipped++
					continue
				}
				date, err := parseExcelDate(row[dateCol])
				if err != nil {
					skipped++
					continue
				}
				value, err := strconv.ParseFloat(strings.TrimSpace(row[priceCol]), 64)
				if err != nil {
					skipped++
					continue
				}

				index := &models.Index{
					Name:         name,
					Value:        utils.Round6(value),
					ValuePerGram: utils.ToPtr(utils.Round6(value / grams)),
					Date:         date,
					PriceFactor:  utils.ToPtr(grams),
					Unit:         utils.ToPtr(unit),
				}
				wasNew, err := s.upsertIndexRecord(txCtx, index)
				if err != nil {
					return err
				}
				if wasNew {
					created++
				} else {
					updated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("INDEX_IMPORT_FAILED", "Failed to import index rows", err)
	}

	return &dto.UploadReportResponse{
		Message: "Index rows imported successfully",
		Created: created,
		Updated: updated,
		Skipped: skipped,
		Errors:  importErrors,
	}, nil
}

// UploadOrdersCSV imports observed orders from a CSV with article_name,
// price, price_factor, unit and order_date columns. Rows missing any field
// are skipped. A row whose (article_name, order_date, price) already exists
// is refreshed in place, not duplicated.
func (s *IngestFlowImpl) UploadOrdersCSV(ctx context.Context, file []byte, metadata *ClientMetadata) (*dto.UploadReportResponse, error) {
	records, err := readCSV(file)
	if err != nil {
		return nil, NewBusinessError("INVALID_CSV", "Cannot parse CSV file", err)
	}
	if len(records) == 0 {
		return nil, NewBusinessError("INVALID_CSV", "CSV file is empty", ErrInvalidUpload)
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[strings.TrimSpace(h)] = i
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var created, updated, skipped int
	// One lookup per distinct article name
	articleIDs := make(map[string]*uint)
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		for _, row := range records[1:] {
			articleName := cell(row, "article_name")
			price, priceErr := strconv.ParseFloat(cell(row, "price"), 64)
			priceFactor, factorErr := strconv.ParseFloat(cell(row, "price_factor"), 64)
			unit := cell(row, "unit")
			orderDate, dateErr := utils.ParseDate(cell(row, "order_date"))
			if articleName == "" || priceErr != nil || factorErr != nil || unit == "" || dateErr != nil {
				skipped++
				continue
			}

			articleID, cached := articleIDs[articleName]
			if !cached {
				article, err := s.articleRepo.ByName(txCtx, articleName)
				if err != nil {
					return err
				}
				if article != nil {
					articleID = utils.ToPtr(article.ID)
				}
				articleIDs[articleName] = articleID
			}

			existing, err := s.orderRepo.FindDuplicate(txCtx, articleName, orderDate, price)
			if err != nil {
				return err
			}

			order := models.Order{
				ArticleID:   articleID,
				ArticleName: articleName,
				Price:       price,
				PriceFactor: utils.ToPtr(priceFactor),
				Unit:        utils.ToPtr(unit),
				OrderDate:   orderDate,
			}
			if existing != nil {
				order.ID = existing.ID
				order.CreatedAt = existing.CreatedAt
				if err := s.orderRepo.Update(txCtx, order); err != nil {
					return err
				}
				updated++
			} else {
				if err := s.orderRepo.Save(txCtx, &order); err != nil {
					return err
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("ORDER_IMPORT_FAILED", "Failed to import order rows", err)
	}

	for _, articleID := range articleIDs {
		s.invalidateBreakdown(ctx, articleID)
	}

	return &dto.UploadReportResponse{
		Message: "Order rows imported successfully",
		Created: created,
		Updated: updated,
		Skipped: skipped,
	}, nil
}

// invalidateBreakdown drops the cached breakdown of an article whose orders
// changed. A missed delete expires with the cache TTL.
func (s *IngestFlowImpl) invalidateBreakdown(ctx context.Context, articleID *uint) {
	if articleID == nil || s.rc == nil || s.cacheConfig == nil || !s.cacheConfig.Enabled {
		return
	}
	_ = s.rc.Del(ctx, breakdownCacheKey(*s.cacheConfig, *articleID)).Err()
}

// upsertIndexRecord writes one observation and reports whether it was new
func (s *IngestFlowImpl) upsertIndexRecord(ctx context.Context, index *models.Index) (bool, error) {
	existing, err := s.indexRepo.ByNameAndDate(ctx, index.Name, index.Date)
	if err != nil {
		return false, err
	}
	if err := s.indexRepo.Upsert(ctx, index); err != nil {
		return false, err
	}
	return existing == nil, nil
}

// readCSV parses the whole file, tolerating ragged rows and a UTF-8 BOM
func readCSV(file []byte) ([][]string, error) {
	file = bytes.TrimPrefix(file, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(file))
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// parseGermanDate parses a DD.MM.YYYY date as UTC
func parseGermanDate(s string) (time.Time, error) {
	return time.ParseInLocation("02.01.2006", strings.TrimSpace(s), time.UTC)
}

// parseGermanNumber parses a decimal that may use German notation. Empty
// cells and "-" placeholders report false, as does anything non-numeric.
func parseGermanNumber(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, " ", ""))
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	if strings.Contains(cleaned, ",") && strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// csvHeaderUnit pulls the unit out of a series header like "Kupfer [€/kg]":
// the tail after the slash of the first bracket, or the whole bracket when
// there is no slash. Reports the grams-per-unit factor for mass units.
func csvHeaderUnit(column string) (string, float64) {
	m := unitBracketPattern.FindStringSubmatch(column)
	if m == nil {
		return "", 0
	}
	unit := m[1]
	if _, after, ok := strings.Cut(unit, "/"); ok && after != "" {
		unit = after
	}
	unit = strings.ToLower(strings.TrimSpace(unit))
	return unit, models.GramsPerUnit(unit)
}

// excelHeaderUnit pulls the unit out of a TAC price header, e.g.
// "TAC - Kupfer [€/kg]" yields "kg"
func excelHeaderUnit(column string) string {
	chunk := column
	if i := strings.Index(column, "["); i >= 0 {
		if j := strings.Index(column[i+1:], "]"); j >= 0 {
			chunk = column[i+1 : i+1+j]
		}
	}
	return strings.ToLower(strings.TrimSpace(unitCharReplacer.Replace(chunk)))
}

// parseExcelDate reads a date cell that is either a raw serial number or a
// DD.MM.YYYY string
func parseExcelDate(raw string) (time.Time, error) {
	cell := strings.TrimSpace(raw)
	if cell == "" {
		return time.Time{}, errors.New("empty date cell")
	}
	if serial, err := strconv.ParseFloat(cell, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return utils.DateOnly(t), nil
	}
	return parseGermanDate(cell)
}

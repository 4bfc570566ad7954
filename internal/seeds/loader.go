package seeds

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
	"github.com/IliaW/hotel-crawler/internal/telemetry"
)

// DeadLetter receives seed rows that could not be turned into start
// requests.
type DeadLetter interface {
	SendSeedToDLQ(seedRow string, err error)
}

// Loader turns the configured seed source into start requests on the
// frontier. Static sources (search, sheet, file) drain once; the sqs source
// keeps producing until its row channel closes.
type Loader struct {
	Frontier   *frontier.Frontier
	Cfg        *config.Config
	HttpClient *http.Client
	DLQ        DeadLetter
	Metrics    *telemetry.SeedMetrics
}

// Seed loads the static seed sources. It must run before workers report
// exhaustion, so main registers the loader as a frontier producer for the
// duration of the call.
func (l *Loader) Seed(ctx context.Context) error {
	l.warnOnStaleDates()

	switch l.Cfg.SeedSettings.Source {
	case "search":
		return l.seedFromSearch()
	case "sheet":
		return l.seedFromSheet(ctx)
	case "file":
		return l.seedFromFile()
	default:
		return fmt.Errorf("seed source %q is not a static source", l.Cfg.SeedSettings.Source)
	}
}

// ConsumeRows drains JSON seed rows from the sqs intake channel. Malformed
// rows go to the dead-letter queue with the raw body attached.
func (l *Loader) ConsumeRows(rowChan <-chan *string) {
	defer l.Frontier.RemoveProducer()
	for row := range rowChan {
		var seed model.SeedData
		if err := json.Unmarshal([]byte(*row), &seed); err != nil {
			slog.Error("failed to unmarshal seed row.", slog.String("err", err.Error()),
				slog.String("row", *row))
			l.DLQ.SendSeedToDLQ(*row, err)
			l.Metrics.FailMsgCnt(1)
			continue
		}
		if seed.Name == "" {
			err := fmt.Errorf("seed row has no name")
			l.DLQ.SendSeedToDLQ(*row, err)
			l.Metrics.FailMsgCnt(1)
			continue
		}
		l.enqueueSeed(seed)
	}
	slog.Info("seed intake channel drained.")
}

func (l *Loader) seedFromSearch() error {
	cs := l.Cfg.CrawlSettings
	startUrl := cs.StartURL
	if startUrl == "" {
		startUrl = scrape.BuildStartURL(cs)
	} else {
		startUrl = scrape.AddURLParams(startUrl, cs)
	}

	req := model.NewRequest(startUrl, model.LabelStart)
	if !l.Frontier.Enqueue(req, false) {
		return fmt.Errorf("start url %q rejected by the frontier", startUrl)
	}
	slog.Info("enqueued start url.", slog.String("url", startUrl))

	// When no filter, price or property-type pass will rewrite the result
	// set, the offset pages are known upfront and can be seeded without
	// waiting for the first page.
	if !cs.UseFilters && cs.PropertyType == "none" && cs.MinMaxPrice == "none" && cs.MaxPages > 0 {
		enqueued := 0
		for i := 1; i < cs.MaxPages; i++ {
			pageReq := model.NewRequest(scrape.PaginationURL(startUrl, i), model.LabelPage)
			if l.Frontier.Enqueue(pageReq, false) {
				enqueued++
			}
		}
		slog.Info("seeded pagination upfront.", slog.Int("count", enqueued))
	}
	return nil
}

func (l *Loader) seedFromSheet(ctx context.Context) error {
	exportUrl := sheetExportURL(l.Cfg.SeedSettings.SheetURL)
	slog.Info("fetching seed sheet...", slog.String("url", exportUrl))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, exportUrl, nil)
	if err != nil {
		return fmt.Errorf("failed to build sheet request: %w", err)
	}
	resp, err := l.HttpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to fetch seed sheet: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("seed sheet returned status %s", resp.Status)
	}

	return l.readCsvRows(resp.Body)
}

func (l *Loader) seedFromFile() error {
	filePath := l.Cfg.SeedSettings.FilePath
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		f, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("failed to open seed file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		return l.readCsvRows(f)
	case ".xlsx":
		return l.readXlsxRows(filePath)
	default:
		return fmt.Errorf("unsupported seed file extension %q", filepath.Ext(filePath))
	}
}

func (l *Loader) readCsvRows(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse seed csv: %w", err)
	}
	return l.seedFromRecords(records)
}

func (l *Loader) readXlsxRows(filePath string) error {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to open seed workbook: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("failed to close seed workbook.", slog.String("err", closeErr.Error()))
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("seed workbook %q has no sheets", filePath)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read seed workbook rows: %w", err)
	}
	return l.seedFromRecords(records)
}

func (l *Loader) seedFromRecords(records [][]string) error {
	if len(records) < 2 {
		return fmt.Errorf("seed rows are empty")
	}
	columns := headerIndex(records[0])
	if _, ok := columns["name"]; !ok {
		return fmt.Errorf(`seed rows are missing the "name" column`)
	}

	enqueued := 0
	for _, record := range records[1:] {
		seed, err := parseRecord(record, columns)
		if err != nil {
			slog.Error("skipping seed row.", slog.String("err", err.Error()),
				slog.Any("row", record))
			l.DLQ.SendSeedToDLQ(strings.Join(record, ","), err)
			l.Metrics.FailMsgCnt(1)
			continue
		}
		if l.enqueueSeed(seed) {
			enqueued++
		}
	}
	if enqueued == 0 {
		return fmt.Errorf("no usable seed rows found")
	}
	slog.Info("enqueued seed rows.", slog.Int("count", enqueued))
	return nil
}

// enqueueSeed creates the start request for one seed row. The row id keys
// the request so re-delivered rows cannot restart a finished seed.
func (l *Loader) enqueueSeed(seed model.SeedData) bool {
	req := &model.CrawlRequest{
		URL:       scrape.DestinationURL(l.Cfg.CrawlSettings, seed.Name, seed.City),
		UniqueKey: seedKey(seed),
		Label:     model.LabelStart,
		UserData:  seed,
	}
	accepted := l.Frontier.Enqueue(req, false)
	if accepted {
		l.Metrics.SuccessMsgCnt(1)
	} else {
		slog.Debug("seed row already known.", slog.String("key", req.UniqueKey))
	}
	return accepted
}

func seedKey(seed model.SeedData) string {
	if seed.ID != "" {
		return "seed:" + seed.ID
	}
	return "seed:" + seed.Name + ":" + seed.City
}

func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func parseRecord(record []string, columns map[string]int) (model.SeedData, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	seed := model.SeedData{
		ID:      field("id"),
		Type:    field("type"),
		Name:    field("name"),
		City:    field("city"),
		Country: field("country"),
	}
	if seed.Name == "" {
		return model.SeedData{}, fmt.Errorf("seed row has no name")
	}
	return seed, nil
}

// sheetExportURL rewrites a Google Sheets link into its CSV export endpoint.
func sheetExportURL(sheetUrl string) string {
	if i := strings.Index(sheetUrl, "/edit"); i > 0 {
		sheetUrl = sheetUrl[:i]
	}
	return strings.TrimRight(sheetUrl, "/") + "/gviz/tq?tqx=out:csv"
}

func (l *Loader) warnOnStaleDates() {
	if days, err := l.Cfg.DaysInterval(); err == nil && days >= 30 {
		slog.Warn("check_in to check_out gap is unusually long; prices may be misleading.",
			slog.Int("days", days))
	}

	checkIn := l.Cfg.CrawlSettings.CheckIn
	if checkIn == "" {
		return
	}
	in, err := time.Parse("2006-01-02", checkIn)
	if err != nil {
		return
	}
	if in.Before(time.Now().Truncate(24 * time.Hour)) {
		slog.Warn("check_in date is in the past; the site will silently substitute its default dates.",
			slog.String("check_in", checkIn))
	}
}

package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
	"argusgo/pkg/request"
	"argusgo/pkg/store"
)

// riskIndexColumns maps each required series column to the header
// names it may appear under. Published exports have renamed columns
// between revisions.
var riskIndexColumns = map[string][]string{
	"date":    {"date", "month"},
	"gpr":     {"gpr"},
	"threats": {"gpr_threats", "gprt"},
	"acts":    {"gpr_acts", "gpra"},
}

// riskIndexDateLayouts covers the date formats seen across export
// revisions.
var riskIndexDateLayouts = []string{
	"2006-01-02", "2006-01", "01/2006", "1/2/2006", "2006M01",
}

// RiskIndexClient pulls the full history of a monthly geopolitical
// risk index. The series is small (decades of monthly points), so
// every pull replaces the stored series wholesale. Historical values
// are revised upstream, which makes incremental appends wrong.
type RiskIndexClient struct {
	client *request.Client
	store  store.RiskIndexStore
	cfg    config.RiskIndexConfig
}

// NewRiskIndexClient creates the risk index integrator.
func NewRiskIndexClient(rc *request.Client, st store.RiskIndexStore, cfg config.RiskIndexConfig) *RiskIndexClient {
	return &RiskIndexClient{client: rc, store: st, cfg: cfg}
}

// Name implements Integrator.
func (c *RiskIndexClient) Name() string { return "risk_index" }

// Pull downloads the series CSV and atomically replaces the stored
// history.
func (c *RiskIndexClient) Pull(ctx context.Context) (Result, error) {
	body, err := c.client.Get(ctx, c.cfg.URL, "")
	if err != nil {
		return Result{}, fmt.Errorf("risk index: %w", err)
	}

	series, err := parseRiskIndexCSV(string(body))
	if err != nil {
		return Result{}, err
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("risk index: no usable rows")
	}

	if err := c.store.ReplaceRiskIndex(ctx, series); err != nil {
		return Result{}, fmt.Errorf("replace risk index: %w", err)
	}
	return Result{
		Records:  len(series),
		DataFrom: series[0].Date,
		DataTo:   series[len(series)-1].Date,
	}, nil
}

func parseRiskIndexCSV(body string) ([]model.RiskIndexPoint, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode risk index csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("risk index: empty export")
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idx := make(map[string]int, len(riskIndexColumns))
	var missing []string
	for col, aliases := range riskIndexColumns {
		found := false
		for _, alias := range aliases {
			if i, ok := header[alias]; ok {
				idx[col] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, aliases[0])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{Integrator: "risk_index", Missing: missing}
	}

	var (
		series  []model.RiskIndexPoint
		skipped int
	)
	for _, row := range rows[1:] {
		p, ok := riskPointFromRow(row, idx)
		if !ok {
			skipped++
			continue
		}
		series = append(series, p)
	}
	if skipped > 0 {
		slog.Debug("Skipped unusable risk index rows", "count", skipped)
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

func riskPointFromRow(row []string, idx map[string]int) (model.RiskIndexPoint, bool) {
	cell := func(col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	date, ok := parseRiskIndexDate(cell("date"))
	if !ok {
		return model.RiskIndexPoint{}, false
	}
	value, err := strconv.ParseFloat(cell("gpr"), 64)
	if err != nil {
		// Trailing months are published with blank values.
		return model.RiskIndexPoint{}, false
	}
	threats, _ := strconv.ParseFloat(cell("threats"), 64)
	acts, _ := strconv.ParseFloat(cell("acts"), 64)

	return model.RiskIndexPoint{
		Date:       date,
		GPRValue:   value,
		GPRThreats: threats,
		GPRActs:    acts,
	}, true
}

func parseRiskIndexDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range riskIndexDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

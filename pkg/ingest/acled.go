package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/logging"
	"argusgo/pkg/model"
	"argusgo/pkg/request"
	"argusgo/pkg/store"
)

// eventColumns are the fields every event row must carry. A payload
// missing any of them is treated as schema drift, not as empty data.
var eventColumns = []string{
	"event_id_cnty", "event_date", "country",
	"latitude", "longitude", "event_type", "fatalities",
}

// EventsClient pulls a rolling window of curated conflict events from
// an ACLED-style read endpoint. The upstream serves JSON by default
// but some mirrors only offer CSV exports, so both are accepted.
type EventsClient struct {
	client *request.Client
	store  store.EventStore
	cfg    config.EventsIntegratorConfig
	now    func() time.Time
}

// NewEventsClient creates the events integrator.
func NewEventsClient(rc *request.Client, st store.EventStore, cfg config.EventsIntegratorConfig) *EventsClient {
	return &EventsClient{
		client: rc,
		store:  st,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name implements Integrator.
func (c *EventsClient) Name() string { return "events" }

// Pull fetches the configured window, re-requesting days already seen.
// Rows are keyed by (event_id, event_date) downstream, so refreshing
// the window is idempotent and picks up upstream corrections.
func (c *EventsClient) Pull(ctx context.Context) (Result, error) {
	to := c.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -c.cfg.WindowDays)

	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 5000
	}

	var records []*model.EventRecord
	for page := 1; ; page++ {
		body, err := c.client.Get(ctx, c.pageURL(from, to, page, pageSize), "")
		if err != nil {
			return Result{}, fmt.Errorf("events page %d: %w", page, err)
		}

		rows, paged, err := c.parse(body)
		if err != nil {
			return Result{}, err
		}
		records = append(records, rows...)

		// CSV exports carry the whole window in one response.
		if !paged || len(rows) < pageSize {
			break
		}
	}

	res := Result{DataFrom: from, DataTo: to}
	if len(records) == 0 {
		return res, nil
	}

	n, err := c.store.UpsertEventRecords(ctx, records)
	if err != nil {
		return Result{}, fmt.Errorf("upsert events: %w", err)
	}
	res.Records = n
	return res, nil
}

func (c *EventsClient) pageURL(from, to time.Time, page, pageSize int) string {
	q := url.Values{}
	q.Set("key", c.cfg.Key)
	q.Set("email", c.cfg.Email)
	q.Set("event_date", from.Format("2006-01-02")+"|"+to.Format("2006-01-02"))
	q.Set("event_date_where", "BETWEEN")
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	return c.cfg.URL + "?" + q.Encode()
}

// parse decodes one response payload. The bool result reports whether
// the payload format supports pagination.
func (c *EventsClient) parse(body []byte) ([]*model.EventRecord, bool, error) {
	trimmed := strings.TrimLeftFunc(string(body), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		rows, err := c.parseJSON(body)
		return rows, true, err
	}
	rows, err := c.parseCSV(trimmed)
	return rows, false, err
}

// eventEnvelope is the JSON read API response shape.
type eventEnvelope struct {
	Status  int               `json:"status"`
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Error   json.RawMessage   `json:"error"`
	Data    []json.RawMessage `json:"data"`
}

func (c *EventsClient) parseJSON(body []byte) ([]*model.EventRecord, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode events envelope: %w", err)
	}
	if !env.Success && len(env.Error) > 0 {
		return nil, fmt.Errorf("events API error: %s", string(env.Error))
	}

	records := make([]*model.EventRecord, 0, len(env.Data))
	for i, raw := range env.Data {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode event row %d: %w", i, err)
		}
		if i == 0 {
			if missing := missingKeys(row, eventColumns); len(missing) > 0 {
				return nil, &SchemaError{Integrator: "events", Missing: missing}
			}
		}
		rec, err := eventFromRow(row)
		if err != nil {
			logging.Trace("Skipping malformed event row", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *EventsClient) parseCSV(body string) ([]*model.EventRecord, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode events csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Integrator: "events", Missing: eventColumns}
	}

	idx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range eventColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Integrator: "events", Missing: missing}
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]*model.EventRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := eventFromRow(map[string]any{
			"event_id_cnty":  cell(row, "event_id_cnty"),
			"event_date":     cell(row, "event_date"),
			"country":        cell(row, "country"),
			"region":         cell(row, "region"),
			"latitude":       cell(row, "latitude"),
			"longitude":      cell(row, "longitude"),
			"event_type":     cell(row, "event_type"),
			"sub_event_type": cell(row, "sub_event_type"),
			"actor1":         cell(row, "actor1"),
			"actor2":         cell(row, "actor2"),
			"fatalities":     cell(row, "fatalities"),
			"notes":          cell(row, "notes"),
		})
		if err != nil {
			logging.Trace("Skipping malformed event row", "line", n+2, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// eventFromRow builds a record from one decoded row. The JSON API
// returns every field as a string, but numbers are tolerated too.
func eventFromRow(row map[string]any) (*model.EventRecord, error) {
	id := rowString(row, "event_id_cnty")
	if id == "" {
		return nil, fmt.Errorf("empty event id")
	}
	date, err := time.Parse("2006-01-02", rowString(row, "event_date"))
	if err != nil {
		return nil, fmt.Errorf("event date: %w", err)
	}
	lat, err := rowFloat(row, "latitude")
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := rowFloat(row, "longitude")
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	fatalities, err := rowFloat(row, "fatalities")
	if err != nil {
		fatalities = 0
	}

	return &model.EventRecord{
		EventID:      id,
		EventDate:    date,
		Country:      rowString(row, "country"),
		Region:       rowString(row, "region"),
		Latitude:     lat,
		Longitude:    lon,
		EventType:    rowString(row, "event_type"),
		SubEventType: rowString(row, "sub_event_type"),
		Actor1:       rowString(row, "actor1"),
		Actor2:       rowString(row, "actor2"),
		Fatalities:   int(fatalities),
		Notes:        rowString(row, "notes"),
		ImportedAt:   time.Now().UTC(),
	}, nil
}

func missingKeys(row map[string]any, want []string) []string {
	var missing []string
	for _, k := range want {
		if _, ok := row[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func rowString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func rowFloat(row map[string]any, key string) (float64, error) {
	switch v := row[key].(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("missing %s", key)
	}
}

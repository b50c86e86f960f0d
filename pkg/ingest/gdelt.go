package ingest

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
	"argusgo/pkg/request"
	"argusgo/pkg/store"
)

// toneColumnCount is the column count of the 1.0 daily event export.
// The layout is positional with no header row, so a different width
// means the upstream format changed.
const toneColumnCount = 58

// Column positions in the daily export.
const (
	colGlobalEventID  = 0
	colSQLDate        = 1
	colEventCode      = 26
	colEventRootCode  = 28
	colGoldsteinScale = 30
	colNumMentions    = 31
	colNumSources     = 32
	colNumArticles    = 33
	colAvgTone        = 34
	colActionGeoLat   = 53
	colActionGeoLon   = 54
	colSourceURL      = 57
)

// ToneClient pulls the previous day's global media-tone export, a zip
// archive holding one tab-separated file. Rows are filtered down to
// conflict-associated root codes with usable coordinates.
type ToneClient struct {
	client *request.Client
	store  store.ToneStore
	cfg    config.ToneIntegratorConfig
	now    func() time.Time
}

// NewToneClient creates the tone integrator.
func NewToneClient(rc *request.Client, st store.ToneStore, cfg config.ToneIntegratorConfig) *ToneClient {
	return &ToneClient{
		client: rc,
		store:  st,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name implements Integrator.
func (c *ToneClient) Name() string { return "tone" }

// Pull downloads yesterday's export and upserts the matching rows.
// The daily file is immutable once published, so the download is
// cached against re-runs of the same day.
func (c *ToneClient) Pull(ctx context.Context) (Result, error) {
	day := c.now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	stamp := day.Format("20060102")
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + stamp + ".export.CSV.zip"

	body, err := c.client.GetCached(ctx, u, nil, "tone:export:"+stamp, 48*time.Hour)
	if err != nil {
		return Result{}, fmt.Errorf("tone export %s: %w", stamp, err)
	}

	tsv, err := readZipEntry(body)
	if err != nil {
		return Result{}, fmt.Errorf("tone export %s: %w", stamp, err)
	}

	events, err := c.parseTSV(tsv)
	if err != nil {
		return Result{}, err
	}

	res := Result{DataFrom: day, DataTo: day}
	if len(events) == 0 {
		return res, nil
	}

	n, err := c.store.UpsertToneEvents(ctx, events)
	if err != nil {
		return Result{}, fmt.Errorf("upsert tone events: %w", err)
	}
	res.Records = n
	return res, nil
}

// readZipEntry returns the contents of the first file in the archive.
func readZipEntry(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("empty zip archive")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read zip entry: %w", err)
	}
	return data, nil
}

func (c *ToneClient) parseTSV(data []byte) ([]*model.ToneEvent, error) {
	rootSet := make(map[string]bool, len(c.cfg.RootCodes))
	for _, code := range c.cfg.RootCodes {
		rootSet[code] = true
	}

	var (
		events  []*model.ToneEvent
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if first {
			// The export has no header row; the first data row
			// decides whether the layout still matches.
			if len(fields) != toneColumnCount {
				return nil, fmt.Errorf("tone: expected %d columns, got %d: %w",
					toneColumnCount, len(fields), ErrSchema)
			}
			first = false
		}
		if len(fields) != toneColumnCount {
			skipped++
			continue
		}
		if !rootSet[fields[colEventRootCode]] {
			continue
		}
		if fields[colActionGeoLat] == "" || fields[colActionGeoLon] == "" {
			continue
		}
		ev, err := toneFromFields(fields)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan tone export: %w", err)
	}
	if skipped > 0 {
		slog.Debug("Skipped malformed tone rows", "count", skipped)
	}
	return events, nil
}

func toneFromFields(fields []string) (*model.ToneEvent, error) {
	id, err := strconv.ParseInt(fields[colGlobalEventID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	date, err := time.Parse("20060102", fields[colSQLDate])
	if err != nil {
		return nil, fmt.Errorf("sql date: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[colActionGeoLat], 64)
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[colActionGeoLon], 64)
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	avgTone, err := strconv.ParseFloat(fields[colAvgTone], 64)
	if err != nil {
		return nil, fmt.Errorf("avg tone: %w", err)
	}
	goldstein, _ := strconv.ParseFloat(fields[colGoldsteinScale], 64)

	return &model.ToneEvent{
		GlobalEventID:  id,
		SQLDate:        date,
		Latitude:       lat,
		Longitude:      lon,
		AvgTone:        avgTone,
		GoldsteinScale: goldstein,
		EventCode:      fields[colEventCode],
		EventRootCode:  fields[colEventRootCode],
		NumMentions:    atoiOrZero(fields[colNumMentions]),
		NumSources:     atoiOrZero(fields[colNumSources]),
		NumArticles:    atoiOrZero(fields[colNumArticles]),
		SourceURL:      fields[colSourceURL],
		ImportedAt:     time.Now().UTC(),
	}, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

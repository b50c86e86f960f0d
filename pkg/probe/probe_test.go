package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRun_TimesOutHungCheck(t *testing.T) {
	probes := []Probe{
		{
			Name:    "hung",
			Timeout: 50 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
		{
			Name:  "healthy",
			Check: func(ctx context.Context) error { return nil },
		},
	}

	results := Run(context.Background(), probes)

	if len(results) != 2 {
		t.Fatalf("Run() returned %d results, want 2", len(results))
	}
	if !errors.Is(results[0].Error, context.DeadlineExceeded) {
		t.Errorf("hung probe error = %v, want deadline exceeded", results[0].Error)
	}
	if results[0].Duration > time.Second {
		t.Errorf("hung probe ran %v, deadline did not bite", results[0].Duration)
	}
	if results[1].Error != nil {
		t.Errorf("healthy probe error = %v, want nil", results[1].Error)
	}
}

func TestAnalyzeResults(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name: "all pass",
			results: []Result{
				{Probe: Probe{Name: "storage", Critical: true}},
				{Probe: Probe{Name: "geodata"}},
			},
		},
		{
			name: "non-critical failure tolerated",
			results: []Result{
				{Probe: Probe{Name: "geodata"}, Error: boom},
			},
		},
		{
			name: "critical failure aborts",
			results: []Result{
				{Probe: Probe{Name: "storage", Critical: true}, Error: boom},
			},
			wantErr: true,
		},
		{
			name: "mixed results abort on the critical one",
			results: []Result{
				{Probe: Probe{Name: "geodata"}, Error: boom},
				{Probe: Probe{Name: "storage", Critical: true}, Error: boom},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalyzeResults_NamesFailedProbe(t *testing.T) {
	err := AnalyzeResults([]Result{
		{Probe: Probe{Name: "storage", Critical: true}, Error: errors.New("disk full")},
	})
	if err == nil || !strings.Contains(err.Error(), "storage") {
		t.Errorf("error %v should name the failed probe", err)
	}
}

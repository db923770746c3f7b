package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"
)

// JournalDataset is the Lode dataset ID of the render journal.
const JournalDataset = "chartd_renders"

// RecordKindRender discriminates render journal records.
const RecordKindRender = "render"

// Render outcomes recorded in the journal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// RenderRecord is one completed render attempt.
type RenderRecord struct {
	Key        string
	Name       string
	Outcome    string
	Stage      string // failed stage, failures only
	Error      string
	Bytes      int64
	DurationMs int64
	Instance   string
	At         time.Time
}

// Journal appends render records to a Lode dataset partitioned by
// day and outcome.
type Journal struct {
	dataset lode.Dataset
	mu      sync.Mutex
}

// NewJournal creates a journal writing through the factory's store.
func NewJournal(factory lode.StoreFactory) (*Journal, error) {
	ds, err := NewJournalDataset(factory)
	if err != nil {
		return nil, err
	}
	return &Journal{dataset: ds}, nil
}

// NewJournalDataset opens the journal dataset for reading or writing.
// Readers and writers must share layout and codec.
func NewJournalDataset(factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(JournalDataset),
		factory,
		lode.WithHiveLayout("day", "outcome"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal dataset: %w", err)
	}
	return ds, nil
}

// Record appends one render record. Writes are serialized.
func (j *Journal) Record(ctx context.Context, rec RenderRecord) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.dataset.Write(ctx, []any{toRenderRecordMap(rec)}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, JournalDataset)
	}
	return nil
}

// Close releases journal resources.
func (j *Journal) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// DeriveDay computes the partition day of a timestamp (YYYY-MM-DD, UTC).
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func toRenderRecordMap(rec RenderRecord) map[string]any {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	m := map[string]any{
		"record_kind": RecordKindRender,
		"record_id":   uuid.NewString(),
		"key":         rec.Key,
		"name":        rec.Name,
		"outcome":     rec.Outcome,
		"bytes":       rec.Bytes,
		"duration_ms": rec.DurationMs,
		"instance":    rec.Instance,
		"ts":          at.UTC().Format(time.RFC3339Nano),
		"day":         DeriveDay(at),
	}
	if rec.Stage != "" {
		m["stage"] = rec.Stage
	}
	if rec.Error != "" {
		m["error"] = rec.Error
	}
	return m
}

// RenderStats aggregates journal records.
type RenderStats struct {
	Total         int64            `json:"total" yaml:"total"`
	Succeeded     int64            `json:"succeeded" yaml:"succeeded"`
	Failed        int64            `json:"failed" yaml:"failed"`
	Bytes         int64            `json:"bytes" yaml:"bytes"`
	AvgDurationMs int64            `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	FailedByStage map[string]int64 `json:"failed_by_stage" yaml:"failed_by_stage"`
	Days          []string         `json:"days" yaml:"days"`
}

// QueryRenderStats reads every journal snapshot and aggregates render
// records, optionally restricted to one day (YYYY-MM-DD). Records are
// de-duplicated by record_id, so overlapping snapshots are counted once.
func QueryRenderStats(ctx context.Context, ds lode.Dataset, day string) (*RenderStats, error) {
	stats := &RenderStats{FailedByStage: map[string]int64{}}

	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		wrapped := WrapReadError(err, JournalDataset+"/snapshots")
		if errors.Is(wrapped, ErrNotFound) {
			return stats, nil
		}
		return nil, wrapped
	}

	seen := make(map[string]struct{})
	days := make(map[string]struct{})
	var totalDuration int64

	for _, snap := range snapshots {
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%v", JournalDataset, snap.ID))
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindRender {
				continue
			}
			if day != "" && toString(record["day"]) != day {
				continue
			}
			if id := toString(record["record_id"]); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}

			stats.Total++
			totalDuration += toInt64(record["duration_ms"])
			if d := toString(record["day"]); d != "" {
				days[d] = struct{}{}
			}

			if toString(record["outcome"]) == OutcomeSuccess {
				stats.Succeeded++
				stats.Bytes += toInt64(record["bytes"])
				continue
			}
			stats.Failed++
			stage := toString(record["stage"])
			if stage == "" {
				stage = "unknown"
			}
			stats.FailedByStage[stage]++
		}
	}

	if stats.Total > 0 {
		stats.AvgDurationMs = totalDuration / stats.Total
	}
	for d := range days {
		stats.Days = append(stats.Days, d)
	}
	sort.Strings(stats.Days)

	return stats, nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts JSON-decoded numbers to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

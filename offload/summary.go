package offload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/justapithecus/chartd/types"
)

// TaskSummary computes per-series statistics over chart rows.
const TaskSummary = "chart.summary"

// SummaryArgs carries chart rows as raw JSON so parsing happens on the worker.
type SummaryArgs struct {
	Type string   `msgpack:"type"`
	Rows [][]byte `msgpack:"rows"`
}

// SeriesStats aggregates one numeric field across rows.
type SeriesStats struct {
	Name  string  `msgpack:"name" json:"name"`
	Count int     `msgpack:"count" json:"count"`
	Min   float64 `msgpack:"min" json:"min"`
	Max   float64 `msgpack:"max" json:"max"`
	Sum   float64 `msgpack:"sum" json:"sum"`
	Mean  float64 `msgpack:"mean" json:"mean"`
}

// Summary describes a chart's data.
type Summary struct {
	Type string `msgpack:"type" json:"type"`
	Rows int    `msgpack:"rows" json:"rows"`
	// Series is sorted by name.
	Series []SeriesStats `msgpack:"series" json:"series"`
}

// NewSummaryArgs builds task arguments from a decoded query.
func NewSummaryArgs(q *types.ChartQuery) SummaryArgs {
	rows := make([][]byte, len(q.Chart.Data))
	for i, r := range q.Chart.Data {
		rows[i] = []byte(r)
	}
	return SummaryArgs{Type: q.Chart.Type, Rows: rows}
}

// SummaryTask is the TaskFunc registered under TaskSummary.
// Numeric fields of object rows become series; other fields and non-object
// rows are counted but not aggregated.
func SummaryTask(ctx context.Context, args Args) (any, error) {
	var in SummaryArgs
	if err := args.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode summary args: %w", err)
	}

	acc := make(map[string]*SeriesStats)
	for i, raw := range in.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(raw)) == 0 || bytes.TrimSpace(raw)[0] != '{' {
			continue
		}
		var row map[string]json.RawMessage
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		for name, v := range row {
			var n float64
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			s, ok := acc[name]
			if !ok {
				s = &SeriesStats{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
				acc[name] = s
			}
			s.Count++
			s.Sum += n
			s.Min = math.Min(s.Min, n)
			s.Max = math.Max(s.Max, n)
		}
	}

	out := Summary{Type: in.Type, Rows: len(in.Rows), Series: make([]SeriesStats, 0, len(acc))}
	for _, s := range acc {
		s.Mean = s.Sum / float64(s.Count)
		out.Series = append(out.Series, *s)
	}
	sort.Slice(out.Series, func(i, j int) bool { return out.Series[i].Name < out.Series[j].Name })
	return out, nil
}

// RegisterBuiltins binds the tasks chartd serves.
func RegisterBuiltins(p *Pool) {
	p.Register(TaskSummary, SummaryTask)
}

// Summarize computes the summary of q on p.
func Summarize(ctx context.Context, p *Pool, q *types.ChartQuery) (*Summary, error) {
	f, err := p.Submit(WorkItem{Task: TaskSummary, Args: NewSummaryArgs(q)})
	if err != nil {
		return nil, err
	}
	s, err := Await[Summary](ctx, f)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

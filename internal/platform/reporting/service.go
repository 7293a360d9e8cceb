package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Report is the evaluated result of a measure.
type Report struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
	Columns     []string                 `json:"columns"`
	Results     []map[string]interface{} `json:"results"`

	rows [][]interface{}
}

type Service struct {
	src Source
	log zerolog.Logger
	now func() time.Time
}

func NewService(src Source, log zerolog.Logger) *Service {
	return &Service{src: src, log: log, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Measures() []Measure { return Measures }

// Evaluate runs measure id with the raw query parameters.
func (s *Service) Evaluate(ctx context.Context, id string, raw map[string]string) (*Report, error) {
	m, err := Find(id)
	if err != nil {
		return nil, err
	}
	args, used, err := m.Bind(raw)
	if err != nil {
		return nil, err
	}

	start := s.now()
	table, err := s.src.Query(ctx, m.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate measure %s: %w", m.ID, err)
	}
	s.log.Info().Str("measure", m.ID).Int("rows", len(table.Rows)).
		Dur("elapsed", s.now().Sub(start)).Msg("measure evaluated")

	r := &Report{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: s.now().UTC(),
		Parameters:  used,
		Columns:     table.Columns,
		Results:     make([]map[string]interface{}, 0, len(table.Rows)),
		rows:        table.Rows,
	}
	for _, row := range table.Rows {
		rec := make(map[string]interface{}, len(table.Columns))
		for i, col := range table.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		r.Results = append(r.Results, rec)
	}
	return r, nil
}

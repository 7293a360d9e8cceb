package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// overdueSweeper periodically marks past-due bills overdue in every tenant.
type overdueSweeper struct {
	period  time.Duration
	tenants func(ctx context.Context) ([]string, error)
	sweep   func(ctx context.Context, tenant string) (int, error)
	log     zerolog.Logger
}

func (s *overdueSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.once(ctx)
		}
	}
}

// once sweeps each tenant; one tenant failing does not stop the others.
func (s *overdueSweeper) once(ctx context.Context) int {
	tenants, err := s.tenants(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("overdue sweep: list tenants")
		return 0
	}
	total := 0
	for _, t := range tenants {
		n, err := s.sweep(ctx, t)
		if err != nil {
			s.log.Error().Err(err).Str("tenant", t).Msg("overdue sweep failed")
			continue
		}
		if n > 0 {
			s.log.Info().Str("tenant", t).Int("bills", n).Msg("bills marked overdue")
		}
		total += n
	}
	return total
}

package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/pkg/money"
)

type Service struct {
	repo  Repository
	cache Cache
	now   func() time.Time
	log   zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, cache: NoCache{}, now: time.Now, log: log}
}

// SetCache puts cache in front of code lookups.
func (s *Service) SetCache(c Cache) { s.cache = c }

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Create(ctx context.Context, ci *ChargeItem) error {
	ci.Code = NormalizeCode(ci.Code)
	ci.UnitPrice = money.Round(ci.UnitPrice)
	if err := ci.Validate(); err != nil {
		return apperr.InvalidArgument("%s", err.Error())
	}
	ci.Active = true
	ci.CreatedAt = s.now()
	ci.UpdatedAt = ci.CreatedAt
	if err := s.repo.Create(ctx, ci); err != nil {
		return err
	}
	s.log.Info().Str("code", ci.Code).Str("kind", string(ci.Kind)).Msg("charge item created")
	return nil
}

// Get returns the charge item for code, inactive ones included.
func (s *Service) Get(ctx context.Context, code string) (*ChargeItem, error) {
	code = NormalizeCode(code)
	if ci, ok, err := s.cache.Get(ctx, code); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("catalog cache read failed")
	} else if ok {
		return ci, nil
	}
	ci, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, ci); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("catalog cache write failed")
	}
	return ci, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ChargeItem, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// Deactivate withdraws a code from billing. Existing bill lines keep their
// snapshot of the item.
func (s *Service) Deactivate(ctx context.Context, code string) (*ChargeItem, error) {
	ci, err := s.repo.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	ci.Active = false
	ci.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, ci); err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, ci.Code); err != nil {
		s.log.Warn().Err(err).Str("code", ci.Code).Msg("catalog cache invalidation failed")
	}
	s.log.Info().Str("code", ci.Code).Msg("charge item deactivated")
	return ci, nil
}

// Lookup resolves an active code into a claimable item priced at one unit.
func (s *Service) Lookup(ctx context.Context, code string) (coverage.ClaimableItem, error) {
	ci, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ci.Active {
		return nil, apperr.NotFound("code", ci.Code)
	}
	return ci.Item(), nil
}

package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/db"
	"github.com/ehr/claims/internal/platform/events"
	"github.com/ehr/claims/internal/platform/locker"
	"github.com/ehr/claims/internal/platform/metrics"
)

// DecisionListener is told about every persisted claim status change, inside
// the same unit of work as the claim update.
type DecisionListener interface {
	ClaimUpdated(ctx context.Context, c *InsuranceClaim, from Status) error
}

type Option func(*Service)

func WithInsurer(g InsurerGateway) Option     { return func(s *Service) { s.insurer = g } }
func WithLocker(l locker.Locker) Option       { return func(s *Service) { s.locks = l } }
func WithLockTTL(ttl time.Duration) Option    { return func(s *Service) { s.lockTTL = ttl } }
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }
func WithTxRunner(tx db.TxRunner) Option      { return func(s *Service) { s.tx = tx } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }

type Service struct {
	repo     Repository
	insurer  InsurerGateway
	locks    locker.Locker
	lockTTL  time.Duration
	events   events.Publisher
	tx       db.TxRunner
	listener DecisionListener
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		insurer: LocalInsurer{},
		locks:   locker.NewMemoryLocker(),
		lockTTL: 10 * time.Second,
		events:  events.Nop{},
		tx:      db.NoTx{},
		now:     time.Now,
		log:     log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetListener registers the collaborator that reacts to claim decisions.
func (s *Service) SetListener(l DecisionListener) { s.listener = l }

// Create persists a claim produced by adjudication.
func (s *Service) Create(ctx context.Context, c *InsuranceClaim) error {
	if c.ID == "" {
		return apperr.InvalidArgument("claim id is required")
	}
	if c.ClaimedAmount.IsNegative() {
		return apperr.InvalidArgument("claimed amount must not be negative")
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}
	s.log.Info().Str("claim_id", c.ID).Str("bill_id", c.BillID.String()).
		Str("policy_number", c.PolicyNumber).Str("claimed", c.ClaimedAmount.StringFixed(2)).
		Msg("insurance claim created")
	s.publish(ctx, c, "")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*InsuranceClaim, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.SetClock(s.now)
	return c, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*InsuranceClaim, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) ListByBill(ctx context.Context, billID uuid.UUID) ([]*InsuranceClaim, error) {
	return s.repo.ListByBill(ctx, billID)
}

// Consumed implements the usage hook for annual and lifetime limits.
func (s *Service) Consumed(ctx context.Context, policyNumber string, at time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return s.repo.Consumed(ctx, policyNumber, at)
}

// Submit hands a draft claim to the insurer.
func (s *Service) Submit(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(ctx context.Context, c *InsuranceClaim) error {
		return s.insurer.SubmitClaim(ctx, c)
	})
}

// Process asks the insurer to decide a submitted claim.
func (s *Service) Process(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(ctx context.Context, c *InsuranceClaim) error {
		return s.insurer.ProcessClaim(ctx, c)
	})
}

func (s *Service) StartReview(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.StartReview() })
}

func (s *Service) Approve(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.Approve() })
}

func (s *Service) PartiallyApprove(ctx context.Context, id string, amount decimal.Decimal, reason string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error {
		return c.ProcessPartialApproval(amount, reason)
	})
}

func (s *Service) Deny(ctx context.Context, id, reason string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.Deny(reason) })
}

func (s *Service) Appeal(ctx context.Context, id, reason string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.Appeal(reason) })
}

func (s *Service) RequestInformation(ctx context.Context, id, note string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.RequestInformation(note) })
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.MarkPaid() })
}

func (s *Service) Cancel(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.Cancel() })
}

func (s *Service) Expire(ctx context.Context, id string) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.Expire() })
}

// UpdateStatus performs a generic guarded transition.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*InsuranceClaim, error) {
	return s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error { return c.UpdateStatus(to) })
}

func (s *Service) AddDocument(ctx context.Context, id, description string) (*InsuranceClaim, time.Time, error) {
	var at time.Time
	c, err := s.mutate(ctx, id, func(_ context.Context, c *InsuranceClaim) error {
		var err error
		at, err = c.AddSupportingDocument(description)
		return err
	})
	return c, at, err
}

// mutate loads the claim under its aggregate lock, applies fn and persists the
// result together with any listener side effects.
func (s *Service) mutate(ctx context.Context, id string, fn func(context.Context, *InsuranceClaim) error) (*InsuranceClaim, error) {
	var (
		out  *InsuranceClaim
		from Status
	)
	err := locker.WithLock(ctx, s.locks, locker.Key(ctx, "claim", id), s.lockTTL, func() error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			c, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			from = c.Status
			if err := fn(ctx, c); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, c); err != nil {
				return err
			}
			if s.listener != nil && c.Status != from {
				if err := s.listener.ClaimUpdated(ctx, c, from); err != nil {
					return fmt.Errorf("apply claim decision to bill: %w", err)
				}
			}
			out = c
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.RecordLockContention("claim")
		}
		return nil, err
	}

	if out.Status != from {
		s.log.Info().Str("claim_id", out.ID).Str("from", string(from)).Str("to", string(out.Status)).
			Msg("claim status changed")
		metrics.RecordClaimStatusChange(string(from), string(out.Status))
		s.publish(ctx, out, from)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, c *InsuranceClaim, from Status) {
	data := map[string]interface{}{
		"from":           from,
		"to":             c.Status,
		"bill_id":        c.BillID,
		"policy_number":  c.PolicyNumber,
		"claimed_amount": c.ClaimedAmount.StringFixed(2),
	}
	if c.ApprovedAmount.Valid {
		data["approved_amount"] = c.ApprovedAmount.Decimal.StringFixed(2)
	}
	if err := s.events.Publish(ctx, events.New(events.ClaimStatusChanged, c.ID, data)); err != nil {
		s.log.Warn().Err(err).Str("claim_id", c.ID).Msg("failed to publish claim event")
	}
}

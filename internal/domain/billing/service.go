package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/domain/adjudication"
	"github.com/ehr/claims/internal/domain/claim"
	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/db"
	"github.com/ehr/claims/internal/platform/events"
	"github.com/ehr/claims/internal/platform/locker"
	"github.com/ehr/claims/internal/platform/metrics"
	"github.com/ehr/claims/pkg/money"
)

// PolicyLookup finds the policy a bill is evaluated against.
type PolicyLookup interface {
	coverage.PolicyProvider
	GetPolicy(ctx context.Context, number string) (*coverage.InsurancePolicy, error)
}

// ClaimRecorder persists the claims produced by adjudication.
type ClaimRecorder interface {
	Create(ctx context.Context, c *claim.InsuranceClaim) error
	Get(ctx context.Context, id string) (*claim.InsuranceClaim, error)
}

// ItemCatalog resolves charge codes into claimable items.
type ItemCatalog interface {
	Lookup(ctx context.Context, code string) (coverage.ClaimableItem, error)
}

type Option func(*Service)

func WithLocker(l locker.Locker) Option            { return func(s *Service) { s.locks = l } }
func WithLockTTL(ttl time.Duration) Option         { return func(s *Service) { s.lockTTL = ttl } }
func WithPublisher(p events.Publisher) Option      { return func(s *Service) { s.events = p } }
func WithTxRunner(tx db.TxRunner) Option           { return func(s *Service) { s.tx = tx } }
func WithClock(now func() time.Time) Option        { return func(s *Service) { s.now = now } }
func WithCatalog(c ItemCatalog) Option             { return func(s *Service) { s.catalog = c } }
func WithUsage(u adjudication.UsageTracker) Option { return func(s *Service) { s.usage = u } }
func WithAdjudicator(a *adjudication.Adjudicator) Option {
	return func(s *Service) { s.adjudicator = a }
}

type Service struct {
	repo        Repository
	policies    PolicyLookup
	claims      ClaimRecorder
	catalog     ItemCatalog
	usage       adjudication.UsageTracker
	adjudicator *adjudication.Adjudicator
	locks       locker.Locker
	lockTTL     time.Duration
	events      events.Publisher
	tx          db.TxRunner
	now         func() time.Time
	log         zerolog.Logger
}

func NewService(repo Repository, policies PolicyLookup, claims ClaimRecorder, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		policies: policies,
		claims:   claims,
		usage:    adjudication.NoUsage{},
		locks:    locker.NewMemoryLocker(),
		lockTTL:  10 * time.Second,
		events:   events.Nop{},
		tx:       db.NoTx{},
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	if s.adjudicator == nil {
		s.adjudicator = adjudication.New(nil, s.now)
	}
	return s
}

// CreateRequest opens a bill.
type CreateRequest struct {
	PatientID    uuid.UUID
	PolicyNumber string
	Inpatient    bool
	DueDate      *time.Time
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Bill, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.InvalidArgument("patient_id is required")
	}
	b := New(req.PatientID, req.Inpatient, s.now)
	b.PolicyNumber = req.PolicyNumber
	b.DueDate = req.DueDate
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	s.log.Info().Str("bill_id", b.ID.String()).Str("patient_id", b.PatientID.String()).Msg("bill created")
	s.publish(ctx, b, "")
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.SetClock(s.now)
	return b, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Bill, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// AddItem appends an item to a bill in preparation.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, item coverage.Item, quantity int) (*Bill, error) {
	if err := item.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error {
		_, err := b.AddItem(item, quantity)
		return err
	})
}

// AddCatalogItem appends the catalog item registered under code.
func (s *Service) AddCatalogItem(ctx context.Context, id uuid.UUID, code string, quantity int) (*Bill, error) {
	if s.catalog == nil {
		return nil, apperr.InvalidState("no charge catalog configured")
	}
	item, err := s.catalog.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error {
		_, err := b.AddItem(item, quantity)
		return err
	})
}

func (s *Service) Hold(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.Hold() })
}

func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.Submit() })
}

// Adjudicate evaluates a submitted bill against the patient's policy. An
// approval persists the claim and moves the bill to INSURANCE_PENDING; a
// denial records the reason on the bill.
func (s *Service) Adjudicate(ctx context.Context, id uuid.UUID) (*Bill, *adjudication.Result, error) {
	var result *adjudication.Result
	b, err := s.mutate(ctx, id, func(ctx context.Context, b *Bill) error {
		if !b.Can(EventRequestInsurance) {
			_, err := b.check(EventRequestInsurance)
			return err
		}
		if err := s.checkPriorClaim(ctx, b); err != nil {
			return err
		}
		policy, err := s.policyFor(ctx, b)
		if err != nil {
			return err
		}
		req := adjudication.Request{
			BillID:    b.ID,
			PatientID: b.PatientID,
			Items:     b.ClaimableItems(),
			Policy:    policy,
			Inpatient: b.Inpatient,
		}
		if policy != nil {
			b.PolicyNumber = policy.PolicyNumber
			annual, lifetime, err := s.usage.Consumed(ctx, policy.PolicyNumber, s.now())
			if err != nil {
				return err
			}
			req.Usage = adjudication.Usage{Annual: annual, Lifetime: lifetime}
		}
		result, err = s.adjudicator.Adjudicate(req)
		if err != nil {
			return err
		}
		claimID := ""
		if result.Approved {
			if err := s.claims.Create(ctx, result.Claim); err != nil {
				return err
			}
			claimID = result.Claim.ID
		}
		return b.ApplyCoverage(result.Approved, claimID, result.DenialReason)
	})
	if err != nil {
		return nil, nil, err
	}

	payable, _ := result.Payable.Float64()
	metrics.RecordAdjudication(result.Approved, result.DenialReason, payable)
	ev := s.log.Info().Str("bill_id", b.ID.String()).Bool("approved", result.Approved).
		Str("payable", money.Format(result.Payable))
	if result.Claim != nil {
		ev = ev.Str("claim_id", result.Claim.ID)
	}
	ev.Msg(result.Summary())
	data := map[string]interface{}{
		"approved":      result.Approved,
		"payable":       money.Format(result.Payable),
		"gross":         money.Format(result.Gross),
		"denial_reason": result.DenialReason,
	}
	if result.Claim != nil {
		data["claim_id"] = result.Claim.ID
	}
	if err := s.events.Publish(ctx, events.New(events.AdjudicationCompleted, b.ID.String(), data)); err != nil {
		s.log.Warn().Err(err).Str("bill_id", b.ID.String()).Msg("failed to publish adjudication event")
	}
	return b, result, nil
}

func (s *Service) policyFor(ctx context.Context, b *Bill) (*coverage.InsurancePolicy, error) {
	if b.PolicyNumber == "" {
		return s.policies.PolicyForPatient(ctx, b.PatientID)
	}
	p, err := s.policies.GetPolicy(ctx, b.PolicyNumber)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.HolderID != b.PatientID {
		s.log.Warn().Str("bill_id", b.ID.String()).Str("policy_number", p.PolicyNumber).
			Msg("policy is held by another patient")
		return nil, nil
	}
	return p, nil
}

// checkPriorClaim allows a bill back through adjudication only when its
// earlier claim was closed without payment. Anything else would leave two
// live claims able to pay the same bill.
func (s *Service) checkPriorClaim(ctx context.Context, b *Bill) error {
	if b.ClaimID == "" {
		return nil
	}
	prior, err := s.claims.Get(ctx, b.ClaimID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if prior.IsCancelled() || prior.IsExpired() {
		return nil
	}
	return apperr.InvalidState("bill %s already has claim %s in status %s", b.ID, prior.ID, prior.Status)
}

func (s *Service) ApproveInsurance(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.ApproveInsurance() })
}

func (s *Service) RejectInsurance(ctx context.Context, id uuid.UUID, reason string) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.RejectInsurance(reason) })
}

// RecordPayment records a payment of amount, or of the whole outstanding
// balance when amount is nil.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount *decimal.Decimal, method PaymentMethod, reference string) (*Bill, *Payment, error) {
	var p Payment
	b, err := s.mutate(ctx, id, func(_ context.Context, b *Bill) error {
		var err error
		if amount == nil {
			p, err = b.RecordFullPayment(method, reference)
		} else {
			p, err = b.RecordPartialPayment(*amount, method, reference)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.paymentRecorded(ctx, b, p)
	return b, &p, nil
}

func (s *Service) paymentRecorded(ctx context.Context, b *Bill, p Payment) {
	amount, _ := p.Amount.Float64()
	metrics.RecordPayment(string(p.Method), amount)
	s.log.Info().Str("bill_id", b.ID.String()).Str("method", string(p.Method)).
		Str("amount", money.Format(p.Amount)).Str("outstanding", money.Format(b.Outstanding)).
		Msg("payment recorded")
	data := map[string]interface{}{
		"payment_id":  p.ID,
		"amount":      money.Format(p.Amount),
		"method":      p.Method,
		"outstanding": money.Format(b.Outstanding),
	}
	if err := s.events.Publish(ctx, events.New(events.PaymentRecorded, b.ID.String(), data)); err != nil {
		s.log.Warn().Err(err).Str("bill_id", b.ID.String()).Msg("failed to publish payment event")
	}
}

// InitiateRefund starts a refund of amount, or of everything settled when
// amount is nil.
func (s *Service) InitiateRefund(ctx context.Context, id uuid.UUID, amount *decimal.Decimal) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error {
		if amount == nil {
			return b.InitiateRefund()
		}
		return b.InitiatePartialRefund(*amount)
	})
}

func (s *Service) CompleteRefund(ctx context.Context, id uuid.UUID, method PaymentMethod, reference string) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error {
		_, err := b.CompleteRefund(method, reference)
		return err
	})
}

func (s *Service) Dispute(ctx context.Context, id uuid.UUID, reason string) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.Dispute(reason) })
}

func (s *Service) ResolveDispute(ctx context.Context, id uuid.UUID, inFavourOfPatient bool) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.ResolveDispute(inFavourOfPatient) })
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.Cancel() })
}

func (s *Service) MarkOverdue(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.mutate(ctx, id, func(_ context.Context, b *Bill) error { return b.MarkOverdue(s.now()) })
}

// SweepOverdue marks every past-due bill overdue and returns how many moved.
// Bills that changed since they were listed are skipped.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListPastDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := s.MarkOverdue(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrInvalidTransition) ||
				errors.Is(err, apperr.ErrConflict) {
				s.log.Debug().Err(err).Str("bill_id", id.String()).Msg("skipping overdue candidate")
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// ClaimUpdated mirrors insurer decisions on the claim's bill. Decisions that
// do not apply to the bill's current status are logged and ignored.
func (s *Service) ClaimUpdated(ctx context.Context, c *claim.InsuranceClaim, from claim.Status) error {
	if c.BillID == uuid.Nil {
		return nil
	}
	var payment *Payment
	b, err := s.mutate(ctx, c.BillID, func(_ context.Context, b *Bill) error {
		if b.ClaimID != c.ID {
			s.log.Warn().Str("bill_id", b.ID.String()).Str("bill_claim_id", b.ClaimID).
				Str("claim_id", c.ID).Msg("ignoring decision on a claim the bill no longer tracks")
			return nil
		}
		switch {
		case c.IsApproved():
			if b.Can(EventApproveInsurance) {
				return b.ApproveInsurance()
			}
		case c.IsDenied():
			if b.Can(EventRejectInsurance) {
				return b.RejectInsurance(c.ReviewerComments)
			}
		case c.IsCancelled(), c.IsExpired():
			if b.Can(EventRejectInsurance) {
				return b.RejectInsurance("claim " + string(c.Status))
			}
		case c.IsPaid():
			amount := money.Min(c.ApprovedAmount.Decimal, b.Outstanding)
			if b.Status.AcceptsPayment() && amount.IsPositive() {
				p, err := b.RecordPartialPayment(amount, MethodInsurance, c.ID)
				if err != nil {
					return err
				}
				payment = &p
				return nil
			}
		default:
			return nil
		}
		s.log.Warn().Str("bill_id", b.ID.String()).Str("bill_status", string(b.Status)).
			Str("claim_id", c.ID).Str("claim_status", string(c.Status)).
			Msg("claim decision does not apply to bill")
		return nil
	})
	if err != nil {
		return err
	}
	if payment != nil {
		s.paymentRecorded(ctx, b, *payment)
	}
	return nil
}

// mutate loads the bill under its aggregate lock, applies fn and persists it
// inside one unit of work.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(context.Context, *Bill) error) (*Bill, error) {
	var (
		out  *Bill
		from Status
	)
	err := locker.WithLock(ctx, s.locks, locker.Key(ctx, "bill", id.String()), s.lockTTL, func() error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			b, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			from = b.Status
			if err := fn(ctx, b); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, b); err != nil {
				return err
			}
			out = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.RecordLockContention("bill")
		}
		return nil, err
	}

	if out.Status != from {
		s.log.Info().Str("bill_id", out.ID.String()).Str("from", string(from)).Str("to", string(out.Status)).
			Msg("bill status changed")
		metrics.RecordBillStatusChange(string(from), string(out.Status))
		s.publish(ctx, out, from)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, b *Bill, from Status) {
	data := map[string]interface{}{
		"from":        from,
		"to":          b.Status,
		"patient_id":  b.PatientID,
		"grand_total": money.Format(b.GrandTotal),
		"outstanding": money.Format(b.Outstanding),
	}
	if b.ClaimID != "" {
		data["claim_id"] = b.ClaimID
	}
	if err := s.events.Publish(ctx, events.New(events.BillStatusChanged, b.ID.String(), data)); err != nil {
		s.log.Warn().Err(err).Str("bill_id", b.ID.String()).Msg("failed to publish bill event")
	}
}

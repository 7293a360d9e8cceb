package claim

import "context"

// InsurerGateway is the boundary to the insurer that decides claims.
type InsurerGateway interface {
	SubmitClaim(ctx context.Context, c *InsuranceClaim) error
	ProcessClaim(ctx context.Context, c *InsuranceClaim) error
}

// LocalInsurer decides claims in-process from the adjudicated payable amount:
// nothing payable is denied, less than claimed is partially approved, and
// anything else is approved in full.
type LocalInsurer struct{}

func (LocalInsurer) SubmitClaim(_ context.Context, c *InsuranceClaim) error {
	return c.Submit()
}

func (LocalInsurer) ProcessClaim(_ context.Context, c *InsuranceClaim) error {
	if c.Status != StatusInReview {
		if err := c.StartReview(); err != nil {
			return err
		}
	}
	payable := c.ClaimedAmount
	if c.PayableAmount.Valid {
		payable = c.PayableAmount.Decimal
	}
	switch {
	case !payable.IsPositive():
		return c.Deny("No payable amount after deductible and coinsurance")
	case payable.LessThan(c.ClaimedAmount):
		return c.ProcessPartialApproval(payable, "Approved at the adjudicated payable amount")
	default:
		return c.Approve()
	}
}

var _ InsurerGateway = LocalInsurer{}

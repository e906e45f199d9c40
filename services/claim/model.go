package claim

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/crediting"
	"smallbiznis-rewards/services/ledger"

	"gorm.io/gorm"
)

const (
	ReasonAlreadyClaimed  = "ALREADY_CLAIMED"
	ReasonExpired         = "EXPIRED"
	ReasonNotLinked       = "NOT_LINKED"
	ReasonExternalService = "EXTERNAL_SERVICE"
	ReasonCreditUnsettled = "CREDIT_UNSETTLED"
)

var (
	ErrNotFound        = errutil.NotFound("award not found", nil, errutil.WithReason("AWARD_NOT_FOUND"))
	ErrAlreadyClaimed  = errutil.Conflict("award already claimed", nil, errutil.WithReason(ReasonAlreadyClaimed))
	ErrExpired         = errutil.Gone("award expired", nil, errutil.WithReason(ReasonExpired))
	ErrNotLinked       = errutil.UnprocessableEntity("account is not linked to an external account", nil, errutil.WithReason(ReasonNotLinked))
	ErrExternalService = errutil.BadGateway("crediting service failed, the award is still claimable", nil, errutil.WithReason(ReasonExternalService))
)

// AccountDirectory answers whether an account can receive credits.
type AccountDirectory interface {
	IsLinked(ctx context.Context, accountID string) (bool, error)
}

// CreditingService moves tokens into the account's external account. reference is an
// idempotency key: repeating a call with the same reference must not credit twice.
type CreditingService interface {
	Credit(ctx context.Context, accountID string, amount int64, reference string) (*crediting.Confirmation, error)
}

// CreditLookup is implemented by crediting services that can be queried by reference.
type CreditLookup interface {
	Lookup(ctx context.Context, reference string) (*crediting.Confirmation, bool, error)
}

// LedgerLog records completed credits.
type LedgerLog interface {
	Append(ctx context.Context, p ledger.AppendParams) (string, error)
	WithTrx(tx *gorm.DB) LedgerLog
}

type Result struct {
	Award          *award.Award `json:"award"`
	TransactionID  string       `json:"transaction_id"`
	ConfirmationID string       `json:"confirmation_id"`
}

// ReconcilePayload is the body of a per-award reconciliation task. ConfirmationID is set
// when the credit is known to have succeeded and only local finalization is missing.
type ReconcilePayload struct {
	AwardID        string `json:"award_id"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
}

type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Finalized int `json:"finalized"`
	Cleared   int `json:"cleared"`
	Manual    int `json:"manual"`
	Failed    int `json:"failed"`
}

type reconcileOutcome string

const (
	outcomeFinalized reconcileOutcome = "finalized"
	outcomeCleared   reconcileOutcome = "cleared"
	outcomeManual    reconcileOutcome = "manual_intervention"
	outcomeSkipped   reconcileOutcome = "skipped"
)

type options struct {
	claimTimeout   time.Duration
	reconcileAfter time.Duration
	batchSize      int
}

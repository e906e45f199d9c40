package claim

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/crediting"
	"smallbiznis-rewards/services/ledger"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smallbiznis-rewards/claim")

// Coordinator turns a pending award into credited tokens. The external credit call
// runs outside any transaction; only the pending -> claimed compare-and-swap and the
// ledger append are atomic.
type Coordinator struct {
	db       *gorm.DB
	awards   *award.Store
	accounts AccountDirectory
	credit   CreditingService
	ledger   LedgerLog
	enqueuer task.Enqueuer
	opts     options
	now      func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Awards   *award.Store
	Accounts AccountDirectory
	Credit   CreditingService
	Ledger   LedgerLog
	Enqueuer task.Enqueuer  `optional:"true"`
	Config   *config.Config `optional:"true"`
}

func NewCoordinator(p Params) *Coordinator {
	opts := options{
		claimTimeout:   10 * time.Second,
		reconcileAfter: 2 * time.Minute,
		batchSize:      100,
	}
	if p.Config != nil {
		if p.Config.Rewards.ClaimTimeout > 0 {
			opts.claimTimeout = p.Config.Rewards.ClaimTimeout
		}
		if p.Config.Rewards.ReconcileAfter > 0 {
			opts.reconcileAfter = p.Config.Rewards.ReconcileAfter
		}
		if p.Config.Rewards.ReconcileBatchSize > 0 {
			opts.batchSize = p.Config.Rewards.ReconcileBatchSize
		}
	}

	return &Coordinator{
		db:       p.DB,
		awards:   p.Awards,
		accounts: p.Accounts,
		credit:   p.Credit,
		ledger:   p.Ledger,
		enqueuer: p.Enqueuer,
		opts:     opts,
		now:      time.Now,
	}
}

// Claim credits a pending award to its account. Preconditions are checked in order:
// not found, already claimed, expired, not linked.
func (c *Coordinator) Claim(ctx context.Context, accountID, awardID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "claim.Claim")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID), attribute.String("award_id", awardID))

	res, err := c.claim(ctx, accountID, awardID)
	if err != nil {
		claimsTotal.WithLabelValues(outcomeOf(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	claimsTotal.WithLabelValues("claimed").Inc()
	return res, nil
}

func (c *Coordinator) claim(ctx context.Context, accountID, awardID string) (*Result, error) {
	a, err := c.awards.Get(ctx, awardID)
	if err != nil {
		zap.L().Error("failed to load award", zap.String("award_id", awardID), zap.Error(err))
		return nil, err
	}
	if a == nil || a.AccountID != accountID {
		return nil, ErrNotFound
	}
	if err := c.checkClaimable(a); err != nil {
		return nil, err
	}

	linked, err := c.accounts.IsLinked(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, ErrNotLinked
	}

	dispatch, err := c.awards.MarkDispatched(ctx, a.ID, c.now())
	if err != nil {
		return nil, err
	}
	if dispatch == nil {
		// lost a race with another claim or the expiry sweep
		current, err := c.awards.Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrNotFound
		}
		if err := c.checkClaimable(current); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}

	// The caller going away must not abandon a credit that may already be in flight.
	detached := context.WithoutCancel(ctx)
	creditCtx, cancel := context.WithTimeout(detached, c.opts.claimTimeout)
	conf, err := c.credit.Credit(creditCtx, accountID, a.TokenAmount, award.ClaimReferenceFor(a.ID))
	cancel()
	if err != nil {
		return nil, c.creditFailed(detached, a, dispatch, err)
	}

	finalizeCtx, cancel := context.WithTimeout(detached, c.opts.claimTimeout)
	defer cancel()

	res, err := c.finalize(finalizeCtx, a, conf)
	if err != nil {
		if !errors.Is(err, ErrAlreadyClaimed) {
			c.enqueueReconcile(finalizeCtx, ReconcilePayload{AwardID: a.ID, ConfirmationID: conf.ID})
		}
		return nil, err
	}

	zap.L().Info("award claimed",
		zap.String("account_id", accountID),
		zap.String("award_id", a.ID),
		zap.Int64("token_amount", a.TokenAmount),
		zap.String("confirmation_id", conf.ID),
		zap.String("transaction_id", res.TransactionID),
	)
	return res, nil
}

func (c *Coordinator) checkClaimable(a *award.Award) error {
	switch a.Status {
	case award.StatusClaimed:
		return ErrAlreadyClaimed
	case award.StatusExpired:
		return ErrExpired
	}
	if a.ExpiredAt(c.now()) {
		return ErrExpired
	}
	return nil
}

// creditFailed leaves the award pending. A refusal reverts this attempt's dispatch marker to
// whatever it replaced, so a concurrent or earlier unresolved dispatch stays marked; an unknown
// outcome keeps it for reconciliation.
func (c *Coordinator) creditFailed(ctx context.Context, a *award.Award, d *award.Dispatch, err error) error {
	fields := []zap.Field{
		zap.String("account_id", a.AccountID),
		zap.String("award_id", a.ID),
		zap.String("claim_reference", award.ClaimReferenceFor(a.ID)),
		zap.Error(err),
	}

	refused := errors.Is(err, crediting.ErrRejected) || errors.Is(err, crediting.ErrCircuitOpen)
	if refused {
		if _, revertErr := c.awards.RevertDispatched(ctx, a.ID, d); revertErr != nil {
			zap.L().Error("failed to revert claim dispatch marker", append(fields, zap.NamedError("revert_error", revertErr))...)
		}
		zap.L().Warn("credit refused, award left pending", fields...)
	} else {
		zap.L().Warn("credit outcome unknown, award left pending for reconciliation", fields...)
	}

	return errutil.Wrap(ErrExternalService, err)
}

// finalize records a successful credit: CAS the award to claimed and append the ledger
// entry in one transaction.
func (c *Coordinator) finalize(ctx context.Context, a *award.Award, conf *crediting.Confirmation) (*Result, error) {
	claimedAt := c.now().UTC()

	var transactionID string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := c.awards.WithTrx(tx).TransitionPendingToClaimed(ctx, a.ID, conf.ID, claimedAt)
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyClaimed
		}

		transactionID, err = c.ledger.WithTrx(tx).Append(ctx, ledger.AppendParams{
			AccountID:              a.AccountID,
			Amount:                 a.TokenAmount,
			Kind:                   ledger.EntryTypeAwardClaim,
			ExternalConfirmationID: conf.ID,
			AwardID:                a.ID,
			Description:            "award claim " + a.ID,
			Metadata: map[string]any{
				"award_setting_id":       a.AwardSettingID,
				"streak_day_at_issuance": a.StreakDayAtIssuance,
			},
		})
		if errors.Is(err, ledger.ErrDuplicateReference) {
			invariantViolations.Inc()
			zap.L().Error("ledger already holds an entry for a freshly claimed award",
				zap.Bool("invariant_violation", true),
				zap.String("account_id", a.AccountID),
				zap.String("award_id", a.ID),
				zap.String("confirmation_id", conf.ID),
			)
			return errutil.Internal("award ledger is inconsistent", err)
		}
		return err
	})
	if errors.Is(err, ErrAlreadyClaimed) {
		return nil, c.lostFinalize(ctx, a, conf)
	}
	if err != nil {
		zap.L().Error("failed to finalize claim after credit succeeded",
			zap.String("award_id", a.ID),
			zap.String("confirmation_id", conf.ID),
			zap.Error(err),
		)
		return nil, err
	}

	claimed := *a
	claimed.Status = award.StatusClaimed
	claimed.ClaimedAt = &claimedAt
	claimed.ExternalConfirmationID = conf.ID
	claimed.ClaimDispatchedAt = nil
	claimed.UpdatedAt = claimedAt

	return &Result{Award: &claimed, TransactionID: transactionID, ConfirmationID: conf.ID}, nil
}

// lostFinalize explains a lost compare-and-swap. Losing to another claim is the normal
// concurrent outcome; losing to anything else means a credit landed for an award that can
// no longer record it.
func (c *Coordinator) lostFinalize(ctx context.Context, a *award.Award, conf *crediting.Confirmation) error {
	current, err := c.awards.Get(ctx, a.ID)
	if err != nil {
		zap.L().Error("failed to reload award after losing claim", zap.String("award_id", a.ID), zap.Error(err))
		return err
	}
	if current != nil && current.Status == award.StatusClaimed {
		return ErrAlreadyClaimed
	}

	status := "missing"
	if current != nil {
		status = string(current.Status)
	}
	invariantViolations.Inc()
	zap.L().Error("credit confirmed for an award that can no longer be claimed",
		zap.Bool("invariant_violation", true),
		zap.Bool("manual_intervention", true),
		zap.String("account_id", a.AccountID),
		zap.String("award_id", a.ID),
		zap.String("status", status),
		zap.String("claim_reference", award.ClaimReferenceFor(a.ID)),
		zap.String("confirmation_id", conf.ID),
	)
	return errutil.Internal("credited award could not be settled", nil, errutil.WithReason(ReasonCreditUnsettled))
}

func (c *Coordinator) enqueueReconcile(ctx context.Context, p ReconcilePayload) {
	if c.enqueuer == nil {
		zap.L().Error("no task queue wired, award left for the stale sweep", zap.String("award_id", p.AwardID))
		return
	}

	t, err := NewReconcileAwardTask(p)
	if err != nil {
		zap.L().Error("failed to build reconcile task", zap.String("award_id", p.AwardID), zap.Error(err))
		return
	}
	if _, err := c.enqueuer.Enqueue(ctx, t, asynq.Queue(task.QueueCritical), asynq.MaxRetry(10)); err != nil {
		zap.L().Error("failed to enqueue reconcile task", zap.String("award_id", p.AwardID), zap.Error(err))
	}
}

func NewReconcileAwardTask(p ReconcilePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.ClaimReconcileAward, b), nil
}

// Reconcile settles one dispatched award. A known confirmation is finalized directly;
// otherwise the crediting service is asked whether the reference was credited.
func (c *Coordinator) Reconcile(ctx context.Context, p ReconcilePayload) error {
	ctx, span := tracer.Start(ctx, "claim.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("award_id", p.AwardID))

	a, err := c.awards.Get(ctx, p.AwardID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrNotFound
	}

	outcome, err := c.reconcileAward(ctx, a, p.ConfirmationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	reconciledTotal.WithLabelValues(string(outcome)).Inc()
	return nil
}

// ReconcileStale settles pending awards whose credit call was dispatched before olderThan.
func (c *Coordinator) ReconcileStale(ctx context.Context, olderThan time.Time) (*ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "claim.ReconcileStale")
	defer span.End()

	stale, err := c.awards.ListDispatched(ctx, olderThan, c.opts.batchSize)
	if err != nil {
		zap.L().Error("failed to list dispatched awards", zap.Error(err))
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(stale)}
	for _, a := range stale {
		outcome, err := c.reconcileAward(ctx, a, "")
		if err != nil {
			report.Failed++
			zap.L().Warn("reconciliation attempt failed", zap.String("award_id", a.ID), zap.Error(err))
			continue
		}
		reconciledTotal.WithLabelValues(string(outcome)).Inc()
		switch outcome {
		case outcomeFinalized:
			report.Finalized++
		case outcomeCleared:
			report.Cleared++
		case outcomeManual:
			report.Manual++
		}
	}

	if report.Scanned > 0 {
		zap.L().Info("stale claims reconciled",
			zap.Int("scanned", report.Scanned),
			zap.Int("finalized", report.Finalized),
			zap.Int("cleared", report.Cleared),
			zap.Int("manual", report.Manual),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (c *Coordinator) reconcileAward(ctx context.Context, a *award.Award, confirmationID string) (reconcileOutcome, error) {
	if !a.IsPending() {
		if confirmationID != "" && a.Status != award.StatusClaimed {
			return c.manualIntervention(a, "credit confirmed for an award that is no longer pending",
				zap.String("status", string(a.Status)),
				zap.String("confirmation_id", confirmationID),
			), nil
		}
		return outcomeSkipped, nil
	}

	if confirmationID != "" {
		return c.finalizeReconciled(ctx, a, &crediting.Confirmation{ID: confirmationID, Reference: award.ClaimReferenceFor(a.ID)})
	}

	if a.ClaimDispatchedAt == nil {
		return outcomeSkipped, nil
	}

	ref := award.ClaimReferenceFor(a.ID)
	lookup, ok := c.credit.(CreditLookup)
	if !ok {
		return c.manualIntervention(a, "crediting service cannot be queried by reference"), nil
	}

	conf, found, err := lookup.Lookup(ctx, ref)
	if errors.Is(err, crediting.ErrLookupUnsupported) {
		return c.manualIntervention(a, "crediting lookup disabled"), nil
	}
	if err != nil {
		return "", err
	}

	if !found {
		cleared, err := c.awards.ClearDispatched(ctx, a.ID, *a.ClaimDispatchedAt)
		if err != nil {
			return "", err
		}
		if !cleared {
			// settled or dispatched again since it was listed
			return outcomeSkipped, nil
		}
		zap.L().Info("no credit found for dispatched claim, award claimable again",
			zap.String("award_id", a.ID),
			zap.String("claim_reference", ref),
		)
		return outcomeCleared, nil
	}

	return c.finalizeReconciled(ctx, a, conf)
}

func (c *Coordinator) finalizeReconciled(ctx context.Context, a *award.Award, conf *crediting.Confirmation) (reconcileOutcome, error) {
	if _, err := c.finalize(ctx, a, conf); err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return outcomeSkipped, nil
		}
		return "", err
	}
	zap.L().Info("dispatched claim finalized by reconciliation",
		zap.String("award_id", a.ID),
		zap.String("confirmation_id", conf.ID),
	)
	return outcomeFinalized, nil
}

func (c *Coordinator) manualIntervention(a *award.Award, why string, extra ...zap.Field) reconcileOutcome {
	fields := append([]zap.Field{
		zap.Bool("manual_intervention", true),
		zap.String("reason", why),
		zap.String("account_id", a.AccountID),
		zap.String("award_id", a.ID),
		zap.String("claim_reference", award.ClaimReferenceFor(a.ID)),
		zap.Timep("claim_dispatched_at", a.ClaimDispatchedAt),
	}, extra...)
	zap.L().Error("claim outcome unknown, manual intervention required", fields...)
	return outcomeManual
}

// ReconcileAfter is how long a dispatched claim may stay unresolved before the stale sweep picks it up.
func (c *Coordinator) ReconcileAfter() time.Duration {
	return c.opts.reconcileAfter
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNotLinked):
		return "not_linked"
	case errors.Is(err, ErrExternalService):
		return "external_error"
	default:
		return "error"
	}
}

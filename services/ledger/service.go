package ledger

import (
	"context"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDuplicateReference = errutil.Conflict("ledger reference already recorded", nil, errutil.WithReason("DUPLICATE_REFERENCE"))

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator
	now  func() time.Time

	ledger  repository.Repository[LedgerEntry]
	balance repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Sequence,
		now:  time.Now,

		ledger:  repository.ProvideStore[LedgerEntry](p.DB),
		balance: repository.ProvideStore[Balance](p.DB),
	}
}

// WithTrx binds the service to an open transaction so an append commits with the caller's writes.
func (s *Service) WithTrx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	clone.ledger = s.ledger.WithTrx(tx)
	clone.balance = s.balance.WithTrx(tx)
	return &clone
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Append chains a new entry onto the account's ledger and returns its transaction id.
// The reference (award id) is unique across the ledger; a repeat returns ErrDuplicateReference.
func (s *Service) Append(ctx context.Context, p AppendParams) (string, error) {
	if p.AccountID == "" || p.AwardID == "" || p.Amount < 0 {
		return "", errutil.ValidationFailed("invalid ledger entry", nil)
	}
	if p.Kind == "" {
		p.Kind = EntryTypeAwardClaim
	}

	var transactionID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTrx(tx)
		balanceTx := s.balance.WithTrx(tx)
		now := s.now().UTC().Truncate(time.Millisecond)

		balance, err := s.lockBalance(ctx, tx, p.AccountID, now)
		if err != nil {
			return err
		}

		exist, err := ledgerTx.FindOne(ctx, &LedgerEntry{ReferenceID: p.AwardID})
		if err != nil {
			return err
		}
		if exist != nil {
			return ErrDuplicateReference
		}

		lastEntry, err := ledgerTx.FindOne(ctx, &LedgerEntry{AccountID: p.AccountID},
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "created_at",
				OrderBy: "desc",
				Allow:   map[string]bool{"created_at": true},
			}),
		)
		if err != nil {
			return err
		}

		previousHash := genesisHash
		if lastEntry != nil {
			previousHash = lastEntry.Hash
		}

		transactionID, err = s.nextTransactionID(ctx, now)
		if err != nil {
			zap.L().Error("failed to generate transactionId", zap.Error(err))
			return err
		}

		meta, err := encodeMetadata(p.Kind, p.Metadata)
		if err != nil {
			return err
		}

		entry := NewLedgerEntry(LedgerParams{
			LedgerID:               s.node.Generate().String(),
			AccountID:              p.AccountID,
			Type:                   p.Kind,
			Amount:                 p.Amount,
			TransactionID:          transactionID,
			ReferenceID:            p.AwardID,
			ExternalConfirmationID: p.ExternalConfirmationID,
			Description:            p.Description,
			PreviousHash:           previousHash,
			Metadata:               meta,
			CreatedAt:              now,
		})
		entry.Hash = entry.GenerateHash()

		if err := ledgerTx.Create(ctx, entry); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return err
		}

		return balanceTx.Update(ctx, balance.ID, map[string]any{
			"balance":    gorm.Expr("balance + ?", p.Amount),
			"updated_at": now,
		})
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateReference) {
			zap.L().With(spanFields(ctx)...).Error("failed to append ledger entry",
				zap.String("account_id", p.AccountID),
				zap.String("reference_id", p.AwardID),
				zap.Error(err),
			)
		}
		return "", err
	}

	return transactionID, nil
}

// lockBalance creates the account's balance row on first use and locks it for the rest of tx.
func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, accountID string, now time.Time) (*Balance, error) {
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoNothing: true,
	}).Create(&Balance{
		ID:        s.node.Generate().String(),
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
	if err != nil {
		return nil, err
	}

	balance, err := s.balance.WithTrx(tx).FindOne(ctx, &Balance{AccountID: accountID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, errutil.Internal("ledger balance row missing after upsert", nil)
	}
	return balance, nil
}

func (s *Service) nextTransactionID(ctx context.Context, now time.Time) (string, error) {
	if s.seq != nil {
		code, err := s.seq.NextTransactionCode(ctx, "ledger")
		if err == nil {
			return code, nil
		}
		zap.L().Warn("sequence generator unavailable, using random transaction id", zap.Error(err))
	}
	return GenerateTransactionID(now)
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	balance, err := s.balance.FindOne(ctx, &Balance{AccountID: accountID})
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to query balance", zap.Error(err))
		return nil, err
	}
	if balance == nil {
		return &Balance{AccountID: accountID}, nil
	}
	return balance, nil
}

func (s *Service) ListEntries(ctx context.Context, accountID string) ([]*LedgerEntry, error) {
	entries, err := s.ledger.Find(ctx, &LedgerEntry{AccountID: accountID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to query list entries", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// VerifyChain recomputes every hash of the account's ledger in append order.
func (s *Service) VerifyChain(ctx context.Context, accountID string) (*VerifyResult, error) {
	entries, err := s.ListEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{AccountID: accountID, Valid: true, Entries: len(entries)}
	lastHash := genesisHash
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			result.Valid = false
			result.BrokenAt = entry.ID
			zap.L().With(spanFields(ctx)...).Error("ledger chain broken",
				zap.String("account_id", accountID),
				zap.String("entry_id", entry.ID),
			)
			break
		}
		lastHash = entry.Hash
	}
	return result, nil
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/sqlinline"
)

var errLedgerKeyTaken = errors.New("ledger key already applied")

// CreditLedgerPG implements domain.CreditLedger on PostgreSQL. The unique
// constraint on credit_purchases.external_id is the idempotency guard.
type CreditLedgerPG struct {
	db infra.TxRunner
}

// NewCreditLedger creates a ledger repository.
func NewCreditLedger(db infra.TxRunner) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// Apply claims entry.ExternalID and mutates the balance in one transaction.
func (r *CreditLedgerPG) Apply(ctx context.Context, entry domain.CreditPurchaseRecord, rule domain.CreditRule) (*domain.CreditPurchaseRecord, bool, error) {
	if entry.ExternalID == "" {
		return nil, false, fmt.Errorf("%w: empty ledger key", domain.ErrInvalidEvent)
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("encode ledger metadata: %w", err)
	}

	rec := entry
	err = r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		row := tx.QueryRow(ctx, sqlinline.QInsertLedgerEntry,
			entry.ExternalID,
			string(entry.Kind),
			string(entry.Source),
			string(entry.Status),
			entry.UserID,
			entry.Email,
			string(entry.PlanID),
			entry.PaymentIntent,
			entry.CreditsRequested,
			entry.AmountPaid.String(),
			entry.Currency,
			metadata,
		)
		if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
			if infra.IsNoRows(err) || infra.IsUniqueViolation(err) {
				return errLedgerKeyTaken
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if entry.UserID == "" {
			rec.CreditsGranted = 0
			return nil
		}

		if _, err := tx.Exec(ctx, sqlinline.QEnsureBalanceRow, entry.UserID); err != nil {
			return fmt.Errorf("ensure balance row: %w", err)
		}
		var current int64
		if err := tx.QueryRow(ctx, sqlinline.QLockBalance, entry.UserID).Scan(&current); err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		delta := int64(0)
		if rule != nil {
			delta = max(rule(current), 0)
		}
		var balance int64
		if err := tx.QueryRow(ctx, sqlinline.QAddBalance, entry.UserID, delta).Scan(&balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlinline.QStampLedgerEntry, rec.ID, delta, balance); err != nil {
			return fmt.Errorf("stamp ledger entry: %w", err)
		}
		rec.CreditsGranted = delta
		rec.BalanceAfter = &balance
		return nil
	})
	if errors.Is(err, errLedgerKeyTaken) {
		existing, getErr := r.GetByExternalID(ctx, entry.ExternalID)
		if getErr != nil {
			return nil, false, fmt.Errorf("load applied ledger entry: %w", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// GetByExternalID loads a ledger row by its idempotency key.
func (r *CreditLedgerPG) GetByExternalID(ctx context.Context, externalID string) (*domain.CreditPurchaseRecord, error) {
	rec, err := scanLedger(r.db.QueryRow(ctx, sqlinline.QSelectLedgerByExternalID, externalID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// GetBalance returns a user's balance. Users without a row have zero credits.
func (r *CreditLedgerPG) GetBalance(ctx context.Context, userID string) (*domain.UserCreditBalance, error) {
	var b domain.UserCreditBalance
	err := r.db.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&b.UserID, &b.Balance, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return &domain.UserCreditBalance{UserID: userID}, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListUnattributed returns payments recorded without a user.
func (r *CreditLedgerPG) ListUnattributed(ctx context.Context, limit int) ([]domain.CreditPurchaseRecord, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListUnattributedLedger, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.CreditPurchaseRecord
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanLedger(row pgx.Row) (*domain.CreditPurchaseRecord, error) {
	var (
		rec                  domain.CreditPurchaseRecord
		kind, source, status string
		planID, amount       string
		metadata             []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.ExternalID,
		&kind,
		&source,
		&status,
		&rec.UserID,
		&rec.Email,
		&planID,
		&rec.PaymentIntent,
		&rec.CreditsRequested,
		&rec.CreditsGranted,
		&rec.BalanceAfter,
		&amount,
		&rec.Currency,
		&metadata,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = domain.GrantKind(kind)
	rec.Source = domain.GrantSource(source)
	rec.Status = domain.PurchaseStatus(status)
	rec.PlanID = domain.PlanID(planID)
	if amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("decode amount_paid: %w", err)
		}
		rec.AmountPaid = d
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode ledger metadata: %w", err)
		}
	}
	return &rec, nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)

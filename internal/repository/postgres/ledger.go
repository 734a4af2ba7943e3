package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/utils/tracking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const entryColumns = `id, user_id, type, category, amount, currency, method, status, reference,
	 metadata, created_at, updated_at`

// LedgerRepository implements domain.LedgerRepository.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{}
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Type, &entry.Category,
		&entry.Amount, &entry.Currency, &entry.Method, &entry.Status,
		&entry.Reference, &entry.Metadata, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Record inserts a new pending entry. The unique reference constraint is
// what makes retried submissions idempotent.
func (r *LedgerRepository) Record(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, category, amount, currency, method, status, reference, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		entry.UserID, entry.Type, entry.Category, entry.Amount, entry.Currency,
		entry.Method, entry.Status, entry.Reference, entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("repository: failed to record entry %q: %w", entry.Reference, err)
	}

	return entry, nil
}

// GetByReference returns the entry with the given reference.
func (r *LedgerRepository) GetByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE reference = $1`, reference)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("repository: failed to get entry %q: %w", reference, err)
	}

	return entry, nil
}

// FindForCallback locates an entry by the gateway invoice id recorded in
// metadata, falling back to the original reference.
func (r *LedgerRepository) FindForCallback(ctx context.Context, invoiceID, apiRef string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM transactions
		 WHERE metadata->>'invoice_id' = $1 OR reference = $2
		 LIMIT 1`,
		invoiceID, apiRef,
	)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("repository: failed to find entry for invoice %q: %w", invoiceID, err)
	}

	return entry, nil
}

// Settle moves a pending entry to a terminal status. Already-terminal
// entries are returned as-is so redelivered callbacks stay no-ops.
// Completing a credit entry increments the owner's wallet in the same
// transaction.
func (r *LedgerRepository) Settle(ctx context.Context, entryID int64, outcome domain.EntryStatus, reason string) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock entry %d: %w", entryID, err)
	}

	if entry.Status.Terminal() {
		return entry, nil
	}

	meta := map[string]string{}
	if reason != "" {
		meta["failed_reason"] = reason
	}
	err = tx.QueryRow(ctx,
		`UPDATE transactions
		 SET status = $2, metadata = metadata || $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+entryColumns,
		entryID, outcome, meta,
	).Scan(
		&entry.ID, &entry.UserID, &entry.Type, &entry.Category,
		&entry.Amount, &entry.Currency, &entry.Method, &entry.Status,
		&entry.Reference, &entry.Metadata, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to settle entry %d: %w", entryID, err)
	}

	if outcome == domain.EntryStatusCompleted && entry.Type.IsCredit() {
		if err := creditWallet(ctx, tx, entry.UserID, entry.Amount, entry.Currency); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit settlement: %w", err)
	}

	return entry, nil
}

// Debit checks the balance and writes the entry under a per-user
// advisory lock, so two concurrent spends cannot both pass the
// sufficiency check.
func (r *LedgerRepository) Debit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, entry.UserID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to acquire wallet lock for user %d: %w", entry.UserID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, currency) VALUES ($1, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to ensure wallet for user %d: %w", entry.UserID, err)
	}

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, entry.UserID,
	).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to read balance for user %d: %w", entry.UserID, err)
	}
	if balance < entry.Amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2 WHERE user_id = $1`,
		entry.UserID, entry.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to debit wallet for user %d: %w", entry.UserID, err)
	}

	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if entry.Status == "" {
		entry.Status = domain.EntryStatusCompleted
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, category, amount, currency, method, status, reference, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		entry.UserID, entry.Type, entry.Category, entry.Amount, entry.Currency,
		entry.Method, entry.Status, entry.Reference, entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("repository: failed to record debit %q: %w", entry.Reference, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit debit: %w", err)
	}

	return entry, nil
}

// PayFromWallet flips the order's is_paid flag and debits the payer's
// wallet in one transaction. Losing the race on is_paid, or an
// insufficient balance, rolls back both sides: no partial payments.
func (r *LedgerRepository) PayFromWallet(ctx context.Context, orderID int64, entry *domain.LedgerEntry, staffPay float64) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, entry.UserID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to acquire wallet lock for user %d: %w", entry.UserID, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET status = 'PAID', is_paid = TRUE, pay_method = $2, pay_reference = $3,
		     cost_amount = $4, cost_currency = $5, staff_pay = $6,
		     commission_status = 'UNPAID', updated_at = NOW()
		 WHERE id = $1 AND NOT is_paid`,
		orderID, entry.Method, entry.Reference, entry.Amount, entry.Currency, staffPay,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to mark order %d paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		var isPaid bool
		err := r.db.QueryRow(ctx, `SELECT is_paid FROM orders WHERE id = $1`, orderID).Scan(&isPaid)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("repository: failed to get order %d: %w", orderID, err)
		}
		return nil, ErrAlreadyPaid
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, currency) VALUES ($1, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to ensure wallet for user %d: %w", entry.UserID, err)
	}

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, entry.UserID,
	).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to read balance for user %d: %w", entry.UserID, err)
	}
	if balance < entry.Amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2 WHERE user_id = $1`,
		entry.UserID, entry.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to debit wallet for user %d: %w", entry.UserID, err)
	}

	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if entry.Status == "" {
		entry.Status = domain.EntryStatusCompleted
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, category, amount, currency, method, status, reference, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		entry.UserID, entry.Type, entry.Category, entry.Amount, entry.Currency,
		entry.Method, entry.Status, entry.Reference, entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("repository: failed to record payment %q: %w", entry.Reference, err)
	}

	if err := insertEvent(ctx, tx, orderID, domain.OrderStatusPaid, nil, "payment received"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit payment: %w", err)
	}

	return entry, nil
}

// MergeMetadata folds extra keys into the entry's metadata.
func (r *LedgerRepository) MergeMetadata(ctx context.Context, entryID int64, metadata map[string]string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET metadata = metadata || $2, updated_at = NOW() WHERE id = $1`,
		entryID, metadata,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to merge metadata for entry %d: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// GetWallet returns the user's wallet; users without one yet get a zero
// balance.
func (r *LedgerRepository) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet := &domain.Wallet{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT balance, currency FROM wallets WHERE user_id = $1`, userID,
	).Scan(&wallet.Balance, &wallet.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			wallet.Currency = "KES"
			return wallet, nil
		}
		return nil, fmt.Errorf("repository: failed to get wallet for user %d: %w", userID, err)
	}

	return wallet, nil
}

// ListByUser returns the user's entries, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM transactions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list entries for user %d: %w", userID, err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating entries: %w", err)
	}

	return entries, nil
}

// SettleCommissions pays out all unpaid staff commissions in one
// transaction: the eligible orders are locked, summed per staff, each
// staff wallet is credited with a PAYOUT entry, and the orders are
// marked settled. A concurrent run sees either all of it or none.
func (r *LedgerRepository) SettleCommissions(ctx context.Context) ([]domain.PayoutSummary, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT id, assigned_to, staff_pay, cost_currency FROM orders
		 WHERE commission_status = 'UNPAID' AND is_paid AND staff_pay > 0 AND assigned_to IS NOT NULL
		 FOR UPDATE`,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select unpaid commissions: %w", err)
	}

	type group struct {
		amount   float64
		orders   int
		currency string
	}
	groups := map[int64]*group{}
	var orderIDs []int64
	for rows.Next() {
		var (
			orderID, staffID int64
			staffPay         float64
			currency         string
		)
		if err := rows.Scan(&orderID, &staffID, &staffPay, &currency); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository: failed to scan commission row: %w", err)
		}
		g, ok := groups[staffID]
		if !ok {
			g = &group{currency: currency}
			groups[staffID] = g
		}
		g.amount += staffPay
		g.orders++
		orderIDs = append(orderIDs, orderID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating commissions: %w", err)
	}

	if len(orderIDs) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("repository: failed to commit empty payout: %w", err)
		}
		return nil, nil
	}

	staffIDs := make([]int64, 0, len(groups))
	for staffID := range groups {
		staffIDs = append(staffIDs, staffID)
	}
	sort.Slice(staffIDs, func(i, j int) bool { return staffIDs[i] < staffIDs[j] })

	summaries := make([]domain.PayoutSummary, 0, len(staffIDs))
	for _, staffID := range staffIDs {
		g := groups[staffID]
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (user_id, type, category, amount, currency, method, status, reference, metadata)
			 VALUES ($1, 'PAYOUT', 'COMMISSION', $2, $3, 'WALLET', 'COMPLETED', $4, $5)`,
			staffID, g.amount, g.currency, tracking.NewReference("PAYOUT"),
			map[string]string{"orders": fmt.Sprintf("%d", g.orders)},
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to record payout for staff %d: %w", staffID, err)
		}
		if err := creditWallet(ctx, tx, staffID, g.amount, g.currency); err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.PayoutSummary{StaffID: staffID, Amount: g.amount, Orders: g.orders})
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET commission_status = 'PAID', updated_at = NOW() WHERE id = ANY($1)`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to mark commissions paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit payout: %w", err)
	}

	return summaries, nil
}

// ExpirePendingCheckouts fails gateway entries stuck PENDING since
// before the cutoff.
func (r *LedgerRepository) ExpirePendingCheckouts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions
		 SET status = 'FAILED',
		     metadata = metadata || '{"failed_reason": "checkout expired"}'::jsonb,
		     updated_at = NOW()
		 WHERE status = 'PENDING' AND method = 'GATEWAY' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to expire pending checkouts: %w", err)
	}

	return tag.RowsAffected(), nil
}

func creditWallet(ctx context.Context, tx pgx.Tx, userID int64, amount float64, currency string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, currency) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		userID, amount, currency,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to credit wallet for user %d: %w", userID, err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const orderColumns = `id, tracking_code, user_id, service_type, payload, status, assigned_to,
	 cost_amount, cost_currency, pay_method, pay_reference, is_paid, staff_pay, commission_status,
	 action_required, action_type, action_message, action_response, admin_notes,
	 created_at, updated_at, completed_at`

// OrderRepository implements domain.OrderRepository.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID, &order.TrackingCode, &order.UserID, &order.ServiceType, &order.Payload,
		&order.Status, &order.AssignedTo,
		&order.Cost.Amount, &order.Cost.Currency,
		&order.Payment.Method, &order.Payment.Reference, &order.Payment.IsPaid,
		&order.Payment.StaffPay, &order.Payment.CommissionStatus,
		&order.ClientAction.Required, &order.ClientAction.Type,
		&order.ClientAction.Message, &order.ClientAction.Response,
		&order.AdminNotes, &order.CreatedAt, &order.UpdatedAt, &order.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Create inserts the order, selecting the lowest-load eligible staff
// member in the same transaction. The candidate row is locked with SKIP
// LOCKED so two concurrent submissions cannot pick the same staff before
// either assignment is visible.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var staffID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM users
		 WHERE role = 'staff' AND is_online AND is_active
		 ORDER BY (
			SELECT COUNT(*) FROM orders o
			WHERE o.assigned_to = users.id AND o.status IN ('ASSIGNED', 'IN_PROGRESS')
		 ) ASC, id ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
	).Scan(&staffID)

	switch {
	case err == nil:
		order.AssignedTo = &staffID
		order.Status = domain.OrderStatusAssigned
	case errors.Is(err, pgx.ErrNoRows):
		order.AssignedTo = nil
		order.Status = domain.OrderStatusPending
	default:
		return nil, fmt.Errorf("repository: failed to select staff: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (tracking_code, user_id, service_type, payload, status, assigned_to)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, commission_status, cost_currency, created_at, updated_at`,
		order.TrackingCode, order.UserID, order.ServiceType, order.Payload, order.Status, order.AssignedTo,
	).Scan(&order.ID, &order.Payment.CommissionStatus, &order.Cost.Currency, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to create order %q: %w", order.TrackingCode, err)
	}

	if err := insertEvent(ctx, tx, order.ID, order.Status, &order.UserID, "order submitted"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit order creation: %w", err)
	}

	return order, nil
}

// GetByID returns the order with its checklist steps.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to get order %d: %w", id, err)
	}

	steps, err := r.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Steps = steps

	return order, nil
}

func (r *OrderRepository) listSteps(ctx context.Context, orderID int64) ([]domain.Step, error) {
	rows, err := r.db.Query(ctx,
		`SELECT step, completed, completed_at FROM order_steps WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get steps for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var s domain.Step
		if err := rows.Scan(&s.Name, &s.Completed, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating steps: %w", err)
	}

	return steps, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		conds = append(conds, "user_id = "+arg(*filter.UserID))
	}
	if filter.AssignedTo != nil {
		cond := "assigned_to = " + arg(*filter.AssignedTo)
		if filter.IncludePool {
			cond = "(" + cond + " OR (status = 'PENDING' AND assigned_to IS NULL))"
		}
		conds = append(conds, cond)
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	return orders, nil
}

// ListEvents returns the status timeline of an order, oldest first.
func (r *OrderRepository) ListEvents(ctx context.Context, orderID int64) ([]*domain.OrderEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, order_id, status, actor_id, note, created_at
		 FROM order_events WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list events for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var events []*domain.OrderEvent
	for rows.Next() {
		e := &domain.OrderEvent{}
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating events: %w", err)
	}

	return events, nil
}

// Assign sets the assignee; orders already assigned are refused so an
// engine or admin decision is never silently overwritten.
func (r *OrderRepository) Assign(ctx context.Context, orderID, staffID int64, actorID int64) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET assigned_to = $2, status = 'ASSIGNED', updated_at = NOW()
		 WHERE id = $1 AND assigned_to IS NULL`,
		orderID, staffID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("repository: failed to assign order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyAssigned
	}

	note := fmt.Sprintf("assigned to staff %d", staffID)
	if err := insertEvent(ctx, tx, orderID, domain.OrderStatusAssigned, &actorID, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit assignment: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

// UpsertStep records a checklist step for the acting assignee and
// advances ASSIGNED -> IN_PROGRESS on the first update.
func (r *OrderRepository) UpsertStep(ctx context.Context, orderID, staffID int64, step string, completed bool) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status domain.OrderStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 AND assigned_to = $2 FOR UPDATE`,
		orderID, staffID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.notFoundOrNotAssignee(ctx, orderID)
		}
		return nil, fmt.Errorf("repository: failed to lock order %d: %w", orderID, err)
	}

	if status == domain.OrderStatusAssigned {
		_, err = tx.Exec(ctx,
			`UPDATE orders SET status = 'IN_PROGRESS', updated_at = NOW() WHERE id = $1`,
			orderID,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to advance order %d: %w", orderID, err)
		}
		if err := insertEvent(ctx, tx, orderID, domain.OrderStatusInProgress, &staffID, "processing started"); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO order_steps (order_id, step, completed, completed_at)
		 VALUES ($1, $2, $3, CASE WHEN $3 THEN NOW() END)
		 ON CONFLICT (order_id, step)
		 DO UPDATE SET completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at`,
		orderID, step, completed,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to upsert step %q for order %d: %w", step, orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit step update: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

// SetClientAction attaches an input request and keeps the order active.
func (r *OrderRepository) SetClientAction(ctx context.Context, orderID, staffID int64, action domain.ClientAction) (*domain.Order, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET action_required = TRUE, action_type = $3, action_message = $4,
		     action_response = '', status = 'IN_PROGRESS', updated_at = NOW()
		 WHERE id = $1 AND assigned_to = $2`,
		orderID, staffID, action.Type, action.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to request input for order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.notFoundOrNotAssignee(ctx, orderID)
	}

	return r.GetByID(ctx, orderID)
}

// SetClientResponse stores the client's answer and clears the pending
// input flag.
func (r *OrderRepository) SetClientResponse(ctx context.Context, orderID int64, response string) (*domain.Order, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET action_response = $2, action_required = FALSE, updated_at = NOW()
		 WHERE id = $1 AND action_required`,
		orderID, response,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to store input for order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoInputRequested
	}

	return r.GetByID(ctx, orderID)
}

// UpdateStatusGuarded moves the order to the target status only from one
// of the allowed source states.
func (r *OrderRepository) UpdateStatusGuarded(ctx context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, actorID *int64, note string) (*domain.Order, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET status = $2, admin_notes = CASE WHEN $3 <> '' THEN $3 ELSE admin_notes END,
		     completed_at = CASE WHEN $2 = 'COMPLETED' THEN NOW() ELSE completed_at END,
		     updated_at = NOW()
		 WHERE id = $1 AND status = ANY($4)`,
		orderID, string(to), note, allowed,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to update status of order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}

	if err := insertEvent(ctx, tx, orderID, to, actorID, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit status update: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

// MarkPaid flips is_paid exactly once and moves the order to PAID.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID int64, method, reference string, cost domain.Cost, staffPay float64) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET status = 'PAID', is_paid = TRUE, pay_method = $2, pay_reference = $3,
		     cost_amount = $4, cost_currency = $5, staff_pay = $6,
		     commission_status = 'UNPAID', updated_at = NOW()
		 WHERE id = $1 AND NOT is_paid`,
		orderID, method, reference, cost.Amount, cost.Currency, staffPay,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to mark order %d paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyPaid
	}

	if err := insertEvent(ctx, tx, orderID, domain.OrderStatusPaid, nil, "payment received"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit payment: %w", err)
	}

	return r.GetByID(ctx, orderID)
}

// Earnings sums the staff share across the staff member's finished
// orders.
func (r *OrderRepository) Earnings(ctx context.Context, staffID int64) (*domain.Earnings, error) {
	e := &domain.Earnings{}
	err := r.db.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(staff_pay), 0),
			COALESCE(SUM(staff_pay) FILTER (WHERE commission_status = 'UNPAID'), 0),
			COUNT(*)
		 FROM orders
		 WHERE assigned_to = $1 AND status IN ('COMPLETED', 'PAID')`,
		staffID,
	).Scan(&e.TotalEarned, &e.PendingPayout, &e.CompletedTasks)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get earnings for staff %d: %w", staffID, err)
	}

	return e, nil
}

// ListRenewalsDue returns COMPLETED orders created inside the window.
func (r *OrderRepository) ListRenewalsDue(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'COMPLETED' AND created_at >= $1 AND created_at < $2`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list renewals: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating renewals: %w", err)
	}

	return orders, nil
}

// notFoundOrNotAssignee distinguishes a missing order from one assigned
// to somebody else.
func (r *OrderRepository) notFoundOrNotAssignee(ctx context.Context, orderID int64) error {
	if _, err := r.GetByID(ctx, orderID); err != nil {
		return err
	}
	return ErrNotAssignee
}

func insertEvent(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus, actorID *int64, note string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_events (order_id, status, actor_id, note) VALUES ($1, $2, $3, $4)`,
		orderID, status, actorID, note,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to record event for order %d: %w", orderID, err)
	}
	return nil
}

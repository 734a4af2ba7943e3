package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/repository/postgres"
	"github.com/btech/servicedesk/internal/utils/tracking"
)

// OrderService implements the order lifecycle: submission with
// auto-assignment, staff processing, admin verification and payment.
type OrderService struct {
	orderRepo      domain.OrderRepository
	ledgerRepo     domain.LedgerRepository
	notifier       domain.Notifier
	feeRate        float64
	commissionRate float64
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo domain.OrderRepository, ledgerRepo domain.LedgerRepository, notifier domain.Notifier, feeRate, commissionRate float64) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		ledgerRepo:     ledgerRepo,
		notifier:       notifier,
		feeRate:        feeRate,
		commissionRate: commissionRate,
	}
}

// StaffPay computes the staff share of an order amount: the gateway fee
// comes off the top, the commission rate applies to the remainder,
// rounded to the nearest whole unit.
func (s *OrderService) StaffPay(amount float64) float64 {
	return math.Round((amount - amount*s.feeRate) * s.commissionRate)
}

// Submit creates an order and auto-assigns it to the least loaded
// online staff member, if any.
func (s *OrderService) Submit(ctx context.Context, userID int64, serviceType string, payload []byte) (*domain.Order, error) {
	order, err := s.orderRepo.Create(ctx, &domain.Order{
		TrackingCode: tracking.NewCode(),
		UserID:       userID,
		ServiceType:  serviceType,
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: failed to submit order: %w", err)
	}

	if order.AssignedTo != nil {
		s.notifier.Enqueue(domain.NotificationEvent{
			Type:       domain.EventOrderAssigned,
			UserID:     *order.AssignedTo,
			OccurredAt: time.Now(),
			Data:       map[string]string{"tracking_code": order.TrackingCode},
		})
	}

	return order, nil
}

// Get returns an order visible to the caller: clients see their own,
// staff see their assignments and the unassigned pool, admins see all.
func (s *OrderService) Get(ctx context.Context, orderID, callerID int64, role domain.Role) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}

	switch role {
	case domain.RoleAdmin:
	case domain.RoleStaff:
		assignedToCaller := order.AssignedTo != nil && *order.AssignedTo == callerID
		inPool := order.AssignedTo == nil && order.Status == domain.OrderStatusPending
		if !assignedToCaller && !inPool {
			return nil, domain.ErrForbidden
		}
	default:
		if order.UserID != callerID {
			return nil, domain.ErrForbidden
		}
	}

	return order, nil
}

// ListForClient returns the client's own orders.
func (s *OrderService) ListForClient(ctx context.Context, userID int64) ([]*domain.Order, error) {
	orders, err := s.orderRepo.List(ctx, domain.OrderFilter{UserID: &userID})
	if err != nil {
		return nil, fmt.Errorf("order service: failed to list orders for user %d: %w", userID, err)
	}
	return orders, nil
}

// ListForStaff returns the staff member's assignments plus the
// unassigned pool.
func (s *OrderService) ListForStaff(ctx context.Context, staffID int64) ([]*domain.Order, error) {
	orders, err := s.orderRepo.List(ctx, domain.OrderFilter{AssignedTo: &staffID, IncludePool: true})
	if err != nil {
		return nil, fmt.Errorf("order service: failed to list tasks for staff %d: %w", staffID, err)
	}
	return orders, nil
}

// ListAll returns orders for the admin view, optionally filtered by
// status.
func (s *OrderService) ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	orders, err := s.orderRepo.List(ctx, domain.OrderFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("order service: failed to list orders: %w", err)
	}
	return orders, nil
}

// Timeline returns the status history of an order.
func (s *OrderService) Timeline(ctx context.Context, orderID int64) ([]*domain.OrderEvent, error) {
	if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	events, err := s.orderRepo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order service: failed to list events for order %d: %w", orderID, err)
	}
	return events, nil
}

// Assign hands an unassigned order to a staff member.
func (s *OrderService) Assign(ctx context.Context, orderID, staffID, actorID int64) (*domain.Order, error) {
	order, err := s.orderRepo.Assign(ctx, orderID, staffID, actorID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}

	s.notifier.Enqueue(domain.NotificationEvent{
		Type:       domain.EventOrderAssigned,
		UserID:     staffID,
		OccurredAt: time.Now(),
		Data:       map[string]string{"tracking_code": order.TrackingCode},
	})

	return order, nil
}

// UpdateStep records checklist progress for the assignee.
func (s *OrderService) UpdateStep(ctx context.Context, orderID, staffID int64, step string, completed bool) (*domain.Order, error) {
	order, err := s.orderRepo.UpsertStep(ctx, orderID, staffID, step, completed)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return order, nil
}

// RequestInput asks the client for additional input on an order.
func (s *OrderService) RequestInput(ctx context.Context, orderID, staffID int64, actionType, message string) (*domain.Order, error) {
	order, err := s.orderRepo.SetClientAction(ctx, orderID, staffID, domain.ClientAction{
		Type:    actionType,
		Message: message,
	})
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return order, nil
}

// SubmitInput stores the owner's answer to a pending input request.
func (s *OrderService) SubmitInput(ctx context.Context, orderID, userID int64, response string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}

	order, err = s.orderRepo.SetClientResponse(ctx, orderID, response)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return order, nil
}

// Complete moves the assignee's finished work into review. Orders paid
// ahead of completion are admitted so an early payment never stalls the
// lifecycle.
func (s *OrderService) Complete(ctx context.Context, orderID, staffID int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	if order.AssignedTo == nil || *order.AssignedTo != staffID {
		return nil, domain.ErrForbidden
	}

	order, err = s.orderRepo.UpdateStatusGuarded(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusAssigned, domain.OrderStatusInProgress, domain.OrderStatusPaid},
		domain.OrderStatusInReview, &staffID, "submitted for review")
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return order, nil
}

// Verify is the admin sign-off that moves a reviewed order to
// COMPLETED and quotes the amount due. Paid orders are admitted too, so
// work paid for mid-review still reaches COMPLETED.
func (s *OrderService) Verify(ctx context.Context, orderID, adminID int64, note string) (*domain.Order, error) {
	order, err := s.orderRepo.UpdateStatusGuarded(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusInReview, domain.OrderStatusPaid},
		domain.OrderStatusCompleted, &adminID, note)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}

	s.notifier.Enqueue(domain.NotificationEvent{
		Type:       domain.EventOrderCompleted,
		UserID:     order.UserID,
		OccurredAt: time.Now(),
		Data:       map[string]string{"tracking_code": order.TrackingCode},
	})

	return order, nil
}

// Reject terminates an order that has not been completed or paid.
// Staff may only reject their own assignments; admins may reject any.
func (s *OrderService) Reject(ctx context.Context, orderID, actorID int64, role domain.Role, note string) (*domain.Order, error) {
	if role == domain.RoleStaff {
		order, err := s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return nil, mapOrderErr(err, orderID)
		}
		if order.AssignedTo == nil || *order.AssignedTo != actorID {
			return nil, domain.ErrForbidden
		}
	}

	order, err := s.orderRepo.UpdateStatusGuarded(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusAssigned, domain.OrderStatusInProgress, domain.OrderStatusInReview},
		domain.OrderStatusRejected, &actorID, note)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return order, nil
}

// Pay settles the bill for an order. The only precondition is that
// isPaid is still false; a client may pay at any point in the lifecycle
// and the order keeps progressing afterwards. Method WALLET flips isPaid
// and debits the owner's wallet in one repository transaction; external
// methods record the reference the client paid under. isPaid flips
// exactly once and the staff share is fixed at that moment.
func (s *OrderService) Pay(ctx context.Context, orderID, userID int64, method string, amount float64, reference string) (*domain.Order, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if order.Payment.IsPaid {
		return nil, domain.ErrAlreadyPaid
	}

	cost := domain.Cost{Amount: amount, Currency: order.Cost.Currency}
	staffPay := 0.0
	if order.AssignedTo != nil {
		staffPay = s.StaffPay(amount)
	}

	switch method {
	case domain.MethodWallet:
		reference = tracking.NewReference("PAY")
		_, err = s.ledgerRepo.PayFromWallet(ctx, orderID, &domain.LedgerEntry{
			UserID:    userID,
			Type:      domain.EntryTypePayment,
			Category:  domain.CategoryServiceFee,
			Amount:    amount,
			Currency:  cost.Currency,
			Method:    domain.MethodWallet,
			Reference: reference,
			Metadata:  map[string]string{"tracking_code": order.TrackingCode},
		}, staffPay)
		if err != nil {
			if errors.Is(err, postgres.ErrInsufficientFunds) {
				return nil, domain.ErrInsufficientFunds
			}
			return nil, mapOrderErr(err, orderID)
		}
		order, err = s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return nil, mapOrderErr(err, orderID)
		}

	case domain.MethodMpesa, domain.MethodGateway:
		if reference == "" {
			return nil, ErrMissingReference
		}
		order, err = s.orderRepo.MarkPaid(ctx, orderID, method, reference, cost, staffPay)
		if err != nil {
			return nil, mapOrderErr(err, orderID)
		}

	default:
		return nil, ErrUnknownMethod
	}

	s.notifier.Enqueue(domain.NotificationEvent{
		Type:       domain.EventPaymentConfirmed,
		UserID:     userID,
		OccurredAt: time.Now(),
		Data: map[string]string{
			"tracking_code": order.TrackingCode,
			"amount":        fmt.Sprintf("%.2f", amount),
		},
	})

	return order, nil
}

// Earnings returns the staff earnings report.
func (s *OrderService) Earnings(ctx context.Context, staffID int64) (*domain.Earnings, error) {
	earnings, err := s.orderRepo.Earnings(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("order service: failed to get earnings for staff %d: %w", staffID, err)
	}
	return earnings, nil
}

// mapOrderErr converts repository sentinels to domain sentinels without
// wrapping them, so handlers can switch on errors.Is.
func mapOrderErr(err error, orderID int64) error {
	switch {
	case errors.Is(err, postgres.ErrOrderNotFound):
		return domain.ErrOrderNotFound
	case errors.Is(err, postgres.ErrNotAssignee):
		return domain.ErrForbidden
	case errors.Is(err, postgres.ErrAlreadyAssigned):
		return domain.ErrAlreadyAssigned
	case errors.Is(err, postgres.ErrAlreadyPaid):
		return domain.ErrAlreadyPaid
	case errors.Is(err, postgres.ErrInvalidTransition):
		return domain.ErrInvalidTransition
	case errors.Is(err, postgres.ErrNoInputRequested):
		return domain.ErrNoInputRequested
	case errors.Is(err, postgres.ErrStaffNotFound):
		return domain.ErrStaffNotFound
	default:
		return fmt.Errorf("order service: order %d: %w", orderID, err)
	}
}

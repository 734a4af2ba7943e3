package service

import (
	"context"
	"testing"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(orderRepo *stubOrderRepo, ledgerRepo *stubLedgerRepo, notifier *recordingNotifier) *OrderService {
	return NewOrderService(orderRepo, ledgerRepo, notifier, 0.03, 0.70)
}

func TestOrderService_StaffPay(t *testing.T) {
	svc := newOrderService(nil, nil, &recordingNotifier{})

	// (5000 - 150) * 0.70 = 3395
	assert.Equal(t, 3395.0, svc.StaffPay(5000))
	// (1000 - 30) * 0.70 = 679
	assert.Equal(t, 679.0, svc.StaffPay(1000))
	// (333 - 9.99) * 0.70 = 226.107 -> 226
	assert.Equal(t, 226.0, svc.StaffPay(333))
}

func TestOrderService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("Assigned order notifies the staff member", func(t *testing.T) {
		staffID := int64(7)
		repo := &stubOrderRepo{
			createFn: func(_ context.Context, order *domain.Order) (*domain.Order, error) {
				require.NotEmpty(t, order.TrackingCode)
				order.ID = 1
				order.Status = domain.OrderStatusAssigned
				order.AssignedTo = &staffID
				return order, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newOrderService(repo, nil, notifier)

		order, err := svc.Submit(ctx, 1, "company_registration", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusAssigned, order.Status)

		events := notifier.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventOrderAssigned, events[0].Type)
		assert.Equal(t, staffID, events[0].UserID)
	})

	t.Run("Pool order sends no notification", func(t *testing.T) {
		repo := &stubOrderRepo{
			createFn: func(_ context.Context, order *domain.Order) (*domain.Order, error) {
				order.ID = 2
				order.Status = domain.OrderStatusPending
				return order, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newOrderService(repo, nil, notifier)

		order, err := svc.Submit(ctx, 1, "kra_pin", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		assert.Empty(t, notifier.Events())
	})
}

func TestOrderService_Get(t *testing.T) {
	ctx := context.Background()
	staffID := int64(7)
	order := &domain.Order{ID: 1, UserID: 10, Status: domain.OrderStatusAssigned, AssignedTo: &staffID}

	repo := &stubOrderRepo{
		getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
			if id != 1 {
				return nil, postgres.ErrOrderNotFound
			}
			return order, nil
		},
	}
	svc := newOrderService(repo, nil, &recordingNotifier{})

	t.Run("Owner sees own order", func(t *testing.T) {
		got, err := svc.Get(ctx, 1, 10, domain.RoleClient)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("Other client is forbidden", func(t *testing.T) {
		_, err := svc.Get(ctx, 1, 11, domain.RoleClient)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Assignee sees the task", func(t *testing.T) {
		_, err := svc.Get(ctx, 1, staffID, domain.RoleStaff)
		assert.NoError(t, err)
	})

	t.Run("Other staff is forbidden", func(t *testing.T) {
		_, err := svc.Get(ctx, 1, 8, domain.RoleStaff)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Admin sees anything", func(t *testing.T) {
		_, err := svc.Get(ctx, 1, 999, domain.RoleAdmin)
		assert.NoError(t, err)
	})

	t.Run("Unknown order", func(t *testing.T) {
		_, err := svc.Get(ctx, 404, 10, domain.RoleClient)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestOrderService_Complete(t *testing.T) {
	ctx := context.Background()
	staffID := int64(7)

	t.Run("Only the assignee may complete", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{ID: id, Status: domain.OrderStatusInProgress, AssignedTo: &staffID}, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Complete(ctx, 1, 8)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Moves to review", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{ID: id, Status: domain.OrderStatusInProgress, AssignedTo: &staffID}, nil
			},
			updateStatusFn: func(_ context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, _ *int64, _ string) (*domain.Order, error) {
				assert.Contains(t, from, domain.OrderStatusInProgress)
				assert.Equal(t, domain.OrderStatusInReview, to)
				return &domain.Order{ID: orderID, Status: to, AssignedTo: &staffID}, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		order, err := svc.Complete(ctx, 1, staffID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusInReview, order.Status)
	})

	t.Run("Early-paid order still reaches review", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{
					ID: id, Status: domain.OrderStatusPaid, AssignedTo: &staffID,
					Payment: domain.Payment{IsPaid: true},
				}, nil
			},
			updateStatusFn: func(_ context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, _ *int64, _ string) (*domain.Order, error) {
				assert.Contains(t, from, domain.OrderStatusPaid)
				return &domain.Order{ID: orderID, Status: to, AssignedTo: &staffID}, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		order, err := svc.Complete(ctx, 1, staffID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusInReview, order.Status)
	})
}

func TestOrderService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("Review sign-off notifies the client", func(t *testing.T) {
		repo := &stubOrderRepo{
			updateStatusFn: func(_ context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, _ *int64, _ string) (*domain.Order, error) {
				assert.Contains(t, from, domain.OrderStatusInReview)
				assert.Contains(t, from, domain.OrderStatusPaid)
				return &domain.Order{ID: orderID, UserID: 10, TrackingCode: "TRK-AB12CD34", Status: to}, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newOrderService(repo, nil, notifier)

		order, err := svc.Verify(ctx, 1, 99, "looks good")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCompleted, order.Status)

		events := notifier.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventOrderCompleted, events[0].Type)
		assert.Equal(t, int64(10), events[0].UserID)
	})

	t.Run("Wrong source state", func(t *testing.T) {
		repo := &stubOrderRepo{
			updateStatusFn: func(_ context.Context, _ int64, _ []domain.OrderStatus, _ domain.OrderStatus, _ *int64, _ string) (*domain.Order, error) {
				return nil, postgres.ErrInvalidTransition
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Verify(ctx, 1, 99, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestOrderService_Pay(t *testing.T) {
	ctx := context.Background()
	staffID := int64(7)

	completedOrder := func() *domain.Order {
		return &domain.Order{
			ID: 1, UserID: 10, TrackingCode: "TRK-AB12CD34",
			Status: domain.OrderStatusCompleted, AssignedTo: &staffID,
			Cost: domain.Cost{Currency: "KES"},
		}
	}

	t.Run("Wallet payment debits and fixes the staff share", func(t *testing.T) {
		current := completedOrder()
		var debited *domain.LedgerEntry
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				o := *current
				return &o, nil
			},
		}
		ledger := &stubLedgerRepo{
			payFromWalletFn: func(_ context.Context, orderID int64, entry *domain.LedgerEntry, staffPay float64) (*domain.LedgerEntry, error) {
				assert.Equal(t, int64(1), orderID)
				assert.Equal(t, 3395.0, staffPay)
				debited = entry
				current.Status = domain.OrderStatusPaid
				current.Payment = domain.Payment{Method: entry.Method, Reference: entry.Reference, IsPaid: true, StaffPay: staffPay}
				return entry, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newOrderService(repo, ledger, notifier)

		order, err := svc.Pay(ctx, 1, 10, domain.MethodWallet, 5000, "")
		require.NoError(t, err)
		assert.True(t, order.Payment.IsPaid)

		require.NotNil(t, debited)
		assert.Equal(t, domain.CategoryServiceFee, debited.Category)
		assert.Equal(t, 5000.0, debited.Amount)
		assert.NotEmpty(t, debited.Reference)

		events := notifier.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventPaymentConfirmed, events[0].Type)
	})

	t.Run("In-progress order accepts payment", func(t *testing.T) {
		current := completedOrder()
		current.Status = domain.OrderStatusInProgress
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				o := *current
				return &o, nil
			},
		}
		ledger := &stubLedgerRepo{
			payFromWalletFn: func(_ context.Context, _ int64, entry *domain.LedgerEntry, staffPay float64) (*domain.LedgerEntry, error) {
				assert.Equal(t, 679.0, staffPay)
				current.Status = domain.OrderStatusPaid
				current.Payment = domain.Payment{Method: entry.Method, Reference: entry.Reference, IsPaid: true, StaffPay: staffPay}
				return entry, nil
			},
		}
		svc := newOrderService(repo, ledger, &recordingNotifier{})

		order, err := svc.Pay(ctx, 1, 10, domain.MethodWallet, 1000, "")
		require.NoError(t, err)
		assert.True(t, order.Payment.IsPaid)
	})

	t.Run("Insufficient funds leaves the order unpaid", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				return completedOrder(), nil
			},
		}
		ledger := &stubLedgerRepo{
			payFromWalletFn: func(_ context.Context, _ int64, _ *domain.LedgerEntry, _ float64) (*domain.LedgerEntry, error) {
				return nil, postgres.ErrInsufficientFunds
			},
		}
		svc := newOrderService(repo, ledger, &recordingNotifier{})

		_, err := svc.Pay(ctx, 1, 10, domain.MethodWallet, 5000, "")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("Lost race surfaces the conflict without a notification", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				return completedOrder(), nil
			},
		}
		ledger := &stubLedgerRepo{
			payFromWalletFn: func(_ context.Context, _ int64, _ *domain.LedgerEntry, _ float64) (*domain.LedgerEntry, error) {
				return nil, postgres.ErrAlreadyPaid
			},
		}
		notifier := &recordingNotifier{}
		svc := newOrderService(repo, ledger, notifier)

		_, err := svc.Pay(ctx, 1, 10, domain.MethodWallet, 5000, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
		assert.Empty(t, notifier.Events())
	})

	t.Run("Second payment refused", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				order := completedOrder()
				order.Status = domain.OrderStatusPaid
				order.Payment.IsPaid = true
				return order, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Pay(ctx, 1, 10, domain.MethodWallet, 5000, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	})

	t.Run("External method requires a reference", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				return completedOrder(), nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Pay(ctx, 1, 10, domain.MethodMpesa, 5000, "")
		assert.ErrorIs(t, err, ErrMissingReference)
	})

	t.Run("External method records the client's reference", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				return completedOrder(), nil
			},
			markPaidFn: func(_ context.Context, orderID int64, method, reference string, cost domain.Cost, staffPay float64) (*domain.Order, error) {
				assert.Equal(t, domain.MethodMpesa, method)
				assert.Equal(t, "MPESA-REF-1", reference)
				assert.Equal(t, 3395.0, staffPay)
				order := completedOrder()
				order.Status = domain.OrderStatusPaid
				order.Payment = domain.Payment{Method: method, Reference: reference, IsPaid: true, StaffPay: staffPay}
				return order, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		order, err := svc.Pay(ctx, 1, 10, domain.MethodMpesa, 5000, "MPESA-REF-1")
		require.NoError(t, err)
		assert.True(t, order.Payment.IsPaid)
	})

	t.Run("Not the owner", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, _ int64) (*domain.Order, error) {
				return completedOrder(), nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Pay(ctx, 1, 11, domain.MethodWallet, 5000, "")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestOrderService_Reject(t *testing.T) {
	ctx := context.Background()
	staffID := int64(7)

	t.Run("Staff cannot reject another's task", func(t *testing.T) {
		other := int64(8)
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{ID: id, Status: domain.OrderStatusInProgress, AssignedTo: &other}, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Reject(ctx, 1, staffID, domain.RoleStaff, "out of scope")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Paid order cannot be rejected", func(t *testing.T) {
		repo := &stubOrderRepo{
			updateStatusFn: func(_ context.Context, _ int64, _ []domain.OrderStatus, _ domain.OrderStatus, _ *int64, _ string) (*domain.Order, error) {
				return nil, postgres.ErrInvalidTransition
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.Reject(ctx, 1, 99, domain.RoleAdmin, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestOrderService_SubmitInput(t *testing.T) {
	ctx := context.Background()

	t.Run("No pending request", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{ID: id, UserID: 10}, nil
			},
			setClientResponseFn: func(_ context.Context, _ int64, _ string) (*domain.Order, error) {
				return nil, postgres.ErrNoInputRequested
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.SubmitInput(ctx, 1, 10, "KRA12345")
		assert.ErrorIs(t, err, domain.ErrNoInputRequested)
	})

	t.Run("Owner only", func(t *testing.T) {
		repo := &stubOrderRepo{
			getByIDFn: func(_ context.Context, id int64) (*domain.Order, error) {
				return &domain.Order{ID: id, UserID: 10}, nil
			},
		}
		svc := newOrderService(repo, nil, &recordingNotifier{})

		_, err := svc.SubmitInput(ctx, 1, 11, "KRA12345")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

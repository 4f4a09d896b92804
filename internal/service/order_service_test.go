package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/onstechno/storefront/internal/auth"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestPlaceOrder_Success() {
	keyboardID := s.seedProduct("Mechanical Keyboard", "mechanical-keyboard", "100.00", 5)
	mouseID := s.seedProduct("Wireless Mouse", "wireless-mouse", "50.00", 10)

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: keyboardID, Quantity: 2},
		domain.CartLine{ProductID: mouseID, Quantity: 2},
	))
	s.Require().NoError(err)
	s.Require().NotNil(order)

	s.Require().NotZero(order.ID)
	s.Require().Len(order.OrderNumber, 14)
	s.Require().Equal("ORD-", order.OrderNumber[:4])
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().Equal(domain.PaymentStatusPending, order.PaymentStatus)
	s.Require().Len(order.Items, 2)
	s.Require().True(order.TotalAmount.Equal(decimal.RequireFromString("300.00")))

	// Captured name and unit price, not a product reference.
	s.Require().Equal("Mechanical Keyboard", order.Items[0].Name)
	s.Require().True(order.Items[0].Subtotal.Equal(decimal.RequireFromString("200.00")))

	s.Require().EqualValues(3, s.productStock(keyboardID))
	s.Require().EqualValues(8, s.productStock(mouseID))
}

func (s *IntegrationTestSuite) TestPlaceOrder_EmitsOutboxEvent() {
	productID := s.seedProduct("Desk Mat", "desk-mat", "25.00", 3)

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	query := `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = 'order.placed'
	`

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(s.Ctx, query, fmt.Sprintf("%d", order.ID)).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestPlaceOrder_InsufficientStock_RollsBackEverything() {
	okID := s.seedProduct("Cable", "cable", "10.00", 100)
	scarceID := s.seedProduct("Limited Print", "limited-print", "500.00", 1)

	_, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: okID, Quantity: 3},
		domain.CartLine{ProductID: scarceID, Quantity: 2},
	))
	s.Require().Error(err)
	s.Require().True(errors.Is(err, repository.ErrInsufficientStock))
	s.Require().Contains(err.Error(), "Limited Print")

	// The earlier line's decrement must not survive the failure.
	s.Require().EqualValues(100, s.productStock(okID))
	s.Require().EqualValues(1, s.productStock(scarceID))

	var orderCount int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&orderCount))
	s.Require().Zero(orderCount)
}

func (s *IntegrationTestSuite) TestPlaceOrder_UnknownProduct() {
	_, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: 424242, Quantity: 1},
	))

	s.Require().Error(err)
	s.Require().True(errors.Is(err, repository.ErrProductNotFound))
}

func (s *IntegrationTestSuite) TestPlaceOrder_EmptyCart() {
	_, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput())

	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrEmptyCart))
}

func (s *IntegrationTestSuite) TestPlaceOrder_GuestWithoutCustomerInfo() {
	productID := s.seedProduct("Sticker", "sticker", "2.00", 10)

	input := s.placeOrderInput(domain.CartLine{ProductID: productID, Quantity: 1})
	input.UserID = nil
	input.CustomerInfo = nil

	_, err := s.OrderService.PlaceOrder(s.Ctx, input)

	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrMissingCustomer))
}

func (s *IntegrationTestSuite) TestPlaceOrder_GuestCheckout() {
	productID := s.seedProduct("Poster", "poster", "15.00", 4)

	input := s.placeOrderInput(domain.CartLine{ProductID: productID, Quantity: 1})
	input.UserID = nil
	input.CustomerInfo = &domain.CustomerInfo{
		FullName: "Amine Kaci",
		Email:    "amine@example.com",
		Phone:    "+213555000111",
	}

	order, err := s.OrderService.PlaceOrder(s.Ctx, input)
	s.Require().NoError(err)
	s.Require().Nil(order.UserID)

	admin := &auth.Identity{UserID: 1, IsAdmin: true}
	fetched, err := s.OrderService.GetOrder(s.Ctx, order.ID, admin)
	s.Require().NoError(err)
	s.Require().NotNil(fetched.CustomerInfo)
	s.Require().Equal("Amine Kaci", fetched.CustomerInfo.FullName)
}

func (s *IntegrationTestSuite) TestPlaceOrder_ConcurrentOnScarceStock() {
	// Stock of 3, two concurrent orders of 2 each: exactly one must win.
	productID := s.seedProduct("Concert Ticket", "concert-ticket", "80.00", 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
				domain.CartLine{ProductID: productID, Quantity: 2},
			))
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			s.Require().True(errors.Is(err, repository.ErrInsufficientStock))
			failed++
		}
	}
	s.Require().Equal(1, failed)
	s.Require().EqualValues(1, s.productStock(productID))
}

func (s *IntegrationTestSuite) TestCancel_RestoresStockExactlyOnce() {
	productID := s.seedProduct("Headphones", "headphones", "120.00", 6)
	owner := &auth.Identity{UserID: 999}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 4},
	))
	s.Require().NoError(err)
	s.Require().EqualValues(2, s.productStock(productID))

	s.Require().NoError(s.OrderService.Cancel(s.Ctx, order.ID, owner))
	s.Require().Equal("cancelled", s.orderStatus(order.ID))
	s.Require().EqualValues(6, s.productStock(productID))

	// Second cancel must fail and must not restore again.
	err = s.OrderService.Cancel(s.Ctx, order.ID, owner)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrOrderNotCancellable))
	s.Require().EqualValues(6, s.productStock(productID))
}

func (s *IntegrationTestSuite) TestCancel_EmitsOutboxEvent() {
	productID := s.seedProduct("Lamp", "lamp", "35.00", 2)
	owner := &auth.Identity{UserID: 999}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)
	s.Require().NoError(s.OrderService.Cancel(s.Ctx, order.ID, owner))

	query := `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = 'order.cancelled'
	`

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(s.Ctx, query, fmt.Sprintf("%d", order.ID)).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCancel_RejectedWhenNotPending() {
	productID := s.seedProduct("Monitor", "monitor", "300.00", 5)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status: domain.OrderStatusProcessing,
	}, admin)
	s.Require().NoError(err)

	err = s.OrderService.Cancel(s.Ctx, order.ID, admin)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrOrderNotCancellable))
	s.Require().EqualValues(4, s.productStock(productID))
}

func (s *IntegrationTestSuite) TestCancel_NotFound() {
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	err := s.OrderService.Cancel(s.Ctx, 424242, admin)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, repository.ErrOrderNotFound))
}

func (s *IntegrationTestSuite) TestCancel_ForbiddenForStranger() {
	productID := s.seedProduct("Chair", "chair", "150.00", 3)

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	stranger := &auth.Identity{UserID: 12345}
	err = s.OrderService.Cancel(s.Ctx, order.ID, stranger)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrForbidden))
	s.Require().Equal("pending", s.orderStatus(order.ID))
}

func (s *IntegrationTestSuite) TestUpdateStatus_HappyPath() {
	productID := s.seedProduct("Webcam", "webcam", "70.00", 2)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	paid := domain.PaymentStatusPaid
	notes := "left at the door"
	updated, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status:        domain.OrderStatusProcessing,
		PaymentStatus: &paid,
		Notes:         &notes,
	}, admin)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusProcessing, updated.Status)
	s.Require().Equal(domain.PaymentStatusPaid, updated.PaymentStatus)
	s.Require().Equal("left at the door", updated.Notes)

	updated, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status: domain.OrderStatusShipped,
	}, admin)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, updated.Status)
}

func (s *IntegrationTestSuite) TestUpdateStatus_RejectsInvalidTransition() {
	productID := s.seedProduct("Tablet", "tablet", "250.00", 2)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status: domain.OrderStatusCompleted,
	}, admin)
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status: domain.OrderStatusPending,
	}, admin)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrInvalidTransition))
}

func (s *IntegrationTestSuite) TestUpdateStatus_RejectsCancelledTarget() {
	productID := s.seedProduct("Speaker", "speaker", "90.00", 3)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 2},
	))
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
		Status: domain.OrderStatusCancelled,
	}, admin)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrInvalidTransition))

	// No stock came back through the rejected path.
	s.Require().EqualValues(1, s.productStock(productID))
	s.Require().Equal("pending", s.orderStatus(order.ID))
}

func (s *IntegrationTestSuite) TestUpdateStatus_LosesRaceToConcurrentCancel() {
	productID := s.seedProduct("Turntable", "turntable", "200.00", 5)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 2},
	))
	s.Require().NoError(err)

	// Hold a cancellation uncommitted so the status update reads the order as
	// still pending, then blocks on the row lock.
	cancelTx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = cancelTx.Rollback(s.Ctx) }()

	tag, err := cancelTx.Exec(s.Ctx,
		`UPDATE orders SET status = 'cancelled', updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
		order.ID,
	)
	s.Require().NoError(err)
	s.Require().EqualValues(1, tag.RowsAffected())

	updateErr := make(chan error, 1)
	go func() {
		_, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, &UpdateStatusInput{
			Status: domain.OrderStatusProcessing,
		}, admin)
		updateErr <- err
	}()

	// Give the update time to pass its status read and block on the write.
	time.Sleep(300 * time.Millisecond)
	s.Require().NoError(cancelTx.Commit(s.Ctx))

	err = <-updateErr
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrInvalidTransition))

	// The cancellation must not be overwritten.
	s.Require().Equal("cancelled", s.orderStatus(order.ID))
}

func (s *IntegrationTestSuite) TestGetOrder_OwnerAndAdminOnly() {
	productID := s.seedProduct("Backpack", "backpack", "60.00", 5)

	order, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	owner := &auth.Identity{UserID: 999}
	fetched, err := s.OrderService.GetOrder(s.Ctx, order.ID, owner)
	s.Require().NoError(err)
	s.Require().Equal(order.ID, fetched.ID)
	s.Require().Len(fetched.Items, 1)

	admin := &auth.Identity{UserID: 1, IsAdmin: true}
	_, err = s.OrderService.GetOrder(s.Ctx, order.ID, admin)
	s.Require().NoError(err)

	stranger := &auth.Identity{UserID: 12345}
	_, err = s.OrderService.GetOrder(s.Ctx, order.ID, stranger)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrForbidden))

	_, err = s.OrderService.GetOrder(s.Ctx, order.ID, nil)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrForbidden))
}

func (s *IntegrationTestSuite) TestListOrders_FiltersByStatus() {
	productID := s.seedProduct("Notebook", "notebook", "5.00", 50)
	admin := &auth.Identity{UserID: 1, IsAdmin: true}

	first, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	_, err = s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 2},
	))
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, first.ID, &UpdateStatusInput{
		Status: domain.OrderStatusShipped,
	}, admin)
	s.Require().NoError(err)

	orders, total, err := s.OrderService.ListOrders(s.Ctx, 999, domain.OrderFilter{
		Status: domain.OrderStatusShipped,
	})
	s.Require().NoError(err)
	s.Require().EqualValues(1, total)
	s.Require().Len(orders, 1)
	s.Require().Equal(first.ID, orders[0].ID)

	orders, total, err = s.OrderService.ListOrders(s.Ctx, 999, domain.OrderFilter{})
	s.Require().NoError(err)
	s.Require().EqualValues(2, total)
	s.Require().Len(orders, 2)
}

func (s *IntegrationTestSuite) TestListAdminOrders() {
	productID := s.seedProduct("Mug", "mug", "8.00", 20)

	authed, err := s.OrderService.PlaceOrder(s.Ctx, s.placeOrderInput(
		domain.CartLine{ProductID: productID, Quantity: 1},
	))
	s.Require().NoError(err)

	guestInput := s.placeOrderInput(domain.CartLine{ProductID: productID, Quantity: 3})
	guestInput.UserID = nil
	guestInput.CustomerInfo = &domain.CustomerInfo{
		FullName: "Lina Benali",
		Email:    "lina@example.com",
		Phone:    "+213555222333",
	}
	_, err = s.OrderService.PlaceOrder(s.Ctx, guestInput)
	s.Require().NoError(err)

	rows, total, err := s.OrderService.ListAdminOrders(s.Ctx, domain.OrderFilter{})
	s.Require().NoError(err)
	s.Require().EqualValues(2, total)
	s.Require().Len(rows, 2)

	byNumber := map[string]string{}
	for _, row := range rows {
		byNumber[row.OrderNumber] = row.CustomerName
	}
	s.Require().Equal("user #999", byNumber[authed.OrderNumber])

	rows, total, err = s.OrderService.ListAdminOrders(s.Ctx, domain.OrderFilter{Search: "Lina"})
	s.Require().NoError(err)
	s.Require().EqualValues(1, total)
	s.Require().Len(rows, 1)
	s.Require().Equal("Lina Benali", rows[0].CustomerName)
	s.Require().EqualValues(1, rows[0].ProductsCount)
}

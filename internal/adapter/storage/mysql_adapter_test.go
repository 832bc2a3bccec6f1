package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hqv2816/stockgate/internal/core/domain"
)

func newMockAdapter(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMySQLAdapter(db), mock
}

func TestConsumeStock_Success(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("UPDATE inventory").
		WithArgs(3, "item-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := adapter.ConsumeStock(context.Background(), "item-1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestConsumeStock_InsufficientIsNoOp(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("UPDATE inventory").
		WithArgs(10, "item-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := adapter.ConsumeStock(context.Background(), "item-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected zero rows affected")
	}
}

func TestGetStock(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT stock FROM inventory").
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(42))

	qty, ok, err := adapter.GetStock(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || qty != 42 {
		t.Errorf("expected (42, true), got (%d, %v)", qty, ok)
	}
}

func TestGetStock_NotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT stock FROM inventory").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))

	_, ok, err := adapter.GetStock(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected not found")
	}
}

func TestCreateOrder_InsertsOrderAndLines(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	now := time.Now()
	order := domain.Order{
		ID:     "ord-1",
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ItemID: "A", Quantity: 2},
			{ItemID: "B", Quantity: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("ord-1", "user-1", string(domain.OrderStatusPending), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_lines").
		WithArgs("ord-1", "A", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_lines").
		WithArgs("ord-1", "B", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := adapter.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateOrder_RollsBackOnLineFailure(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	now := time.Now()
	order := domain.Order{
		ID:        "ord-1",
		UserID:    "user-1",
		Status:    domain.OrderStatusPending,
		Lines:     []domain.OrderLine{{ItemID: "A", Quantity: 2}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("ord-1", "user-1", string(domain.OrderStatusPending), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_lines").
		WithArgs("ord-1", "A", 2).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if err := adapter.CreateOrder(context.Background(), order); err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(string(domain.OrderStatusConfirmed), "ord-1", string(domain.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := adapter.UpdateOrderStatus(context.Background(), "ord-1",
		domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected transition to succeed")
	}
}

func TestUpdateOrderStatus_WrongState(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(string(domain.OrderStatusConfirmed), "ord-1", string(domain.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := adapter.UpdateOrderStatus(context.Background(), "ord-1",
		domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no transition")
	}
}

func TestGetOrder(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, user_id, status").
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "created_at", "updated_at"}).
			AddRow("ord-1", "user-1", "pending", now, now))
	mock.ExpectQuery("SELECT item_id, quantity FROM order_lines").
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "quantity"}).
			AddRow("A", 2).
			AddRow("B", 1))

	order, err := adapter.GetOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil {
		t.Fatal("expected order")
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending, got %s", order.Status)
	}
	if len(order.Lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(order.Lines))
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT id, user_id, status").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "created_at", "updated_at"}))

	order, err := adapter.GetOrder(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Error("expected nil for missing order")
	}
}

func TestListStock(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	now := time.Now()
	mock.ExpectQuery("SELECT item_id, stock, version").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "stock", "version", "created_at", "updated_at"}).
			AddRow("a", 10, 1, now, now).
			AddRow("b", 0, 7, now, now))

	stocks, err := adapter.ListStock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stocks) != 2 {
		t.Fatalf("expected 2 records, got %d", len(stocks))
	}
	if stocks[0].ItemID != "a" || stocks[0].Quantity != 10 {
		t.Errorf("unexpected first record: %+v", stocks[0])
	}
}

func TestUpsertStock(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("INSERT INTO inventory").
		WithArgs("item-1", 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := adapter.UpsertStock(context.Background(), "item-1", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

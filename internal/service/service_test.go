package service

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fruitorders/internal/idgen"
	"fruitorders/internal/metrics"
	"fruitorders/internal/models"
	"fruitorders/internal/repository"
	"fruitorders/internal/repository/memory"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Insert(ctx context.Context, order models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (models.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, order models.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) Delete(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockOrderRepository) ListAudit(ctx context.Context, id int64) ([]models.AuditEntry, error) {
	args := m.Called(ctx, id)
	entries, _ := args.Get(0).([]models.AuditEntry)
	return entries, args.Error(1)
}

func (m *MockOrderRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func fixedClock() time.Time { return fixedNow }

func fixedID(id int64) idgen.Func { return func() int64 { return id } }

func newTestService(repo repository.OrderRepository, id int64) OrderService {
	return NewOrderService(repo,
		WithIDGenerator(fixedID(id)),
		WithClock(fixedClock),
		WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	)
}

func storedOrder() models.Order {
	return models.Order{ID: 77, Datestamp: "2022/02/02", Buyer: "johanna", Apples: intPtr(12), Oranges: intPtr(34)}
}

func requireKind(t *testing.T, err error, kind models.Kind) *models.Error {
	t.Helper()
	var e *models.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, e.Error())
	return e
}

func TestOrderService_Create_Success(t *testing.T) {
	mockRepo := &MockOrderRepository{}
	svc := newTestService(mockRepo, 4242)
	ctx := context.Background()

	want := models.Order{ID: 4242, Datestamp: "2011/12/02", Buyer: "ana", Apples: intPtr(12)}
	mockRepo.On("Insert", ctx, want).Return(nil).Once()

	got, err := svc.Create(ctx, models.OrderInput{Datestamp: "2011/12/02", Buyer: "ana", Apples: intPtr(12)})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Nil(t, got.Oranges)

	mockRepo.AssertExpectations(t)
}

func TestOrderService_Create_InvalidInputNeverReachesStorage(t *testing.T) {
	inputs := []models.OrderInput{
		{Datestamp: "2011/12/02", Buyer: "ana"},
		{Datestamp: "2011/12/02", Buyer: "ana1", Apples: intPtr(1)},
		{Datestamp: "2011-12-02", Buyer: "ana", Apples: intPtr(1)},
		{Datestamp: "1987/12/02", Buyer: "ana", Apples: intPtr(1)},
		{Datestamp: "2011/13/02", Buyer: "ana", Apples: intPtr(1)},
		{Datestamp: "2011/12/02", Buyer: "ana", Oranges: intPtr(0)},
	}

	for _, in := range inputs {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)

		_, err := svc.Create(context.Background(), in)
		require.Error(t, err)

		kind, ok := models.KindOf(err)
		require.True(t, ok)
		assert.True(t, kind.IsInput(), kind.String())
		mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	}
}

func TestOrderService_Create_StorageFailureIsClassified(t *testing.T) {
	mockRepo := &MockOrderRepository{}
	svc := newTestService(mockRepo, 9)
	ctx := context.Background()

	raw := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	mockRepo.On("Insert", ctx, mock.AnythingOfType("models.Order")).Return(raw).Once()

	_, err := svc.Create(ctx, models.OrderInput{Datestamp: "2011/12/02", Buyer: "ana", Apples: intPtr(12)})

	e := requireKind(t, err, models.KindConnectivity)
	assert.Contains(t, e.Error(), "connection refused", "raw diagnostic text must be preserved")
	assert.ErrorIs(t, err, raw)
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestOrderService_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()

		got, err := svc.GetByID(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, storedOrder(), got)
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(5)).Return(models.Order{}, repository.ErrNotFound).Once()

		_, err := svc.GetByID(ctx, 5)
		e := requireKind(t, err, models.KindNotFound)
		assert.Equal(t, "Order id 5 not present, please supply another id.", e.Message)
	})

	t.Run("storage failure", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(5)).
			Return(models.Order{}, &pgconn.PgError{Code: "42P01", Message: `relation "orders" does not exist`}).Once()

		_, err := svc.GetByID(ctx, 5)
		requireKind(t, err, models.KindClientRequest)
	})
}

func TestOrderService_Update_AuditsPreUpdateState(t *testing.T) {
	mockRepo := &MockOrderRepository{}
	svc := newTestService(mockRepo, 1)
	ctx := context.Background()

	current := storedOrder()
	merged := current
	merged.Buyer = "X"

	mockRepo.On("GetByID", ctx, int64(77)).Return(current, nil).Once()
	mockRepo.On("Update", ctx, merged).Return(int64(1), nil).Once()
	mockRepo.On("AppendAudit", ctx, current.Snapshot(fixedNow)).Return(nil).Once()

	got, err := svc.Update(ctx, 77, models.OrderPatch{Buyer: strPtr("X")})
	require.NoError(t, err)
	assert.Equal(t, merged, got)

	mockRepo.AssertExpectations(t)
}

func TestOrderService_Update_ValidatesMergedOrder(t *testing.T) {
	mockRepo := &MockOrderRepository{}
	svc := newTestService(mockRepo, 1)
	ctx := context.Background()

	mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()

	_, err := svc.Update(ctx, 77, models.OrderPatch{Datestamp: strPtr("1999/12/31")})
	requireKind(t, err, models.KindOutOfRange)

	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything)
}

func TestOrderService_Update_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("missing before lookup", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(3)).Return(models.Order{}, repository.ErrNotFound).Once()

		_, err := svc.Update(ctx, 3, models.OrderPatch{})
		requireKind(t, err, models.KindNotFound)
	})

	t.Run("deleted between lookup and write", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()
		mockRepo.On("Update", ctx, storedOrder()).Return(int64(0), nil).Once()

		_, err := svc.Update(ctx, 77, models.OrderPatch{})
		requireKind(t, err, models.KindNotFound)
		mockRepo.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything)
	})
}

func TestOrderService_Update_AuditFailureKeepsUpdate(t *testing.T) {
	mockRepo := &MockOrderRepository{}
	svc := newTestService(mockRepo, 1)
	ctx := context.Background()

	current := storedOrder()
	merged := current
	merged.Apples = intPtr(1)

	mockRepo.On("GetByID", ctx, int64(77)).Return(current, nil).Once()
	mockRepo.On("Update", ctx, merged).Return(int64(1), nil).Once()
	mockRepo.On("AppendAudit", ctx, mock.AnythingOfType("models.AuditEntry")).Return(io.ErrUnexpectedEOF).Once()

	got, err := svc.Update(ctx, 77, models.OrderPatch{Apples: intPtr(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAuditNotRecorded)
	requireKind(t, err, models.KindConnectivity)
	assert.Equal(t, merged, got, "the applied update is still reported")

	mockRepo.AssertExpectations(t)
}

func TestOrderService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("returns pre-delete snapshot", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()
		mockRepo.On("Delete", ctx, int64(77)).Return(int64(1), nil).Once()

		got, err := svc.Delete(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, storedOrder(), got)
	})

	t.Run("zero affected rows", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()
		mockRepo.On("Delete", ctx, int64(77)).Return(int64(0), nil).Once()

		_, err := svc.Delete(ctx, 77)
		requireKind(t, err, models.KindNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()
		mockRepo.On("Delete", ctx, int64(77)).Return(int64(0), errors.New("closed pool")).Once()

		_, err := svc.Delete(ctx, 77)
		e := requireKind(t, err, models.KindUnknownDataAccess)
		assert.Contains(t, e.Error(), "closed pool")
	})
}

func TestOrderService_HistoryAndCost(t *testing.T) {
	ctx := context.Background()

	t.Run("history classifies failures", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("ListAudit", ctx, int64(77)).
			Return(nil, &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}).Once()

		_, err := svc.History(ctx, 77)
		requireKind(t, err, models.KindConnectivity)
	})

	t.Run("cost", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("GetByID", ctx, int64(77)).Return(storedOrder(), nil).Once()

		cost, err := svc.Cost(ctx, 77)
		require.NoError(t, err)
		assert.InDelta(t, 12*models.ApplePrice+34*models.OrangePrice, cost.Total, 1e-9)
	})

	t.Run("ping", func(t *testing.T) {
		mockRepo := &MockOrderRepository{}
		svc := newTestService(mockRepo, 1)
		mockRepo.On("Ping", ctx).Return(context.DeadlineExceeded).Once()

		requireKind(t, svc.Ping(ctx), models.KindConnectivity)
	})
}

// The remaining tests run the pipeline against the in-memory repository.

func TestOrderService_Scenario(t *testing.T) {
	repo := memory.New()
	svc := NewOrderService(repo,
		WithClock(fixedClock),
		WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.OrderInput{Datestamp: "2011/12/02", Buyer: "ana", Apples: intPtr(12)})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, 12, *created.Apples)
	assert.Nil(t, created.Oranges)

	_, err = svc.Create(ctx, models.OrderInput{Datestamp: "2011-12-02", Buyer: "ana", Apples: intPtr(12)})
	e := requireKind(t, err, models.KindMalformedInput)
	assert.Contains(t, e.Message, "yyyy/mm/dd (no spaces).")
	assert.NotContains(t, e.Message, "check for typos")

	_, err = svc.Create(ctx, models.OrderInput{Datestamp: "1987/12/02", Buyer: "ana", Apples: intPtr(12)})
	requireKind(t, err, models.KindOutOfRange)

	_, err = svc.Create(ctx, models.OrderInput{Datestamp: "2011/12/02", Buyer: "ana1", Apples: intPtr(12)})
	e = requireKind(t, err, models.KindInvalidValue)
	assert.Equal(t, "Buyer's name cannot contain numbers!", e.Message)

	_, err = svc.Create(ctx, models.OrderInput{Datestamp: "2011/12/02", Buyer: "ana"})
	e = requireKind(t, err, models.KindInvalidValue)
	assert.Contains(t, e.Message, "No sale has been made!")
}

func TestOrderService_RoundTrip(t *testing.T) {
	svc := newTestService(memory.New(), 31337)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.OrderInput{Datestamp: "2020/02/29", Buyer: "Åsa", Oranges: intPtr(3)})
	require.NoError(t, err)

	read, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, read)
}

func TestOrderService_EmptyPatchStillAudits(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, 1001)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.OrderInput{Datestamp: "2022/02/02", Buyer: "johanna", Apples: intPtr(12), Oranges: intPtr(34)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, models.OrderPatch{})
	require.NoError(t, err)
	assert.Equal(t, created, updated)

	history, err := svc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, created.Snapshot(fixedNow), history[0])
}

func TestOrderService_PatchChangesOnlySuppliedField(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, 1002)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.OrderInput{Datestamp: "2022/02/02", Buyer: "johanna", Apples: intPtr(12), Oranges: intPtr(34)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, models.OrderPatch{Buyer: strPtr("X")})
	require.NoError(t, err)
	assert.Equal(t, "X", updated.Buyer)
	assert.Equal(t, created.Datestamp, updated.Datestamp)
	assert.Equal(t, created.Apples, updated.Apples)
	assert.Equal(t, created.Oranges, updated.Oranges)

	stored, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)

	history, err := svc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "johanna", history[0].Buyer)
	assert.Equal(t, fixedNow, history[0].ChangedAt)
}

func TestOrderService_DeleteThenRead(t *testing.T) {
	svc := newTestService(memory.New(), 1003)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.OrderInput{Datestamp: "2022/02/02", Buyer: "johanna", Apples: intPtr(12)})
	require.NoError(t, err)
	updated, err := svc.Update(ctx, created.ID, models.OrderPatch{Oranges: intPtr(5)})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, deleted, "delete returns the last known state")

	_, err = svc.GetByID(ctx, created.ID)
	requireKind(t, err, models.KindNotFound)

	_, err = svc.Delete(ctx, created.ID)
	requireKind(t, err, models.KindNotFound)

	history, err := svc.History(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "audit entries outlive the order")
}

func TestOrderService_NoSaleNeverPersisted(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo, 1004)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.OrderInput{Datestamp: "2022/02/02", Buyer: "johanna"})
	requireKind(t, err, models.KindInvalidValue)

	_, err = repo.GetByID(ctx, 1004)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

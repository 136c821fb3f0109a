package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-workorder-sync/internal/retry"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

const testTable = "workorders"

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Backoff: retry.BackoffExponential}
}

func newTestDynamoStore(t *testing.T) (*DynamoStore, *mockDynamo, time.Time) {
	t.Helper()
	mock := newMockDynamo()
	logger, _ := test.NewNullLogger()
	s := NewDynamoStore(mock, testTable, fastPolicy(), logger)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	return s, mock, now
}

func sampleWorkOrder(n int64) workorders.WorkOrder {
	created := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	return workorders.WorkOrder{
		Number:      n,
		Title:       "Inspect boiler",
		Description: workorders.Description("Inspect boiler"),
		Status:      workorders.StatusInProgress,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestDynamoUpsert_InsertsDirtyRecord(t *testing.T) {
	s, _, now := newTestDynamoStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleWorkOrder(5)))

	got, err := s.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Number)
	assert.Equal(t, "Inspect boiler", got.Title)
	assert.Equal(t, workorders.StatusInProgress, got.Status)
	assert.False(t, got.IsSynced)
	assert.Nil(t, got.SyncedAt)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestDynamoUpsert_ResetsSyncStateAndDeletedAt(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	ctx := context.Background()

	wo := sampleWorkOrder(9)
	del := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	wo.Deleted = true
	wo.DeletedAt = &del
	require.NoError(t, s.Upsert(ctx, wo))

	ok, err := s.MarkSynced(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	item := mock.tables[testTable][9]
	assert.Contains(t, item, "syncedAt")
	assert.Contains(t, item, "deletedAt")

	wo.Deleted = false
	wo.DeletedAt = nil
	require.NoError(t, s.Upsert(ctx, wo))

	item = mock.tables[testTable][9]
	assert.NotContains(t, item, "syncedAt")
	assert.NotContains(t, item, "deletedAt")

	var got workorders.WorkOrder
	require.NoError(t, attributevalue.UnmarshalMap(item, &got))
	assert.False(t, got.IsSynced)
	assert.False(t, got.Deleted)
}

func TestDynamoUpsert_MissingNumber(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)

	wo := sampleWorkOrder(0)
	err := s.Upsert(context.Background(), wo)

	var pe *PermanentError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, ErrMissingNumber)
	assert.Equal(t, 0, mock.calls["UpdateItem"])
}

func TestDynamoReadUnsynced_FiltersAndSorts(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	mock.pageSize = 2
	ctx := context.Background()

	for _, n := range []int64{4, 1, 3, 2, 5} {
		require.NoError(t, s.Upsert(ctx, sampleWorkOrder(n)))
	}
	ok, err := s.MarkSynced(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.ReadUnsynced(ctx)
	require.NoError(t, err)

	numbers := make([]int64, 0, len(got))
	for _, wo := range got {
		numbers = append(numbers, wo.Number)
	}
	assert.Equal(t, []int64{1, 2, 4, 5}, numbers)
	assert.Greater(t, mock.calls["Scan"], 1)
}

func TestDynamoMarkSynced(t *testing.T) {
	s, _, now := newTestDynamoStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleWorkOrder(7)))

	ok, err := s.MarkSynced(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, got.SyncedAt.Equal(now))

	ok, err = s.MarkSynced(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoGet_NotFound(t *testing.T) {
	s, _, _ := newTestDynamoStore(t)
	got, err := s.Get(context.Background(), 123)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDynamo_RetriesTransientErrors(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	mock.failNext("UpdateItem",
		&smithy.GenericAPIError{Code: "ThrottlingException"},
		&types.ProvisionedThroughputExceededException{},
	)

	require.NoError(t, s.Upsert(context.Background(), sampleWorkOrder(1)))
	assert.Equal(t, 3, mock.calls["UpdateItem"])
}

func TestDynamo_TransientErrorAfterBudget(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException"}
	mock.failNext("DescribeTable", throttled, throttled, throttled)

	err := s.HealthCheck(context.Background())
	var te *TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "health check", te.Op)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, mock.calls["DescribeTable"])
}

func TestDynamo_PermanentErrorNotRetried(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	mock.failNext("Scan", &types.ResourceNotFoundException{})

	_, err := s.ReadUnsynced(context.Background())
	var pe *PermanentError
	require.True(t, errors.As(err, &pe))
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, mock.calls["Scan"])
}

func TestDynamoHealthCheck_InactiveTable(t *testing.T) {
	s, mock, _ := newTestDynamoStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))

	mock.status = types.TableStatusDeleting
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestDynamo_LogsRetries(t *testing.T) {
	mock := newMockDynamo()
	logger, hook := test.NewNullLogger()
	s := NewDynamoStore(mock, testTable, fastPolicy(), logger)
	mock.failNext("GetItem", &smithy.GenericAPIError{Code: "InternalServerError"})

	_, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, BackendDynamoDB, hook.LastEntry().Data["backend"])
}

func TestIsTransientDynamo(t *testing.T) {
	assert.True(t, IsTransientDynamo(&smithy.GenericAPIError{Code: "ServiceUnavailable"}))
	assert.True(t, IsTransientDynamo(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, IsTransientDynamo(context.DeadlineExceeded))
	assert.False(t, IsTransientDynamo(&types.ConditionalCheckFailedException{}))
	assert.False(t, IsTransientDynamo(errors.New("validation")))
	assert.False(t, IsTransientDynamo(nil))
}

func TestUpdateExpression(t *testing.T) {
	item, err := attributevalue.MarshalMap(map[string]interface{}{"title": "a", "deleted": false})
	require.NoError(t, err)

	expr, names, values := updateExpression(item, []string{"syncedAt"})
	assert.Equal(t, "SET #deleted = :deleted, #title = :title REMOVE #syncedAt", expr)
	assert.Equal(t, "syncedAt", names["#syncedAt"])
	assert.Len(t, values, 2)
}

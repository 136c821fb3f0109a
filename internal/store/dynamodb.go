package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/aws"
	"github.com/imrishuroy/go-workorder-sync/internal/retry"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// attribute names; number and status are DynamoDB reserved words so every
// expression goes through ExpressionAttributeNames.
const (
	attrNumber    = "number"
	attrIsSynced  = "isSynced"
	attrSyncedAt  = "syncedAt"
	attrDeletedAt = "deletedAt"
)

// DynamoStore keeps work orders in a DynamoDB table keyed by number (N).
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	retry     retry.Policy
	nowFunc   func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed Store. A policy without IsTransient
// gets the DynamoDB classifier.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string, policy retry.Policy, log logrus.FieldLogger) *DynamoStore {
	if policy.IsTransient == nil {
		policy.IsTransient = IsTransientDynamo
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		retry:     withRetryLogging(policy, log, BackendDynamoDB),
		nowFunc:   time.Now,
	}
}

func numberKey(number int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrNumber: &types.AttributeValueMemberN{Value: strconv.FormatInt(number, 10)},
	}
}

func (s *DynamoStore) ReadUnsynced(ctx context.Context) ([]workorders.WorkOrder, error) {
	input := &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("attribute_not_exists(#synced) OR #synced <> :true"),
		ExpressionAttributeNames: map[string]string{
			"#synced": attrIsSynced,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	}

	var out []workorders.WorkOrder
	p := dyn.NewScanPaginator(s.client, input)
	for p.HasMorePages() {
		var page *dyn.ScanOutput
		err := run(ctx, s.retry, "read unsynced", func(ctx context.Context) error {
			var err error
			page, err = p.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		var batch []workorders.WorkOrder
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, &PermanentError{Op: "read unsynced", Err: fmt.Errorf("unmarshal work orders: %w", err)}
		}
		out = append(out, batch...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *DynamoStore) Upsert(ctx context.Context, wo workorders.WorkOrder) error {
	if wo.Number == 0 {
		return &PermanentError{Op: "upsert", Err: ErrMissingNumber}
	}

	wo.IsSynced = false
	wo.SyncedAt = nil
	wo.UpdatedAt = s.nowFunc()

	item, err := attributevalue.MarshalMap(wo)
	if err != nil {
		return &PermanentError{Op: "upsert", Err: fmt.Errorf("marshal work order: %w", err)}
	}
	delete(item, attrNumber)

	remove := []string{attrSyncedAt}
	if wo.DeletedAt == nil {
		remove = append(remove, attrDeletedAt)
	}
	expr, names, values := updateExpression(item, remove)

	input := &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       numberKey(wo.Number),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	return run(ctx, s.retry, "upsert", func(ctx context.Context) error {
		_, err := s.client.UpdateItem(ctx, input)
		return err
	})
}

// updateExpression builds "SET #a = :a, ... REMOVE #x, ..." with attributes in
// sorted order so the expression is stable.
func updateExpression(set map[string]types.AttributeValue, remove []string) (string, map[string]string, map[string]types.AttributeValue) {
	names := make(map[string]string, len(set)+len(remove))
	values := make(map[string]types.AttributeValue, len(set))

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys))
	for _, k := range keys {
		names["#"+k] = k
		values[":"+k] = set[k]
		assignments = append(assignments, fmt.Sprintf("#%s = :%s", k, k))
	}
	expr := "SET " + strings.Join(assignments, ", ")

	if len(remove) > 0 {
		removals := make([]string, 0, len(remove))
		for _, k := range remove {
			names["#"+k] = k
			removals = append(removals, "#"+k)
		}
		expr += " REMOVE " + strings.Join(removals, ", ")
	}
	return expr, names, values
}

func (s *DynamoStore) MarkSynced(ctx context.Context, number int64) (bool, error) {
	now, err := attributevalue.Marshal(s.nowFunc())
	if err != nil {
		return false, &PermanentError{Op: "mark synced", Err: err}
	}
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 numberKey(number),
		UpdateExpression:    awsString("SET #synced = :true, #syncedAt = :now"),
		ConditionExpression: awsString("attribute_exists(#number)"),
		ExpressionAttributeNames: map[string]string{
			"#synced":   attrIsSynced,
			"#syncedAt": attrSyncedAt,
			"#number":   attrNumber,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  now,
		},
	}

	err = run(ctx, s.retry, "mark synced", func(ctx context.Context) error {
		_, err := s.client.UpdateItem(ctx, input)
		return err
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get fetches a work order by number. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, number int64) (*workorders.WorkOrder, error) {
	var out *dyn.GetItemOutput
	err := run(ctx, s.retry, "get", func(ctx context.Context) error {
		var err error
		out, err = s.client.GetItem(ctx, &dyn.GetItemInput{
			TableName:      &s.tableName,
			Key:            numberKey(number),
			ConsistentRead: awsBool(true),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var wo workorders.WorkOrder
	if err := attributevalue.UnmarshalMap(out.Item, &wo); err != nil {
		return nil, &PermanentError{Op: "get", Err: fmt.Errorf("unmarshal work order: %w", err)}
	}
	return &wo, nil
}

// HealthCheck verifies the table is reachable and active.
func (s *DynamoStore) HealthCheck(ctx context.Context) error {
	var out *dyn.DescribeTableOutput
	err := run(ctx, s.retry, "health check", func(ctx context.Context) error {
		var err error
		out, err = s.client.DescribeTable(ctx, &dyn.DescribeTableInput{TableName: &s.tableName})
		return err
	})
	if err != nil {
		return err
	}
	if out.Table != nil && out.Table.TableStatus != "" && out.Table.TableStatus != types.TableStatusActive && out.Table.TableStatus != types.TableStatusUpdating {
		return &PermanentError{Op: "health check", Err: fmt.Errorf("table %s is %s", s.tableName, out.Table.TableStatus)}
	}
	return nil
}

// Close is a no-op: the SDK client holds no connection that needs releasing.
func (s *DynamoStore) Close(ctx context.Context) error {
	return nil
}

var transientDynamoCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"RequestTimeout":                         true,
	"TransactionConflictException":           true,
}

// IsTransientDynamo classifies throttling, server-side and network faults as retryable.
func IsTransientDynamo(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientDynamoCodes[apiErr.ErrorCode()]
	}
	return isNetworkFault(err)
}

func isNetworkFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

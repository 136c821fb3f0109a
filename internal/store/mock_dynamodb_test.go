package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo keeps items per table keyed by the "number" attribute and
// understands the SET/REMOVE expressions the store issues.
type mockDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[int64]map[string]types.AttributeValue
	pageSize int
	status   types.TableStatus

	// failures are popped one per call, per operation name
	failures map[string][]error
	calls    map[string]int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables:   map[string]map[int64]map[string]types.AttributeValue{},
		failures: map[string][]error{},
		calls:    map[string]int{},
		status:   types.TableStatusActive,
	}
}

func (m *mockDynamo) failNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], errs...)
}

func (m *mockDynamo) popFailure(op string) error {
	m.calls[op]++
	if errs := m.failures[op]; len(errs) > 0 {
		m.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (m *mockDynamo) table(name string) map[int64]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[int64]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func keyNumber(key map[string]types.AttributeValue) (int64, error) {
	n, ok := key["number"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("no number key")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure("GetItem"); err != nil {
		return nil, err
	}
	n, err := keyNumber(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[n]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure("UpdateItem"); err != nil {
		return nil, err
	}
	n, err := keyNumber(params.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	item, exists := tbl[n]

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_exists(#number)" && !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !exists {
		item = map[string]types.AttributeValue{"number": params.Key["number"]}
	}

	expr := *params.UpdateExpression
	setPart, removePart := expr, ""
	if i := strings.Index(expr, " REMOVE "); i >= 0 {
		setPart, removePart = expr[:i], expr[i+len(" REMOVE "):]
	}
	setPart = strings.TrimPrefix(setPart, "SET ")
	for _, assign := range strings.Split(setPart, ", ") {
		parts := strings.SplitN(assign, " = ", 2)
		if len(parts) != 2 {
			return nil, errors.New("bad assignment: " + assign)
		}
		item[params.ExpressionAttributeNames[parts[0]]] = params.ExpressionAttributeValues[parts[1]]
	}
	if removePart != "" {
		for _, name := range strings.Split(removePart, ", ") {
			delete(item, params.ExpressionAttributeNames[name])
		}
	}
	tbl[n] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure("Scan"); err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)

	// DynamoDB scan order is unspecified; return descending to prove callers sort.
	keys := make([]int64, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	start := 0
	if params.ExclusiveStartKey != nil {
		last, err := keyNumber(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, k := range keys {
			if k == last {
				start = i + 1
			}
		}
	}

	out := &dyn.ScanOutput{}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
		out.LastEvaluatedKey = map[string]types.AttributeValue{"number": tbl[keys[end-1]]["number"]}
	}
	for _, k := range keys[start:end] {
		item := tbl[k]
		if params.FilterExpression != nil {
			if b, ok := item["isSynced"].(*types.AttributeValueMemberBOOL); ok && b.Value {
				continue
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (m *mockDynamo) DescribeTable(ctx context.Context, params *dyn.DescribeTableInput, optFns ...func(*dyn.Options)) (*dyn.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure("DescribeTable"); err != nil {
		return nil, err
	}
	return &dyn.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   params.TableName,
		TableStatus: m.status,
	}}, nil
}

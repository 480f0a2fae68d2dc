package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynStub understands the handful of expressions the backend issues.
type dynStub struct {
	items map[string]map[string]types.AttributeValue

	created          bool
	transactCalls    int
	transactConflict bool
	batchSizes       []int
	scanErr          error
}

func newDynStub() *dynStub { return &dynStub{items: map[string]map[string]types.AttributeValue{}} }

func stubKey(key map[string]types.AttributeValue) string {
	return key["k"].(*types.AttributeValueMemberS).Value
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := d.items[stubKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.items[stubKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	attrs, err := d.apply(in.Key, aws.ToString(in.UpdateExpression), in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

func (d *dynStub) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	d.transactCalls++
	if d.transactConflict {
		reasons := make([]types.CancellationReason, len(in.TransactItems))
		for i := range reasons {
			reasons[i].Code = aws.String("None")
		}
		reasons[0].Code = aws.String("TransactionConflict")
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, item := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		if existing, ok := d.items[stubKey(item.Update.Key)]; ok && hasValue(existing) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	for _, item := range in.TransactItems {
		if _, err := d.apply(item.Update.Key, aws.ToString(item.Update.UpdateExpression), item.Update.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (d *dynStub) apply(key map[string]types.AttributeValue, expr string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	k := stubKey(key)
	item, ok := d.items[k]
	if !ok {
		item = map[string]types.AttributeValue{"k": key["k"]}
	}
	switch expr {
	case dynamoIncrementExpr:
		n := int64(0)
		if cur, ok := item["n"].(*types.AttributeValueMemberN); ok {
			n, _ = strconv.ParseInt(cur.Value, 10, 64)
		}
		n++
		item["n"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
		d.items[k] = item
		return map[string]types.AttributeValue{"n": item["n"]}, nil
	case dynamoAppendExpr:
		if hasValue(item) {
			return nil, &types.ConditionalCheckFailedException{}
		}
		var list []types.AttributeValue
		if cur, ok := item["l"].(*types.AttributeValueMemberL); ok {
			list = append(list, cur.Value...)
		}
		list = append(list, values[":vals"].(*types.AttributeValueMemberL).Value...)
		item["l"] = &types.AttributeValueMemberL{Value: list}
		d.items[k] = item
		return nil, nil
	}
	return nil, errors.New("unexpected update expression " + expr)
}

func hasValue(item map[string]types.AttributeValue) bool {
	_, v := item["v"]
	_, n := item["n"]
	return v || n
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, writes := range in.RequestItems {
		d.batchSizes = append(d.batchSizes, len(writes))
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				delete(d.items, stubKey(dr.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (d *dynStub) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	var items []map[string]types.AttributeValue
	for k := range d.items {
		items = append(items, map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: k},
		})
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if d.created {
		return &dynamodb.DescribeTableOutput{}, nil
	}
	return nil, &types.ResourceNotFoundException{}
}

func newDynamoTestBackend(t *testing.T, stub *dynStub, prefix string) Backend {
	t.Helper()
	backend, err := newDynamoBackend(context.Background(), Config{
		DynamoClient: stub,
		DynamoTable:  "tbl",
		Prefix:       prefix,
	})
	if err != nil {
		t.Fatalf("backend create failed: %v", err)
	}
	return backend
}

func TestDynamoBackendCreatesTable(t *testing.T) {
	stub := newDynStub()
	newDynamoTestBackend(t, stub, "")
	if !stub.created {
		t.Fatalf("expected missing table to be created")
	}
}

func TestDynamoBackendBasicOperations(t *testing.T) {
	ctx := context.Background()
	stub := newDynStub()
	backend := newDynamoTestBackend(t, stub, "p")

	if err := backend.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := stub.items["p:k"]; !ok {
		t.Fatalf("expected prefixed item key")
	}
	body, ok, err := backend.Get(ctx, "k")
	if err != nil || !ok || string(body) != "v" {
		t.Fatalf("get failed: ok=%v err=%v val=%s", ok, err, string(body))
	}

	if n, err := backend.Increment(ctx, "n"); err != nil || n != 1 {
		t.Fatalf("increment failed: %v n=%d", err, n)
	}
	if body, ok, _ := backend.Get(ctx, "n"); !ok || string(body) != "1" {
		t.Fatalf("expected counter readable as text, got %q", body)
	}

	if err := backend.Push(ctx, ListEntry{Key: "l", Value: []byte("a")}); err != nil {
		t.Fatalf("single push failed: %v", err)
	}
	if stub.transactCalls != 0 {
		t.Fatalf("expected single-list push without a transaction")
	}
	err = backend.Push(ctx,
		ListEntry{Key: "l", Value: []byte("b")},
		ListEntry{Key: "m", Value: []byte("x")},
		ListEntry{Key: "l", Value: []byte("c")},
	)
	if err != nil {
		t.Fatalf("multi push failed: %v", err)
	}
	if stub.transactCalls != 1 {
		t.Fatalf("expected one transaction, got %d", stub.transactCalls)
	}
	items, err := backend.Range(ctx, "l", 0, -1)
	if err != nil || len(items) != 3 || string(items[2]) != "c" {
		t.Fatalf("unexpected range: %q err=%v", items, err)
	}
}

func TestDynamoBackendTransactionRejectsValueTarget(t *testing.T) {
	ctx := context.Background()
	stub := newDynStub()
	backend := newDynamoTestBackend(t, stub, "")
	_ = backend.Set(ctx, "v", []byte("x"))

	err := backend.Push(ctx, ListEntry{Key: "l", Value: []byte("a")}, ListEntry{Key: "v", Value: []byte("b")})
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected wrong kind, got %v", err)
	}
	if items, _ := backend.Range(ctx, "l", 0, -1); len(items) != 0 {
		t.Fatalf("expected cancelled transaction to write nothing, got %q", items)
	}
}

func TestDynamoBackendFlushChunksDeletes(t *testing.T) {
	ctx := context.Background()
	stub := newDynStub()
	backend := newDynamoTestBackend(t, stub, "")
	for i := 0; i < 60; i++ {
		_ = backend.Set(ctx, strconv.Itoa(i), []byte("v"))
	}
	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(stub.items) != 0 {
		t.Fatalf("expected all items deleted, %d left", len(stub.items))
	}
	for _, size := range stub.batchSizes {
		if size > dynamoBatchWriteLimit {
			t.Fatalf("batch of %d exceeds limit", size)
		}
	}
}

func TestDynamoBackendFlushError(t *testing.T) {
	stub := newDynStub()
	backend := newDynamoTestBackend(t, stub, "")
	stub.scanErr = errors.New("scan")
	if err := backend.Flush(context.Background()); err == nil {
		t.Fatalf("expected scan error")
	}
}

func TestDynamoBackendTransactionConflictIsNotWrongKind(t *testing.T) {
	ctx := context.Background()
	stub := newDynStub()
	backend := newDynamoTestBackend(t, stub, "")
	stub.transactConflict = true

	err := backend.Push(ctx, ListEntry{Key: "in", Value: []byte("a")}, ListEntry{Key: "out", Value: []byte("b")})
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		t.Fatalf("expected the cancellation to surface, got %v", err)
	}
	if errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected conflict not reported as wrong kind")
	}
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI captures the subset of DynamoDB client methods used by the backend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Item attributes: k is the hash key, v a value, n a counter, l a list of B.
const (
	dynamoAttrKey     = "k"
	dynamoAttrValue   = "v"
	dynamoAttrCounter = "n"
	dynamoAttrList    = "l"
)

const (
	dynamoEnsureTableMaxAttempts = 20
	dynamoEnsureTableRetryDelay  = 150 * time.Millisecond
	dynamoBatchWriteLimit        = 25
	dynamoTransactLimit          = 100

	dynamoIncrementExpr = "ADD n :one"
	dynamoAppendExpr    = "SET l = list_append(if_not_exists(l, :empty), :vals)"
)

type dynamoBackend struct {
	client DynamoAPI
	table  string
	prefix string
}

func newDynamoBackend(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.DynamoClient == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.DynamoClient = client
	}
	if err := ensureDynamoTable(ctx, cfg.DynamoClient, cfg.DynamoTable); err != nil {
		return nil, err
	}
	return &dynamoBackend{
		client: cfg.DynamoClient,
		table:  cfg.DynamoTable,
		prefix: cfg.Prefix,
	}, nil
}

func newDynamoClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.DynamoRegion)}
	if cfg.DynamoEndpoint != "" {
		// Local endpoints (dynamodb-local) accept any static credentials.
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.DynamoEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.DynamoEndpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func (s *dynamoBackend) Driver() Driver { return DriverDynamo }

func (s *dynamoBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := s.getItem(ctx, key)
	if err != nil || item == nil {
		return nil, false, err
	}
	if v, ok := item[dynamoAttrValue].(*types.AttributeValueMemberB); ok {
		return cloneBytes(v.Value), true, nil
	}
	if n, ok := item[dynamoAttrCounter].(*types.AttributeValueMemberN); ok {
		return []byte(n.Value), true, nil
	}
	if _, ok := item[dynamoAttrList]; ok {
		return nil, false, fmt.Errorf("get %q: %w", key, ErrWrongKind)
	}
	return nil, false, errors.New("dynamodb item missing value")
}

func (s *dynamoBackend) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			dynamoAttrKey:   &types.AttributeValueMemberS{Value: s.cacheKey(key)},
			dynamoAttrValue: &types.AttributeValueMemberB{Value: cloneBytes(value)},
		},
	})
	return err
}

// Increment promotes a decimal value written by Set into the counter
// attribute before using the atomic ADD.
func (s *dynamoBackend) Increment(ctx context.Context, key string) (int64, error) {
	item, err := s.getItem(ctx, key)
	if err != nil {
		return 0, err
	}
	if item != nil {
		if _, ok := item[dynamoAttrList]; ok {
			return 0, fmt.Errorf("increment %q: %w", key, ErrWrongKind)
		}
		if v, ok := item[dynamoAttrValue].(*types.AttributeValueMemberB); ok {
			if _, err := strconv.ParseInt(string(v.Value), 10, 64); err != nil {
				return 0, fmt.Errorf("cache key %q does not contain a numeric value", key)
			}
			if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(s.table),
				Item: map[string]types.AttributeValue{
					dynamoAttrKey:     &types.AttributeValueMemberS{Value: s.cacheKey(key)},
					dynamoAttrCounter: &types.AttributeValueMemberN{Value: string(v.Value)},
				},
			}); err != nil {
				return 0, err
			}
		}
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.itemKey(key),
		UpdateExpression: aws.String(dynamoIncrementExpr),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	n, ok := out.Attributes[dynamoAttrCounter].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("dynamodb increment returned no counter")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func (s *dynamoBackend) Push(ctx context.Context, entries ...ListEntry) error {
	if len(entries) == 0 {
		return nil
	}
	// A transaction may touch each item once, so entries are grouped per key.
	var order []string
	grouped := make(map[string][]types.AttributeValue)
	for _, entry := range entries {
		if _, ok := grouped[entry.Key]; !ok {
			order = append(order, entry.Key)
		}
		value := entry.Value
		if value == nil {
			value = []byte{}
		}
		grouped[entry.Key] = append(grouped[entry.Key], &types.AttributeValueMemberB{Value: cloneBytes(value)})
	}
	if len(order) > dynamoTransactLimit {
		return fmt.Errorf("dynamodb push spans %d lists, limit is %d", len(order), dynamoTransactLimit)
	}
	if len(order) == 1 {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.table),
			Key:                       s.itemKey(order[0]),
			UpdateExpression:          aws.String(dynamoAppendExpr),
			ConditionExpression:       aws.String("attribute_not_exists(v) AND attribute_not_exists(n)"),
			ExpressionAttributeValues: appendValues(grouped[order[0]]),
		})
		return s.wrongKind(err, order[0])
	}
	items := make([]types.TransactWriteItem, 0, len(order))
	for _, key := range order {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(s.table),
				Key:                       s.itemKey(key),
				UpdateExpression:          aws.String(dynamoAppendExpr),
				ConditionExpression:       aws.String("attribute_not_exists(v) AND attribute_not_exists(n)"),
				ExpressionAttributeValues: appendValues(grouped[key]),
			},
		})
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) && conditionFailed(canceled) {
		return fmt.Errorf("push: %w", ErrWrongKind)
	}
	return err
}

// conditionFailed reports whether a cancelled transaction tripped the
// value/list guard, as opposed to a conflict or throttling.
func conditionFailed(canceled *types.TransactionCanceledException) bool {
	for _, reason := range canceled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func (s *dynamoBackend) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	item, err := s.getItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return [][]byte{}, nil
	}
	raw, ok := item[dynamoAttrList].(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("range %q: %w", key, ErrWrongKind)
	}
	items := make([][]byte, 0, len(raw.Value))
	for _, av := range raw.Value {
		b, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return nil, errors.New("dynamodb list item is not binary")
		}
		items = append(items, b.Value)
	}
	return sliceRange(items, start, stop), nil
}

func (s *dynamoBackend) Flush(ctx context.Context) error {
	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.table),
			ProjectionExpression: aws.String(dynamoAttrKey),
			ExclusiveStartKey:    lastEvaluatedKey,
		})
		if err != nil {
			return err
		}
		var keys []string
		for _, item := range out.Items {
			kv, ok := item[dynamoAttrKey].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if s.prefix != "" && !strings.HasPrefix(kv.Value, s.prefix+":") {
				continue
			}
			keys = append(keys, kv.Value)
		}
		if err := s.deleteRaw(ctx, keys); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		lastEvaluatedKey = out.LastEvaluatedKey
	}
}

func (s *dynamoBackend) deleteRaw(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := min(len(keys), dynamoBatchWriteLimit)
		writes := make([]types.WriteRequest, 0, n)
		for _, k := range keys[:n] {
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{dynamoAttrKey: &types.AttributeValueMemberS{Value: k}},
				},
			})
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: writes},
		})
		if err != nil {
			return err
		}
		if out != nil && len(out.UnprocessedItems[s.table]) > 0 {
			return fmt.Errorf("dynamodb flush left %d unprocessed deletes", len(out.UnprocessedItems[s.table]))
		}
		keys = keys[n:]
	}
	return nil
}

func (s *dynamoBackend) getItem(ctx context.Context, key string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

func (s *dynamoBackend) wrongKind(err error, key string) error {
	var cce *types.ConditionalCheckFailedException
	if errors.As(err, &cce) {
		return fmt.Errorf("push %q: %w", key, ErrWrongKind)
	}
	return err
}

func (s *dynamoBackend) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{dynamoAttrKey: &types.AttributeValueMemberS{Value: s.cacheKey(key)}}
}

func (s *dynamoBackend) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func appendValues(values []types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		":vals":  &types.AttributeValueMemberL{Value: values},
	}
}

func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= dynamoEnsureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(dynamoAttrKey), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String(dynamoAttrKey), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isDynamoStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isDynamoStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == dynamoEnsureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dynamoEnsureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

func isDynamoStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}

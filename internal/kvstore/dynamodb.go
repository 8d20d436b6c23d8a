package kvstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBKVStore implements the core.KVStore interface using AWS DynamoDB.
// Expiry is stored in the "ttl" attribute as Unix seconds; DynamoDB's own
// TTL sweeper is lazy, so reads check it as well.
type DynamoDBKVStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *zap.Logger
	now       func() time.Time
	closed    atomic.Bool
}

// DynamoDBItem represents an item stored in DynamoDB.
type DynamoDBItem struct {
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value"`
	TTL       *int64 `dynamodbav:"ttl,omitempty"`
	CreatedAt string `dynamodbav:"created_at"`
}

// NewDynamoDBKVStore creates a DynamoDB-backed store and verifies the table exists.
func NewDynamoDBKVStore(cfg KVStoreConfig) (*DynamoDBKVStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Override credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	clientOptions := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		// Custom endpoint (e.g., for LocalStack)
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.MaxRetries > 0 {
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.RetryMaxAttempts = cfg.MaxRetries
		})
	}

	client := dynamodb.NewFromConfig(awsCfg, clientOptions...)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(cfg.TableName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.TableName, err)
	}

	store := NewDynamoDBKVStoreWithClient(client, cfg.TableName, cfg.logger())
	store.logger.Info("connected", zap.String("table", cfg.TableName), zap.String("region", cfg.Region))
	return store, nil
}

// NewDynamoDBKVStoreWithClient wraps an existing client.
func NewDynamoDBKVStoreWithClient(client DynamoDBAPI, tableName string, logger *zap.Logger) *DynamoDBKVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoDBKVStore{
		client:    client,
		tableName: tableName,
		logger:    logger.Named("dynamodb"),
		now:       time.Now,
	}
}

func (d *DynamoDBKVStore) keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoDBKVStore) item(key string, value []byte, ttl time.Duration) (map[string]types.AttributeValue, error) {
	now := d.now()
	it := DynamoDBItem{
		Key:       key,
		Value:     value,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	if ttl > 0 {
		expires := now.Add(ttl).Unix()
		it.TTL = &expires
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item %s: %w", key, err)
	}
	return av, nil
}

func (d *DynamoDBKVStore) expired(it DynamoDBItem) bool {
	return it.TTL != nil && d.now().Unix() >= *it.TTL
}

// Get retrieves a value by key from the store.
func (d *DynamoDBKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if d.closed.Load() {
		return nil, errClosed
	}

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyOf(key),
	})
	if err != nil {
		d.logger.Warn("get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil {
		d.logger.Debug("key not found", zap.String("key", key))
		return nil, notFound(key)
	}

	var it DynamoDBItem
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return nil, fmt.Errorf("invalid value format for key %s: %w", key, err)
	}
	if d.expired(it) {
		d.logger.Debug("key expired", zap.String("key", key), zap.Int64("ttl", *it.TTL))
		return nil, notFound(key)
	}

	d.logger.Debug("get", zap.String("key", key), zap.Int("size", len(it.Value)))
	return it.Value, nil
}

// Set stores a key-value pair with an optional TTL.
func (d *DynamoDBKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.closed.Load() {
		return errClosed
	}

	av, err := d.item(key, value, ttl)
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		d.logger.Warn("set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	d.logger.Debug("set", zap.String("key", key), zap.Int("size", len(value)), zap.Duration("ttl", ttl))
	return nil
}

// Delete removes a key from the store.
func (d *DynamoDBKVStore) Delete(ctx context.Context, key string) error {
	if d.closed.Load() {
		return errClosed
	}

	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyOf(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in the store.
func (d *DynamoDBKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if d.closed.Load() {
		return false, errClosed
	}

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(d.tableName),
		Key:                  d.keyOf(key),
		ProjectionExpression: aws.String("#k, #t"),
		ExpressionAttributeNames: map[string]string{
			"#k": "key",
			"#t": "ttl",
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	if result.Item == nil {
		return false, nil
	}

	var it DynamoDBItem
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return false, fmt.Errorf("invalid value format for key %s: %w", key, err)
	}
	return !d.expired(it), nil
}

// BatchSet stores multiple key-value pairs with a shared TTL.
// DynamoDB has no atomic multi-item write here; items are sent with
// BatchWriteItem in chunks of 25.
func (d *DynamoDBKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if d.closed.Load() {
		return errClosed
	}
	if len(items) == 0 {
		return nil
	}

	const maxBatchSize = 25
	requests := make([]types.WriteRequest, 0, len(items))
	for key, value := range items {
		av, err := d.item(key, value, ttl)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	for i := 0; i < len(requests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(requests) {
			end = len(requests)
		}

		_, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				d.tableName: requests[i:end],
			},
		})
		if err != nil {
			return fmt.Errorf("failed to batch set keys: %w", err)
		}
	}

	return nil
}

// Close marks the store closed. The DynamoDB client holds no connections of its own.
func (d *DynamoDBKVStore) Close() error {
	d.closed.Store(true)
	return nil
}

// DynamoDBKVStoreFactory implements the KVStoreFactory interface for DynamoDB.
type DynamoDBKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *DynamoDBKVStoreFactory) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB-specific configuration.
func (f *DynamoDBKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB factory: %s", config.Type)
	}
	if config.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if config.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	return nil
}

// Create creates a new DynamoDB KV store instance based on the provided configuration.
func (f *DynamoDBKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	dynamoStore, err := NewDynamoDBKVStore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB KV store: %w", err)
	}
	return dynamoStore, nil
}

// DynamoDBConfigValidator implements the ConfigValidator interface for DynamoDB.
type DynamoDBConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *DynamoDBConfigValidator) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB-specific configuration in the internal config.
func (v *DynamoDBConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	cache := config.Cache
	if cache.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB validator: %s", cache.Type)
	}

	dynamoConfig := cache.DynamoDBConfig
	if dynamoConfig.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if dynamoConfig.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	if (dynamoConfig.AccessKeyID == "") != (dynamoConfig.SecretAccessKey == "") {
		return fmt.Errorf("access_key_id and secret_access_key must be set together")
	}

	if cache.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", cache.MaxRetries)
	}

	return nil
}

func init() {
	RegisterFactory(&DynamoDBKVStoreFactory{})
	registry.RegisterValidator(&DynamoDBConfigValidator{})
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call.
const maxTransactItems = 100

// DynamoEventStore stores events in DynamoDB, one item per (aggregate_id, version).
type DynamoEventStore struct {
	client            *dynamodb.Client
	tableName         string
	snapshotTableName string
	publisher         Publisher
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

func NewDynamoEventStore(client *dynamodb.Client, tableName, snapshotTableName string, publisher Publisher) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
		publisher:         publisher,
	}
}

func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	events, err := es.AppendBatch(ctx, []PendingEvent{{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		EventType:       eventType,
		Data:            data,
		ExpectedVersion: AnyVersion,
	}})
	if err != nil {
		return nil, err
	}
	return &events[0], nil
}

// AppendBatch writes the batch with TransactWriteItems. Every item carries an
// attribute_not_exists condition, so a concurrent writer cancels the whole batch.
func (es *DynamoEventStore) AppendBatch(ctx context.Context, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(pending) > maxTransactItems {
		return nil, fmt.Errorf("batch of %d events exceeds the %d item transaction limit", len(pending), maxTransactItems)
	}

	staged := make(map[string]int)
	committed := make([]Event, 0, len(pending))
	items := make([]types.TransactWriteItem, 0, len(pending))
	now := time.Now().UTC()

	for _, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p.EventType, err)
		}

		current, ok := staged[p.AggregateID]
		if !ok {
			current, err = es.currentVersion(ctx, p.AggregateID)
			if err != nil {
				return nil, fmt.Errorf("read version of %s: %w", p.AggregateID, err)
			}
		}
		if p.ExpectedVersion != AnyVersion && p.ExpectedVersion != current {
			return nil, fmt.Errorf("%w: %s expected %d, at %d", ErrVersionConflict, p.AggregateID, p.ExpectedVersion, current)
		}

		event := Event{
			ID:            uuid.New().String(),
			AggregateID:   p.AggregateID,
			AggregateType: p.AggregateType,
			EventType:     p.EventType,
			Data:          jsonData,
			Timestamp:     now,
			Version:       current + 1,
		}
		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID:   event.AggregateID,
			Version:       event.Version,
			ID:            event.ID,
			AggregateType: event.AggregateType,
			EventType:     event.EventType,
			Data:          string(jsonData),
			CreatedAt:     now.Format(time.RFC3339Nano),
			GSI1PK:        "EVENTS",
		})
		if err != nil {
			return nil, fmt.Errorf("marshal event item: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
		staged[p.AggregateID] = event.Version
		committed = append(committed, event)
	}

	_, err := es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			return nil, fmt.Errorf("%w: %s", ErrVersionConflict, aws.ToString(cancelled.Message))
		}
		return nil, fmt.Errorf("transact write events: %w", err)
	}

	if err := publishAll(ctx, es.publisher, committed); err != nil {
		return committed, fmt.Errorf("publish events: %w", err)
	}
	return committed, nil
}

// currentVersion returns the highest stored version, or 0 for a new aggregate
func (es *DynamoEventStore) currentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version, nil
}

func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
}

// GetAllEvents reads the GSI1 index ordered by created_at
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "EVENTS"},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (es *DynamoEventStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var de dynamoEvent
			if err := attributevalue.UnmarshalMap(item, &de); err != nil {
				return nil, fmt.Errorf("unmarshal event item: %w", err)
			}
			timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
			events = append(events, Event{
				ID:            de.ID,
				AggregateID:   de.AggregateID,
				AggregateType: de.AggregateType,
				EventType:     de.EventType,
				Data:          json.RawMessage(de.Data),
				Timestamp:     timestamp,
				Version:       de.Version,
			})
		}
	}
	return events, nil
}

// SaveSnapshot overwrites the snapshot item of the aggregate
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}

// NewDynamoClient builds a client from the default AWS credential chain.
// A non-empty endpoint points it at DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

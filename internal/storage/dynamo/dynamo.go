package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ storage.CursorStore = (*Store)(nil)

// Store keeps the cursor as a single DynamoDB item keyed id=0
type Store struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new DynamoDB store
func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.Itoa(model.CursorID)},
	}
}

// Load reads the cursor item, writing the first-run item when absent
func (s *Store) Load(ctx context.Context) (model.Cursor, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Cursor{}, fmt.Errorf("dynamo: get cursor: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		c := model.NewCursor()
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                cursorItem(c, time.Now().UTC()),
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		var condErr *types.ConditionalCheckFailedException
		if err != nil && !errors.As(err, &condErr) {
			return model.Cursor{}, fmt.Errorf("dynamo: init cursor: %w", err)
		}
		return c, nil
	}
	c, err := itemToCursor(out.Item)
	if err != nil {
		return model.Cursor{}, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	if err := storage.Validate(c); err != nil {
		return model.Cursor{}, err
	}
	return c, nil
}

// Save replaces the cursor item
func (s *Store) Save(ctx context.Context, c model.Cursor) error {
	c.ID = model.CursorID
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      cursorItem(c, time.Now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("dynamo: save cursor: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *Store) Close() error { return nil }

func cursorItem(c model.Cursor, now time.Time) map[string]types.AttributeValue {
	replied := make(map[string]types.AttributeValue, len(c.LastReplied))
	for k, v := range c.LastReplied {
		replied[k] = &types.AttributeValueMemberS{Value: v}
	}
	item := key()
	item["index"] = &types.AttributeValueMemberN{Value: strconv.Itoa(c.Index)}
	item["last_replied"] = &types.AttributeValueMemberM{Value: replied}
	item["updated_at"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	return item
}

func itemToCursor(item map[string]types.AttributeValue) (model.Cursor, error) {
	id, err := intAttr(item, "id")
	if err != nil {
		return model.Cursor{}, err
	}
	index, err := intAttr(item, "index")
	if err != nil {
		return model.Cursor{}, err
	}
	c := model.Cursor{ID: id, Index: index, LastReplied: map[string]string{}}
	if m, ok := item["last_replied"].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				c.LastReplied[k] = s.Value
			}
		}
	}
	if s, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s.Value); err == nil {
			c.UpdatedAt = ts
		}
	}
	return c, nil
}

func intAttr(item map[string]types.AttributeValue, name string) (int, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q missing or not a number", name)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return v, nil
}

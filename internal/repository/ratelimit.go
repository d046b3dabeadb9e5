package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// bucketGrace keeps an expired bucket readable a little past its window
// before DynamoDB TTL removes it.
const bucketGrace = time.Minute

// RateLimitStore keeps one item per bucket and window.
type RateLimitStore struct {
	c *Client
}

func (c *Client) RateLimits() *RateLimitStore {
	return &RateLimitStore{c: c}
}

func bucketPK(bucket string) string {
	return "RL#" + bucket
}

func windowSK(windowStart time.Time) string {
	return "W#" + strconv.FormatInt(windowStart.Unix(), 10)
}

// Increment adds one hit to the bucket unless it already holds limit hits.
// The condition makes the check and the increment a single atomic write.
func (s *RateLimitStore) Increment(ctx context.Context, bucket string, windowStart time.Time, window time.Duration, limit int) (bool, error) {
	_, err := s.c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.c.tableName),
		Key:                 itemKey(bucketPK(bucket), windowSK(windowStart)),
		UpdateExpression:    aws.String("ADD #count :one SET #ttl = if_not_exists(#ttl, :ttl)"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   numAttr(1),
			":limit": numAttr(int64(limit)),
			":ttl":   numAttr(windowStart.Add(window + bucketGrace).Unix()),
		},
	})
	if err == nil {
		return true, nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return false, nil
	}
	return false, fmt.Errorf("repository: increment rate limit bucket: %w", err)
}

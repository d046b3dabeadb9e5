package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"travel-gateway/internal/domain"
	"travel-gateway/internal/usage"
)

const (
	usagePK = "STATS#usage"
	usageSK = "DOC"
)

// UsageStore keeps the usage counters document as a single item.
type UsageStore struct {
	c *Client
}

func (c *Client) Usage() *UsageStore {
	return &UsageStore{c: c}
}

// Load returns usage.ErrNotFound when the item has never been written.
func (s *UsageStore) Load(ctx context.Context) (domain.UsageStats, error) {
	out, err := s.c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.c.tableName),
		Key:            itemKey(usagePK, usageSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("repository: load usage: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UsageStats{}, usage.ErrNotFound
	}
	stats, err := itemToUsage(out.Item)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("repository: load usage: %w", err)
	}
	return stats, nil
}

func (s *UsageStore) Save(ctx context.Context, stats domain.UsageStats) error {
	_, err := s.c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.c.tableName),
		Item:      usageItem(stats),
	})
	if err != nil {
		return fmt.Errorf("repository: save usage: %w", err)
	}
	return nil
}

func usageItem(stats domain.UsageStats) map[string]types.AttributeValue {
	counts := make(map[string]types.AttributeValue, len(stats.DestinationCounts))
	for name, n := range stats.DestinationCounts {
		counts[name] = numAttr(int64(n))
	}
	item := itemKey(usagePK, usageSK)
	item["totalQueries"] = numAttr(int64(stats.TotalQueries))
	item["destinationCounts"] = &types.AttributeValueMemberM{Value: counts}
	item["lastReset"] = &types.AttributeValueMemberS{Value: stats.LastReset.UTC().Format(time.RFC3339)}
	return item
}

func itemToUsage(item map[string]types.AttributeValue) (domain.UsageStats, error) {
	total, err := intAttr(item, "totalQueries")
	if err != nil {
		return domain.UsageStats{}, err
	}
	rawReset, err := strAttr(item, "lastReset")
	if err != nil {
		return domain.UsageStats{}, err
	}
	lastReset, err := time.Parse(time.RFC3339, rawReset)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("repository: parse lastReset: %w", err)
	}

	counts := make(map[string]int)
	if v, ok := item["destinationCounts"]; ok {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return domain.UsageStats{}, fmt.Errorf("repository: attribute %q is not a map", "destinationCounts")
		}
		for name, av := range m.Value {
			n, err := intValue(av, "destinationCounts."+name)
			if err != nil {
				return domain.UsageStats{}, err
			}
			counts[name] = n
		}
	}
	return domain.UsageStats{
		TotalQueries:      total,
		DestinationCounts: counts,
		LastReset:         lastReset,
	}, nil
}

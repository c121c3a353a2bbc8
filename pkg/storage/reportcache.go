package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// ReportCache keeps the latest generated report per patient in Redis so a
// reopened chart shows the last analysis without another AI round trip.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func reportKey(patientID string) string {
	return fmt.Sprintf("chart:report:%s", patientID)
}

func (c *ReportCache) Put(ctx context.Context, patientID string, report models.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report for cache: %w", err)
	}
	return c.client.Set(ctx, reportKey(patientID), data, c.ttl).Err()
}

func (c *ReportCache) Get(ctx context.Context, patientID string) (models.Report, bool, error) {
	data, err := c.client.Get(ctx, reportKey(patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, err
	}
	return report, true, nil
}

func (c *ReportCache) Invalidate(ctx context.Context, patientID string) error {
	return c.client.Del(ctx, reportKey(patientID)).Err()
}

package huddlecli

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/rs/zerolog"
)

const namespace = "huddle-services"

// Metrics publishes to CloudWatch. The zero value discards everything, so
// components may carry a Metrics field without wiring it in tests.
type Metrics struct {
	service    Service
	cloudwatch cloudwatchiface.CloudWatchAPI
}

func NewMetrics(service Service, cloudwatch cloudwatchiface.CloudWatchAPI) Metrics {
	return Metrics{
		service,
		cloudwatch,
	}
}

type MetricName string

const (
	BroadcastDeliveredMetric MetricName = "BroadcastDelivered"
	BroadcastPrunedMetric    MetricName = "BroadcastPruned"
	BroadcastFailedMetric    MetricName = "BroadcastFailed"
	BroadcastTimeMetric      MetricName = "BroadcastTime"
	ReminderDispatchedMetric MetricName = "ReminderDispatched"
	ReminderStaleMetric      MetricName = "ReminderStale"
)

type DimensionName string

const (
	ServiceNameDimension    DimensionName = "Service"
	ServiceVersionDimension DimensionName = "Version"
	TransportDimension      DimensionName = "Transport"
)

func defaultDimensions(service Service) map[DimensionName]string {
	return map[DimensionName]string{
		ServiceNameDimension:    service.Name,
		ServiceVersionDimension: service.Version,
	}
}

func mapToDimensions(ms ...map[DimensionName]string) []*cloudwatch.Dimension {
	var dimensions []*cloudwatch.Dimension
	for _, ds := range ms {
		for k, v := range ds {
			if v == "" {
				continue
			}
			dimensions = append(dimensions, &cloudwatch.Dimension{
				Name:  aws.String(string(k)),
				Value: aws.String(v),
			})
		}
	}
	return dimensions
}

func (m Metrics) put(ctx context.Context, datum *cloudwatch.MetricDatum, dimensions []map[DimensionName]string) {
	if m.cloudwatch == nil {
		return
	}
	datum.Timestamp = aws.Time(time.Now())
	datum.Dimensions = mapToDimensions(append(dimensions, defaultDimensions(m.service))...)
	_, err := m.cloudwatch.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: []*cloudwatch.MetricDatum{datum},
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("metric", aws.StringValue(datum.MetricName)).Msg("couldn't publish metric")
	}
}

func (m Metrics) Count(ctx context.Context, name MetricName, n int, dimensions ...map[DimensionName]string) {
	m.put(ctx, &cloudwatch.MetricDatum{
		MetricName: aws.String(string(name)),
		Unit:       aws.String("Count"),
		Value:      aws.Float64(float64(n)),
	}, dimensions)
}

func (m Metrics) Timing(ctx context.Context, name MetricName, start time.Time, dimensions ...map[DimensionName]string) {
	m.put(ctx, &cloudwatch.MetricDatum{
		MetricName: aws.String(string(name)),
		Unit:       aws.String("Milliseconds"),
		Value:      aws.Float64(float64(time.Since(start).Milliseconds())),
	}, dimensions)
}

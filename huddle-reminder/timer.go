package huddlereminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/scheduler"
	"github.com/aws/aws-sdk-go/service/scheduler/scheduleriface"
)

var (
	ErrScheduleConflict = errors.New("schedule already exists")
	ErrScheduleNotFound = errors.New("schedule not found")
)

// Target is what a schedule invokes when it fires.
type Target struct {
	ARN     string
	RoleARN string
	Input   string
}

type RetryPolicy struct {
	MaxAttempts int
	MaxAge      time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, MaxAge: time.Hour}

// TimerService manages one-time schedules keyed by name.
type TimerService interface {
	CreateSchedule(ctx context.Context, key string, at time.Time, target Target, retry RetryPolicy) error
	UpdateSchedule(ctx context.Context, key string, at time.Time, target Target, retry RetryPolicy) error
	DeleteSchedule(ctx context.Context, key string) error
}

// EventBridgeTimers binds TimerService to EventBridge Scheduler one-time
// schedules that delete themselves after firing.
type EventBridgeTimers struct {
	API       scheduleriface.SchedulerAPI
	GroupName string // optional; the default group when empty
}

var _ TimerService = (*EventBridgeTimers)(nil)

func (e *EventBridgeTimers) CreateSchedule(ctx context.Context, key string, at time.Time, target Target, retry RetryPolicy) error {
	_, err := e.API.CreateScheduleWithContext(ctx, &scheduler.CreateScheduleInput{
		Name:                       aws.String(key),
		GroupName:                  e.groupName(),
		ScheduleExpression:         aws.String(scheduleExpression(at)),
		ScheduleExpressionTimezone: aws.String("UTC"),
		FlexibleTimeWindow:         &scheduler.FlexibleTimeWindow{Mode: aws.String(scheduler.FlexibleTimeWindowModeOff)},
		ActionAfterCompletion:      aws.String(scheduler.ActionAfterCompletionDelete),
		Target:                     schedulerTarget(target, retry),
	})
	if err != nil {
		return fmt.Errorf("failed to create schedule %v: %w", key, mapError(err))
	}
	return nil
}

func (e *EventBridgeTimers) UpdateSchedule(ctx context.Context, key string, at time.Time, target Target, retry RetryPolicy) error {
	_, err := e.API.UpdateScheduleWithContext(ctx, &scheduler.UpdateScheduleInput{
		Name:                       aws.String(key),
		GroupName:                  e.groupName(),
		ScheduleExpression:         aws.String(scheduleExpression(at)),
		ScheduleExpressionTimezone: aws.String("UTC"),
		FlexibleTimeWindow:         &scheduler.FlexibleTimeWindow{Mode: aws.String(scheduler.FlexibleTimeWindowModeOff)},
		ActionAfterCompletion:      aws.String(scheduler.ActionAfterCompletionDelete),
		Target:                     schedulerTarget(target, retry),
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule %v: %w", key, mapError(err))
	}
	return nil
}

func (e *EventBridgeTimers) DeleteSchedule(ctx context.Context, key string) error {
	_, err := e.API.DeleteScheduleWithContext(ctx, &scheduler.DeleteScheduleInput{
		Name:      aws.String(key),
		GroupName: e.groupName(),
	})
	if err != nil {
		return fmt.Errorf("failed to delete schedule %v: %w", key, mapError(err))
	}
	return nil
}

func (e *EventBridgeTimers) groupName() *string {
	if e.GroupName == "" {
		return nil
	}
	return aws.String(e.GroupName)
}

// scheduleExpression renders a one-time "at" expression in UTC.
func scheduleExpression(at time.Time) string {
	return "at(" + at.UTC().Format("2006-01-02T15:04:05") + ")"
}

func schedulerTarget(target Target, retry RetryPolicy) *scheduler.Target {
	return &scheduler.Target{
		Arn:     aws.String(target.ARN),
		RoleArn: aws.String(target.RoleARN),
		Input:   aws.String(target.Input),
		RetryPolicy: &scheduler.RetryPolicy{
			MaximumRetryAttempts:     aws.Int64(int64(retry.MaxAttempts)),
			MaximumEventAgeInSeconds: aws.Int64(int64(retry.MaxAge / time.Second)),
		},
	}
}

func mapError(err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	switch aerr.Code() {
	case scheduler.ErrCodeConflictException:
		return fmt.Errorf("%v: %w", aerr.Message(), ErrScheduleConflict)
	case scheduler.ErrCodeResourceNotFoundException:
		return fmt.Errorf("%v: %w", aerr.Message(), ErrScheduleNotFound)
	default:
		return err
	}
}

// Package reminderdao stores reminders and the at-most-once notified flag.
package reminderdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

var ErrNotFound = errors.New("reminder not found")

type DAO struct {
	api       dynamodbiface.DynamoDBAPI
	table     *ddb.Table
	tableName string
}

func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		api:       api,
		table:     ddb.New(api).MustTable(tableName, Reminder{}),
		tableName: tableName,
	}
}

func (d *DAO) Put(ctx context.Context, r Reminder) error {
	if err := d.table.Put(r).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put reminder %v: %w", r.ReminderID, err)
	}
	return nil
}

// Get returns ErrNotFound for unknown ids.
func (d *DAO) Get(ctx context.Context, reminderID string) (*Reminder, error) {
	var r Reminder
	if err := d.table.Get(reminderID).ScanWithContext(ctx, &r); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("reminder %v: %w", reminderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reminder %v: %w", reminderID, err)
	}
	return &r, nil
}

func (d *DAO) Delete(ctx context.Context, reminderID string) error {
	if err := d.table.Delete(reminderID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete reminder %v: %w", reminderID, err)
	}
	return nil
}

// UpdateDetails rewrites the user-editable fields of r and returns the stored
// reminder. The notified flag is never written here, so an edit racing a
// notification cannot reset it.
func (d *DAO) UpdateDetails(ctx context.Context, r Reminder) (*Reminder, error) {
	var (
		set    = []string{"#datetime = :datetime", "#label = :label"}
		remove []string
		values = map[string]*dynamodb.AttributeValue{
			":datetime": {N: aws.String(fmt.Sprint(r.Datetime.Unix()))},
			":label":    {S: aws.String(r.Label)},
		}
	)
	if r.EventID != "" {
		set = append(set, "#event_id = :event_id")
		values[":event_id"] = &dynamodb.AttributeValue{S: aws.String(r.EventID)}
	} else {
		remove = append(remove, "#event_id")
	}
	if r.Note != "" {
		set = append(set, "#note = :note")
		values[":note"] = &dynamodb.AttributeValue{S: aws.String(r.Note)}
	} else {
		remove = append(remove, "#note")
	}

	expr := "SET " + strings.Join(set, ", ")
	if len(remove) > 0 {
		expr += " REMOVE " + strings.Join(remove, ", ")
	}

	out, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(r.ReminderID)},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String(expr),
		ExpressionAttributeNames: map[string]*string{
			"#datetime": aws.String("datetime"),
			"#label":    aws.String("label"),
			"#event_id": aws.String("event_id"),
			"#note":     aws.String("note"),
		},
		ExpressionAttributeValues: values,
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return nil, fmt.Errorf("reminder %v: %w", r.ReminderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update reminder %v: %w", r.ReminderID, err)
	}

	var stored Reminder
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminder %v: %w", r.ReminderID, err)
	}
	return &stored, nil
}

func (d *DAO) ListByUser(ctx context.Context, userID string) ([]Reminder, error) {
	var rs []Reminder
	err := d.table.Query("#UserID = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &rs)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders of %v: %w", userID, err)
	}
	return rs, nil
}

// MarkNotified flips notified from false to true. It reports false, without
// error, when the reminder is already notified or no longer exists; only one
// caller ever sees true.
func (d *DAO) MarkNotified(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(reminderID)},
		},
		ConditionExpression: aws.String("attribute_exists(pk) AND #notified = :false"),
		UpdateExpression:    aws.String("SET #notified = :true, #notified_at = :at"),
		ExpressionAttributeNames: map[string]*string{
			"#notified":    aws.String("notified"),
			"#notified_at": aws.String("notified_at"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":false": {BOOL: aws.Bool(false)},
			":true":  {BOOL: aws.Bool(true)},
			":at":    {N: aws.String(fmt.Sprint(at.Unix()))},
		},
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark reminder %v notified: %w", reminderID, err)
	}
	return true, nil
}

// ScanPending returns reminders not yet notified whose datetime lies in
// [from, to].
func (d *DAO) ScanPending(ctx context.Context, from, to time.Time) ([]Reminder, error) {
	rs, err := d.scan(ctx, "#notified = :false AND #datetime BETWEEN :from AND :to", map[string]*dynamodb.AttributeValue{
		":false": {BOOL: aws.Bool(false)},
		":from":  {N: aws.String(fmt.Sprint(from.Unix()))},
		":to":    {N: aws.String(fmt.Sprint(to.Unix()))},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending reminders: %w", err)
	}
	return rs, nil
}

// ScanBefore returns every reminder whose datetime is before t, notified or
// not.
func (d *DAO) ScanBefore(ctx context.Context, t time.Time) ([]Reminder, error) {
	rs, err := d.scan(ctx, "#datetime < :before", map[string]*dynamodb.AttributeValue{
		":before": {N: aws.String(fmt.Sprint(t.Unix()))},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan reminders before %v: %w", t.Format(time.RFC3339), err)
	}
	return rs, nil
}

func (d *DAO) scan(ctx context.Context, filter string, values map[string]*dynamodb.AttributeValue) ([]Reminder, error) {
	names := map[string]*string{
		"#datetime": aws.String("datetime"),
	}
	if _, ok := values[":false"]; ok {
		names["#notified"] = aws.String("notified")
	}

	var (
		rs     []Reminder
		decErr error
	)
	err := d.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(d.tableName),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		var batch []Reminder
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			decErr = err
			return false
		}
		rs = append(rs, batch...)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, fmt.Errorf("failed to unmarshal reminders: %w", decErr)
	}
	return rs, nil
}

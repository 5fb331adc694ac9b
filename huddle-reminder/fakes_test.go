package huddlereminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeStore struct {
	mu        sync.Mutex
	reminders map[string]reminderdao.Reminder
	err       error
}

func newFakeStore(rs ...reminderdao.Reminder) *fakeStore {
	f := &fakeStore{reminders: map[string]reminderdao.Reminder{}}
	for _, r := range rs {
		f.reminders[r.ReminderID] = r
	}
	return f
}

func (f *fakeStore) Put(_ context.Context, r reminderdao.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reminders[r.ReminderID] = r
	return nil
}

func (f *fakeStore) Get(_ context.Context, reminderID string) (*reminderdao.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reminders[reminderID]
	if !ok {
		return nil, fmt.Errorf("reminder %v: %w", reminderID, reminderdao.ErrNotFound)
	}
	return &r, nil
}

func (f *fakeStore) UpdateDetails(_ context.Context, r reminderdao.Reminder) (*reminderdao.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stored, ok := f.reminders[r.ReminderID]
	if !ok {
		return nil, fmt.Errorf("reminder %v: %w", r.ReminderID, reminderdao.ErrNotFound)
	}
	stored.EventID = r.EventID
	stored.Datetime = r.Datetime
	stored.Label = r.Label
	stored.Note = r.Note
	f.reminders[r.ReminderID] = stored
	return &stored, nil
}

func (f *fakeStore) Delete(_ context.Context, reminderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reminders, reminderID)
	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]reminderdao.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rs []reminderdao.Reminder
	for _, r := range f.reminders {
		if r.UserID == userID {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ReminderID < rs[j].ReminderID })
	return rs, nil
}

func (f *fakeStore) MarkNotified(_ context.Context, reminderID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[reminderID]
	if !ok || r.Notified {
		return false, nil
	}
	r.Notified = true
	r.NotifiedAt = at.Unix()
	f.reminders[reminderID] = r
	return true, nil
}

func (f *fakeStore) ScanPending(_ context.Context, from, to time.Time) ([]reminderdao.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rs []reminderdao.Reminder
	for _, r := range f.reminders {
		if !r.Notified && !r.Datetime.Before(from) && !r.Datetime.After(to) {
			rs = append(rs, r)
		}
	}
	return rs, nil
}

func (f *fakeStore) ScanBefore(_ context.Context, t time.Time) ([]reminderdao.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rs []reminderdao.Reminder
	for _, r := range f.reminders {
		if r.Datetime.Before(t) {
			rs = append(rs, r)
		}
	}
	return rs, nil
}

func (f *fakeStore) get(reminderID string) (reminderdao.Reminder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[reminderID]
	return r, ok
}

type schedule struct {
	At     time.Time
	Target Target
	Retry  RetryPolicy
}

// fakeTimers behaves like a schedule store keyed by name: create conflicts
// on an existing key, update and delete fail on a missing one.
type fakeTimers struct {
	mu        sync.Mutex
	schedules map[string]schedule
	creates   int
	updates   int
	err       error
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{schedules: map[string]schedule{}}
}

func (f *fakeTimers) CreateSchedule(_ context.Context, key string, at time.Time, target Target, retry RetryPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.schedules[key]; ok {
		return fmt.Errorf("%v: %w", key, ErrScheduleConflict)
	}
	f.creates++
	f.schedules[key] = schedule{At: at, Target: target, Retry: retry}
	return nil
}

func (f *fakeTimers) UpdateSchedule(_ context.Context, key string, at time.Time, target Target, retry RetryPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.schedules[key]; !ok {
		return fmt.Errorf("%v: %w", key, ErrScheduleNotFound)
	}
	f.updates++
	f.schedules[key] = schedule{At: at, Target: target, Retry: retry}
	return nil
}

func (f *fakeTimers) DeleteSchedule(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.schedules[key]; !ok {
		return fmt.Errorf("%v: %w", key, ErrScheduleNotFound)
	}
	delete(f.schedules, key)
	return nil
}

func (f *fakeTimers) snapshot() map[string]schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]schedule{}
	for k, v := range f.schedules {
		out[k] = v
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ string, r reminderdao.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r.ReminderID)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeDirectory map[string]huddledirectory.User

func (f fakeDirectory) GetUser(_ context.Context, userID string) (*huddledirectory.User, error) {
	u, ok := f[userID]
	if !ok {
		return nil, fmt.Errorf("%v: %w", userID, huddledirectory.ErrUserNotFound)
	}
	return &u, nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []huddlenotify.Push
	err    error
}

func (f *fakePusher) Push(_ context.Context, _ string, push huddlenotify.Push) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, push)
	return nil
}

type fakeEmailer struct {
	mu     sync.Mutex
	emails []huddlenotify.Email
	err    error
}

func (f *fakeEmailer) SendEmail(_ context.Context, email huddlenotify.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, email)
	return nil
}

var errBoom = errors.New("boom")

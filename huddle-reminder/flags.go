package huddlereminder

import (
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/scheduler"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var ReminderOpts struct {
	NotifyFunctionARN string
	SchedulerRoleARN  string
	ScheduleGroup     string
}

var NotifyFunctionARNFlag = huddlecli.StringFlag("notify-function-arn", "function the reminder timers invoke", &ReminderOpts.NotifyFunctionARN)
var SchedulerRoleARNFlag = huddlecli.StringFlag("scheduler-role-arn", "role EventBridge Scheduler assumes to invoke the notify function", &ReminderOpts.SchedulerRoleARN)
var ScheduleGroupFlag = huddlecli.StringFlag("schedule-group", "EventBridge Scheduler group for reminder timers", &ReminderOpts.ScheduleGroup)

var ReminderFlags = []cli.Flag{
	NotifyFunctionARNFlag,
	SchedulerRoleARNFlag,
	ScheduleGroupFlag,
}

// NewScheduler builds a Scheduler on EventBridge Scheduler from the reminder
// flags.
func NewScheduler(s *session.Session, token string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Timers: &EventBridgeTimers{
			API:       scheduler.New(s),
			GroupName: ReminderOpts.ScheduleGroup,
		},
		Target: Target{
			ARN:     ReminderOpts.NotifyFunctionARN,
			RoleARN: ReminderOpts.SchedulerRoleARN,
		},
		Token:  token,
		Retry:  DefaultRetryPolicy,
		Logger: logger,
	}
}

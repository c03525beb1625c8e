package domain

import "time"

// JobName identifies one of the runtime's logical jobs.
type JobName string

const (
	JobCleanup         JobName = "cleanup"
	JobRepeatingEvents JobName = "repeating-events"
)

// TriggerSource records what caused a job run.
type TriggerSource string

const (
	TriggerSourceSchedule TriggerSource = "schedule"
	TriggerSourceManual   TriggerSource = "manual"
	TriggerSourceWebhook  TriggerSource = "webhook"
	TriggerSourcePoller   TriggerSource = "poller"
)

// TriggerRequest asks the scheduler runtime to run a job out of band.
type TriggerRequest struct {
	Job         JobName
	Source      TriggerSource
	RequestedAt time.Time
}

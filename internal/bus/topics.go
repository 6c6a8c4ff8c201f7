package bus

// Background task lifecycle topics.
const (
	TopicTaskRunning = "task.running"
	TopicTaskDone    = "task.done"
	TopicTaskFailed  = "task.failed"
)

// TaskFinishedEvent is published when a background task reaches a terminal
// state. ChatID routes the notification back to the chat that scheduled it.
type TaskFinishedEvent struct {
	TaskID  string
	ChatID  int64
	Command string
	Output  string
	Success bool
}

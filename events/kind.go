package events

// Kind identifies the category of a domain event. The values form a closed
// enumeration organized by domain; producers must use one of the declared
// constants.
type Kind string

const (
	// Agent lifecycle and actions
	AgentStarted       Kind = "agent.started"
	AgentStopped       Kind = "agent.stopped"
	AgentTaskAssigned  Kind = "agent.task.assigned"
	AgentTaskCompleted Kind = "agent.task.completed"
	AgentTaskFailed    Kind = "agent.task.failed"
	AgentToolExecuted  Kind = "agent.tool.executed"

	// Knowledge sharing
	MemoryCreated  Kind = "memory.created"
	MemoryShared   Kind = "memory.shared"
	MemoryRecalled Kind = "memory.recalled"

	// Circle coordination
	CircleCreated       Kind = "circle.created"
	CircleStarted       Kind = "circle.started"
	CircleStopped       Kind = "circle.stopped"
	CircleMemberAdded   Kind = "circle.member.added"
	CircleMemberRemoved Kind = "circle.member.removed"

	// Task management
	TaskCreated          Kind = "task.created"
	TaskAssigned         Kind = "task.assigned"
	TaskStarted          Kind = "task.started"
	TaskCompleted        Kind = "task.completed"
	TaskFailed           Kind = "task.failed"
	TaskConflictDetected Kind = "task.conflict.detected"

	// Inter-agent communication
	ConversationMessage      Kind = "conversation.message"
	ConversationTurnComplete Kind = "conversation.turn.complete"

	// System events
	SystemError   Kind = "system.error"
	SystemWarning Kind = "system.warning"
)

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the declared event kinds.
func (k Kind) Valid() bool {
	_, ok := allKinds[k]
	return ok
}

var allKinds = func() map[Kind]struct{} {
	kinds := []Kind{
		AgentStarted, AgentStopped, AgentTaskAssigned, AgentTaskCompleted,
		AgentTaskFailed, AgentToolExecuted,
		MemoryCreated, MemoryShared, MemoryRecalled,
		CircleCreated, CircleStarted, CircleStopped,
		CircleMemberAdded, CircleMemberRemoved,
		TaskCreated, TaskAssigned, TaskStarted, TaskCompleted, TaskFailed,
		TaskConflictDetected,
		ConversationMessage, ConversationTurnComplete,
		SystemError, SystemWarning,
	}
	m := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		m[k] = struct{}{}
	}
	return m
}()

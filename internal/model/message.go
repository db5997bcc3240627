package model

import "time"

// MessageRole identifies the author of a conversation entry.
type MessageRole string

const (
	MessageRoleUser   MessageRole = "User"
	MessageRoleAgent  MessageRole = "Agent"
	MessageRoleSystem MessageRole = "System"
)

// Message is one append-only entry in an agent's conversation transcript.
type Message struct {
	AgentID      string // owner of this transcript
	Turn         *int
	Role         MessageRole
	Content      string
	FromAgentID  *string
	Timestamp    time.Time
}

// CompletionReport is what a CRAFTER or GATE hands back via report_to_parent.
type CompletionReport struct {
	AgentID              string
	TaskID               string
	Summary              string // 1-3 sentences
	FilesModified        []string
	VerificationResults  map[string]string // cmd -> output
	Success              bool
}

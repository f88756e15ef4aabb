package entry

// Source tags the kind of metered work an entry pays for.
type Source string

const (
	SourceEmbeddingGeneration Source = "embedding-generation"
	SourceTextGeneration      Source = "text-generation"
	SourceToolExecution       Source = "tool-execution"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceEmbeddingGeneration, SourceTextGeneration, SourceToolExecution:
		return true
	}
	return false
}

// Entry is one signed change to a workspace balance, in nanos.
// Negative amounts debit the workspace.
type Entry struct {
	WorkspaceID    string `json:"workspace_id"`
	AgentID        string `json:"agent_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Source         Source `json:"source"`
	Supplier       string `json:"supplier"`
	Model          string `json:"model,omitempty"`
	ToolCall       string `json:"tool_call,omitempty"`
	Description    string `json:"description"`
	Amount         int64  `json:"amount"`
}

package types

// Task is the per-document unit of work the master sends to one slave.
// TaskID is the document's index in the job. Seq is stamped by the master's
// registry on every dispatch and echoed back so that a late answer from an
// earlier job with the same TaskID is not taken for the current one.
type Task struct {
	TaskID          int      `json:"task_id"`
	Seq             uint64   `json:"seq,omitempty"`
	DocumentName    string   `json:"document_name"`
	DocumentContent string   `json:"document_content"`
	Keywords        []string `json:"keywords"`
}

// TaskResult is a slave's answer to one Task. When Error is set the counts
// and the word total carry no meaning and are treated as zero.
type TaskResult struct {
	TaskID         int            `json:"task_id"`
	Seq            uint64         `json:"seq,omitempty"`
	DocumentName   string         `json:"document_name"`
	KeywordCounts  map[string]int `json:"keyword_counts"`
	TotalWordCount int            `json:"total_word_count"`
	ProcessingMs   int64          `json:"processing_ms"`
	Error          string         `json:"error,omitempty"`
}

// Failed reports whether the task produced an error instead of counts.
func (r *TaskResult) Failed() bool {
	return r.Error != ""
}

// NewErrorResult builds the result reported for a task that did not complete.
func NewErrorResult(taskID int, documentName, msg string) *TaskResult {
	return &TaskResult{
		TaskID:         taskID,
		DocumentName:   documentName,
		KeywordCounts:  make(map[string]int),
		TotalWordCount: 0,
		Error:          msg,
	}
}

// Error messages placed in TaskResult.Error by the master.
const (
	ErrMsgTimeout           = "Timeout"
	ErrMsgEmptyResponse     = "Empty Response"
	ErrMsgSlaveDisconnected = "Slave disconnected"
)

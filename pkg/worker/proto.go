// Package worker runs tasks in isolated OS processes behind a fixed-size
// pool, enforcing a hard wall-clock deadline per task. Parent and child speak
// newline-delimited JSON over stdin/stdout; worker logs go to stderr.
package worker

import "encoding/json"

// TaskQuery is the task name for SQL execution.
const TaskQuery = "query"

// Request is one task dispatched to a worker process.
type Request struct {
	ID   string          `json:"id"`
	Task string          `json:"task"`
	Args json.RawMessage `json:"args"`
}

// Response is the tagged outcome of a task: either Result is set, or
// ErrorType/Error describe the failure.
type Response struct {
	ID        string          `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// QueryArgs are the arguments for the query task: the SQL text and the local
// paths of the materialized dataset files.
type QueryArgs struct {
	SQL   string   `json:"sql"`
	Files []string `json:"files"`
}

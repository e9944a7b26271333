package models

// Error type tags attached to failed executions. The runner and worker pool
// use these to classify failures without string matching at call sites.
const (
	ErrTypeNetwork   = "network"
	ErrTypeFormat    = "format"
	ErrTypeExecution = "execution"
	ErrTypeTimeout   = "timeout"
	ErrTypeQuota     = "quota"
	ErrTypeCache     = "cache"
)

// QueryResult holds the shaped output of a successful query execution.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	TotalRows int      `json:"total_rows"`
}

// ExecResult is the tagged outcome of a worker execution: either Result is
// set, or ErrorType/Error describe the failure. The cache boundary rejects
// anything that is not a plain successful result.
type ExecResult struct {
	Result    *QueryResult `json:"result,omitempty"`
	ErrorType string       `json:"error_type,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// OK reports whether the result is a successful, cacheable payload.
func (r *ExecResult) OK() bool {
	return r != nil && r.ErrorType == "" && r.Error == "" && r.Result != nil
}

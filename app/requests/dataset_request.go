package requests

// CheckRequest carries the options of a synchronous check or a job
// submission. The dataset itself is the multipart "file" part or the raw
// request body.
type CheckRequest struct {
	Profile string `form:"profile"`
	Format  string `form:"format" binding:"omitempty,oneof=json csv summary"`
}

// ResultsQuery selects how job results are rendered.
type ResultsQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=json ndjson csv"`
	Gzip   bool   `form:"gzip"`
}

// SearchQuery filters rows published to the search index.
type SearchQuery struct {
	Q       string `form:"q"`
	Dataset string `form:"dataset" binding:"required"`
	Status  string `form:"status" binding:"omitempty,oneof=Pass Fail"`
	Limit   int64  `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// InvalidateCacheRequest names the profile whose stale reports are
// dropped; empty means every profile.
type InvalidateCacheRequest struct {
	Profile string `json:"profile"`
}

// RunsQuery pages through run history.
type RunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

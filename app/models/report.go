package models

// MatchRef is one later row that chose this row as its best match.
type MatchRef struct {
	RowNumber int    `json:"row_number"`
	UniqueID  string `json:"unique_id"`
	Score     int    `json:"score"`
}

// OutputRow is one annotated input row.
type OutputRow struct {
	RowNumber        int        `json:"row_number"`
	UniqueID         string     `json:"unique_id"`
	Values           []string   `json:"values"`
	FieldScores      []int      `json:"field_scores"`
	TotalRowScore    int        `json:"total_row_score"`
	FinalStatus      string     `json:"final_status"`
	DuplicateScore   *int       `json:"duplicate_score,omitempty"`
	DuplicateDetails string     `json:"duplicate_match_details,omitempty"`
	MatchedBy        []MatchRef `json:"matched_by,omitempty"`
	IsMatchedTo      string     `json:"is_matched_to,omitempty"`
	Involved         bool       `json:"is_duplicate_or_matched"`
	MatchKey         int        `json:"match_key,omitempty"`
}

// Summary aggregates a finished run.
type Summary struct {
	Rows        int         `json:"rows"`
	Passed      int         `json:"passed"`
	Failed      int         `json:"failed"`
	Duplicates  int         `json:"duplicates"`
	Involved    int         `json:"involved"`
	MatchGroups int         `json:"match_groups"`
	GroupSizes  []GroupSize `json:"group_sizes"`
	Comparisons int         `json:"comparisons"`
	ElapsedMS   int64       `json:"elapsed_ms"`
}

// GroupSize counts match groups of one size.
type GroupSize struct {
	Size   int `json:"size"`
	Groups int `json:"groups"`
}

// Report is the full annotated output of a run.
type Report struct {
	Header  []string    `json:"header"`
	Rows    []OutputRow `json:"rows"`
	Summary Summary     `json:"summary"`
	Profile string      `json:"profile"`
}

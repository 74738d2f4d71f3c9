package jobs

// Breakdown explains a structured score.
type Breakdown struct {
	Skills        float64  `json:"skills"`
	Experience    float64  `json:"experience"`
	Location      float64  `json:"location"`
	MatchedSkills []string `json:"matched_skills,omitempty"`
}

// MatchResult is one ranked posting. Scores are within [0,1].
type MatchResult struct {
	PostingID         string    `json:"posting_id"`
	Rank              int       `json:"rank"`
	CombinedScore     float64   `json:"combined_score"`
	StructuredScore   float64   `json:"structured_score"`
	SemanticScore     float64   `json:"semantic_score"`
	SemanticAvailable bool      `json:"semantic_available"`
	Breakdown         Breakdown `json:"breakdown"`
}

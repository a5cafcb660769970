package ask

type Request struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// Source is one retrieved chunk offered as evidence.
type Source struct {
	Link    string  `json:"link"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

type Response struct {
	Answer             string   `json:"answer"`
	SessionID          string   `json:"session_id"`
	Intent             string   `json:"intent"`
	IsSufficient       bool     `json:"is_sufficient"`
	SimilarityScore    float64  `json:"similarity_score"`
	ScrapingStarted    bool     `json:"scraping_started"`
	ScrapingInProgress bool     `json:"scraping_in_progress"`
	ElapsedSeconds     *int     `json:"elapsed_seconds,omitempty"`
	Sources            []Source `json:"sources"`
}

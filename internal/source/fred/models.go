package fred

type observationsResponse struct {
	Count        int           `json:"count"`
	Observations []observation `json:"observations"`
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type seriesResponse struct {
	Seriess []seriesInfo `json:"seriess"`
}

type seriesInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Frequency string `json:"frequency"`
}

type errorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

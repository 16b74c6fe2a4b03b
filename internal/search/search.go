package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultChecklist ResultType = "checklist"
	ResultTemplate  ResultType = "template"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	ProducerID string     `json:"producerId,omitempty"`
	Status     string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterProducer string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ChecklistRecord is the data we index for a checklist instance.
type ChecklistRecord struct {
	ID           string `json:"id"`
	PublicID     string `json:"publicId"`
	TemplateName string `json:"templateName"`
	ProducerID   string `json:"producerId"`
	ProducerName string `json:"producerName"`
	Status       string `json:"status"`
}

// TemplateRecord is the data we index for a checklist template.
type TemplateRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
}

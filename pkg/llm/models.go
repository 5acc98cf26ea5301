package llm

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"` // Always "list"
	Data   []ModelCard `json:"data"`
}

// ModelCard describes one servable model.
type ModelCard struct {
	ID      string `json:"id"`
	Object  string `json:"object"` // Always "model"
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

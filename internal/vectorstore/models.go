package vectorstore

// Document represents a chunk to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata carries the study provenance fields (study_id, title,
	// year, condition, source_file, page, ...) inherited from the
	// parent document.
	Metadata map[string]interface{}

	// Collection is the target collection name for this document.
	// If empty, the store's default collection is used.
	Collection string
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the chunk text.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the stored provenance metadata.
	Metadata map[string]interface{}
}

package domain

// DocumentContent is the semantic triple consumed by the transformation
// pipeline: extracted text, source format, and display title.
type DocumentContent struct {
	Text   string `json:"text"`
	Format string `json:"format"`
	Title  string `json:"title"`
}

// TransformationRequest carries the three documents involved in one
// transformation call. It is constructed per call and never persisted.
type TransformationRequest struct {
	Document       DocumentContent `json:"document"`
	TemplateInput  DocumentContent `json:"template_input"`
	TemplateOutput DocumentContent `json:"template_output"`
	DocumentType   DocumentType    `json:"document_type"`
}

// TruncationInfo records how much content was cut before a retry that
// followed a context-length rejection.
type TruncationInfo struct {
	OriginalDocumentLength        int  `json:"original_document_length"`
	ProcessedDocumentLength       int  `json:"processed_document_length"`
	OriginalInputTemplateLength   int  `json:"original_input_template_length"`
	ProcessedInputTemplateLength  int  `json:"processed_input_template_length"`
	OriginalOutputTemplateLength  int  `json:"original_output_template_length"`
	ProcessedOutputTemplateLength int  `json:"processed_output_template_length"`
	AggressiveTruncation          bool `json:"aggressive_truncation"`
}

// ChunkingInfo records how an oversized document was split and processed.
type ChunkingInfo struct {
	OriginalDocumentLength int   `json:"original_document_length"`
	Chunks                 int   `json:"chunks"`
	ChunkSizes             []int `json:"chunk_sizes"`
	ChunksProcessed        int   `json:"chunks_processed"`
	ChunksWithErrors       int   `json:"chunks_with_errors"`
}

// TransformationResult is the canonical output of the pipeline.
// Content is never empty on success; on total failure the pipeline returns
// a ParseError-annotated result instead of raising past the boundary.
type TransformationResult struct {
	FileType       string          `json:"file_type"`
	Content        string          `json:"content"`
	TruncationInfo *TruncationInfo `json:"truncation_info,omitempty"`
	ParseError     string          `json:"parse_error,omitempty"`
	ChunkingInfo   *ChunkingInfo   `json:"chunking_info,omitempty"`
	TimeoutWarning string          `json:"timeout_warning,omitempty"`
}

// ChunkResult holds the outcome of transforming one segment of a chunked
// document. Order matches the original document; results are discarded
// after recombination.
type ChunkResult struct {
	FileType string `json:"file_type"`
	Content  string `json:"content"`
	Error    string `json:"error,omitempty"`
}

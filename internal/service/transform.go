package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/marcus/docmorph/internal/domain"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/prompts"
)

// chunkCount is the fixed number of segments an oversized document is
// split into before per-segment transformation.
const chunkCount = 5

// TransformService drives document transformation: budget enforcement,
// chunked processing for oversized documents, and the truncation retry
// after a context-length rejection.
type TransformService struct {
	llm Completer
}

// NewTransformService creates a new TransformService.
// Parameters:
//   - llm: completion client used for all model calls.
// Returns:
//   - *TransformService: initialized service.
func NewTransformService(llm Completer) *TransformService {
	return &TransformService{llm: llm}
}

// Transform converts a document to the output template's format using the
// input/output template pair as examples.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: document, both templates, and the document type.
// Returns:
//   - *domain.TransformationResult: transformed content with any
//     truncation or chunking metadata attached.
//   - error: non-nil if the model cannot produce a result at all.
func (s *TransformService) Transform(ctx context.Context, req *domain.TransformationRequest) (*domain.TransformationResult, error) {
	budgets := prompts.BudgetsFor(req.DocumentType)

	doc := req.Document
	tmplIn := req.TemplateInput
	tmplOut := req.TemplateOutput

	origDocLen := len(doc.Text)
	origTmplInLen := len(tmplIn.Text)
	origTmplOutLen := len(tmplOut.Text)

	// Templates always fit the budget; the document may instead be chunked.
	var cut bool
	if tmplIn.Text, cut = prompts.Truncate(tmplIn.Text, budgets.MaxTemplateChars); cut {
		logger.CtxWarn(ctx, "input template truncated", logger.Fields{
			"original_length": origTmplInLen,
			"max_chars":       budgets.MaxTemplateChars,
		})
	}
	if tmplOut.Text, cut = prompts.Truncate(tmplOut.Text, budgets.MaxTemplateChars); cut {
		logger.CtxWarn(ctx, "output template truncated", logger.Fields{
			"original_length": origTmplOutLen,
			"max_chars":       budgets.MaxTemplateChars,
		})
	}

	systemPrompt := prompts.SystemPrompt(doc.Format, tmplIn.Format, tmplOut.Format, req.DocumentType)

	if origDocLen > budgets.MaxDocumentChars {
		logger.CtxInfo(ctx, "document exceeds budget, processing in chunks", logger.Fields{
			"document_length": origDocLen,
			"max_chars":       budgets.MaxDocumentChars,
		})
		return s.transformInChunks(ctx, doc, tmplIn, tmplOut, req.DocumentType, systemPrompt)
	}

	userPrompt := prompts.UserPrompt(doc, tmplIn, tmplOut)

	result, err := s.llm.Complete(ctx, systemPrompt, userPrompt)
	if err == nil {
		return result, nil
	}

	if !IsContextLengthExceeded(err) {
		return nil, err
	}

	// The prompt blew the context window despite the budgets. Halve the
	// budgets, cut everything, and try once more.
	logger.CtxWarn(ctx, "context length exceeded, retrying with aggressive truncation", nil)

	halved := budgets.Halved()
	doc.Text, _ = prompts.Truncate(req.Document.Text, halved.MaxDocumentChars)
	tmplIn.Text, _ = prompts.Truncate(req.TemplateInput.Text, halved.MaxTemplateChars)
	tmplOut.Text, _ = prompts.Truncate(req.TemplateOutput.Text, halved.MaxTemplateChars)

	retryPrompt := prompts.UserPrompt(doc, tmplIn, tmplOut)
	result, retryErr := s.llm.Complete(ctx, systemPrompt, retryPrompt)
	if retryErr != nil {
		return nil, fmt.Errorf("document is too large to process even after truncation: %w", retryErr)
	}

	result.TruncationInfo = &domain.TruncationInfo{
		OriginalDocumentLength:        origDocLen,
		ProcessedDocumentLength:       len(doc.Text),
		OriginalInputTemplateLength:   origTmplInLen,
		ProcessedInputTemplateLength:  len(tmplIn.Text),
		OriginalOutputTemplateLength:  origTmplOutLen,
		ProcessedOutputTemplateLength: len(tmplOut.Text),
		AggressiveTruncation:          true,
	}

	// Depositions must stay clean CSV, so the note is skipped for them.
	if req.DocumentType != domain.DocTypeDeposition {
		result.Content += prompts.TruncationNote
	}

	return result, nil
}

// transformInChunks splits the document into equal segments, transforms
// each independently, and recombines the outputs.
func (s *TransformService) transformInChunks(ctx context.Context, doc, tmplIn, tmplOut domain.DocumentContent, docType domain.DocumentType, systemPrompt string) (*domain.TransformationResult, error) {
	chunks := splitDocument(doc.Text, chunkCount)
	chunkSystemPrompt := systemPrompt + prompts.ChunkSystemSuffix

	results := make([]domain.ChunkResult, 0, len(chunks))
	for i, chunk := range chunks {
		chunkDoc := domain.DocumentContent{
			Text:   chunk,
			Format: doc.Format,
			Title:  fmt.Sprintf("%s (Part %d/%d)", doc.Title, i+1, len(chunks)),
		}
		userPrompt := prompts.UserPrompt(chunkDoc, tmplIn, tmplOut)

		res, err := s.llm.Complete(ctx, chunkSystemPrompt, userPrompt)
		if err != nil {
			logger.CtxError(ctx, "chunk transformation failed", err, logger.Fields{
				"chunk": i + 1,
				"total": len(chunks),
			})
			results = append(results, domain.ChunkResult{
				FileType: tmplOut.Format,
				Content:  fmt.Sprintf("[Error processing part %d/%d: %s]", i+1, len(chunks), err.Error()),
				Error:    err.Error(),
			})
			continue
		}
		results = append(results, domain.ChunkResult{
			FileType: res.FileType,
			Content:  res.Content,
		})
	}

	combined := combineChunkResults(results, tmplOut.Format)

	chunkSizes := make([]int, len(chunks))
	errCount := 0
	for i, c := range chunks {
		chunkSizes[i] = len(c)
	}
	for _, r := range results {
		if r.Error != "" {
			errCount++
		}
	}
	combined.ChunkingInfo = &domain.ChunkingInfo{
		OriginalDocumentLength: len(doc.Text),
		Chunks:                 len(chunks),
		ChunkSizes:             chunkSizes,
		ChunksProcessed:        len(results),
		ChunksWithErrors:       errCount,
	}

	return combined, nil
}

// splitDocument divides text into n segments of equal character length.
// The last segment absorbs the remainder, so concatenating the segments
// reproduces the input exactly.
func splitDocument(text string, n int) []string {
	if n <= 1 || len(text) == 0 {
		return []string{text}
	}

	size := len(text) / n
	chunks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := (i + 1) * size
		if i == n-1 {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// combineChunkResults merges per-chunk outputs into one result. CSV output
// keeps the first chunk whole and drops repeated header rows from the
// rest; other formats are joined with blank lines.
func combineChunkResults(results []domain.ChunkResult, outputFormat string) *domain.TransformationResult {
	fileType := results[0].FileType
	if fileType == "" {
		fileType = strings.TrimPrefix(outputFormat, ".")
	}

	combined := &domain.TransformationResult{FileType: fileType}

	if strings.ToLower(fileType) == "csv" {
		var lines []string
		var headerLine string

		firstLines := splitLines(results[0].Content)
		if len(firstLines) >= 1 {
			headerLine = firstLines[0]
			lines = append(lines, firstLines...)
		}

		for _, res := range results[1:] {
			chunkLines := splitLines(res.Content)
			if len(chunkLines) >= 1 && headerLine != "" && chunkLines[0] == headerLine {
				chunkLines = chunkLines[1:]
			}
			lines = append(lines, chunkLines...)
		}

		combined.Content = strings.Join(lines, "\n")
		return combined
	}

	sections := make([]string, 0, len(results))
	for _, res := range results {
		sections = append(sections, res.Content)
	}
	combined.Content = strings.Join(sections, "\n\n")
	return combined
}

// splitLines splits on newlines without producing a trailing empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

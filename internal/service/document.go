package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/docmorph/internal/domain"
	"github.com/marcus/docmorph/internal/extract"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/storage"
)

var (
	// ErrNotTemplate is returned when a transformation names a document
	// that is not tagged as a template.
	ErrNotTemplate = errors.New("document is not tagged as a template")

	// ErrInvalidDownloadToken is returned for expired or forged download
	// tokens.
	ErrInvalidDownloadToken = errors.New("invalid or expired download token")
)

// StatusRetryRequired reports that preparation alone consumed too much of
// the processing window for a synchronous transformation to finish.
const StatusRetryRequired = "retry_required"

// StatusSuccess reports a completed transformation.
const StatusSuccess = "success"

// timeoutContentWarning is appended to transformed content when the request
// overran the processing window but output was still produced.
const timeoutContentWarning = "\n\n[WARNING: This transformation exceeded the processing time limit. Results may be incomplete.]"

// timeoutResultWarning is the machine-readable companion of
// timeoutContentWarning, surfaced in the result envelope.
const timeoutResultWarning = "Transformation exceeded the processing time limit. Results may be incomplete."

var unsafeFilenameChars = regexp.MustCompile(`[^\w.-]`)

// UploadInput carries one uploaded file and its user-supplied metadata.
type UploadInput struct {
	Filename    string
	Data        []byte
	Title       string
	Description string
	DocType     domain.DocumentType
	Tag         string
}

// TransformOutcome is the envelope returned by TransformWithTemplates.
type TransformOutcome struct {
	Status              string                 `json:"status"`
	DocumentID          uint                   `json:"document_id"`
	DocumentTitle       string                 `json:"document_title"`
	TemplateInputID     uint                   `json:"template_input_id,omitempty"`
	TemplateInputTitle  string                 `json:"template_input_title,omitempty"`
	TemplateOutputID    uint                   `json:"template_output_id,omitempty"`
	TemplateOutputTitle string                 `json:"template_output_title,omitempty"`
	TransformedContent  string                 `json:"transformed_content,omitempty"`
	FileType            string                 `json:"file_type,omitempty"`
	Formats             map[string]string      `json:"formats,omitempty"`
	TruncationInfo      *domain.TruncationInfo `json:"truncation_info,omitempty"`
	ChunkingInfo        *domain.ChunkingInfo   `json:"chunking_info,omitempty"`
	ParseError          string                 `json:"parse_error,omitempty"`
	TimeoutWarning      string                 `json:"timeout_warning,omitempty"`
	TransformedFileName string                 `json:"transformed_file_name,omitempty"`
	TransformedFilePath string                 `json:"transformed_file_path,omitempty"`
	DownloadPath        string                 `json:"download_path,omitempty"`
	Message             string                 `json:"message,omitempty"`
	Error               string                 `json:"error,omitempty"`
	Timestamp           time.Time              `json:"timestamp"`
}

// DocumentStore is the persistence surface DocumentService needs.
// Satisfied by *repository.DocumentRepository.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	Update(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id, userID uint) (*domain.Document, error)
	ListByUser(ctx context.Context, userID uint, tag string) ([]domain.Document, error)
	Delete(ctx context.Context, id, userID uint) error
}

// DocumentService owns the document lifecycle: upload and text extraction,
// template transformations under a processing-time budget, and signed
// downloads of transformed artifacts.
type DocumentService struct {
	repo        DocumentStore
	store       storage.ObjectStorage
	transformer *TransformService
	signer      *DownloadSigner

	// maxProcessingTime is the synchronous budget. It should sit below the
	// platform request timeout with margin for response delivery.
	maxProcessingTime time.Duration

	now func() time.Time
}

// NewDocumentService creates a new DocumentService.
// Parameters:
//   - repo: document persistence layer.
//   - store: object storage for original files and transformed artifacts.
//   - transformer: transformation pipeline.
//   - signer: download token signer.
//   - maxProcessingTime: synchronous processing budget.
// Returns:
//   - *DocumentService: initialized service.
func NewDocumentService(
	repo DocumentStore,
	store storage.ObjectStorage,
	transformer *TransformService,
	signer *DownloadSigner,
	maxProcessingTime time.Duration,
) *DocumentService {
	if maxProcessingTime <= 0 {
		maxProcessingTime = 25 * time.Second
	}
	return &DocumentService{
		repo:              repo,
		store:             store,
		transformer:       transformer,
		signer:            signer,
		maxProcessingTime: maxProcessingTime,
		now:               time.Now,
	}
}

// Upload stores an uploaded file, extracts its text, and persists the
// document record. Extraction runs under the processing budget: if either
// the extraction or the metadata stage overruns it, the document is saved
// as partially_processed with whatever was produced so far.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - in: file content and metadata.
// Returns:
//   - *domain.Document: persisted record with final status.
//   - error: non-nil only if storage or the database fails.
func (s *DocumentService) Upload(ctx context.Context, userID uint, in *UploadInput) (*domain.Document, error) {
	start := s.now()

	title := in.Title
	if title == "" {
		title = in.Filename
	}
	docType := in.DocType
	if docType == "" {
		docType = domain.DocTypeOther
	}

	storedName := uuid.New().String() + "_" + sanitizeFilename(in.Filename)
	key := fmt.Sprintf("%d/%s", userID, storedName)

	if err := s.store.Upload(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	doc := &domain.Document{
		UserID:           userID,
		Title:            title,
		Description:      in.Description,
		DocType:          docType,
		Tag:              in.Tag,
		Status:           domain.DocumentStatusUploaded,
		OriginalFilename: in.Filename,
		FilePath:         key,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.processContent(ctx, doc, in, start)

	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document record: %w", err)
	}
	return doc, nil
}

// processContent extracts text and metadata in two budget-checked stages,
// mutating the document's content, analysis, and status in place.
func (s *DocumentService) processContent(ctx context.Context, doc *domain.Document, in *UploadInput, start time.Time) {
	res, err := extract.Extract(in.Filename, in.Data)
	if err != nil {
		// A document whose file cannot be parsed keeps the error as its
		// text so the record stays inspectable.
		doc.TextContent = "Error extracting text: " + err.Error()
		doc.Status = domain.DocumentStatusError
		doc.AIAnalysis = domain.JSONMap{"error": err.Error()}
		logger.CtxError(ctx, "text extraction failed", err, logger.Fields{
			logger.FieldDocumentID: doc.ID,
		})
		return
	}
	doc.TextContent = res.Text

	elapsed := s.now().Sub(start)
	if elapsed > s.maxProcessingTime {
		doc.Status = domain.DocumentStatusPartiallyProcessed
		doc.AIAnalysis = domain.JSONMap{
			"warning":                 "Processing exceeded time limit",
			"partial_processing":      true,
			"processing_stage":        "text_extraction_completed",
			"processing_time_seconds": elapsed.Seconds(),
		}
		logger.CtxWarn(ctx, "document processing timeout after extraction", logger.Fields{
			logger.FieldDocumentID: doc.ID,
			logger.FieldDurationMs: elapsed.Milliseconds(),
		})
		return
	}

	analysis := domain.JSONMap{"format": res.Format}
	for k, v := range res.Metadata {
		analysis[k] = v
	}
	if res.Structure != nil {
		analysis["structure"] = res.Structure
	}

	elapsed = s.now().Sub(start)
	if elapsed > s.maxProcessingTime {
		analysis["warning"] = "Processing exceeded time limit"
		analysis["partial_processing"] = true
		analysis["processing_stage"] = "metadata_extraction_completed"
		analysis["processing_time_seconds"] = elapsed.Seconds()
		doc.Status = domain.DocumentStatusPartiallyProcessed
		doc.AIAnalysis = analysis
		logger.CtxWarn(ctx, "document processing timeout after metadata", logger.Fields{
			logger.FieldDocumentID: doc.ID,
			logger.FieldDurationMs: elapsed.Milliseconds(),
		})
		return
	}

	doc.AIAnalysis = analysis
	doc.Status = domain.DocumentStatusProcessed
}

// Get returns one document owned by the user.
func (s *DocumentService) Get(ctx context.Context, id, userID uint) (*domain.Document, error) {
	return s.repo.GetByID(ctx, id, userID)
}

// List returns the user's documents, optionally filtered by tag.
func (s *DocumentService) List(ctx context.Context, userID uint, tag string) ([]domain.Document, error) {
	return s.repo.ListByUser(ctx, userID, tag)
}

// Delete removes a document record and its stored file.
func (s *DocumentService) Delete(ctx context.Context, id, userID uint) error {
	doc, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if doc.FilePath != "" {
		if err := s.store.Delete(ctx, doc.FilePath); err != nil {
			logger.CtxWarn(ctx, "failed to delete stored file", logger.Fields{
				logger.FieldDocumentID: id,
				logger.FieldError:      err.Error(),
			})
		}
	}
	return s.repo.Delete(ctx, id, userID)
}

// TransformWithTemplates transforms a document using an input/output
// template pair, under the synchronous processing budget.
//
// Two time checkpoints guard the request. Before the model call, a
// non-deposition request that already spent a fifth of the budget on
// preparation is rejected with retry_required rather than started.
// After the model call, an overrun is reported as a timeout warning but
// the content is still returned; depositions get double the budget and
// are never flagged.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID; all three documents must belong to them.
//   - documentID: document to transform.
//   - templateInputID: template resembling the document's format.
//   - templateOutputID: template showing the desired output format.
// Returns:
//   - *TransformOutcome: result envelope; Status distinguishes success
//     from retry_required.
//   - error: non-nil for lookup or validation failures.
func (s *DocumentService) TransformWithTemplates(ctx context.Context, userID, documentID, templateInputID, templateOutputID uint) (*TransformOutcome, error) {
	return s.transformDocuments(ctx, userID, documentID, templateInputID, templateOutputID, true, time.Hour)
}

// TransformForJob is the asynchronous variant used by the queue worker.
// The worker has no platform timeout behind it, so the budget checkpoints
// are skipped and the download link lives for a day.
// Parameters and returns match TransformWithTemplates.
func (s *DocumentService) TransformForJob(ctx context.Context, userID, documentID, templateInputID, templateOutputID uint) (*TransformOutcome, error) {
	return s.transformDocuments(ctx, userID, documentID, templateInputID, templateOutputID, false, 24*time.Hour)
}

func (s *DocumentService) transformDocuments(ctx context.Context, userID, documentID, templateInputID, templateOutputID uint, enforceBudget bool, linkTTL time.Duration) (*TransformOutcome, error) {
	start := s.now()

	doc, err := s.repo.GetByID(ctx, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", documentID, err)
	}
	tmplIn, err := s.repo.GetByID(ctx, templateInputID, userID)
	if err != nil {
		return nil, fmt.Errorf("input template %d: %w", templateInputID, err)
	}
	tmplOut, err := s.repo.GetByID(ctx, templateOutputID, userID)
	if err != nil {
		return nil, fmt.Errorf("output template %d: %w", templateOutputID, err)
	}

	if !tmplIn.IsTemplate() {
		return nil, fmt.Errorf("input template %d: %w", templateInputID, ErrNotTemplate)
	}
	if !tmplOut.IsTemplate() {
		return nil, fmt.Errorf("output template %d: %w", templateOutputID, ErrNotTemplate)
	}

	logger.CtxInfo(ctx, "starting document transformation", logger.Fields{
		logger.FieldDocumentID: doc.ID,
		logger.FieldDocType:    string(doc.DocType),
		"template_input_id":    tmplIn.ID,
		"template_output_id":   tmplOut.ID,
	})

	// Checkpoint 1: if preparation alone ate into the budget, a
	// synchronous attempt cannot finish in time.
	elapsed := s.now().Sub(start)
	if enforceBudget && doc.DocType != domain.DocTypeDeposition && elapsed > s.maxProcessingTime/5 {
		logger.CtxWarn(ctx, "transformation preparation exceeded budget", logger.Fields{
			logger.FieldDocumentID: doc.ID,
			logger.FieldDurationMs: elapsed.Milliseconds(),
		})
		return &TransformOutcome{
			Status:        StatusRetryRequired,
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Message:       "Document is too complex for synchronous processing. Try with a smaller document or contact support.",
			Error:         "Processing time limit exceeded during preparation",
			Timestamp:     s.now(),
		}, nil
	}

	req := &domain.TransformationRequest{
		Document: domain.DocumentContent{
			Text:   doc.TextContent,
			Format: doc.Format(),
			Title:  doc.Title,
		},
		TemplateInput: domain.DocumentContent{
			Text:   tmplIn.TextContent,
			Format: tmplIn.Format(),
			Title:  tmplIn.Title,
		},
		TemplateOutput: domain.DocumentContent{
			Text:   tmplOut.TextContent,
			Format: tmplOut.Format(),
			Title:  tmplOut.Title,
		},
		DocumentType: doc.DocType,
	}

	outcome := &TransformOutcome{
		Status:              StatusSuccess,
		DocumentID:          doc.ID,
		DocumentTitle:       doc.Title,
		TemplateInputID:     tmplIn.ID,
		TemplateInputTitle:  tmplIn.Title,
		TemplateOutputID:    tmplOut.ID,
		TemplateOutputTitle: tmplOut.Title,
		Formats: map[string]string{
			"document":        req.Document.Format,
			"template_input":  req.TemplateInput.Format,
			"template_output": req.TemplateOutput.Format,
		},
		Message:   "Document transformation completed",
		Timestamp: s.now(),
	}

	result, err := s.transformer.Transform(ctx, req)
	if err != nil {
		// The transformation result still goes back to the caller, as a
		// plain-text explanation instead of a hard failure.
		logger.CtxError(ctx, "transformation failed", err, logger.Fields{
			logger.FieldDocumentID: doc.ID,
		})
		outcome.FileType = "txt"
		outcome.TransformedContent = fmt.Sprintf(
			"API transformation error: %s\n\nInput Document: %s\nInput Template: %s\nOutput Template: %s\n\nPlease check that the API key is properly configured.",
			err.Error(), doc.Title, tmplIn.Title, tmplOut.Title,
		)
		outcome.ParseError = err.Error()
		outcome.Formats["output"] = ".txt"
		return outcome, nil
	}

	outcome.FileType = result.FileType
	outcome.TransformedContent = result.Content
	outcome.TruncationInfo = result.TruncationInfo
	outcome.ChunkingInfo = result.ChunkingInfo
	outcome.ParseError = result.ParseError
	outcome.Formats["output"] = "." + result.FileType

	// Checkpoint 2: depositions are allowed double the budget; an overrun
	// elsewhere is flagged but the content is kept.
	elapsed = s.now().Sub(start)
	timeoutReached := false
	if enforceBudget {
		if doc.DocType == domain.DocTypeDeposition {
			if elapsed > 2*s.maxProcessingTime {
				logger.CtxWarn(ctx, "deposition transformation ran long", logger.Fields{
					logger.FieldDocumentID: doc.ID,
					logger.FieldDurationMs: elapsed.Milliseconds(),
				})
			}
		} else if elapsed > s.maxProcessingTime {
			timeoutReached = true
		}
	}

	if timeoutReached {
		outcome.TransformedContent += timeoutContentWarning
		outcome.TimeoutWarning = timeoutResultWarning
		logger.CtxWarn(ctx, "transformation exceeded processing budget", logger.Fields{
			logger.FieldDocumentID: doc.ID,
			logger.FieldDurationMs: elapsed.Milliseconds(),
		})
	}

	s.saveArtifact(ctx, userID, doc.Title, linkTTL, outcome)

	logger.CtxInfo(ctx, "document transformation completed", logger.Fields{
		logger.FieldDocumentID: doc.ID,
		logger.FieldDurationMs: s.now().Sub(start).Milliseconds(),
		logger.FieldStatus:     outcome.Status,
	})
	return outcome, nil
}

// saveArtifact persists the transformed content and attaches a signed
// download path to the outcome. A storage failure only drops the download
// link, never the content.
func (s *DocumentService) saveArtifact(ctx context.Context, userID uint, title string, linkTTL time.Duration, outcome *TransformOutcome) {
	filename := fmt.Sprintf("%s_%s_transformed.%s",
		s.now().Format("20060102_150405"),
		sanitizeFilename(title),
		outcome.FileType,
	)
	key := fmt.Sprintf("%d/%s", userID, filename)

	data := []byte(outcome.TransformedContent)
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "text/plain; charset=utf-8"); err != nil {
		logger.CtxError(ctx, "failed to save transformed file", err, logger.Fields{
			"key": key,
		})
		return
	}

	expires := s.now().Add(linkTTL).Unix()
	token := s.signer.Sign(filename, userID, expires)

	outcome.TransformedFileName = filename
	outcome.TransformedFilePath = key
	outcome.DownloadPath = fmt.Sprintf("/api/v1/documents/downloads/%s?token=%s&expires=%d&user_id=%d",
		filename, token, expires, userID)
}

// OpenDownload verifies a signed download request and opens the artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filename: artifact filename from the URL path.
//   - userID: user ID from the query string.
//   - token: HMAC token from the query string.
//   - expires: expiry timestamp from the query string.
// Returns:
//   - io.ReadCloser: artifact content stream.
//   - error: ErrInvalidDownloadToken for bad tokens, storage errors otherwise.
func (s *DocumentService) OpenDownload(ctx context.Context, filename string, userID uint, token string, expires int64) (io.ReadCloser, error) {
	if path.Base(filename) != filename {
		return nil, ErrInvalidDownloadToken
	}
	if !s.signer.Verify(token, filename, userID, expires) {
		return nil, ErrInvalidDownloadToken
	}
	key := fmt.Sprintf("%d/%s", userID, filename)
	return s.store.Download(ctx, key)
}

// sanitizeFilename replaces characters outside [A-Za-z0-9_.-] so titles
// are safe to use in object keys and URLs.
func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

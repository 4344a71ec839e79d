package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/marcus/docmorph/internal/domain"
)

var errNotFound = errors.New("record not found")

// fakeStore is an in-memory DocumentStore.
type fakeStore struct {
	docs   map[uint]*domain.Document
	nextID uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[uint]*domain.Document{}, nextID: 1}
}

func (f *fakeStore) Create(_ context.Context, doc *domain.Document) error {
	doc.ID = f.nextID
	f.nextID++
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeStore) Update(_ context.Context, doc *domain.Document) error {
	if _, ok := f.docs[doc.ID]; !ok {
		return errNotFound
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id, userID uint) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.UserID != userID {
		return nil, errNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uint, tag string) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.UserID == userID && (tag == "" || doc.Tag == tag) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, id, userID uint) error {
	doc, ok := f.docs[id]
	if !ok || doc.UserID != userID {
		return errNotFound
	}
	delete(f.docs, id)
	return nil
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// stepClock returns queued times in order, repeating the last one once
// the queue is exhausted.
type stepClock struct {
	times []time.Time
	i     int
}

func (c *stepClock) Now() time.Time {
	if c.i < len(c.times) {
		t := c.times[c.i]
		c.i++
		return t
	}
	return c.times[len(c.times)-1]
}

func newTestService(completer Completer, clock *stepClock) (*DocumentService, *fakeStore, *memStorage) {
	store := newFakeStore()
	objects := newMemStorage()
	svc := NewDocumentService(store, objects, NewTransformService(completer), NewDownloadSigner("test-secret"), 25*time.Second)
	if clock != nil {
		svc.now = clock.Now
	}
	return svc, store, objects
}

func seedDoc(t *testing.T, store *fakeStore, userID uint, title, tag string, docType domain.DocumentType, text string) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		UserID:           userID,
		Title:            title,
		Tag:              tag,
		DocType:          docType,
		Status:           domain.DocumentStatusProcessed,
		OriginalFilename: title + ".txt",
		TextContent:      text,
	}
	if err := store.Create(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestUploadExtractsAndPersists(t *testing.T) {
	svc, store, objects := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)

	doc, err := svc.Upload(context.Background(), 7, &UploadInput{
		Filename: "notes.txt",
		Data:     []byte("deposition notes"),
		Title:    "Notes",
		DocType:  domain.DocTypeOther,
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if doc.Status != domain.DocumentStatusProcessed {
		t.Errorf("status = %s, want processed", doc.Status)
	}
	if doc.TextContent != "deposition notes" {
		t.Errorf("text content = %q", doc.TextContent)
	}
	if !strings.HasPrefix(doc.FilePath, "7/") || !strings.HasSuffix(doc.FilePath, "_notes.txt") {
		t.Errorf("file path = %q", doc.FilePath)
	}
	if len(objects.objects) != 1 {
		t.Errorf("expected 1 stored object, got %d", len(objects.objects))
	}
	persisted, err := store.GetByID(context.Background(), doc.ID, 7)
	if err != nil {
		t.Fatalf("persisted record missing: %v", err)
	}
	if persisted.Status != domain.DocumentStatusProcessed {
		t.Errorf("persisted status = %s", persisted.Status)
	}
}

func TestUploadRecordsStructureAnalysis(t *testing.T) {
	svc, _, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)

	doc, err := svc.Upload(context.Background(), 7, &UploadInput{
		Filename: "rentroll.csv",
		Data:     []byte("unit,rent\n4B,1200\n5A,1350\n"),
		Title:    "Rent Roll",
		DocType:  domain.DocTypeRealEstate,
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	structure, ok := doc.AIAnalysis["structure"].(map[string]interface{})
	if !ok {
		t.Fatalf("structure analysis missing: %v", doc.AIAnalysis)
	}
	if structure["file_type"] != "csv" {
		t.Errorf("file_type = %v", structure["file_type"])
	}
	if structure["row_count"] != 3 {
		t.Errorf("row_count = %v, want 3", structure["row_count"])
	}
	if structure["column_count"] != 2 {
		t.Errorf("column_count = %v, want 2", structure["column_count"])
	}
}

func TestUploadTimeoutAfterExtraction(t *testing.T) {
	t0 := time.Now()
	clock := &stepClock{times: []time.Time{t0, t0.Add(30 * time.Second)}}
	svc, _, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, clock)

	doc, err := svc.Upload(context.Background(), 1, &UploadInput{
		Filename: "big.txt",
		Data:     []byte("content"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if doc.Status != domain.DocumentStatusPartiallyProcessed {
		t.Errorf("status = %s, want partially_processed", doc.Status)
	}
	if doc.AIAnalysis["processing_stage"] != "text_extraction_completed" {
		t.Errorf("processing stage = %v", doc.AIAnalysis["processing_stage"])
	}
	if doc.TextContent != "content" {
		t.Error("extracted text must be kept on timeout")
	}
}

func TestUploadTimeoutAfterMetadata(t *testing.T) {
	t0 := time.Now()
	clock := &stepClock{times: []time.Time{t0, t0.Add(time.Second), t0.Add(30 * time.Second)}}
	svc, _, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, clock)

	doc, err := svc.Upload(context.Background(), 1, &UploadInput{
		Filename: "big.txt",
		Data:     []byte("content"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if doc.Status != domain.DocumentStatusPartiallyProcessed {
		t.Errorf("status = %s, want partially_processed", doc.Status)
	}
	if doc.AIAnalysis["processing_stage"] != "metadata_extraction_completed" {
		t.Errorf("processing stage = %v", doc.AIAnalysis["processing_stage"])
	}
}

func TestUploadExtractionFailureKeepsRecord(t *testing.T) {
	svc, _, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)

	doc, err := svc.Upload(context.Background(), 1, &UploadInput{
		Filename: "broken.pdf",
		Data:     []byte("%PDF-not really a pdf"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if doc.Status != domain.DocumentStatusError {
		t.Errorf("status = %s, want error", doc.Status)
	}
	if !strings.HasPrefix(doc.TextContent, "Error extracting text:") {
		t.Errorf("text content = %q", doc.TextContent)
	}
}

func TestTransformRetryRequiredWhenPreparationSlow(t *testing.T) {
	t0 := time.Now()
	// 6s of preparation exceeds a fifth of the 25s budget.
	clock := &stepClock{times: []time.Time{t0, t0.Add(6 * time.Second)}}
	completer := &fakeCompleter{fn: okResult("txt", "x")}
	svc, store, _ := newTestService(completer, clock)

	doc := seedDoc(t, store, 1, "Doc", "", domain.DocTypeLegal, "body")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("TransformWithTemplates returned error: %v", err)
	}
	if outcome.Status != StatusRetryRequired {
		t.Errorf("status = %s, want retry_required", outcome.Status)
	}
	if len(completer.calls) != 0 {
		t.Error("model must not be called once retry_required is decided")
	}
}

func TestTransformDepositionSkipsPreparationCheckpoint(t *testing.T) {
	t0 := time.Now()
	clock := &stepClock{times: []time.Time{t0, t0.Add(6 * time.Second)}}
	completer := &fakeCompleter{fn: okResult("csv", ",1/1,2/2,Fact")}
	svc, store, _ := newTestService(completer, clock)

	doc := seedDoc(t, store, 1, "Depo", "", domain.DocTypeDeposition, "transcript")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("TransformWithTemplates returned error: %v", err)
	}
	if outcome.Status != StatusSuccess {
		t.Errorf("status = %s, want success", outcome.Status)
	}
	if len(completer.calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(completer.calls))
	}
}

func TestTransformTimeoutWarningAppended(t *testing.T) {
	t0 := time.Now()
	// Preparation fast, model call pushes total past the 25s budget.
	clock := &stepClock{times: []time.Time{t0, t0.Add(time.Second), t0.Add(time.Second), t0.Add(30 * time.Second)}}
	svc, store, _ := newTestService(&fakeCompleter{fn: okResult("txt", "result body")}, clock)

	doc := seedDoc(t, store, 1, "Doc", "", domain.DocTypeLegal, "body")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("TransformWithTemplates returned error: %v", err)
	}
	if outcome.TimeoutWarning == "" {
		t.Error("timeout warning missing")
	}
	if !strings.Contains(outcome.TransformedContent, "[WARNING: This transformation exceeded the processing time limit") {
		t.Errorf("content warning missing: %q", outcome.TransformedContent)
	}
}

func TestTransformDepositionToleratesOverrun(t *testing.T) {
	t0 := time.Now()
	// 30s is over the base budget but inside the doubled deposition budget.
	clock := &stepClock{times: []time.Time{t0, t0.Add(time.Second), t0.Add(time.Second), t0.Add(30 * time.Second)}}
	svc, store, _ := newTestService(&fakeCompleter{fn: okResult("csv", ",1/1,2/2,Fact")}, clock)

	doc := seedDoc(t, store, 1, "Depo", "", domain.DocTypeDeposition, "transcript")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("TransformWithTemplates returned error: %v", err)
	}
	if outcome.TimeoutWarning != "" {
		t.Error("deposition within doubled budget must not be flagged")
	}
	if strings.Contains(outcome.TransformedContent, "[WARNING") {
		t.Error("deposition CSV must stay clean")
	}
}

func TestTransformRequiresTemplateTag(t *testing.T) {
	svc, store, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)

	doc := seedDoc(t, store, 1, "Doc", "", domain.DocTypeLegal, "body")
	in := seedDoc(t, store, 1, "In", "", domain.DocTypeOther, "in") // not a template
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	_, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if !errors.Is(err, ErrNotTemplate) {
		t.Errorf("err = %v, want ErrNotTemplate", err)
	}
}

func TestTransformScopedToUser(t *testing.T) {
	svc, store, _ := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)

	doc := seedDoc(t, store, 2, "Doc", "", domain.DocTypeLegal, "body")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	if _, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID); err == nil {
		t.Error("another user's document must not be reachable")
	}
}

func TestTransformSavesArtifactWithSignedDownload(t *testing.T) {
	svc, store, objects := newTestService(&fakeCompleter{fn: okResult("csv", "a,b\n1,2")}, nil)

	doc := seedDoc(t, store, 9, "Quarterly Report", "", domain.DocTypeOther, "body")
	in := seedDoc(t, store, 9, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 9, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 9, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("TransformWithTemplates returned error: %v", err)
	}

	if outcome.TransformedFileName == "" || !strings.HasSuffix(outcome.TransformedFileName, "_transformed.csv") {
		t.Errorf("file name = %q", outcome.TransformedFileName)
	}
	if !strings.Contains(outcome.TransformedFileName, "Quarterly_Report") {
		t.Errorf("title not sanitized into file name: %q", outcome.TransformedFileName)
	}
	if _, ok := objects.objects[outcome.TransformedFilePath]; !ok {
		t.Fatalf("artifact not stored at %q", outcome.TransformedFilePath)
	}

	u, err := url.Parse(outcome.DownloadPath)
	if err != nil {
		t.Fatalf("download path does not parse: %v", err)
	}
	q := u.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("expires does not parse: %v", err)
	}

	rc, err := svc.OpenDownload(context.Background(), outcome.TransformedFileName, 9, q.Get("token"), expires)
	if err != nil {
		t.Fatalf("OpenDownload rejected a fresh link: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "a,b\n1,2" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestOpenDownloadRejectsBadRequests(t *testing.T) {
	svc, _, objects := newTestService(&fakeCompleter{fn: okResult("txt", "x")}, nil)
	objects.objects["1/file.csv"] = []byte("data")

	expires := time.Now().Add(time.Hour).Unix()
	good := NewDownloadSigner("test-secret").Sign("file.csv", 1, expires)

	if _, err := svc.OpenDownload(context.Background(), "file.csv", 1, "bogus", expires); !errors.Is(err, ErrInvalidDownloadToken) {
		t.Errorf("forged token: err = %v", err)
	}
	if _, err := svc.OpenDownload(context.Background(), "../file.csv", 1, good, expires); !errors.Is(err, ErrInvalidDownloadToken) {
		t.Errorf("path traversal: err = %v", err)
	}
	if _, err := svc.OpenDownload(context.Background(), "file.csv", 1, good, expires); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestTransformAPIFailureReturnsExplanation(t *testing.T) {
	completer := &fakeCompleter{fn: func(int, string, string) (*domain.TransformationResult, error) {
		return nil, errors.New("HTTP 401: invalid api key")
	}}
	svc, store, _ := newTestService(completer, nil)

	doc := seedDoc(t, store, 1, "Doc", "", domain.DocTypeLegal, "body")
	in := seedDoc(t, store, 1, "In", domain.TagTemplate, domain.DocTypeOther, "in")
	out := seedDoc(t, store, 1, "Out", domain.TagTemplate, domain.DocTypeOther, "out")

	outcome, err := svc.TransformWithTemplates(context.Background(), 1, doc.ID, in.ID, out.ID)
	if err != nil {
		t.Fatalf("API failure must not surface as a hard error: %v", err)
	}
	if outcome.FileType != "txt" || !strings.Contains(outcome.TransformedContent, "API transformation error") {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.DownloadPath != "" {
		t.Error("failed transformation must not produce a download link")
	}
}

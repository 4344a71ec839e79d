package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/marcus/docmorph/internal/domain"
	"github.com/marcus/docmorph/internal/prompts"
)

// fakeCompleter records every call and answers via a user-supplied function.
type fakeCompleter struct {
	fn    func(call int, system, user string) (*domain.TransformationResult, error)
	calls []struct{ system, user string }
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (*domain.TransformationResult, error) {
	f.calls = append(f.calls, struct{ system, user string }{system, user})
	return f.fn(len(f.calls), system, user)
}

func okResult(fileType, content string) func(int, string, string) (*domain.TransformationResult, error) {
	return func(int, string, string) (*domain.TransformationResult, error) {
		return &domain.TransformationResult{FileType: fileType, Content: content}, nil
	}
}

func smallRequest(docType domain.DocumentType, docText string) *domain.TransformationRequest {
	return &domain.TransformationRequest{
		Document:       domain.DocumentContent{Text: docText, Format: "pdf", Title: "Doc"},
		TemplateInput:  domain.DocumentContent{Text: "input template", Format: "txt", Title: "In"},
		TemplateOutput: domain.DocumentContent{Text: "output template", Format: "csv", Title: "Out"},
		DocumentType:   docType,
	}
}

func TestSplitDocumentRoundTrip(t *testing.T) {
	lengths := []int{1, 4, 5, 9, 100, 1234, 150000}
	for _, n := range lengths {
		text := strings.Repeat("x", n)
		chunks := splitDocument(text, 5)
		if len(chunks) != 5 {
			t.Fatalf("len=%d: got %d chunks, want 5", n, len(chunks))
		}
		if strings.Join(chunks, "") != text {
			t.Errorf("len=%d: chunks do not reassemble to the input", n)
		}
		// All chunks but the last share the same size.
		for i := 0; i < 3; i++ {
			if len(chunks[i]) != len(chunks[i+1]) {
				t.Errorf("len=%d: chunk %d size %d != chunk %d size %d",
					n, i, len(chunks[i]), i+1, len(chunks[i+1]))
			}
		}
	}
}

func TestSplitDocumentEmpty(t *testing.T) {
	chunks := splitDocument("", 5)
	if len(chunks) != 1 || chunks[0] != "" {
		t.Errorf("empty input should produce a single empty chunk, got %q", chunks)
	}
}

func TestCombineChunkResultsCSVDropsRepeatedHeaders(t *testing.T) {
	header := ",From (Pg/Line),To (Pg/Line),Summary"
	results := []domain.ChunkResult{
		{FileType: "csv", Content: header + "\nJane Doe\n,1/1,2/5,First fact"},
		{FileType: "csv", Content: header + "\n,3/1,4/2,Second fact"},
		{FileType: "csv", Content: ",5/1,6/2,Third fact without header"},
	}

	combined := combineChunkResults(results, "csv")
	if combined.FileType != "csv" {
		t.Errorf("file type = %q", combined.FileType)
	}
	if strings.Count(combined.Content, header) != 1 {
		t.Errorf("header should appear exactly once:\n%s", combined.Content)
	}
	for _, want := range []string{"First fact", "Second fact", "Third fact without header", "Jane Doe"} {
		if !strings.Contains(combined.Content, want) {
			t.Errorf("combined output missing %q", want)
		}
	}
}

func TestCombineChunkResultsTextJoinsWithBlankLines(t *testing.T) {
	results := []domain.ChunkResult{
		{FileType: "txt", Content: "part one"},
		{FileType: "txt", Content: "part two"},
	}
	combined := combineChunkResults(results, "txt")
	if combined.Content != "part one\n\npart two" {
		t.Errorf("content = %q", combined.Content)
	}
}

func TestCombineChunkResultsFallsBackToOutputFormat(t *testing.T) {
	results := []domain.ChunkResult{{Content: "x"}}
	combined := combineChunkResults(results, ".docx")
	if combined.FileType != "docx" {
		t.Errorf("file type = %q, want docx", combined.FileType)
	}
}

func TestTransformSmallDocument(t *testing.T) {
	fake := &fakeCompleter{fn: okResult("csv", "a,b\n1,2")}
	svc := NewTransformService(fake)

	res, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, "short document"))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if res.Content != "a,b\n1,2" || res.FileType != "csv" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.calls))
	}
	if res.ChunkingInfo != nil || res.TruncationInfo != nil {
		t.Error("small document should carry no chunking or truncation metadata")
	}
	if !strings.Contains(fake.calls[0].user, "short document") {
		t.Error("user prompt should carry the document text")
	}
}

func TestTransformChunksOversizedDocument(t *testing.T) {
	fake := &fakeCompleter{fn: okResult("txt", "chunk output")}
	svc := NewTransformService(fake)

	doc := strings.Repeat("y", 150000)
	res, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, doc))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}

	if len(fake.calls) != 5 {
		t.Fatalf("expected 5 chunk calls, got %d", len(fake.calls))
	}
	for i, call := range fake.calls {
		if !strings.Contains(call.system, "split into chunks") {
			t.Errorf("chunk %d: system prompt missing chunk instructions", i+1)
		}
		if !strings.Contains(call.user, fmt.Sprintf("Part %d/5", i+1)) {
			t.Errorf("chunk %d: user prompt missing part marker", i+1)
		}
	}

	if res.ChunkingInfo == nil {
		t.Fatal("chunking info missing")
	}
	if res.ChunkingInfo.Chunks != 5 || res.ChunkingInfo.OriginalDocumentLength != 150000 {
		t.Errorf("chunking info = %+v", res.ChunkingInfo)
	}
	total := 0
	for _, sz := range res.ChunkingInfo.ChunkSizes {
		total += sz
	}
	if total != 150000 {
		t.Errorf("chunk sizes sum to %d, want 150000", total)
	}
}

func TestTransformChunkFailureProducesPlaceholder(t *testing.T) {
	fake := &fakeCompleter{fn: func(call int, _, _ string) (*domain.TransformationResult, error) {
		if call == 3 {
			return nil, errors.New("upstream unavailable")
		}
		return &domain.TransformationResult{FileType: "txt", Content: fmt.Sprintf("output %d", call)}, nil
	}}
	svc := NewTransformService(fake)

	doc := strings.Repeat("z", 60000)
	res, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, doc))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}

	if !strings.Contains(res.Content, "[Error processing part 3/5: upstream unavailable]") {
		t.Errorf("missing error placeholder:\n%s", res.Content)
	}
	if res.ChunkingInfo.ChunksWithErrors != 1 {
		t.Errorf("chunks with errors = %d, want 1", res.ChunkingInfo.ChunksWithErrors)
	}
}

func TestTransformContextLengthRetry(t *testing.T) {
	fake := &fakeCompleter{fn: func(call int, _, user string) (*domain.TransformationResult, error) {
		if call == 1 {
			return nil, errors.New("completion API returned error: HTTP 400: context_length_exceeded")
		}
		return &domain.TransformationResult{FileType: "txt", Content: "retried output"}, nil
	}}
	svc := NewTransformService(fake)

	doc := strings.Repeat("a", 40000)
	res, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, doc))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(fake.calls))
	}

	if res.TruncationInfo == nil || !res.TruncationInfo.AggressiveTruncation {
		t.Fatal("aggressive truncation info missing")
	}
	if res.TruncationInfo.OriginalDocumentLength != 40000 {
		t.Errorf("original length = %d", res.TruncationInfo.OriginalDocumentLength)
	}
	// Halved budget for non-deposition documents is 25000 characters,
	// the 40000-char document must have been cut to it.
	wantLen := 25000 + len(prompts.TruncationMarker)
	if res.TruncationInfo.ProcessedDocumentLength != wantLen {
		t.Errorf("processed length = %d, want %d", res.TruncationInfo.ProcessedDocumentLength, wantLen)
	}
	if !strings.HasSuffix(res.Content, prompts.TruncationNote) {
		t.Error("truncation note missing from content")
	}
}

func TestTransformContextLengthRetryDepositionSkipsNote(t *testing.T) {
	fake := &fakeCompleter{fn: func(call int, _, _ string) (*domain.TransformationResult, error) {
		if call == 1 {
			return nil, errors.New("maximum context length exceeded")
		}
		return &domain.TransformationResult{FileType: "csv", Content: ",1/1,2/2,Fact"}, nil
	}}
	svc := NewTransformService(fake)

	res, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeDeposition, strings.Repeat("q", 90000)))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if strings.Contains(res.Content, "[NOTE:") {
		t.Error("deposition output must stay clean CSV without the truncation note")
	}
}

func TestTransformRetryStillTooLarge(t *testing.T) {
	fake := &fakeCompleter{fn: func(int, string, string) (*domain.TransformationResult, error) {
		return nil, errors.New("context_length_exceeded")
	}}
	svc := NewTransformService(fake)

	_, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, "doc"))
	if err == nil || !strings.Contains(err.Error(), "too large to process even after truncation") {
		t.Errorf("err = %v", err)
	}
}

func TestTransformNonContextErrorPropagates(t *testing.T) {
	fake := &fakeCompleter{fn: func(int, string, string) (*domain.TransformationResult, error) {
		return nil, errors.New("HTTP 500")
	}}
	svc := NewTransformService(fake)

	_, err := svc.Transform(context.Background(), smallRequest(domain.DocTypeLegal, "doc"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Errorf("non-context errors must not be retried, got %d calls", len(fake.calls))
	}
}

func TestTransformTruncatesOversizedTemplates(t *testing.T) {
	fake := &fakeCompleter{fn: okResult("txt", "ok")}
	svc := NewTransformService(fake)

	req := smallRequest(domain.DocTypeLegal, "doc")
	req.TemplateInput.Text = strings.Repeat("t", 20000)

	if _, err := svc.Transform(context.Background(), req); err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if !strings.Contains(fake.calls[0].user, prompts.TruncationMarker) {
		t.Error("oversized template should be truncated in the prompt")
	}
}

func TestParseTransformation(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantFileType string
		wantContent  string
		wantParseErr bool
	}{
		{"valid json", `{"file_type":"csv","content":"a,b"}`, "csv", "a,b", false},
		{"missing file_type", `{"content":"body"}`, "txt", "body", false},
		{"missing content", `{"file_type":"csv"}`, "csv", `{"file_type":"csv"}`, false},
		{"invalid json", "plain text reply", "txt", "plain text reply", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTransformation(tt.raw)
			if got.FileType != tt.wantFileType {
				t.Errorf("file type = %q, want %q", got.FileType, tt.wantFileType)
			}
			if got.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", got.Content, tt.wantContent)
			}
			if (got.ParseError != "") != tt.wantParseErr {
				t.Errorf("parse error = %q", got.ParseError)
			}
		})
	}
}

func TestIsContextLengthExceeded(t *testing.T) {
	if !IsContextLengthExceeded(errors.New("code: context_length_exceeded")) {
		t.Error("code form not detected")
	}
	if !IsContextLengthExceeded(errors.New("this model's maximum context length is 128000 tokens")) {
		t.Error("message form not detected")
	}
	if IsContextLengthExceeded(errors.New("rate limited")) {
		t.Error("unrelated error misclassified")
	}
	if IsContextLengthExceeded(nil) {
		t.Error("nil error misclassified")
	}
}

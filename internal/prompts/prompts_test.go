package prompts

import (
	"strings"
	"testing"

	"github.com/marcus/docmorph/internal/domain"
)

func TestBudgetsFor(t *testing.T) {
	tests := []struct {
		name    string
		docType domain.DocumentType
		wantDoc int
		wantTpl int
	}{
		{"deposition gets larger document budget", domain.DocTypeDeposition, 100000, 5000},
		{"legal uses default", domain.DocTypeLegal, 50000, 10000},
		{"other uses default", domain.DocTypeOther, 50000, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BudgetsFor(tt.docType)
			if b.MaxDocumentChars != tt.wantDoc || b.MaxTemplateChars != tt.wantTpl {
				t.Errorf("BudgetsFor(%s) = %+v, want doc=%d tpl=%d",
					tt.docType, b, tt.wantDoc, tt.wantTpl)
			}
		})
	}
}

func TestBudgetsHalved(t *testing.T) {
	b := BudgetsFor(domain.DocTypeDeposition).Halved()
	if b.MaxDocumentChars != 50000 || b.MaxTemplateChars != 2500 {
		t.Errorf("Halved() = %+v", b)
	}
}

func TestTruncate(t *testing.T) {
	content := strings.Repeat("a", 100)

	got, cut := Truncate(content, 100)
	if cut || got != content {
		t.Errorf("content at budget should pass through unchanged")
	}

	got, cut = Truncate(content, 40)
	if !cut {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 40)) {
		t.Errorf("truncated prefix wrong: %q", got[:50])
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Errorf("missing truncation marker: %q", got)
	}
}

func TestSystemPromptContainsFormatsAndType(t *testing.T) {
	p := SystemPrompt("pdf", "docx", "csv", domain.DocTypeLegal)

	for _, want := range []string{
		"input document is in pdf format",
		"input template is in docx format",
		"output template is in csv format",
		"document type is: legal",
		`"file_type": "csv"`,
		"valid JSON object",
		"legal terminology",
	} {
		if !strings.Contains(strings.ToLower(p), strings.ToLower(want)) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPromptDepositionGrammar(t *testing.T) {
	p := SystemPrompt("pdf", "csv", "csv", domain.DocTypeDeposition)

	for _, want := range []string{
		"From (Pg/Line)",
		"To (Pg/Line)",
		"Witness Name",
		"Do NOT include ANY commas",
		"Preserve original appearance order",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("deposition prompt missing %q", want)
		}
	}
}

func TestSystemPromptUnknownTypeFallsBack(t *testing.T) {
	p := SystemPrompt("txt", "txt", "txt", domain.DocumentType("mystery"))
	if !strings.Contains(p, "main purpose and key points") {
		t.Error("unknown type should use the generic instruction block")
	}
}

func TestUserPromptBlocks(t *testing.T) {
	p := UserPrompt(
		domain.DocumentContent{Text: "doc body", Title: "Deed"},
		domain.DocumentContent{Text: "in tmpl"},
		domain.DocumentContent{Text: "out tmpl", Title: "Summary Form"},
	)

	if !strings.Contains(p, "# INPUT DOCUMENT (Deed):") {
		t.Error("document block should carry its title")
	}
	if !strings.Contains(p, "# INPUT TEMPLATE:") {
		t.Error("untitled template block should have no parenthetical")
	}
	if !strings.Contains(p, "# OUTPUT TEMPLATE (Summary Form):") {
		t.Error("output template block should carry its title")
	}
	if strings.Count(p, "```") != 6 {
		t.Errorf("expected 3 fenced blocks, got %d fence markers", strings.Count(p, "```"))
	}
}

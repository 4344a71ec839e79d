// Package prompts builds the system and user prompts for document
// transformation, and owns the character budgets that keep prompts inside
// the model's context window.
package prompts

import (
	"fmt"
	"strings"

	"github.com/marcus/docmorph/internal/domain"
)

// TruncationMarker is appended to any content cut to fit its budget.
const TruncationMarker = "\n...[content truncated]"

// TruncationNote is appended to transformed output produced after an
// aggressive-truncation retry, so the reader knows content was dropped.
const TruncationNote = "\n\n[NOTE: Content was significantly truncated due to token limits. " +
	"The transformation is based on a partial version of the original document.]"

// ChunkSystemSuffix extends the system prompt when a document is processed
// in parts.
const ChunkSystemSuffix = "\n\nIMPORTANT: You are processing part of a document that has been " +
	"split into chunks. Focus only on transforming this chunk according to the template formats."

// Budgets caps the characters of document and template content included in
// a prompt. The model has roughly a 128K-token context window.
type Budgets struct {
	MaxDocumentChars int
	MaxTemplateChars int
}

// BudgetsFor returns the character budgets for a document type. Depositions
// get a larger document budget because summaries need the full transcript,
// traded against a smaller template budget.
func BudgetsFor(docType domain.DocumentType) Budgets {
	if docType == domain.DocTypeDeposition {
		return Budgets{MaxDocumentChars: 100000, MaxTemplateChars: 5000}
	}
	return Budgets{MaxDocumentChars: 50000, MaxTemplateChars: 10000}
}

// Halved returns the budgets cut in half, for the retry after a
// context-length failure.
func (b Budgets) Halved() Budgets {
	return Budgets{
		MaxDocumentChars: b.MaxDocumentChars / 2,
		MaxTemplateChars: b.MaxTemplateChars / 2,
	}
}

// Truncate cuts content to at most max characters, appending the truncation
// marker when anything was removed.
// Parameters:
//   - content: text to cut.
//   - max: character budget.
// Returns:
//   - string: possibly truncated content.
//   - bool: true if content was truncated.
func Truncate(content string, max int) (string, bool) {
	if len(content) <= max {
		return content, false
	}
	return content[:max] + TruncationMarker, true
}

// SystemPrompt builds the system prompt for a transformation request.
// Parameters:
//   - docFormat: file extension of the input document.
//   - tmplInFormat: file extension of the input template.
//   - tmplOutFormat: file extension of the output template, which is also
//     the expected file_type of the result.
//   - docType: document type selecting the specialized instruction block.
// Returns:
//   - string: complete system prompt.
func SystemPrompt(docFormat, tmplInFormat, tmplOutFormat string, docType domain.DocumentType) string {
	var sb strings.Builder

	sb.WriteString("You are an expert document transformation assistant that helps convert documents " +
		"from one format to another based on template examples.\n\n" +
		"You will be provided with three documents:\n" +
		"1. INPUT DOCUMENT: The document that needs to be transformed\n" +
		"2. INPUT TEMPLATE: A template example in a similar format to the input document\n" +
		"3. OUTPUT TEMPLATE: A template showing the desired output format\n\n")
	fmt.Fprintf(&sb, "The input document is in %s format.\n", docFormat)
	fmt.Fprintf(&sb, "The input template is in %s format.\n", tmplInFormat)
	fmt.Fprintf(&sb, "The output template is in %s format.\n", tmplOutFormat)
	fmt.Fprintf(&sb, "The document type is: %s\n\n", docType)

	sb.WriteString(typeInstructions(docType))

	sb.WriteString("Your task is to recognize the structure and format of both the input document and input template, " +
		"understand how they relate to each other, and then transform the input document to match " +
		"the format of the output template. Preserve all relevant information from the input document " +
		"while organizing it according to the output template structure.\n\n" +
		"You MUST return a valid JSON object with the following structure:\n" +
		"{\n")
	fmt.Fprintf(&sb, "  \"file_type\": %q,\n", tmplOutFormat)
	sb.WriteString("  \"content\": \"The transformed document content\"\n" +
		"}\n\n")
	fmt.Fprintf(&sb, "The 'file_type' should be '%s' (without the dot).\n", tmplOutFormat)
	fmt.Fprintf(&sb, "The 'content' should contain the transformed document in %s format.\n\n", tmplOutFormat)
	sb.WriteString("Important: Your entire response must be a single, valid JSON object that can be parsed. " +
		"Do not include any explanations, comments, or text outside of the JSON object.")

	return sb.String()
}

// typeInstructions returns the instruction block for the document type,
// defaulting to the generic block.
func typeInstructions(docType domain.DocumentType) string {
	switch docType {
	case domain.DocTypeLegal:
		return "As you're working with a legal document, pay special attention to:\n" +
			"- Legal terminology and phrasing\n" +
			"- Citation formats and references to statutes, cases, or regulations\n" +
			"- Formal document structure including sections, clauses and numbered paragraphs\n" +
			"- Dates, parties, and defined terms which should be preserved exactly\n" +
			"- Any disclaimers or warnings that should be maintained\n\n"
	case domain.DocTypeRealEstate:
		return "As you're working with a real estate document, pay special attention to:\n" +
			"- Property descriptions and addresses\n" +
			"- Financial figures, prices, and payment terms\n" +
			"- Dates of transactions, inspections, and closings\n" +
			"- Party names and their roles (buyer, seller, agent, etc.)\n" +
			"- Any contingencies or conditions mentioned\n\n"
	case domain.DocTypeContract:
		return "As you're working with a contract, pay special attention to:\n" +
			"- Parties to the agreement and their obligations\n" +
			"- Terms and conditions, especially regarding payment and deliverables\n" +
			"- Timeframes, deadlines, and effective dates\n" +
			"- Warranties, representations, and indemnities\n" +
			"- Termination clauses and dispute resolution procedures\n\n"
	case domain.DocTypeLease:
		return "As you're working with a lease agreement, pay special attention to:\n" +
			"- Tenant and landlord information\n" +
			"- Property details and condition statements\n" +
			"- Lease terms, rent amounts, and payment schedules\n" +
			"- Security deposits and fees\n" +
			"- Maintenance responsibilities and terms for entry\n\n"
	case domain.DocTypeDeposition:
		return depositionInstructions
	default:
		return "Pay special attention to:\n" +
			"- The document's main purpose and key points\n" +
			"- Any structured data, tables, or lists\n" +
			"- Important dates, names, and numerical values\n" +
			"- The logical flow and organization of information\n\n"
	}
}

// depositionInstructions is the rigid output grammar for deposition
// summaries. The four-column CSV shape and the no-commas rule are what
// downstream spreadsheet imports depend on.
const depositionInstructions = `You are turning a deposition transcript (PDF text or plaintext) into a UTF-8 CSV with exactly four columns in this order: (blank), From (Pg/Line), To (Pg/Line), Summary

|        | From (Pg/Line) | To (Pg/Line) | Summary |  <- header row

STEP 1 - Fixed Metadata Rows

- Row 2, Column 1 = <Witness Name>      (all other columns must be blank)
- Row 3, Column 1 = <Depo Date>         (e.g., 28-Aug-23)
- Row 4, Column 1 = <Depo Type>         (e.g., "Video Depo")
  Extract these three values from the transcript header. Leave blank if missing.

Example:
Header shows: "REMOTE VIDEO CONFERENCE DEPOSITION OF KRISTINA WARD ENGEL - Monday, August 28, 2023"
-> Row 2 = Kristina Ward Engel
-> Row 3 = 28-Aug-23
-> Row 4 = Video Depo

STEP 2 - Fact Blocks

Starting from Row 5, each row captures a coherent fact block (a continuous section discussing a single idea).

- Column 1: Leave blank
- Column 2: First Pg/Line (e.g., 6/9)
- Column 3: Last Pg/Line (e.g., 7/2)
- Column 4: Summary
  - Must be in plain English
  - Present tense only
  - The entire summary must go in this one cell (Column 4 only)
  - Do NOT split summary across multiple rows or columns
  - Do NOT include line breaks
  - Do NOT include ANY commas - not even in addresses, lists, or numbers
    Replace commas with semicolons or rephrase the sentence

Correct:
,11/22,12/5,The board has always required buyer approval; she saw roughly four applications while she was a director

Also correct (no commas in address):
,6/9,7/2,She lives in Unit 302 of the Inlet Building and also resides part of the year in Lake Forest Illinois

Incorrect (uses commas or spans multiple lines):
,11/22,12/5,The board has always required buyer approval;
,she saw roughly four applications while she was a director

Incorrect (commas in address):
,6/9,7/2,She lives in Unit 302, Inlet Building, and also resides in Lake Forest, IL

STEP 3 - Ordering & Formatting Rules

- Preserve original appearance order
- Do NOT add or delete columns
- Do NOT use quotes or extra commas
- Do NOT include explanations or formatting notes in output

STEP 4 - Important for Large Documents

- Process the ENTIRE transcript without skipping content
- Do NOT add any truncation markers or headers
- The output must be a clean, complete CSV file - no extra notes

`

// UserPrompt builds the user prompt carrying the document and both
// templates, each in a fenced block.
// Parameters:
//   - doc: document to transform.
//   - tmplIn: input template content.
//   - tmplOut: output template content.
// Returns:
//   - string: complete user prompt.
func UserPrompt(doc, tmplIn, tmplOut domain.DocumentContent) string {
	var sb strings.Builder

	sb.WriteString("Please transform the following document to match the format of the output template.\n\n")

	writeBlock(&sb, "INPUT DOCUMENT", doc.Title, doc.Text)
	writeBlock(&sb, "INPUT TEMPLATE", tmplIn.Title, tmplIn.Text)
	writeBlock(&sb, "OUTPUT TEMPLATE", tmplOut.Title, tmplOut.Text)

	sb.WriteString("The input document and input template are similar in format. Transform the input document " +
		"to match the format of the output template. Return only the transformed content.")

	return sb.String()
}

func writeBlock(sb *strings.Builder, label, title, content string) {
	sb.WriteString("# " + label)
	if title != "" {
		fmt.Fprintf(sb, " (%s)", title)
	}
	sb.WriteString(":\n```\n")
	sb.WriteString(content)
	sb.WriteString("\n```\n\n")
}

package extract

import "regexp"

// Keyword heuristics for estimating what kind of document a text is.
var (
	contractRe = regexp.MustCompile(`(?i)\b(contract|agreement)\b`)
	invoiceRe  = regexp.MustCompile(`(?i)\b(invoice|bill|payment)\b`)
	reportRe   = regexp.MustCompile(`(?i)\b(report|analysis)\b`)
)

// EstimateType classifies document text as contract, invoice, report, or
// general by keyword occurrence.
// Parameters:
//   - text: document text to classify.
// Returns:
//   - string: estimated document kind.
func EstimateType(text string) string {
	switch {
	case contractRe.MatchString(text):
		return "contract"
	case invoiceRe.MatchString(text):
		return "invoice"
	case reportRe.MatchString(text):
		return "report"
	default:
		return "general"
	}
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DocumentStatus represents the processing status of a document record.
// Values include DocumentStatusUploaded, DocumentStatusProcessed,
// DocumentStatusPartiallyProcessed, and DocumentStatusError.
type DocumentStatus string

const (
	DocumentStatusUploaded           DocumentStatus = "uploaded"
	DocumentStatusProcessed          DocumentStatus = "processed"
	DocumentStatusPartiallyProcessed DocumentStatus = "partially_processed"
	DocumentStatusError              DocumentStatus = "error"
)

// DocumentType classifies a document for prompt selection and budget rules.
type DocumentType string

const (
	DocTypeDeposition DocumentType = "deposition"
	DocTypeLegal      DocumentType = "legal"
	DocTypeRealEstate DocumentType = "real_estate"
	DocTypeContract   DocumentType = "contract"
	DocTypeLease      DocumentType = "lease"
	DocTypeOther      DocumentType = "other"
)

// TagTemplate marks a document as a formatting exemplar rather than
// end-user content. Transformations require both templates to carry it.
const TagTemplate = "template"

// JSONMap is a custom type for storing arbitrary JSON objects in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Document represents an uploaded document and its extracted content.
// TextContent is produced once by the extractor at upload time and is
// immutable thereafter.
type Document struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index:idx_documents_user" json:"user_id"`
	Title            string         `gorm:"type:text;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description,omitempty"`
	DocType          DocumentType   `gorm:"type:text;index:idx_documents_type;default:other" json:"doc_type"`
	Tag              string         `gorm:"type:text;index:idx_documents_tag" json:"tag,omitempty"`
	Status           DocumentStatus `gorm:"type:text;index:idx_documents_status;default:uploaded" json:"status"`
	OriginalFilename string         `gorm:"type:text" json:"original_filename"`
	FilePath         string         `gorm:"type:text" json:"file_path"`
	TextContent      string         `gorm:"type:text" json:"-"`
	AIAnalysis       JSONMap        `gorm:"type:text" json:"ai_analysis,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Document.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Document) TableName() string {
	return "documents"
}

// Format returns the lowercased file extension of the original filename,
// without the dot, defaulting to "txt" when no extension is present.
func (d *Document) Format() string {
	name := d.OriginalFilename
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			if i == len(name)-1 {
				break
			}
			return strings.ToLower(name[i+1:])
		}
		if name[i] == '/' || name[i] == '\\' {
			break
		}
	}
	return "txt"
}

// IsTemplate reports whether the document is tagged as a formatting exemplar.
func (d *Document) IsTemplate() bool {
	return d.Tag == TagTemplate
}

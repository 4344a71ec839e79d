package repository

import (
	"context"

	"github.com/marcus/docmorph/internal/domain"
	"gorm.io/gorm"
)

// DocumentRepository handles document data operations.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DocumentRepository: repository instance bound to db.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// Update updates an existing document record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// GetByID retrieves a document by its ID, scoped to the owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID.
//   - userID: owning user ID; documents of other users are not visible.
// Returns:
//   - *domain.Document: document record if found.
//   - error: gorm.ErrRecordNotFound if no match, other non-nil on failure.
func (r *DocumentRepository) GetByID(ctx context.Context, id, userID uint) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByUser retrieves all documents owned by a user, optionally filtered by tag,
// newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user ID.
//   - tag: optional tag filter; empty string matches all.
// Returns:
//   - []domain.Document: matching documents.
//   - error: non-nil if the query fails.
func (r *DocumentRepository) ListByUser(ctx context.Context, userID uint, tag string) ([]domain.Document, error) {
	var docs []domain.Document
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if tag != "" {
		q = q.Where("tag = ?", tag)
	}
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document record, scoped to the owning user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID.
//   - userID: owning user ID.
// Returns:
//   - error: gorm.ErrRecordNotFound if no row was deleted, other non-nil on failure.
func (r *DocumentRepository) Delete(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository stores documents and their chunks.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, filename, modality, size_bytes, status, total_chunks, uploaded_at`

func (r *DocumentRepository) PutDocument(ctx context.Context, d *domain.Document) error {
	if err := domain.ValidateDocument(d); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			modality = EXCLUDED.modality,
			size_bytes = EXCLUDED.size_bytes,
			status = EXCLUDED.status,
			total_chunks = EXCLUDED.total_chunks,
			uploaded_at = EXCLUDED.uploaded_at`,
		d.ID, d.Filename, d.Modality, d.SizeBytes, d.Status, d.TotalChunks, d.UploadedAt,
	)
	return storeErr("put document", err)
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	err := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Filename, &d.Modality, &d.SizeBytes, &d.Status, &d.TotalChunks, &d.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, storeErr("get document", err)
	}
	return &d, nil
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) (*domain.DocumentPage, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE (uploaded_at, id) < ($1, $2)
			 ORDER BY uploaded_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 ORDER BY uploaded_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	defer rows.Close()

	items := []*domain.Document{}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.Modality, &d.SizeBytes, &d.Status, &d.TotalChunks, &d.UploadedAt); err != nil {
			return nil, storeErr("scan document", err)
		}
		items = append(items, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list documents", err)
	}

	page := &domain.DocumentPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(last.ID, last.UploadedAt)
	}
	return page, nil
}

// DeleteDocument removes the document; its chunks go with it via ON DELETE CASCADE.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, totalChunks int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, total_chunks = $2 WHERE id = $3`,
		status, totalChunks, id,
	)
	if err != nil {
		return storeErr("update document status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) PutChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "chunk belongs to another document", errors.New(c.ID))
		}
		batch.Queue(
			`INSERT INTO chunks (id, document_id, sequence_index, text, token_count, page_number, timestamp_label)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				token_count = EXCLUDED.token_count,
				page_number = EXCLUDED.page_number,
				timestamp_label = EXCLUDED.timestamp_label`,
			c.ID, c.DocumentID, c.SequenceIndex, c.Text, c.TokenCount, nullableInt(c.PageNumber), nullableString(c.Timestamp),
		)
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrDocumentNotFound
		}
		return storeErr("put chunks", err)
	}
	return nil
}

const chunkColumns = `id, document_id, sequence_index, text, token_count, page_number, timestamp_label`

func (r *DocumentRepository) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	var rows pgx.Rows
	var err error
	if documentID != "" {
		rows, err = r.db.Query(ctx,
			`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY sequence_index`,
			documentID,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+chunkColumns+` FROM chunks ORDER BY document_id, sequence_index`,
		)
	}
	if err != nil {
		return nil, storeErr("list chunks", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *DocumentRepository) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ANY($1::uuid[])`,
		ids,
	)
	if err != nil {
		return nil, storeErr("get chunks", err)
	}
	defer rows.Close()

	found, err := scanChunkRows(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]domain.Chunk, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, storeErr("count documents", err)
	}
	return n, nil
}

func (r *DocumentRepository) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, storeErr("count chunks", err)
	}
	return n, nil
}

func (r *DocumentRepository) CountByModality(ctx context.Context) (map[domain.Modality]int, error) {
	rows, err := r.db.Query(ctx, `SELECT modality, COUNT(*) FROM documents GROUP BY modality`)
	if err != nil {
		return nil, storeErr("count by modality", err)
	}
	defer rows.Close()

	counts := make(map[domain.Modality]int)
	for rows.Next() {
		var m domain.Modality
		var n int
		if err := rows.Scan(&m, &n); err != nil {
			return nil, storeErr("scan modality count", err)
		}
		counts[m] = n
	}
	return counts, storeErr("count by modality", rows.Err())
}

func scanChunkRows(rows pgx.Rows) ([]domain.Chunk, error) {
	out := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		var page *int
		var ts *string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SequenceIndex, &c.Text, &c.TokenCount, &page, &ts); err != nil {
			return nil, storeErr("scan chunk", err)
		}
		if page != nil {
			c.PageNumber = *page
		}
		if ts != nil {
			c.Timestamp = *ts
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan chunks", err)
	}
	return out, nil
}

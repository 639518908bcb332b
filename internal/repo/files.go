package repo

import (
	"context"
	"database/sql"
	"errors"

	"stockroute/internal/domain"
)

const fileColumns = `id,user_id,original_name,stored_name,size,status,total_rows,uploaded_at,processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (domain.FileUpload, error) {
	var f domain.FileUpload
	var total sql.NullInt64
	var processed sql.NullString
	if err := row.Scan(&f.ID, &f.UserID, &f.Filename, &f.StoredName, &f.Size, &f.Status, &total, &f.UploadedAt, &processed); err != nil {
		if err == sql.ErrNoRows {
			return f, ErrNotFound
		}
		return f, err
	}
	if total.Valid {
		n := int(total.Int64)
		f.TotalRows = &n
	}
	if processed.Valid {
		f.ProcessedAt = &processed.String
	}
	return f, nil
}

func (r Repo) InsertFileUpload(ctx context.Context, tx *sql.Tx, f domain.FileUpload) (domain.FileUpload, error) {
	if f.UserID == 0 {
		return f, errors.New("user_id required")
	}
	if f.StoredName == "" {
		return f, errors.New("stored_name required")
	}
	if f.Status == "" {
		f.Status = domain.FileStatusPending
	}
	if f.UploadedAt == "" {
		f.UploadedAt = now()
	}
	id, err := r.on(tx).insertID(ctx, `INSERT INTO file_uploads(user_id,original_name,stored_name,size,status,uploaded_at) VALUES (?,?,?,?,?,?)`,
		f.UserID, f.Filename, f.StoredName, f.Size, f.Status, f.UploadedAt)
	if err != nil {
		return f, err
	}
	f.ID = id
	return f, nil
}

func (r Repo) GetFileUpload(ctx context.Context, id int64) (domain.FileUpload, error) {
	return scanFile(r.on(nil).queryRow(ctx, `SELECT `+fileColumns+` FROM file_uploads WHERE id=?`, id))
}

// ListFileUploads returns the uploads of a user, newest first.
func (r Repo) ListFileUploads(ctx context.Context, userID int64) ([]domain.FileUpload, error) {
	rows, err := r.on(nil).query(ctx, `SELECT `+fileColumns+` FROM file_uploads WHERE user_id=? ORDER BY uploaded_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FileUpload
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// UpdateFileStatus records the outcome of processing a file.
func (r Repo) UpdateFileStatus(ctx context.Context, tx *sql.Tx, id int64, status string, totalRows *int, processedAt string) error {
	res, err := r.on(tx).exec(ctx, `UPDATE file_uploads SET status=?, total_rows=?, processed_at=? WHERE id=?`,
		status, nullableIntPtr(totalRows), nullable(processedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"

	"stockroute/internal/domain"
)

const runColumns = `id,file_upload_id,user_id,delivery_date,COALESCE(excluded_stores,''),result_json,summary_json,created_at`

func scanRun(row rowScanner) (domain.DistributionRun, error) {
	var run domain.DistributionRun
	var fileID, userID sql.NullInt64
	var date sql.NullString
	err := row.Scan(&run.ID, &fileID, &userID, &date, &run.ExcludedStores, &run.ResultJSON, &run.SummaryJSON, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	if fileID.Valid {
		run.FileUploadID = &fileID.Int64
	}
	if userID.Valid {
		run.UserID = &userID.Int64
	}
	if date.Valid {
		run.DeliveryDate = &date.String
	}
	return run, nil
}

func (r Repo) InsertRun(ctx context.Context, tx *sql.Tx, run domain.DistributionRun) (domain.DistributionRun, error) {
	if run.CreatedAt == "" {
		run.CreatedAt = now()
	}
	id, err := r.on(tx).insertID(ctx, `INSERT INTO distribution_runs(file_upload_id,user_id,delivery_date,excluded_stores,result_json,summary_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		nullableInt64Ptr(run.FileUploadID), nullableInt64Ptr(run.UserID), nullableStringPtr(run.DeliveryDate),
		nullable(run.ExcludedStores), run.ResultJSON, run.SummaryJSON, run.CreatedAt)
	if err != nil {
		return run, err
	}
	run.ID = id
	return run, nil
}

// LatestRun returns the most recent run recorded for a file.
func (r Repo) LatestRun(ctx context.Context, fileID int64) (domain.DistributionRun, error) {
	return scanRun(r.on(nil).queryRow(ctx, `SELECT `+runColumns+` FROM distribution_runs WHERE file_upload_id=? ORDER BY id DESC LIMIT 1`, fileID))
}

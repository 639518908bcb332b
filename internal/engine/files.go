package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockroute/internal/db"
	"stockroute/internal/distribution"
	"stockroute/internal/domain"
	"stockroute/internal/engine/auth"
	"stockroute/internal/events"
	"stockroute/internal/ingest"
	"stockroute/internal/repo"
)

// UploadsDir is where stored spreadsheets live.
func (e Engine) UploadsDir() string {
	return db.UploadsDir(e.Workspace)
}

// SaveUpload stores an uploaded spreadsheet for a user and records it as pending.
func (e Engine) SaveUpload(ctx context.Context, userID int64, originalName string, r io.Reader) (domain.FileUpload, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !e.Config.AllowsExtension(ext) {
		return domain.FileUpload{}, invalid("only spreadsheet files (%s) are allowed", strings.Join(e.Config.Uploads.Extensions, ", "))
	}
	dir := e.UploadsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.FileUpload{}, err
	}
	stored := uuid.NewString() + ext
	path := filepath.Join(dir, stored)
	size, err := writeLimited(path, r, e.Config.Uploads.MaxBytes)
	if err != nil {
		os.Remove(path)
		return domain.FileUpload{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		os.Remove(path)
		return domain.FileUpload{}, err
	}
	defer tx.Rollback()
	f, err := e.Repo.InsertFileUpload(ctx, tx, domain.FileUpload{
		UserID:     userID,
		Filename:   filepath.Base(originalName),
		StoredName: stored,
		Size:       size,
		Status:     domain.FileStatusPending,
		UploadedAt: e.timestamp(),
	})
	if err == nil {
		err = e.events().Append(ctx, tx, events.TypeFileUploaded, "file", strconv.FormatInt(f.ID, 10), UserActor(userID),
			events.EventPayload{"filename": f.Filename, "size": size})
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		os.Remove(path)
		return domain.FileUpload{}, err
	}
	e.logger().Printf("files: stored %s as %s (%d bytes) for user %d", f.Filename, stored, size, userID)
	return f, nil
}

func writeLimited(path string, r io.Reader, max int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(r, max+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > max {
		return n, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, max)
	}
	return n, nil
}

func (e Engine) ListFiles(ctx context.Context, userID int64) ([]domain.FileUpload, error) {
	return e.Repo.ListFileUploads(ctx, userID)
}

// ownedFile loads a file and checks it belongs to userID.
func (e Engine) ownedFile(ctx context.Context, userID, fileID int64) (domain.FileUpload, error) {
	f, err := e.Repo.GetFileUpload(ctx, fileID)
	if err != nil {
		return f, err
	}
	if f.UserID != userID {
		return f, auth.ForbiddenError{Resource: fmt.Sprintf("file %d", fileID)}
	}
	return f, nil
}

type ProcessOptions struct {
	// DeliveryDate selects the route; nil means the processing time.
	DeliveryDate     *time.Time
	ExcludedStoreIDs []int
}

type ProcessResult struct {
	Message     string               `json:"message"`
	TotalRows   int                  `json:"totalRows"`
	FileID      int64                `json:"fileId"`
	RunID       int64                `json:"runId"`
	Results     distribution.Result  `json:"results"`
	Summary     distribution.Summary `json:"summary"`
	ParseErrors []ingest.ParseError  `json:"parseErrors,omitempty"`
}

// ProcessFile parses an uploaded file, stores its lines and runs a distribution over them.
func (e Engine) ProcessFile(ctx context.Context, userID, fileID int64, opts ProcessOptions) (ProcessResult, error) {
	f, err := e.ownedFile(ctx, userID, fileID)
	if err != nil {
		return ProcessResult{}, err
	}
	path := filepath.Join(e.UploadsDir(), f.StoredName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ProcessResult{}, fmt.Errorf("%w: file %d is missing on disk", repo.ErrNotFound, fileID)
		}
		return ProcessResult{}, err
	}

	parser := ingest.Parser{Now: e.now, Logger: e.logger()}
	parsed, err := parser.ParseFile(path)
	if err != nil {
		if ferr := e.failFile(ctx, userID, fileID, err.Error(), nil); ferr != nil {
			return ProcessResult{}, ferr
		}
		return ProcessResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(parsed.Lines) == 0 {
		if err := e.failFile(ctx, userID, fileID, ErrNoValidRows.Error(), parsed.Errors); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{}, &NoValidRowsError{ParseErrors: parsed.Errors}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProcessResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrderItems(ctx, tx, fileID, parsed.Lines); err != nil {
		return ProcessResult{}, fmt.Errorf("store order items: %w", err)
	}
	total := len(parsed.Lines)
	if err := e.Repo.UpdateFileStatus(ctx, tx, fileID, domain.FileStatusProcessed, &total, e.timestamp()); err != nil {
		return ProcessResult{}, err
	}
	if err := e.events().Append(ctx, tx, events.TypeFileProcessed, "file", strconv.FormatInt(fileID, 10), UserActor(userID),
		events.EventPayload{"totalRows": total, "rejectedRows": len(parsed.Errors)}); err != nil {
		return ProcessResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProcessResult{}, err
	}

	if opts.DeliveryDate == nil {
		now := e.now()
		opts.DeliveryDate = &now
	}
	res, run, err := e.distribute(ctx, &fileID, &userID, parsed.Lines, opts)
	if err != nil {
		return ProcessResult{}, err
	}
	out := ProcessResult{
		Message:   "File processed successfully",
		TotalRows: total,
		FileID:    fileID,
		RunID:     run.ID,
		Results:   res,
		Summary:   res.Summary(),
	}
	if len(parsed.Errors) > 0 {
		out.ParseErrors = parsed.Errors
	}
	return out, nil
}

func (e Engine) failFile(ctx context.Context, userID, fileID int64, reason string, parseErrors []ingest.ParseError) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateFileStatus(ctx, tx, fileID, domain.FileStatusError, nil, e.timestamp()); err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, events.TypeFileFailed, "file", strconv.FormatInt(fileID, 10), UserActor(userID),
		events.EventPayload{"reason": reason, "rejectedRows": len(parseErrors)}); err != nil {
		return err
	}
	return tx.Commit()
}

// Distribute runs a distribution over lines that did not come from an upload and
// records the run.
func (e Engine) Distribute(ctx context.Context, lines []distribution.OrderLine, opts ProcessOptions) (distribution.Result, domain.DistributionRun, error) {
	return e.distribute(ctx, nil, nil, lines, opts)
}

func (e Engine) distribute(ctx context.Context, fileID, userID *int64, lines []distribution.OrderLine, opts ProcessOptions) (distribution.Result, domain.DistributionRun, error) {
	res, err := e.Distributor().Distribute(ctx, distribution.Request{
		Lines:            lines,
		DeliveryDate:     opts.DeliveryDate,
		ExcludedStoreIDs: opts.ExcludedStoreIDs,
	})
	if err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	summary := res.Summary()
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	run := domain.DistributionRun{
		FileUploadID:   fileID,
		UserID:         userID,
		ExcludedStores: distribution.FormatStoreIDs(opts.ExcludedStoreIDs),
		ResultJSON:     string(resultJSON),
		SummaryJSON:    string(summaryJSON),
		CreatedAt:      e.timestamp(),
	}
	if opts.DeliveryDate != nil {
		d := opts.DeliveryDate.UTC().Format(time.RFC3339)
		run.DeliveryDate = &d
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	defer tx.Rollback()
	run, err = e.Repo.InsertRun(ctx, tx, run)
	if err != nil {
		return distribution.Result{}, domain.DistributionRun{}, fmt.Errorf("store run: %w", err)
	}
	actor := "cli"
	if userID != nil {
		actor = UserActor(*userID)
	}
	payload := events.EventPayload{
		"mainWarehouse": summary.MainWarehouse,
		"storeRequests": summary.StoreRequests,
		"storeUnits":    summary.StoreUnits,
		"insufficient":  summary.Insufficient,
		"missingUnits":  summary.MissingUnits,
	}
	if fileID != nil {
		payload["fileId"] = *fileID
	}
	if err := e.events().Append(ctx, tx, events.TypeDistributionCompleted, "run", strconv.FormatInt(run.ID, 10), actor, payload); err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	if err := tx.Commit(); err != nil {
		return distribution.Result{}, domain.DistributionRun{}, err
	}
	return res, run, nil
}

type RunResult struct {
	Run     domain.DistributionRun `json:"run"`
	Results distribution.Result    `json:"results"`
	Summary distribution.Summary   `json:"summary"`
}

// LatestResult returns the newest distribution recorded for a user's file.
func (e Engine) LatestResult(ctx context.Context, userID, fileID int64) (RunResult, error) {
	if _, err := e.ownedFile(ctx, userID, fileID); err != nil {
		return RunResult{}, err
	}
	run, err := e.Repo.LatestRun(ctx, fileID)
	if err != nil {
		return RunResult{}, err
	}
	return decodeRun(run)
}

func decodeRun(run domain.DistributionRun) (RunResult, error) {
	out := RunResult{Run: run, Results: distribution.EmptyResult()}
	if err := json.Unmarshal([]byte(run.ResultJSON), &out.Results); err != nil {
		return RunResult{}, fmt.Errorf("decode run %d: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(run.SummaryJSON), &out.Summary); err != nil {
		return RunResult{}, fmt.Errorf("decode run %d summary: %w", run.ID, err)
	}
	return out, nil
}

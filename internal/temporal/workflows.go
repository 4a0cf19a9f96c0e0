package temporal

import (
	"go.temporal.io/sdk/workflow"

	"approval-tracker/internal/audit"
)

const (
	ConsistencyResyncWorkflowName = "ConsistencyResyncWorkflow"
	VersionUploadWorkflowName     = "VersionUploadWorkflow"

	UploadStatusRegistered       = "REGISTERED"
	UploadStatusAlreadyApplied   = "ALREADY_REGISTERED"
	UploadStatusRejectedFilename = "REJECTED_FILENAME"
)

type ResyncInput struct {
	ActorID     string
	DocumentIDs []string
	BatchSize   int
}

type ResyncResult struct {
	Scanned int
	Chunks  int
	Stopped bool
	Report  audit.SyncReport
}

type VersionUploadInput struct {
	DocumentID string
	Filename   string
	ObjectKey  string
}

type VersionUploadResult struct {
	DocumentID string
	Status     string
	Version    string
	Errors     []string
}

// ConsistencyResyncWorkflow scans for drift and syncs the flagged documents
// one chunk per activity. Completed chunks are not redone when a later chunk
// is retried.
func ConsistencyResyncWorkflow(ctx workflow.Context, input ResyncInput) (ResyncResult, error) {
	logger := workflow.GetLogger(ctx)
	result := ResyncResult{Report: audit.SyncReport{Synced: []string{}, Unchanged: []string{}, Failed: map[string]string{}}}
	progress := ResyncProgress{}

	if err := workflow.SetQueryHandler(ctx, ResyncProgressQueryName, func() (ResyncProgress, error) {
		return progress, nil
	}); err != nil {
		return result, err
	}
	stopCh := workflow.GetSignalChannel(ctx, StopResyncSignalName)

	var scanned ScanOutput
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyScanInconsistencies),
		(*Activities).ScanInconsistenciesActivity,
		ScanInput{DocumentIDs: input.DocumentIDs},
	).Get(ctx, &scanned); err != nil {
		return result, err
	}

	chunks := audit.Chunks(scanned.DocumentIDs, input.BatchSize)
	result.Scanned = len(scanned.DocumentIDs)
	progress.Scanned = result.Scanned
	progress.ChunksAll = len(chunks)

	syncCtx := mustActivityContext(ctx, ActivityPolicySyncChunk)
	for _, chunk := range chunks {
		var stop StopResyncSignal
		if stopCh.ReceiveAsync(&stop) {
			logger.Info("resync stopped", "requested_by", stop.RequestedBy, "chunks_done", result.Chunks)
			result.Stopped = true
			break
		}

		var part audit.SyncReport
		if err := workflow.ExecuteActivity(syncCtx, (*Activities).SyncChunkActivity, SyncChunkInput{
			ActorID:     input.ActorID,
			DocumentIDs: chunk,
		}).Get(ctx, &part); err != nil {
			return result, err
		}
		result.Report.Merge(part)
		result.Chunks++

		progress.ChunksDone = result.Chunks
		progress.Synced = len(result.Report.Synced)
		progress.Failed = len(result.Report.Failed)
	}

	logger.Info("resync finished",
		"scanned", result.Scanned,
		"synced", len(result.Report.Synced),
		"failed", len(result.Report.Failed))
	return result, nil
}

// VersionUploadWorkflow registers a file dropped into the inbox as the next
// version of its document when the filename passes strict validation.
func VersionUploadWorkflow(ctx workflow.Context, input VersionUploadInput) (VersionUploadResult, error) {
	result := VersionUploadResult{DocumentID: input.DocumentID}

	var validation ValidateUploadOutput
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyValidateUpload),
		(*Activities).ValidateUploadActivity,
		ValidateUploadInput{DocumentID: input.DocumentID, Filename: input.Filename},
	).Get(ctx, &validation); err != nil {
		return result, err
	}
	result.Version = validation.Version
	if !validation.Valid {
		result.Status = UploadStatusRejectedFilename
		result.Errors = validation.Errors
		return result, nil
	}

	var registered RegisterVersionOutput
	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyRegisterVersion),
		(*Activities).RegisterVersionActivity,
		RegisterVersionInput{
			DocumentID: input.DocumentID,
			Filename:   input.Filename,
			ObjectKey:  input.ObjectKey,
			Version:    validation.Version,
		},
	).Get(ctx, &registered); err != nil {
		return result, err
	}

	result.Status = UploadStatusRegistered
	if registered.Skipped {
		result.Status = UploadStatusAlreadyApplied
	}
	return result, nil
}

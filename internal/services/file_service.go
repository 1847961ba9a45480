package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/coverplace/api/internal/domain"
	pstorage "github.com/coverplace/api/internal/platform/storage"
	"github.com/coverplace/api/internal/repositories"
)

const (
	fileIDPrefix            = "fil_"
	maxDealFileSize         = int64(50 * 1024 * 1024) // 50 MiB
	downloadSignedURLExpiry = 10 * time.Minute
)

var (
	// ErrFileInvalidInput indicates validation failures for file commands.
	ErrFileInvalidInput = errors.New("file: invalid input")
	// ErrFileForbidden indicates the caller's company may not access the deal's files.
	ErrFileForbidden = errors.New("file: forbidden")
	// ErrFileStorageFailure wraps blob storage failures.
	ErrFileStorageFailure = errors.New("file: storage failure")
)

var allowedDealFileContentTypes = map[string]struct{}{
	"application/pdf": {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/zip": {},
	"image/png":       {},
	"image/jpeg":      {},
	"text/plain":      {},
}

// ObjectStore abstracts the blob operations the file service performs.
type ObjectStore interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
	DeleteObject(ctx context.Context, bucket, object string) error
}

// DownloadSigner issues time-limited signed URLs. Satisfied by *storage.Client.
type DownloadSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// FileServiceDeps bundles collaborators required to construct a FileService.
type FileServiceDeps struct {
	Submissions repositories.SubmissionRepository
	Directory   CompanyDirectory
	Objects     ObjectStore
	Signer      DownloadSigner
	Bucket      string
	Clock       func() time.Time
	IDGenerator func(prefix string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type fileService struct {
	submissions repositories.SubmissionRepository
	directory   CompanyDirectory
	objects     ObjectStore
	signer      DownloadSigner
	bucket      string
	clock       func() time.Time
	newID       func(prefix string) string
	logger      func(context.Context, string, map[string]any)
}

var _ FileService = (*fileService)(nil)

// NewFileService wires dependencies into the deal attachment service.
func NewFileService(deps FileServiceDeps) (FileService, error) {
	if deps.Submissions == nil {
		return nil, errors.New("file service: submission repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("file service: company directory is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("file service: object store is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("file service: bucket is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func(prefix string) string {
			return prefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &fileService{
		submissions: deps.Submissions,
		directory:   deps.Directory,
		objects:     deps.Objects,
		signer:      deps.Signer,
		bucket:      strings.TrimSpace(deps.Bucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *fileService) UploadFiles(ctx context.Context, cmd UploadFilesCommand) (UploadFilesResult, error) {
	if len(cmd.Files) == 0 {
		return UploadFilesResult{}, fmt.Errorf("%w: at least one file is required", ErrFileInvalidInput)
	}

	submission, actor, err := s.fetchAuthorized(ctx, cmd.ActorID, cmd.SubmissionID)
	if err != nil {
		return UploadFilesResult{}, err
	}

	now := s.clock()
	outcomes := make([]FileUploadOutcome, len(cmd.Files))

	// Uploads run concurrently against storage and are joined before the
	// submission write.
	var wg sync.WaitGroup
	for i, upload := range cmd.Files {
		wg.Add(1)
		go func(idx int, upload FileUpload) {
			defer wg.Done()
			outcomes[idx] = s.uploadOne(ctx, submission.ID, actor, upload, now)
		}(i, upload)
	}
	wg.Wait()

	var uploaded []DealFile
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			uploaded = append(uploaded, outcome.File)
		}
	}

	persisted := submission
	if len(uploaded) > 0 {
		persisted, err = s.submissions.Update(ctx, submission.AddFiles(uploaded, now))
		if err != nil {
			return UploadFilesResult{}, mapDealRepositoryError(err)
		}
	}

	s.logger(ctx, "file.upload.completed", map[string]any{
		"dealId":    submission.ID,
		"requested": len(cmd.Files),
		"stored":    len(uploaded),
	})
	return UploadFilesResult{
		Submission: persisted,
		Outcomes:   outcomes,
	}, nil
}

func (s *fileService) uploadOne(ctx context.Context, dealID, actorID string, upload FileUpload, now time.Time) FileUploadOutcome {
	outcome := FileUploadOutcome{FileName: upload.FileName}

	fileName := strings.TrimSpace(upload.FileName)
	if fileName == "" {
		outcome.Err = fmt.Errorf("%w: file name is required", ErrFileInvalidInput)
		return outcome
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if _, ok := allowedDealFileContentTypes[contentType]; !ok {
		outcome.Err = fmt.Errorf("%w: content type %q not allowed", ErrFileInvalidInput, upload.ContentType)
		return outcome
	}
	size := upload.SizeBytes
	if size <= 0 {
		size = int64(len(upload.Content))
	}
	if size <= 0 || size > maxDealFileSize {
		outcome.Err = fmt.Errorf("%w: file size %d out of bounds", ErrFileInvalidInput, size)
		return outcome
	}

	fileID := s.newID(fileIDPrefix)
	objectPath, err := pstorage.BuildObjectPath(pstorage.PurposeDealFile, pstorage.PathParams{
		DealID:   dealID,
		FileID:   fileID,
		FileName: fileName,
	})
	if err != nil {
		outcome.Err = fmt.Errorf("%w: %v", ErrFileInvalidInput, err)
		return outcome
	}

	if err := s.objects.WriteObject(ctx, s.bucket, objectPath, contentType, upload.Content); err != nil {
		outcome.Err = fmt.Errorf("%w: %v", ErrFileStorageFailure, err)
		return outcome
	}

	outcome.File = DealFile{
		ID:           fileID,
		FileName:     fileName,
		StoredName:   objectPath,
		ContentType:  contentType,
		SizeBytes:    size,
		UploadedBy:   actorID,
		LastModified: now,
	}
	return outcome
}

func (s *fileService) DeleteFile(ctx context.Context, cmd DeleteFileCommand) (DealSubmission, error) {
	submission, _, err := s.fetchAuthorized(ctx, cmd.ActorID, cmd.SubmissionID)
	if err != nil {
		return DealSubmission{}, err
	}

	file, ok := submission.FileByID(cmd.FileID)
	if !ok {
		return DealSubmission{}, fmt.Errorf("%w: file %s", domain.ErrFileNotFound, cmd.FileID)
	}

	if err := s.objects.DeleteObject(ctx, s.bucket, file.StoredName); err != nil {
		return DealSubmission{}, fmt.Errorf("%w: %v", ErrFileStorageFailure, err)
	}

	updated, err := submission.RemoveFile(cmd.FileID, s.clock())
	if err != nil {
		return DealSubmission{}, err
	}

	persisted, err := s.submissions.Update(ctx, updated)
	if err != nil {
		return DealSubmission{}, mapDealRepositoryError(err)
	}

	s.logger(ctx, "file.deleted", map[string]any{
		"dealId": submission.ID,
		"fileId": cmd.FileID,
	})
	return persisted, nil
}

func (s *fileService) IssueDownload(ctx context.Context, cmd DownloadFileCommand) (SignedFileURL, error) {
	if s.signer == nil {
		return SignedFileURL{}, errors.New("file service: download signer not configured")
	}

	submission, _, err := s.fetchAuthorized(ctx, cmd.ActorID, cmd.SubmissionID)
	if err != nil {
		return SignedFileURL{}, err
	}

	file, ok := submission.FileByID(cmd.FileID)
	if !ok {
		return SignedFileURL{}, fmt.Errorf("%w: file %s", domain.ErrFileNotFound, cmd.FileID)
	}

	// Access is authorized above at the company level; the signer performs
	// no further identity checks of its own.
	result, err := s.signer.SignedURL(ctx, s.bucket, file.StoredName, pstorage.SignedURLOptions{
		Download: &pstorage.DownloadOptions{
			ExpiresIn:      downloadSignedURLExpiry,
			Disposition:    fmt.Sprintf("attachment; filename=%q", file.FileName),
			ResponseType:   file.ContentType,
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return SignedFileURL{}, fmt.Errorf("%w: %v", ErrFileStorageFailure, err)
	}

	return SignedFileURL{
		URL:       result.URL,
		Method:    result.Method,
		FileName:  file.FileName,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// ArchiveDealFiles copies every attachment to the live prefix so the go-live
// snapshot keeps its documents even if the working copies change later.
func (s *fileService) ArchiveDealFiles(ctx context.Context, submission DealSubmission) error {
	var firstErr error
	for _, file := range submission.Files {
		destPath, err := pstorage.BuildObjectPath(pstorage.PurposeDealArchive, pstorage.PathParams{
			DealID:   submission.ID,
			FileID:   file.ID,
			FileName: file.FileName,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.objects.CopyObject(ctx, s.bucket, file.StoredName, s.bucket, destPath); err != nil {
			s.logger(ctx, "file.archive.copy_failed", map[string]any{
				"dealId": submission.ID,
				"fileId": file.ID,
				"error":  err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrFileStorageFailure, firstErr)
	}
	return nil
}

func (s *fileService) fetchAuthorized(ctx context.Context, actorID, submissionID string) (DealSubmission, string, error) {
	company, err := s.directory.ResolveCompanyOfUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return DealSubmission{}, "", fmt.Errorf("%w: %v", ErrFileForbidden, err)
		}
		return DealSubmission{}, "", err
	}

	if strings.TrimSpace(submissionID) == "" {
		return DealSubmission{}, "", fmt.Errorf("%w: submission id is required", ErrFileInvalidInput)
	}
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return DealSubmission{}, "", mapDealRepositoryError(err)
	}

	if err := authorizeDealAccess(submission, company); err != nil {
		return DealSubmission{}, "", fmt.Errorf("%w: company %s", ErrFileForbidden, company.ID)
	}
	return submission, strings.TrimSpace(actorID), nil
}

package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/platform/auth"
	"github.com/coverplace/api/internal/platform/httpx"
	"github.com/coverplace/api/internal/repositories"
	"github.com/coverplace/api/internal/services"
)

const (
	// maxUploadMemory bounds the in-memory portion of multipart parsing;
	// larger parts spill to temp files.
	maxUploadMemory = 8 * 1024 * 1024
	maxUploadTotal  = int64(256 * 1024 * 1024)
	maxUploadFiles  = 20
)

// FileHandlers exposes the deal attachment endpoints. Routes are mounted
// under /deals/{dealId}/files.
type FileHandlers struct {
	files services.FileService
}

// NewFileHandlers constructs handlers for the file endpoints.
func NewFileHandlers(files services.FileService) *FileHandlers {
	return &FileHandlers{files: files}
}

// Routes wires the file endpoints onto the provided router. Authentication is
// inherited from the enclosing /deals group.
func (h *FileHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.uploadFiles)
	r.Delete("/{fileId}", h.deleteFile)
	r.Get("/{fileId}/download", h.downloadFile)
}

func (h *FileHandlers) uploadFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadTotal)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form data is required", http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one file part named 'files' is required", http.StatusBadRequest))
		return
	}
	if len(parts) > maxUploadFiles {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many files in one request", http.StatusBadRequest))
		return
	}

	uploads := make([]services.FileUpload, 0, len(parts))
	for _, part := range parts {
		upload, err := readUploadPart(part)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		uploads = append(uploads, upload)
	}

	result, err := h.files.UploadFiles(ctx, services.UploadFilesCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		Files:        uploads,
	})
	if err != nil {
		writeFileError(ctx, w, err)
		return
	}

	outcomes := make([]uploadOutcomePayload, 0, len(result.Outcomes))
	status := http.StatusCreated
	for _, outcome := range result.Outcomes {
		payload := uploadOutcomePayload{FileName: outcome.FileName}
		if outcome.Err != nil {
			payload.Error = outcome.Err.Error()
			status = http.StatusMultiStatus
		} else {
			file := buildFilePayload(outcome.File)
			payload.File = &file
		}
		outcomes = append(outcomes, payload)
	}

	writeJSONResponse(w, status, uploadFilesResponse{
		Deal:    buildSubmissionPayload(result.Submission),
		Results: outcomes,
	})
}

func (h *FileHandlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	deal, err := h.files.DeleteFile(ctx, services.DeleteFileCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		FileID:       chi.URLParam(r, "fileId"),
	})
	if err != nil {
		writeFileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *FileHandlers) downloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	signed, err := h.files.IssueDownload(ctx, services.DownloadFileCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		FileID:       chi.URLParam(r, "fileId"),
	})
	if err != nil {
		writeFileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, downloadFileResponse{
		URL:       signed.URL,
		Method:    signed.Method,
		FileName:  signed.FileName,
		ExpiresAt: formatTime(signed.ExpiresAt),
	})
}

func (h *FileHandlers) require(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.files == nil {
		httpx.WriteError(ctx, w, httpx.NewError("file_service_unavailable", "file service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(ctx, w)
}

func readUploadPart(part *multipart.FileHeader) (services.FileUpload, error) {
	fileName := filepath.Base(strings.TrimSpace(part.Filename))
	if fileName == "" || fileName == "." {
		return services.FileUpload{}, errors.New("file part is missing a filename")
	}

	reader, err := part.Open()
	if err != nil {
		return services.FileUpload{}, errors.New("file part could not be read")
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return services.FileUpload{}, errors.New("file part could not be read")
	}

	return services.FileUpload{
		FileName:    fileName,
		ContentType: part.Header.Get("Content-Type"),
		SizeBytes:   int64(len(content)),
		Content:     content,
	}, nil
}

type uploadFilesResponse struct {
	Deal    submissionPayload      `json:"deal"`
	Results []uploadOutcomePayload `json:"results"`
}

type uploadOutcomePayload struct {
	FileName string       `json:"file_name"`
	File     *filePayload `json:"file,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type downloadFileResponse struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	FileName  string `json:"file_name"`
	ExpiresAt string `json:"expires_at"`
}

func writeFileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var dealErr *domain.DealError
	switch {
	case errors.Is(err, services.ErrFileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFileForbidden), errors.Is(err, services.ErrCompanyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for deal files", http.StatusForbidden))
	case errors.Is(err, services.ErrDealNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("deal_not_found", "deal not found", http.StatusNotFound))
	case errors.Is(err, domain.ErrFileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("file_not_found", "file not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDealConflict):
		httpx.WriteError(ctx, w, httpx.NewError("deal_conflict", "deal data has changed, reload and retry", http.StatusConflict))
	case errors.Is(err, services.ErrFileStorageFailure):
		httpx.WriteError(ctx, w, httpx.NewError("file_storage_failure", "file storage operation failed", http.StatusBadGateway))
	case errors.As(err, &dealErr):
		httpx.WriteError(ctx, w, httpx.NewError(dealErr.Code(), dealErr.SafeMessage(), http.StatusUnprocessableEntity))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("file_service_unavailable", "deal repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("file_error", "failed to process file request", http.StatusInternalServerError))
	}
}

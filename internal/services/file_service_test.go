package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/coverplace/api/internal/domain"
	pstorage "github.com/coverplace/api/internal/platform/storage"
)

type storedObject struct {
	contentType string
	data        []byte
}

type stubObjectStore struct {
	mu       sync.Mutex
	objects  map[string]storedObject
	writeErr error
	copies   [][2]string
	deletes  []string
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{objects: map[string]storedObject{}}
}

func (s *stubObjectStore) WriteObject(_ context.Context, _, object, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.objects[object] = storedObject{contentType: contentType, data: data}
	return nil
}

func (s *stubObjectStore) CopyObject(_ context.Context, _, sourceObject, _, destObject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copies = append(s.copies, [2]string{sourceObject, destObject})
	return nil
}

func (s *stubObjectStore) DeleteObject(_ context.Context, _, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, object)
	return nil
}

type stubSigner struct {
	lastObject string
	lastOpts   pstorage.SignedURLOptions
}

func (s *stubSigner) SignedURL(_ context.Context, _, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error) {
	s.lastObject = object
	s.lastOpts = opts
	return pstorage.SignedURLResult{
		URL:       "https://storage.example/" + object + "?sig=abc",
		Method:    "GET",
		ExpiresAt: testNow.Add(10 * time.Minute),
	}, nil
}

func newTestFileService(t *testing.T, submissions *stubSubmissionRepo, directory *stubDirectory, objects *stubObjectStore, signer DownloadSigner) FileService {
	t.Helper()
	service, err := NewFileService(FileServiceDeps{
		Submissions: submissions,
		Directory:   directory,
		Objects:     objects,
		Signer:      signer,
		Bucket:      "coverplace-deals-test",
		Clock:       testClock,
		IDGenerator: sequenceIDs(),
	})
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}
	return service
}

func TestUploadFilesPartialResult(t *testing.T) {
	submissions := newStubSubmissionRepo(draftSubmission(t))
	objects := newStubObjectStore()
	service := newTestFileService(t, submissions, newStubDirectory(brokerCompany()), objects, nil)

	result, err := service.UploadFiles(context.Background(), UploadFilesCommand{
		ActorID:      "user_broker",
		SubmissionID: "sub_test",
		Files: []FileUpload{
			{FileName: "term-sheet.pdf", ContentType: "application/pdf", Content: []byte("pdf-bytes")},
			{FileName: "malware.exe", ContentType: "application/x-msdownload", Content: []byte("nope")},
		},
	})
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}

	if len(result.Outcomes) != 2 {
		t.Fatalf("expected outcome per requested file, got %d", len(result.Outcomes))
	}
	if result.Outcomes[0].Err != nil {
		t.Fatalf("pdf upload failed: %v", result.Outcomes[0].Err)
	}
	if !errors.Is(result.Outcomes[1].Err, ErrFileInvalidInput) {
		t.Fatalf("expected rejected content type, got %v", result.Outcomes[1].Err)
	}

	if len(result.Submission.Files) != 1 || result.Submission.Files[0].FileName != "term-sheet.pdf" {
		t.Fatalf("expected one stored file, got %+v", result.Submission.Files)
	}
	stored := result.Submission.Files[0]
	if stored.UploadedBy != "user_broker" || stored.SizeBytes != int64(len("pdf-bytes")) {
		t.Fatalf("unexpected file metadata %+v", stored)
	}
	if _, ok := objects.objects[stored.StoredName]; !ok {
		t.Fatalf("object %q not written to storage", stored.StoredName)
	}
	if !strings.HasPrefix(stored.StoredName, "deals/sub_test/files/") {
		t.Fatalf("unexpected object path %q", stored.StoredName)
	}
}

func TestUploadFilesRejectsOversized(t *testing.T) {
	submissions := newStubSubmissionRepo(draftSubmission(t))
	service := newTestFileService(t, submissions, newStubDirectory(brokerCompany()), newStubObjectStore(), nil)

	result, err := service.UploadFiles(context.Background(), UploadFilesCommand{
		ActorID:      "user_broker",
		SubmissionID: "sub_test",
		Files: []FileUpload{
			{FileName: "huge.zip", ContentType: "application/zip", SizeBytes: 51 * 1024 * 1024},
		},
	})
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if !errors.Is(result.Outcomes[0].Err, ErrFileInvalidInput) {
		t.Fatalf("expected size rejection, got %v", result.Outcomes[0].Err)
	}
	if submissions.updateCalls != 0 {
		t.Fatalf("submission must not be written when nothing was stored")
	}
}

func TestUploadFilesForbiddenForOutsider(t *testing.T) {
	outsider := domain.Company{
		ID:   "cmp_other",
		Name: "Osprey Brokers",
		Type: domain.CompanyTypeBroker,
		Employees: []domain.Employee{
			{UserID: "user_other", Email: "kim@osprey.example"},
		},
	}
	service := newTestFileService(t, newStubSubmissionRepo(draftSubmission(t)), newStubDirectory(brokerCompany(), outsider), newStubObjectStore(), nil)

	_, err := service.UploadFiles(context.Background(), UploadFilesCommand{
		ActorID:      "user_other",
		SubmissionID: "sub_test",
		Files:        []FileUpload{{FileName: "a.pdf", ContentType: "application/pdf", Content: []byte("x")}},
	})
	if !errors.Is(err, ErrFileForbidden) {
		t.Fatalf("expected ErrFileForbidden, got %v", err)
	}
}

func TestDeleteFileRemovesObjectAndEntry(t *testing.T) {
	submission := draftSubmission(t).AddFiles([]domain.DealFile{{
		ID:          "fil_1",
		FileName:    "nda.pdf",
		StoredName:  "deals/sub_test/files/fil_1/nda.pdf",
		ContentType: "application/pdf",
		SizeBytes:   120,
		UploadedBy:  "user_broker",
	}}, testNow)
	submissions := newStubSubmissionRepo(submission)
	objects := newStubObjectStore()
	service := newTestFileService(t, submissions, newStubDirectory(brokerCompany()), objects, nil)

	updated, err := service.DeleteFile(context.Background(), DeleteFileCommand{
		ActorID:      "user_broker",
		SubmissionID: "sub_test",
		FileID:       "fil_1",
	})
	if err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if len(updated.Files) != 0 {
		t.Fatalf("file entry should be removed, got %+v", updated.Files)
	}
	if len(objects.deletes) != 1 || objects.deletes[0] != "deals/sub_test/files/fil_1/nda.pdf" {
		t.Fatalf("expected blob delete, got %v", objects.deletes)
	}
}

func TestDeleteFileUnknownID(t *testing.T) {
	service := newTestFileService(t, newStubSubmissionRepo(draftSubmission(t)), newStubDirectory(brokerCompany()), newStubObjectStore(), nil)

	_, err := service.DeleteFile(context.Background(), DeleteFileCommand{
		ActorID:      "user_broker",
		SubmissionID: "sub_test",
		FileID:       "fil_missing",
	})
	if !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestIssueDownloadSignsAttachment(t *testing.T) {
	submission := draftSubmission(t).AddFiles([]domain.DealFile{{
		ID:          "fil_1",
		FileName:    "spa draft.docx",
		StoredName:  "deals/sub_test/files/fil_1/spa-draft.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		SizeBytes:   2048,
		UploadedBy:  "user_broker",
	}}, testNow)
	signer := &stubSigner{}
	service := newTestFileService(t, newStubSubmissionRepo(submission), newStubDirectory(brokerCompany()), newStubObjectStore(), signer)

	signed, err := service.IssueDownload(context.Background(), DownloadFileCommand{
		ActorID:      "user_broker",
		SubmissionID: "sub_test",
		FileID:       "fil_1",
	})
	if err != nil {
		t.Fatalf("IssueDownload: %v", err)
	}
	if signed.Method != "GET" || signed.FileName != "spa draft.docx" {
		t.Fatalf("unexpected signed result %+v", signed)
	}
	if signer.lastObject != "deals/sub_test/files/fil_1/spa-draft.docx" {
		t.Fatalf("signed wrong object %q", signer.lastObject)
	}
	download := signer.lastOpts.Download
	if download == nil {
		t.Fatalf("expected download options")
	}
	if download.Disposition != fmt.Sprintf("attachment; filename=%q", "spa draft.docx") {
		t.Fatalf("unexpected disposition %q", download.Disposition)
	}
	if download.ExpiresIn != 10*time.Minute {
		t.Fatalf("unexpected expiry %v", download.ExpiresIn)
	}
}

func TestArchiveDealFilesCopiesEveryAttachment(t *testing.T) {
	submission := draftSubmission(t).AddFiles([]domain.DealFile{
		{ID: "fil_1", FileName: "nda.pdf", StoredName: "deals/sub_test/files/fil_1/nda.pdf", ContentType: "application/pdf", SizeBytes: 10, UploadedBy: "user_broker"},
		{ID: "fil_2", FileName: "model.xlsx", StoredName: "deals/sub_test/files/fil_2/model.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", SizeBytes: 20, UploadedBy: "user_broker"},
	}, testNow)
	objects := newStubObjectStore()
	service := newTestFileService(t, newStubSubmissionRepo(submission), newStubDirectory(brokerCompany()), objects, nil)

	archiver, ok := service.(DealFileArchiver)
	if !ok {
		t.Fatalf("file service must implement DealFileArchiver")
	}
	if err := archiver.ArchiveDealFiles(context.Background(), submission); err != nil {
		t.Fatalf("ArchiveDealFiles: %v", err)
	}

	if len(objects.copies) != 2 {
		t.Fatalf("expected two copies, got %v", objects.copies)
	}
	for _, copied := range objects.copies {
		if !strings.HasPrefix(copied[1], "deals/sub_test/live/") {
			t.Fatalf("archive copy outside live prefix: %v", copied)
		}
	}
}

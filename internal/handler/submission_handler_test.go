package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type submissionServiceStub struct {
	submission  *models.Submission
	submissions []models.Submission
	result      usage.LimitCheckResult
	err         error
	lastExamID  string
	lastUpload  dto.SubmissionUpload
	body        []byte
	called      bool
}

func (s *submissionServiceStub) Upload(ctx context.Context, profile *models.Profile, examID string, upload dto.SubmissionUpload) (*models.Submission, usage.LimitCheckResult, error) {
	s.called = true
	s.lastExamID = examID
	s.lastUpload = upload
	s.body, _ = io.ReadAll(upload.Body)
	return s.submission, s.result, s.err
}

func (s *submissionServiceStub) Get(ctx context.Context, profile *models.Profile, id string) (*models.Submission, error) {
	return s.submission, s.err
}

func (s *submissionServiceStub) ListByExam(ctx context.Context, profile *models.Profile, examID string) ([]models.Submission, error) {
	s.lastExamID = examID
	return s.submissions, s.err
}

func uploadsResult(current int64, limit usage.Limit) usage.LimitCheckResult {
	return usage.LimitCheckResult{
		Allowed:      current < int64(limit),
		CurrentUsage: current,
		Limit:        limit,
		Tier:         models.TierFree,
		Category:     models.CategoryFileUploads,
	}
}

func multipartUpload(t *testing.T, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("student_name", "Budi"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="answers.txt"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func uploadContext(t *testing.T, contentType string, content []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body, formType := multipartUpload(t, contentType, content)
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/submissions", body)
	c.Request.Header.Set("Content-Type", formType)
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}
	withProfile(c, educator(models.TierFree))
	return c, rec
}

func TestSubmissionHandlerUpload(t *testing.T) {
	stub := &submissionServiceStub{
		submission: &models.Submission{ID: "sub-1", ExamID: "exam-1", Status: models.SubmissionPending, FilePath: "u1/secret.txt"},
		result:     uploadsResult(1, 3),
	}
	c, rec := uploadContext(t, "text/plain", []byte("1. B\n2. 0.75"))

	NewSubmissionHandler(stub, 5<<20).Upload(c)

	assertStatus(t, rec, http.StatusCreated)
	assert.Equal(t, "exam-1", stub.lastExamID)
	assert.Equal(t, "Budi", stub.lastUpload.StudentName)
	assert.Equal(t, "answers.txt", stub.lastUpload.FileName)
	assert.Equal(t, "text/plain", stub.lastUpload.ContentType)
	assert.Equal(t, int64(len("1. B\n2. 0.75")), stub.lastUpload.Size)
	assert.Equal(t, "1. B\n2. 0.75", string(stub.body))
	assert.Equal(t, "2", rec.Header().Get(response.HeaderRateLimitRemaining))

	envelope := decode(t, rec)
	assert.Equal(t, "sub-1", envelope.Data["id"])
	assert.Equal(t, "pending", envelope.Data["status"])
	assert.NotContains(t, envelope.Data, "file_path")
	assert.Equal(t, "fileUploads", envelope.Data["usage"].(map[string]interface{})["category"])
}

func TestSubmissionHandlerUploadLimitExceeded(t *testing.T) {
	denied := uploadsResult(3, 3)
	stub := &submissionServiceStub{result: denied, err: &service.LimitExceededError{Result: denied}}
	c, rec := uploadContext(t, "image/png", []byte("png"))

	NewSubmissionHandler(stub, 5<<20).Upload(c)

	assertStatus(t, rec, http.StatusPaymentRequired)
	var payload response.LimitPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "fileUploads", payload.LimitType)
	assert.Equal(t, int64(3), payload.Limit)
}

func TestSubmissionHandlerUploadTooLarge(t *testing.T) {
	stub := &submissionServiceStub{
		result: uploadsResult(0, 3),
		err:    appErrors.Clone(appErrors.ErrPayloadTooLarge, "file exceeds the 5 MiB limit of the free plan"),
	}
	c, rec := uploadContext(t, "text/plain", []byte("big"))

	NewSubmissionHandler(stub, 5<<20).Upload(c)

	assertStatus(t, rec, http.StatusRequestEntityTooLarge)
}

func TestSubmissionHandlerUploadRequiresFile(t *testing.T) {
	stub := &submissionServiceStub{}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("student_name", "Budi"))
	require.NoError(t, writer.Close())
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/submissions", body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}
	withProfile(c, educator(models.TierFree))

	NewSubmissionHandler(stub, 5<<20).Upload(c)

	assertStatus(t, rec, http.StatusBadRequest)
	assert.False(t, stub.called)
}

func TestSubmissionHandlerListByExam(t *testing.T) {
	stub := &submissionServiceStub{submissions: []models.Submission{{ID: "sub-1"}, {ID: "sub-2"}}}
	c, rec := newTestContext(http.MethodGet, "/exams/exam-1/submissions", nil)
	c.Params = gin.Params{{Key: "id", Value: "exam-1"}}
	withProfile(c, educator(models.TierFree))

	NewSubmissionHandler(stub, 0).ListByExam(c)

	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "exam-1", stub.lastExamID)
	var body struct {
		Data []models.Submission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestSubmissionHandlerGetNotFound(t *testing.T) {
	stub := &submissionServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "submission not found")}
	c, rec := newTestContext(http.MethodGet, "/submissions/sub-x", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-x"}}
	withProfile(c, educator(models.TierFree))

	NewSubmissionHandler(stub, 0).Get(c)

	assertStatus(t, rec, http.StatusNotFound)
}

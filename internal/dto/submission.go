package dto

import "io"

// SubmissionUpload is the parsed multipart body of POST /exams/:id/submissions.
type SubmissionUpload struct {
	StudentName string `validate:"omitempty,max=200"`
	FileName    string `validate:"required,max=255"`
	ContentType string `validate:"required"`
	Size        int64
	Body        io.Reader `validate:"-"`
}

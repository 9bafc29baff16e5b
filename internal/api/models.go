package api

// Exam mirrors the server's exam record. Field names follow the wire
// format of the backend this client talks to.
type Exam struct {
	ID          int64   `json:"id"`
	Title       string  `json:"titre"`
	Description string  `json:"description"`
	EndDate     *string `json:"date_fin,omitempty"`
	SubjectPath *string `json:"sujet_path,omitempty"`
}

// ResourceKind distinguishes the exam subject from its attachments.
type ResourceKind string

const (
	ResourceSubject    ResourceKind = "subject"
	ResourceAttachment ResourceKind = "attachment"
)

// Resource is one downloadable exam file.
type Resource struct {
	Kind     ResourceKind `json:"kind"`
	FileName string       `json:"file_name"`
	URL      string       `json:"url"`
}

// LoginResponse carries the bearer token issued by /auth/login.
type LoginResponse struct {
	Token string `json:"token"`
}

// CreateExamRequest is the professor's exam creation payload.
type CreateExamRequest struct {
	Title       string `json:"titre"`
	Description string `json:"description,omitempty"`
}

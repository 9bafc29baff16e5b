package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client consumes the exam server's HTTP boundary: authentication, exam
// and resource listings, and file uploads. Every call is one shot; a
// non-2xx response becomes a RequestError for the caller to surface.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     zerolog.Logger
}

func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "api").Logger(),
	}
}

// SetToken installs the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current bearer token, empty before login.
func (c *Client) Token() string { return c.token }

// do executes one JSON request. out may be nil when the response body
// does not matter.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.requestError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

// requestError extracts the server's message or error field, falling
// back to a status-only message.
func (c *Client) requestError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Message != "" {
			msg = body.Message
		} else if body.Error != "" {
			msg = body.Error
		}
	}
	return &RequestError{Status: resp.StatusCode, Message: msg}
}

// Login authenticates and installs the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password, role string) (string, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
		"role":     role,
	}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", payload, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// ListExams fetches every visible exam.
func (c *Client) ListExams(ctx context.Context) ([]Exam, error) {
	var out []Exam
	if err := c.do(ctx, http.MethodGet, "/exams", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExam fetches one exam by ID.
func (c *Client) GetExam(ctx context.Context, examID int64) (*Exam, error) {
	var out Exam
	if err := c.do(ctx, http.MethodGet, "/exams/"+strconv.FormatInt(examID, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResources fetches the subject and attachments of one exam.
func (c *Client) ListResources(ctx context.Context, examID int64) ([]Resource, error) {
	var out []Resource
	if err := c.do(ctx, http.MethodGet, "/exams/"+strconv.FormatInt(examID, 10)+"/resources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateExam creates an exam (professor role).
func (c *Client) CreateExam(ctx context.Context, req CreateExamRequest) (*Exam, error) {
	var out Exam
	if err := c.do(ctx, http.MethodPost, "/exams", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadResource attaches a subject or attachment file to an exam
// (professor role). Multipart fields: kind, file.
func (c *Client) UploadResource(ctx context.Context, examID int64, kind ResourceKind, fileName string, file io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", string(kind)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	path := "/exams/" + strconv.FormatInt(examID, 10) + "/resources"
	return c.doMultipart(ctx, path, mw.FormDataContentType(), &buf)
}

// UploadWork submits a student's work file. The multipart field names
// are the server's: files, examId, id_etud, matricule, nom.
func (c *Client) UploadWork(ctx context.Context, examID int64, id Identity, fileName string, file io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("files", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	fields := map[string]string{
		"examId":    strconv.FormatInt(examID, 10),
		"id_etud":   id.StudentID,
		"matricule": id.Matricule,
		"nom":       "final",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	return c.doMultipart(ctx, "/works/upload", mw.FormDataContentType(), &buf)
}

func (c *Client) doMultipart(ctx context.Context, path, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.requestError(resp)
	}
	return nil
}

// ResolveURL turns a server-relative resource URL into an absolute one.
func (c *Client) ResolveURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.baseURL + u
}

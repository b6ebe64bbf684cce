// Package submit sends encrypted payloads to the training backend.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/privgraph/modelhub/internal/paillier"
	"github.com/privgraph/modelhub/internal/payload"
)

// DefaultTimeout bounds one upload when NewClient is given zero.
const DefaultTimeout = 5 * time.Minute

// ErrBackend is returned for non-2xx responses from the backend.
var ErrBackend = errors.New("training backend error")

// Submitter delivers a job to the training backend.
type Submitter interface {
	Submit(ctx context.Context, job Job) (*Receipt, error)
}

// Job is one upload. The private key never appears here.
type Job struct {
	ProjectID string
	UserID    string
	// Configuration is the training configuration forwarded as JSON.
	Configuration map[string]interface{}
	PublicKey     *paillier.PublicKey
	Payload       *payload.Payload
	// Filename names the file part; defaults to "dataset.enc".
	Filename string
}

// Receipt is the backend's answer to a successful upload.
type Receipt struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Client posts jobs as multipart/form-data to <baseURL>/upload.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Submitter = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewFromEnv creates a client from MODELHUB_BACKEND_URL.
// Returns nil when the variable is unset.
func NewFromEnv() *Client {
	url := os.Getenv("MODELHUB_BACKEND_URL")
	if url == "" {
		return nil
	}
	return NewClient(url, 0)
}

func (c *Client) Submit(ctx context.Context, job Job) (*Receipt, error) {
	if job.Payload == nil || job.PublicKey == nil {
		return nil, fmt.Errorf("submit: payload and public key are required")
	}

	body, contentType, err := encodeJob(job)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d: %s", ErrBackend, resp.StatusCode, string(b))
	}

	r := &Receipt{StatusCode: resp.StatusCode}
	if json.Valid(b) {
		r.Body = b
	}
	return r, nil
}

func encodeJob(job Job) (*bytes.Buffer, string, error) {
	conf := make(map[string]interface{}, len(job.Configuration)+1)
	for k, v := range job.Configuration {
		conf[k] = v
	}
	if job.UserID != "" {
		conf["userId"] = job.UserID
	}
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return nil, "", fmt.Errorf("encode configuration: %w", err)
	}
	keyJSON, err := json.Marshal(job.PublicKey)
	if err != nil {
		return nil, "", fmt.Errorf("encode public key: %w", err)
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := [][2]string{
		{"configuration", string(confJSON)},
		{"project_id", job.ProjectID},
		{"public_key", string(keyJSON)},
		{"payload_format", string(job.Payload.Format)},
	}
	if job.Payload.Format == payload.FormatLegacy {
		lengths, err := json.Marshal(job.Payload.DigitLengths)
		if err != nil {
			return nil, "", err
		}
		fields = append(fields, [2]string{"digit_lengths", string(lengths)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	filename := job.Filename
	if filename == "" {
		filename = "dataset.enc"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "application/octet-stream")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(job.Payload.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

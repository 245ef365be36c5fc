package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/utils"
)

// Chunk kinds accepted by the upload endpoint.
const (
	KindVideo        = "video"
	KindScreen       = "screen"
	KindEditorEvents = "editor_events"
)

// Face flag types.
const (
	FlagNoFace        = "no_face"
	FlagMultipleFaces = "multiple_faces"
)

const finalUploadRetries = 3

// Client streams recorded media and proctoring data to the interview backend.
// Streaming chunk and face-flag uploads are best-effort: failures are logged and
// swallowed so an upload never interrupts a live recording. Only StartAttempt,
// UploadFinal and Finish report errors to the caller.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *logrus.Logger
}

func NewClient(baseURL, token string, l *logrus.Logger) *Client {
	if l == nil {
		l = logrus.New()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  l,
	}
}

type startRequest struct {
	SimulationID int64 `json:"simulation_id"`
}

type startResponse struct {
	AttemptID int64 `json:"attempt_id"`
}

// StartAttempt registers a new interview attempt and returns its id.
func (c *Client) StartAttempt(ctx context.Context, simulationID int64) (int64, error) {
	const op = "upload.StartAttempt"

	body, _ := json.Marshal(startRequest{SimulationID: simulationID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/video-interviews/start", bytes.NewReader(body))
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http().Do(req)
	if err != nil {
		return 0, utils.E(utils.CodeUnavailable, op, "could not reach interview server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, utils.E(utils.CodeUnavailable, op, ErrorDetail(resp), nil)
	}

	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, utils.E(utils.CodeInternal, op, "invalid start response", err)
	}
	if out.AttemptID == 0 {
		return 0, utils.E(utils.CodeInternal, op, "start response missing attempt_id", nil)
	}
	return out.AttemptID, nil
}

// Upload sends one recorded chunk without blocking the caller. Network errors
// are logged and dropped: recording is live and stale data is never retried.
func (c *Client) Upload(attemptID int64, kind string, payload []byte) {
	go func() {
		if err := c.uploadChunk(context.Background(), attemptID, kind, payload); err != nil {
			c.Logger.WithFields(logrus.Fields{
				"attempt_id": attemptID,
				"kind":       kind,
				"bytes":      len(payload),
			}).WithError(err).Warn("chunk upload dropped")
		}
	}()
}

// UploadFinal delivers the end-of-session proctoring summary as a single
// editor_events chunk. Unlike streaming chunks this payload is audit-critical,
// so failures propagate after a few short retries.
func (c *Client) UploadFinal(ctx context.Context, attemptID int64, summary []byte) error {
	const op = "upload.UploadFinal"

	var last error
	for attempt := 1; attempt <= finalUploadRetries; attempt++ {
		last = c.uploadChunk(ctx, attemptID, KindEditorEvents, summary)
		if last == nil {
			return nil
		}
		c.Logger.WithFields(logrus.Fields{
			"attempt_id": attemptID,
			"try":        attempt,
		}).WithError(last).Warn("final summary upload failed")

		select {
		case <-ctx.Done():
			return utils.E(utils.CodeTimeout, op, "final upload cancelled", ctx.Err())
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return last
}

// Finish tells the backend the attempt is complete. Called exactly once after
// the final summary upload attempt.
func (c *Client) Finish(ctx context.Context, attemptID int64) error {
	const op = "upload.Finish"

	url := fmt.Sprintf("%s/api/video-interviews/finish/%d", c.BaseURL, attemptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	c.authorize(req)

	resp, err := c.http().Do(req)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "could not reach interview server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.E(utils.CodeUnavailable, op, ErrorDetail(resp), nil)
	}
	return nil
}

// FaceFlag fires a best-effort proctoring ping. Never blocks, never fails.
func (c *Client) FaceFlag(attemptID int64, flagType string, faceCount int) {
	go func() {
		body, _ := json.Marshal(map[string]any{
			"flag_type":    flagType,
			"face_count":   faceCount,
			"timestamp_ms": time.Now().UnixMilli(),
		})
		url := fmt.Sprintf("%s/api/video-interviews/face-flag/%d", c.BaseURL, attemptID)
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.http().Do(req)
		if err != nil {
			c.Logger.WithField("attempt_id", attemptID).WithError(err).Warn("face flag dropped")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.Logger.WithFields(logrus.Fields{
				"attempt_id": attemptID,
				"status":     resp.StatusCode,
			}).Warn("face flag rejected")
		}
	}()
}

func (c *Client) uploadChunk(ctx context.Context, attemptID int64, kind string, payload []byte) error {
	const op = "upload.uploadChunk"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode form", err)
	}
	fw, err := mw.CreateFormFile("chunk", kind+".chunk")
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode form", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode form", err)
	}
	if err := mw.Close(); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode form", err)
	}

	url := fmt.Sprintf("%s/api/video-interviews/upload-chunk/%d", c.BaseURL, attemptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http().Do(req)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "could not reach interview server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.E(utils.CodeUnavailable, op, ErrorDetail(resp), nil)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) http() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// ErrorDetail extracts a human-readable message from a backend error response.
// It understands both this server's {code,message} shape and the legacy
// {detail} shape, where detail may be a plain string or a list of issues.
// Raw bodies and stack traces never leak through.
func ErrorDetail(resp *http.Response) string {
	fallback := fmt.Sprintf("server returned %s", resp.Status)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return fallback
	}

	var envelope struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fallback
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	if len(envelope.Detail) == 0 {
		return fallback
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil && s != "" {
		return s
	}

	var issues []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &issues); err == nil && len(issues) > 0 {
		parts := make([]string, 0, len(issues))
		for _, is := range issues {
			if is.Msg != "" {
				parts = append(parts, is.Msg)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return fallback
}

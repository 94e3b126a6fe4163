// Package minimax is a small client for the MiniMax video generation API: submit a prompt,
// poll the task, resolve the generated file to a download URL and fetch the video.
package minimax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/cat-video-bot/telemetry"
)

// DefaultModel is the video model requested when Client.Model is empty.
const DefaultModel = "video-01"

// Client is stateless apart from its reference image picker and safe for concurrent use.
type Client struct {
	APIKey     string
	GroupID    string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Images     *ReferenceImages
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type baseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type submitRequest struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	PromptOptimizer bool   `json:"prompt_optimizer"`
	FirstFrameImage string `json:"first_frame_image,omitempty"`
}

// Submit starts a generation task for prompt and returns the remote task id.
func (c *Client) Submit(ctx context.Context, prompt string) (taskID string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "minimax.submit")
	defer func() { telemetry.EndSpan(span, err) }()

	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	reqBody := submitRequest{Prompt: prompt, Model: model, PromptOptimizer: true}
	if c.Images != nil {
		img, err := c.Images.DataURI()
		if err != nil {
			return "", fmt.Errorf("reference image: %w", err)
		}
		reqBody.FirstFrameImage = img
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/video_generation", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req, "submit")
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &TransportError{Op: "submit", StatusCode: status, Body: truncate(body)}
	}
	var out struct {
		TaskID   *string  `json:"task_id"`
		BaseResp baseResp `json:"base_resp"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &RemoteProtocolError{Op: "submit", Msg: "undecodable response: " + err.Error()}
	}
	if out.TaskID == nil || *out.TaskID == "" {
		return "", &RemoteProtocolError{Op: "submit", Msg: "no task_id in response" + remoteMsg(out.BaseResp)}
	}
	span.SetAttributes(attribute.String("task_id", *out.TaskID))
	return *out.TaskID, nil
}

// Poll returns the task's decoded status and, once it succeeded, the generated file id.
func (c *Client) Poll(ctx context.Context, taskID string) (st Status, fileID string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "minimax.poll", attribute.String("task_id", taskID))
	defer func() { telemetry.EndSpan(span, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/query/video_generation", nil)
	if err != nil {
		return "", "", err
	}
	q := req.URL.Query()
	q.Set("task_id", taskID)
	req.URL.RawQuery = q.Encode()

	body, status, err := c.do(req, "poll")
	if err != nil {
		return "", "", err
	}
	if status < 200 || status > 299 {
		return "", "", &TransportError{Op: "poll", StatusCode: status, Body: truncate(body)}
	}
	var out struct {
		Status   *string  `json:"status"`
		FileID   string   `json:"file_id"`
		BaseResp baseResp `json:"base_resp"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", &RemoteProtocolError{Op: "poll", Msg: "undecodable response: " + err.Error()}
	}
	if out.Status == nil {
		return "", "", &RemoteProtocolError{Op: "poll", Msg: "no status in response" + remoteMsg(out.BaseResp)}
	}
	st = ParseStatus(*out.Status)
	if st == StatusUnknown {
		slog.Warn("unrecognized task status", slog.String("task_id", taskID), slog.String("status", *out.Status), slog.String("component", "minimax"))
	}
	slog.Debug("status check", slog.String("task_id", taskID), slog.String("status", *out.Status), slog.String("file_id", out.FileID), slog.String("component", "minimax"))
	if st == StatusSuccess {
		fileID = out.FileID
	}
	span.SetAttributes(attribute.String("status", st.String()))
	return st, fileID, nil
}

// ResolveDownloadURL looks up the download URL for a generated file.
func (c *Client) ResolveDownloadURL(ctx context.Context, fileID string) (u string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "minimax.resolve", attribute.String("file_id", fileID))
	defer func() { telemetry.EndSpan(span, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/files/retrieve", nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("GroupId", c.GroupID)
	q.Set("file_id", fileID)
	req.URL.RawQuery = q.Encode()

	body, status, err := c.do(req, "resolve")
	if err != nil {
		return "", err
	}
	var out struct {
		File struct {
			DownloadURL string `json:"download_url"`
		} `json:"file"`
		BaseResp baseResp `json:"base_resp"`
	}
	decodeErr := json.Unmarshal(body, &out)
	if status != http.StatusOK {
		msg := out.BaseResp.StatusMsg
		if decodeErr != nil || msg == "" {
			msg = "Unknown error"
		}
		return "", &RemoteProtocolError{Op: "resolve", Msg: fmt.Sprintf("failed to get video URL (http %d): %s", status, msg)}
	}
	if decodeErr != nil {
		return "", &RemoteProtocolError{Op: "resolve", Msg: "undecodable response: " + decodeErr.Error()}
	}
	if out.File.DownloadURL == "" {
		return "", &RemoteProtocolError{Op: "resolve", Msg: "no download_url in response" + remoteMsg(out.BaseResp)}
	}
	return out.File.DownloadURL, nil
}

// Download fetches url into dest. It never returns an error: failures are logged and reported
// as false because the caller can only tell the user that delivery failed.
func (c *Client) Download(ctx context.Context, url, dest string) bool {
	var ok bool
	telemetry.TimeFunc(telemetry.DownloadDuration, func() { ok = c.download(ctx, url, dest) })
	telemetry.ObserveDownload(ok)
	return ok
}

func (c *Client) download(ctx context.Context, url, dest string) bool {
	logger := slog.Default().With(slog.String("component", "minimax"), slog.String("dest", dest))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error("error downloading video", slog.Any("err", err))
		return false
	}
	resp, err := c.http().Do(req)
	if err != nil {
		logger.Error("error downloading video", slog.Any("err", err))
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		logger.Error("failed to download video", slog.Int("status", resp.StatusCode))
		return false
	}
	f, err := os.Create(dest)
	if err != nil {
		logger.Error("error creating video file", slog.Any("err", err))
		return false
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("error writing video file", slog.Any("err", err))
		return false
	}
	logger.Info("video downloaded", slog.Int64("bytes", n))
	return true
}

// do sends an authenticated API request and returns the raw body and HTTP status.
// Only network-level failures are returned as errors.
func (c *Client) do(req *http.Request, op string) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	start := time.Now()
	resp, err := c.http().Do(req)
	telemetry.ObserveAPIRequest(op, time.Since(start))
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return body, resp.StatusCode, nil
}

func remoteMsg(br baseResp) string {
	if br.StatusMsg == "" {
		return ""
	}
	return fmt.Sprintf(" (remote %d: %s)", br.StatusCode, br.StatusMsg)
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

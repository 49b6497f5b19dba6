package pdfxl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/pdfxl/internal/poller"
)

// taskIDPlaceholder is substituted with the escaped task handle in the
// status path.
const taskIDPlaceholder = "{task_id}"

// Submitter sends a batch to the conversion service and returns the handle
// the server assigned to it.
//
// progress may be called any number of times with the bytes handed to the
// transport so far; implementations that cannot measure progress may skip
// it. Errors should be *Error values of kind [KindUploadTransport] or
// [KindUploadServer]; anything else is treated as a transport failure.
type Submitter interface {
	Submit(ctx context.Context, batch Batch, progress func(sent, total int64)) (TaskHandle, error)
}

// StatusOracle reports the processing state of a submitted batch.
//
// Errors should be *Error values of kind [KindPollTransport] or
// [KindPollParse]; anything else is treated as a transport failure.
type StatusOracle interface {
	Status(ctx context.Context, handle TaskHandle) (ProgressSnapshot, error)
}

// httpTransport implements [Submitter] and [StatusOracle] against the
// service's HTTP API.
type httpTransport struct {
	client        *poller.Client
	base          *url.URL
	uploadPath    string
	statusPath    string
	headers       map[string]string
	uploadTimeout time.Duration
	pollTimeout   time.Duration
	logger        *slog.Logger
}

func (t *httpTransport) Submit(ctx context.Context, batch Batch, progress func(sent, total int64)) (TaskHandle, error) {
	body, err := poller.NewMultipartBody(batch.parts())
	if err != nil {
		return "", newError(KindValidation, "", 0, err)
	}

	target := t.resolve(t.uploadPath)
	resp := t.client.Upload(ctx, target, t.headers, body, poller.ProgressFunc(progress), t.uploadTimeout)

	logAttrs := []any{
		"url", target,
		"files", len(batch),
		"bytes", body.Size(),
		"status_code", resp.StatusCode,
		"latency_ms", resp.Latency.Milliseconds(),
	}

	if resp.Error != nil {
		t.logger.Warn("upload failed", append(logAttrs, "error", resp.Error.Error())...)
		return "", newError(KindUploadTransport, "", 0, resp.Error)
	}
	if !resp.OK() {
		t.logger.Warn("upload rejected", logAttrs...)
		return "", newError(KindUploadServer, errorMessageFrom(resp.Body), resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	handle, err := decodeTaskHandle(resp.Body)
	if err != nil {
		t.logger.Warn("upload response unrecognized", append(logAttrs, "error", err.Error())...)
		return "", newError(KindUploadServer, errorMessageFrom(resp.Body), resp.StatusCode, err)
	}

	t.logger.Debug("upload accepted", append(logAttrs, "task_id", string(handle))...)
	return handle, nil
}

func (t *httpTransport) Status(ctx context.Context, handle TaskHandle) (ProgressSnapshot, error) {
	path := strings.ReplaceAll(t.statusPath, taskIDPlaceholder, url.PathEscape(string(handle)))
	target := t.resolve(path)

	resp := t.client.Fetch(ctx, "", target, t.headers, t.pollTimeout)
	if resp.Error != nil {
		return ProgressSnapshot{}, newError(KindPollTransport, "", 0, resp.Error)
	}
	if !resp.OK() {
		return ProgressSnapshot{}, newError(KindPollTransport, "", resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	snap, err := decodeSnapshot(resp.Body)
	if err != nil {
		return ProgressSnapshot{}, newError(KindPollParse, "", resp.StatusCode, err)
	}
	return snap, nil
}

// resolve joins a path or absolute URL against the base URL.
func (t *httpTransport) resolve(ref string) string {
	return resolveLocator(t.base, ref)
}

// resolveLocator resolves ref against base. Absolute URLs are returned as
// is. A result that is not an http(s) URL or a relative path, or that does
// not parse, resolves to "".
func resolveLocator(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
		return u.String()
	}
	return ""
}

// parseBaseURL validates a server base URL.
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("server URL must use http or https scheme")
	}
	if u.Host == "" {
		return nil, errors.New("server URL must include a host")
	}
	return u, nil
}

// asKind converts err into an *Error, defaulting to fallback for foreign
// errors returned by custom collaborators.
func asKind(err error, fallback ErrorKind) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(fallback, "", 0, err)
}

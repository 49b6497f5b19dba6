package pdfxl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// errorPaths are the body fields tried, in order, for a server error message.
var errorPaths = []string{"error", "error.message", "message"}

// decodeTaskHandle extracts a non-empty "task_id" string from a submission
// response body.
func decodeTaskHandle(body []byte) (TaskHandle, error) {
	var resp struct {
		TaskID *string `json:"task_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding submission response: %w", err)
	}
	if resp.TaskID == nil {
		return "", errors.New("submission response has no task_id")
	}
	id := strings.TrimSpace(*resp.TaskID)
	if id == "" {
		return "", errors.New("submission response has an empty task_id")
	}
	return TaskHandle(id), nil
}

// decodeSnapshot decodes a status response body. "done" must be present;
// counts default to zero when absent.
func decodeSnapshot(body []byte) (ProgressSnapshot, error) {
	var resp struct {
		Processed *int     `json:"processed"`
		Total     *int     `json:"total"`
		Done      *bool    `json:"done"`
		Downloads []string `json:"downloads"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ProgressSnapshot{}, fmt.Errorf("decoding status response: %w", err)
	}
	if resp.Done == nil {
		return ProgressSnapshot{}, errors.New("status response has no done flag")
	}

	snap := ProgressSnapshot{Done: *resp.Done, Downloads: resp.Downloads}
	if resp.Processed != nil {
		snap.Processed = *resp.Processed
	}
	if resp.Total != nil {
		snap.Total = *resp.Total
	}
	return snap, nil
}

// checkSnapshot enforces the count invariants of a decoded snapshot.
func checkSnapshot(s ProgressSnapshot) error {
	if s.Processed < 0 || s.Total < 0 {
		return fmt.Errorf("negative counts: processed=%d total=%d", s.Processed, s.Total)
	}
	if s.Total > 0 && s.Processed > s.Total {
		return fmt.Errorf("processed %d exceeds total %d", s.Processed, s.Total)
	}
	return nil
}

// errorMessageFrom returns the first non-empty string found at errorPaths in
// a JSON body, or "" if the body is not JSON or carries no message.
func errorMessageFrom(body []byte) string {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	for _, path := range errorPaths {
		if msg := strings.TrimSpace(extractJSONString(data, strings.Split(path, "."))); msg != "" {
			return msg
		}
	}
	return ""
}

// extractJSONString walks a JSON structure using dot notation parts and
// returns the string found there.
func extractJSONString(data interface{}, parts []string) string {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	s, _ := current.(string)
	return s
}

// Package screening calls the AI document screening endpoint that classifies
// uploaded file answers. It is a best-effort side branch: a failure or
// timeout degrades to a disabled verdict and never blocks the file write
// that already succeeded.
package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ModeWarn     = "warn"
	ModeBlock    = "block"
	ModeDisabled = "disabled"
)

// Verdict is the screening result for one uploaded file.
type Verdict struct {
	Valid       bool   `json:"valid"`
	Legible     bool   `json:"legible"`
	CorrectType bool   `json:"correctType"`
	Message     string `json:"message"`
	Mode        string `json:"mode"`
}

// Blocks reports whether this verdict must prevent the save action.
func (v Verdict) Blocks() bool {
	return v.Mode == ModeBlock && !v.Valid
}

type Service struct {
	baseURL string
	apiKey  string
	mode    string
	client  *http.Client
}

// New creates a screening service. An empty baseURL disables screening
// entirely; every call then returns a disabled verdict.
func New(baseURL, apiKey, mode string, timeout time.Duration) *Service {
	if mode != ModeWarn && mode != ModeBlock {
		mode = ModeDisabled
	}
	if baseURL == "" {
		mode = ModeDisabled
	}
	return &Service{
		baseURL: baseURL,
		apiKey:  apiKey,
		mode:    mode,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Service) Enabled() bool {
	return s.mode != ModeDisabled
}

// ScreenFile asks the screening endpoint whether the uploaded document looks
// like the item expects. Transport or decode failures are logged and come
// back as a disabled verdict.
func (s *Service) ScreenFile(ctx context.Context, fileURL, itemName, itemType string) Verdict {
	if !s.Enabled() {
		return Verdict{Valid: true, Legible: true, CorrectType: true, Mode: ModeDisabled}
	}

	payload, err := json.Marshal(map[string]string{
		"fileUrl":  fileURL,
		"itemName": itemName,
		"itemType": itemType,
	})
	if err != nil {
		return s.degrade(fileURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/screen", bytes.NewReader(payload))
	if err != nil {
		return s.degrade(fileURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.degrade(fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.degrade(fileURL, fmt.Errorf("screening endpoint returned %d", resp.StatusCode))
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return s.degrade(fileURL, err)
	}
	if verdict.Mode == "" {
		verdict.Mode = s.mode
	}
	return verdict
}

func (s *Service) degrade(fileURL string, err error) Verdict {
	logrus.WithField("file", fileURL).Warnf("screening: degrading to disabled: %v", err)
	return Verdict{Valid: true, Legible: true, CorrectType: true, Mode: ModeDisabled}
}

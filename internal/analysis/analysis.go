// Package analysis implements the pipeline's sole network call to the
// remote vehicle-recognition inference endpoint: it sends an already
// uploaded image's storage key and a few identifying fields, and parses
// back a recognition result per detected vehicle.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/racetagger/pipeline/pkg/models"
)

// Timeout bounds a single invocation end to end; there are no retries at
// this layer, and a failed invocation fails that image's Analyzing stage.
const Timeout = 60 * time.Second

// Request is the payload sent to the inference endpoint.
type Request struct {
	StorageKey        string `json:"storageKey"`
	OriginalFilename  string `json:"originalFilename"`
	MimeType          string `json:"mimeType"`
	SizeBytes         int64  `json:"sizeBytes"`
	ModelName         string `json:"modelName"`
	Category          string `json:"category"`
	UserID            string `json:"userId,omitempty"`
	ExecutionID       string `json:"executionId,omitempty"`
	ParticipantPreset string `json:"participantPreset,omitempty"`
}

type rawResponse struct {
	Success  bool            `json:"success"`
	ImageID  string          `json:"imageId"`
	Analysis []rawRecognized `json:"analysis"`
}

type rawRecognized struct {
	RaceNumber *string      `json:"raceNumber"`
	Drivers    []string     `json:"drivers"`
	Team       string       `json:"team"`
	Category   string       `json:"category"`
	OtherText  string       `json:"otherText"`
	Confidence float64      `json:"confidence"`
	Plate      *string      `json:"plate"`
	Box        *rawBoundingBox `json:"box"`
}

type rawBoundingBox struct {
	X, Y, Width, Height float64
}

// Error is returned for RPC timeouts, non-success responses, or
// transport-level HTTP errors. It carries the endpoint and protocol
// version so a caller can log which inference target failed.
type Error struct {
	Endpoint string
	Version  string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis: %s (endpoint=%s version=%s)", e.Cause, e.Endpoint, e.Version)
}

func (e *Error) Unwrap() error { return e.Cause }

// Endpoints maps a sport category's declared protocol version to the
// inference endpoint that implements it. v3+ endpoints additionally
// return bounding-box annotations.
type Endpoints struct {
	V2 string
	V3 string
	V4 string
}

// Client calls the inference endpoint over HTTP.
type Client struct {
	HTTP      *http.Client
	Endpoints Endpoints
}

// NewClient builds a Client with Timeout as its HTTP client deadline.
func NewClient(endpoints Endpoints) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: Timeout},
		Endpoints: endpoints,
	}
}

func (c *Client) endpointFor(protocolVersion string) (string, string) {
	switch protocolVersion {
	case "v3":
		return c.Endpoints.V3, "v3"
	case "v4":
		return c.Endpoints.V4, "v4"
	default:
		return c.Endpoints.V2, "v2"
	}
}

// Analyze sends req to the endpoint selected by protocolVersion and
// parses the response into a RecognitionResult.
func (c *Client) Analyze(ctx context.Context, protocolVersion string, req Request) (models.RecognitionResult, error) {
	endpoint, version := c.endpointFor(protocolVersion)

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: fmt.Errorf("encoding request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: fmt.Errorf("building request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var raw rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: fmt.Errorf("decoding response: %w", err)}
	}
	if !raw.Success {
		return models.RecognitionResult{}, &Error{Endpoint: endpoint, Version: version, Cause: fmt.Errorf("endpoint reported failure")}
	}

	result := models.RecognitionResult{
		Success:  true,
		ImageID:  raw.ImageID,
		Vehicles: make([]models.VehicleRecognition, 0, len(raw.Analysis)),
	}
	for _, a := range raw.Analysis {
		v := models.VehicleRecognition{
			Drivers:    a.Drivers,
			Team:       a.Team,
			Category:   a.Category,
			OtherText:  a.OtherText,
			Confidence: a.Confidence,
		}
		if a.RaceNumber != nil {
			v.RaceNumber = *a.RaceNumber
			v.HasNumber = true
		}
		if a.Plate != nil {
			v.Plate = *a.Plate
			v.HasPlate = true
		}
		if a.Box != nil {
			v.Box = &models.BoundingBox{X: a.Box.X, Y: a.Box.Y, Width: a.Box.Width, Height: a.Box.Height}
		}
		result.Vehicles = append(result.Vehicles, v)
	}

	return result, nil
}

package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/deface/internal/geometry"
)

const defaultInferenceURL = "http://localhost:8000"

// Client talks to the inference sidecar that hosts the face detector,
// the person detector and the ReID embedding model. It implements
// FaceDetector, PersonDetector and EmbeddingExtractor.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new inference client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultInferenceURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// wireDetection is the sidecar's detection shape: [x1, y1, x2, y2] plus score.
type wireDetection struct {
	BBox  []float64 `json:"bbox"`
	Score float64   `json:"score"`
}

type wirePersonDetection struct {
	BBox    []float64 `json:"bbox"`
	ClassID int       `json:"class_id"`
	Score   float64   `json:"score"`
}

type faceResponse struct {
	Faces []wireDetection `json:"faces"`
	Model string          `json:"model"`
}

type personResponse struct {
	Detections []wirePersonDetection `json:"detections"`
	Model      string                `json:"model"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
	Model     string    `json:"model"`
}

// DetectFaces runs the face detector on a frame. The threshold is forwarded
// to the sidecar, which drops detections below it.
func (c *Client) DetectFaces(ctx context.Context, frame *image.RGBA, threshold float64) ([]Detection, error) {
	fields := map[string]string{"threshold": strconv.FormatFloat(threshold, 'f', -1, 64)}
	body, err := c.postFrame(ctx, "/detect/faces", frame, fields)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse face response: %w", err)
	}

	dets := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		box, ok := normalizeBBox(f.BBox)
		if !ok {
			continue
		}
		dets = append(dets, Detection{Box: box, Score: f.Score})
	}
	return dets, nil
}

// DetectPersons runs the person detector on a frame. All classes are
// returned; callers filter with Persons.
func (c *Client) DetectPersons(ctx context.Context, frame *image.RGBA) ([]PersonDetection, error) {
	body, err := c.postFrame(ctx, "/detect/persons", frame, nil)
	if err != nil {
		return nil, err
	}

	var resp personResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse person response: %w", err)
	}

	dets := make([]PersonDetection, 0, len(resp.Detections))
	for _, p := range resp.Detections {
		box, ok := normalizeBBox(p.BBox)
		if !ok {
			continue
		}
		dets = append(dets, PersonDetection{Box: box, ClassID: p.ClassID, Score: p.Score})
	}
	return dets, nil
}

// ExtractEmbedding computes the ReID embedding for a crop.
func (c *Client) ExtractEmbedding(ctx context.Context, crop *image.RGBA) (Embedding, error) {
	body, err := c.postFrame(ctx, "/embed/person", crop, nil)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return Embedding(resp.Embedding), nil
}

// normalizeBBox converts a wire bbox into a Box, rejecting malformed or
// degenerate boxes so a flaky sidecar cannot poison the frame loop.
func normalizeBBox(bbox []float64) (geometry.Box, bool) {
	if len(bbox) != 4 {
		return geometry.Box{}, false
	}
	box := geometry.Box{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}
	if box.Area() <= 0 {
		return geometry.Box{}, false
	}
	return box, true
}

// postFrame JPEG-encodes the frame and posts it as a multipart form to the
// given endpoint, with optional extra form fields.
func (c *Client) postFrame(ctx context.Context, endpoint string, frame *image.RGBA, fields map[string]string) ([]byte, error) {
	imageData, err := EncodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

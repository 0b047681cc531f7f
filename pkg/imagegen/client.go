// Package imagegen renders promotional poster images from a visual prompt.
//
// The primary generator calls an OpenAI-compatible image endpoint; when the
// endpoint is unreachable or unconfigured, a deterministic local placeholder
// keeps the pipeline producing a poster file.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kafeai/brigade/pkg/errors"
)

// Generator produces PNG image bytes for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Client calls an OpenAI-style POST /images/generations endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an image generation client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type generateResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.New(errors.CodeInvalidInput, "image api key is not configured", nil)
	}
	payload, err := json.Marshal(generateRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "image request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "read image response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("image api returned %d: %s", resp.StatusCode, body), nil)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.New(errors.CodeParse, "decode image response", err)
	}
	if len(parsed.Data) == 0 {
		return nil, errors.New(errors.CodeParse, "image response has no data", nil)
	}
	if parsed.Data[0].B64JSON != "" {
		img, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
		if err != nil {
			return nil, errors.New(errors.CodeParse, "decode image payload", err)
		}
		return img, nil
	}
	if parsed.Data[0].URL != "" {
		return c.download(ctx, parsed.Data[0].URL)
	}
	return nil, errors.New(errors.CodeParse, "image response has neither url nor payload", nil)
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "image download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("image download returned %d", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// Placeholder renders a deterministic gradient PNG from the prompt, so the
// same prompt always yields the same bytes. It never fails and needs no
// network access.
type Placeholder struct {
	Width  int
	Height int
}

// NewPlaceholder creates a placeholder generator with poster dimensions.
func NewPlaceholder() *Placeholder {
	return &Placeholder{Width: 512, Height: 768}
}

// Generate implements Generator.
func (p *Placeholder) Generate(_ context.Context, prompt string) ([]byte, error) {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	seed := h.Sum32()
	base := color.RGBA{
		R: uint8(seed >> 16),
		G: uint8(seed >> 8),
		B: uint8(seed),
		A: 255,
	}

	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		shade := uint8((y * 160) / p.Height)
		c := color.RGBA{
			R: base.R/2 + shade/2,
			G: base.G/2 + shade/2,
			B: base.B/2 + shade,
			A: 255,
		}
		for x := 0; x < p.Width; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePoster writes poster bytes under dir with the canonical name
// poster_<promoID>_<unix>.png and returns the path.
func SavePoster(dir, promoID string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(errors.CodeStoreError, "create assets dir", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("poster_%s_%d.png", promoID, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.New(errors.CodeStoreError, "write poster", err)
	}
	return path, nil
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = (*Placeholder)(nil)
)

package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"menugen/internal/infra"
)

// ErrRejected marks a generation the provider refused outright, e.g. a prompt
// blocked by content policy. Rejections are terminal and must not be retried.
var ErrRejected = errors.New("provider rejected prompt")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	CacheTTL   time.Duration
}

// Client provides a lightweight facade over Gemini for dish photo generation.
// Responses are cached by prompt so identical dishes across sessions do not
// re-bill the provider. Without an API key the client renders deterministic
// synthetic plates, which keeps the pipeline fully operational in local and CI
// environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	cache      *gocache.Cache
}

// PhotoRequest describes one dish photo to generate.
type PhotoRequest struct {
	Prompt    string
	RequestID string
}

// DishPhoto is the normalized representation returned by the client.
type DishPhoto struct {
	StorageKey string
	Format     string
	Width      int
	Height     int
	Data       []byte
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiTool struct {
	ImageGeneration *struct{} `json:"image_generation,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateDishPhoto produces one photo for the given prompt. A returned error
// other than ErrRejected is retryable by the caller.
func (c *Client) GenerateDishPhoto(ctx context.Context, req PhotoRequest) (*DishPhoto, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("genai: prompt is required")
	}

	cacheKey := deterministicSeed(c.model, prompt)
	if cached, ok := c.cache.Get(cacheKey); ok {
		if photo, ok := cached.(*DishPhoto); ok {
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Msg("genai: dish photo served from cache")
			return photo, nil
		}
	}

	var photo *DishPhoto
	if c.apiKey == "" {
		photo = c.syntheticPhoto(prompt, cacheKey)
	} else {
		remote, err := c.remoteGeneratePhoto(ctx, prompt, req.RequestID)
		if err != nil {
			return nil, err
		}
		photo = remote
	}

	c.cache.SetDefault(cacheKey, photo)
	return photo, nil
}

func (c *Client) syntheticPhoto(prompt, seed string) *DishPhoto {
	const size = 1024
	photo := &DishPhoto{
		StorageKey: fmt.Sprintf("generated/items/%s/dish-%s.png", url.PathEscape(c.model), seed),
		Format:     "image/png",
		Width:      size,
		Height:     size,
		Data:       renderSyntheticDish(size, seed),
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("seed", seed).
		Msg("genai: generated synthetic dish photo")

	return photo
}

func (c *Client) remoteGeneratePhoto(ctx context.Context, prompt, requestID string) (*DishPhoto, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: prompt}},
			},
		},
		Tools: []geminiTool{{ImageGeneration: &struct{}{}}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, response.PromptFeedback.BlockReason)
	}

	for _, candidate := range response.Candidates {
		if reason := strings.ToUpper(candidate.FinishReason); reason == "SAFETY" || reason == "PROHIBITED_CONTENT" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, candidate.FinishReason)
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			format := part.InlineData.MimeType
			if format == "" {
				format = "image/png"
			}
			width, height := decodeImageDimensions(data)
			photo := &DishPhoto{
				StorageKey: fmt.Sprintf("generated/items/%s/dish-%s%s", url.PathEscape(c.model), deterministicSeed(c.model, prompt), extensionForMIME(format)),
				Format:     format,
				Width:      width,
				Height:     height,
				Data:       data,
			}
			c.logger.Debug().
				Str("request_id", requestID).
				Str("model", c.model).
				Msg("genai: generated remote dish photo")
			return photo, nil
		}
	}

	return nil, fmt.Errorf("no image content returned")
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// renderSyntheticDish draws a plate on a seeded backdrop so each dish gets a
// distinct, reproducible placeholder.
func renderSyntheticDish(size int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	backdrop := colorFromSeed(seed, 0)
	garnish := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{backdrop}, image.Point{}, draw.Src)

	plate := color.RGBA{R: 245, G: 242, B: 235, A: 255}
	cx, cy := size/2, size/2
	outer := size * 2 / 5
	inner := size / 4
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-cx, y-cy
			d2 := dx*dx + dy*dy
			if d2 <= inner*inner {
				img.Set(x, y, garnish)
			} else if d2 <= outer*outer {
				img.Set(x, y, plate)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = seed + "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	r := mustParseHexByte(segment[0:2])
	g := mustParseHexByte(segment[2:4])
	b := mustParseHexByte(segment[4:6])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

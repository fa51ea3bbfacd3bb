package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultTimeout = 120 * time.Second
	defaultModel   = "gemini-1.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	maxOutputTokens = 8192
	temperature     = 0.7
)

// ErrGeneration covers backend call failures, unparseable responses, and
// responses missing the itinerary array. Callers treat all of them uniformly.
var ErrGeneration = errors.New("gemini: generation failed")

// Options configures a Client.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls the Gemini generateContent endpoint to produce itineraries.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// ItineraryRequest describes one generation task.
type ItineraryRequest struct {
	Destination   string
	DurationDays  int
	Locale        string
	OriginCountry string
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// NewClient creates a generation client.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// GenerateItinerary asks the model for a structured itinerary and returns the
// parsed itinerary array. The call is attempted exactly once.
func (c *Client) GenerateItinerary(ctx context.Context, req ItineraryRequest) ([]any, error) {
	payload := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: c.buildPrompt(req)}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      temperature,
			MaxOutputTokens:  maxOutputTokens,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGeneration, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrGeneration, resp.StatusCode, detail)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	text := extractText(out)
	if text == "" {
		return nil, fmt.Errorf("%w: empty candidate text", ErrGeneration)
	}
	return parseItinerary(text)
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

func (c *Client) buildPrompt(req ItineraryRequest) string {
	destination := cases.Title(language.Und).String(strings.TrimSpace(req.Destination))
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are an expert travel planner. Create a %d-day itinerary for %s. ", req.DurationDays, destination)
	sb.WriteString("Respond strictly with a JSON object matching this schema: ")
	sb.WriteString(`{"itinerary":[{"day":number,"theme":string,"activities":[{"time":"Morning"|"Afternoon"|"Evening","description":string,"location":string}]}]}`)
	sb.WriteString(". Return only the JSON object, no prose.")
	if req.Locale != "" {
		fmt.Fprintf(sb, " Write descriptions in locale '%s'.", req.Locale)
	}
	if req.OriginCountry != "" {
		fmt.Fprintf(sb, " The traveler departs from country '%s'; keep day 1 realistic for arrival.", req.OriginCountry)
	}
	return sb.String()
}

func extractText(resp generateResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

// parseItinerary decodes the model text and requires an itinerary array.
func parseItinerary(raw string) ([]any, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrGeneration)
	}
	var decoded struct {
		Itinerary json.RawMessage `json:"itinerary"`
	}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrGeneration, err)
	}
	if len(decoded.Itinerary) == 0 {
		return nil, fmt.Errorf("%w: itinerary missing", ErrGeneration)
	}
	var itinerary []any
	if err := json.Unmarshal(decoded.Itinerary, &itinerary); err != nil {
		return nil, fmt.Errorf("%w: itinerary is not an array: %v", ErrGeneration, err)
	}
	if itinerary == nil {
		return nil, fmt.Errorf("%w: itinerary missing", ErrGeneration)
	}
	return itinerary, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel    = "z-ai/glm-4.5-air:free"
	DefaultReferer  = "https://www.upwork.com"
	DefaultTitle    = "jobscope"

	DefaultPrompt = `You are a career assistant for a full-stack developer and technical architect. Profile: MVPs, AI integrations, fast prototyping, pragmatic solutions without over-engineering. Stack: Next.js/React/TypeScript, Node.js/FastAPI, PostgreSQL/Supabase/Redis, n8n/webhooks, OpenAI/Gemini/LangChain, Docker, Cloudflare, OAuth/Stripe, Electron/Tauri. Judge the job against this profile (web/MVP/desktop): complexity versus budget, stack requirements, risks and clarity of the brief. Answer in this format: "WORTH" or "NOT WORTH", always followed by 2-4 concrete reasons. If there is little information, still decide and explain your assumptions.`

	temperature = 0.2
)

// DefaultFallbackModels are tried in order when a paid model is refused
// because of the account's data policy.
var DefaultFallbackModels = []string{
	"meta-llama/llama-3.1-8b-instruct:free",
	"mistralai/mistral-7b-instruct:free",
}

var (
	dataPolicyRe = regexp.MustCompile(`(?i)data policy|no endpoints found`)
	freeModelRe  = regexp.MustCompile(`(?i):free\s*$`)
)

// OpenRouterConfig configures the OpenRouter provider. Zero values take
// the package defaults.
type OpenRouterConfig struct {
	APIKey         string
	Model          string
	Prompt         string
	Endpoint       string
	Referer        string
	Title          string
	FallbackModels []string
	// RetryMax bounds transport-level retries per model.
	RetryMax int
	// Limiter paces calls to the API. Defaults to one call every 2s.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
	Log        Logger
}

// OpenRouter is a Provider backed by the OpenRouter chat completions API.
type OpenRouter struct {
	cfg     OpenRouterConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	log     Logger
}

var _ Provider = (*OpenRouter)(nil)

func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt = strings.TrimSpace(cfg.Prompt); cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultReferer
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = DefaultFallbackModels
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	logger := cfg.Log
	if logger == nil {
		logger = nopLogger{}
	}

	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = cfg.RetryMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	} else {
		client.HTTPClient.Timeout = 90 * time.Second
	}

	return &OpenRouter{cfg: cfg, client: client, limiter: limiter, log: logger}
}

// Models returns the models Evaluate tries, in order. Free models have no
// fallbacks.
func (o *OpenRouter) Models() []string {
	models := []string{o.cfg.Model}
	if !freeModelRe.MatchString(o.cfg.Model) {
		models = append(models, o.cfg.FallbackModels...)
	}
	return models
}

// Evaluate sends the posting to each candidate model until one answers. A
// data policy refusal moves on to the next model; any other failure ends
// the attempt.
func (o *OpenRouter) Evaluate(ctx context.Context, req Request) Result {
	if o.cfg.APIKey == "" {
		return Result{Error: KindMissingAPIKey}
	}

	var lastMessage string
	for _, model := range o.Models() {
		if err := o.limiter.Wait(ctx); err != nil {
			return Result{Error: KindRequestFailed, Message: err.Error(), Details: err.Error()}
		}

		o.log.Debugf("[evaluate] asking %s about %s", model, req.URL)
		status, body, err := o.send(ctx, model, req)
		if err != nil {
			return Result{Error: KindRequestFailed, Message: err.Error(), Details: err.Error()}
		}

		if status >= 200 && status < 300 {
			content := strings.TrimSpace(gjson.GetBytes(body, "choices.0.message.content").String())
			return Result{OK: true, Content: content}
		}

		message := gjson.GetBytes(body, "error.message").String()
		if message == "" {
			message = fmt.Sprintf("request_failed_%d", status)
		}
		lastMessage = message
		if dataPolicyRe.MatchString(message) {
			o.log.Debugf("[evaluate] %s refused by data policy: %s", model, message)
			continue
		}
		return Result{Error: KindRequestFailed, Message: message, Details: providerDetails(status, body, message)}
	}

	if dataPolicyRe.MatchString(lastMessage) {
		return Result{Error: KindDataPolicy, Message: lastMessage, Details: lastMessage}
	}
	return Result{Error: KindRequestFailed, Message: lastMessage, Details: lastMessage}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// UserMessage renders the posting as the user turn of the conversation.
func UserMessage(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n", req.Title, req.URL)
	if req.Skills != "" {
		fmt.Fprintf(&b, "Skills: %s\n", req.Skills)
	}
	fmt.Fprintf(&b, "Description:\n%s", req.Description)
	return b.String()
}

func (o *OpenRouter) send(ctx context.Context, model string, req Request) (int, []byte, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: o.cfg.Prompt},
			{Role: "user", Content: UserMessage(req)},
		},
		Temperature: temperature,
	})
	if err != nil {
		return 0, nil, err
	}

	httpReq, err := retryablehttp.NewRequest(http.MethodPost, o.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	httpReq.Header.Set("HTTP-Referer", o.cfg.Referer)
	httpReq.Header.Set("X-Title", o.cfg.Title)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// providerDetails renders "message (HTTP 400, code=..., type=...,
// provider=...)" from an OpenRouter error body.
func providerDetails(status int, body []byte, message string) string {
	if message == "" {
		message = "Provider error"
	}
	var parts []string
	if status != 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", status))
	}
	if code := gjson.GetBytes(body, "error.code").String(); code != "" {
		parts = append(parts, "code="+code)
	}
	if typ := gjson.GetBytes(body, "error.type").String(); typ != "" {
		parts = append(parts, "type="+typ)
	}
	for _, path := range []string{"error.metadata.provider_name", "error.metadata.provider", "error.metadata.provider_id"} {
		if p := gjson.GetBytes(body, path).String(); p != "" {
			parts = append(parts, "provider="+p)
			break
		}
	}
	if len(parts) == 0 {
		return message
	}
	return fmt.Sprintf("%s (%s)", message, strings.Join(parts, ", "))
}

// ABOUTME: Standalone agent processor for local development and E2E testing
// ABOUTME: Echoes messages by default, or proxies to an OpenAI-compatible model

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/loomhq/session-core/internal/agent"
	"github.com/loomhq/session-core/internal/conversation"
)

func main() {
	addr := flag.String("addr", ":9090", "Listen address")
	backendURL := flag.String("backend", "", "Record store URL for minting conversation ids (optional)")
	backendToken := flag.String("backend-token", "", "Bearer token for the record store")
	model := flag.String("model", "", "Model name for an OpenAI-compatible endpoint (echo mode when empty)")
	baseURL := flag.String("base-url", "", "Base URL of the OpenAI-compatible endpoint")
	token := flag.String("token", os.Getenv("OPENAI_API_KEY"), "API token for the model endpoint")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "fake-agent")

	var llm *openai.LLM
	if *model != "" {
		opts := []openai.Option{openai.WithModel(*model)}
		if *baseURL != "" {
			opts = append(opts, openai.WithBaseURL(*baseURL))
		}
		if *token != "" {
			opts = append(opts, openai.WithToken(*token))
		}
		var err error
		llm, err = openai.New(opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: creating model client: %v\n", err)
			os.Exit(1)
		}
		logger.Info("using model backend", "model", *model)
	} else {
		logger.Info("running in echo mode")
	}

	a := &fakeAgent{
		llm:          llm,
		backendURL:   strings.TrimRight(*backendURL, "/"),
		backendToken: *backendToken,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", a.handleGenerate)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("fake agent listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type fakeAgent struct {
	llm          *openai.LLM
	backendURL   string
	backendToken string
	client       *http.Client
	logger       *slog.Logger
}

func (a *fakeAgent) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = a.mintConversationID(r.Context())
		a.logger.Info("assigned conversation id", "conversation_id", convID)
	}

	answer, err := a.answer(r.Context(), req.Messages)

	resp := agent.Response{ConversationID: convID}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Data = &agent.ResponseData{
			Answer:         answer,
			ConversationID: convID,
			Metadata:       map[string]any{"conversationId": convID},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// answer produces a reply from the model, or echoes the last user message.
func (a *fakeAgent) answer(ctx context.Context, messages []conversation.Message) (string, error) {
	last := ""
	for _, m := range messages {
		if m.Role == conversation.RoleUser {
			last = m.Content
		}
	}

	if a.llm == nil {
		if last == "" {
			return "Hello! Send me a message.", nil
		}
		return fmt.Sprintf("Echo: %s", last), nil
	}

	var prompt strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&prompt, "%s: %s\n", m.Role, m.Content)
	}
	prompt.WriteString("assistant:")

	return llms.GenerateFromSinglePrompt(ctx, a.llm, prompt.String())
}

// mintConversationID creates a real backend conversation when a record store
// is configured, otherwise generates a bare uuid.
func (a *fakeAgent) mintConversationID(ctx context.Context) string {
	if a.backendURL == "" {
		return uuid.NewString()
	}

	body, _ := json.Marshal(map[string]string{"title": "Agent-created conversation"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.backendURL+"/conversations", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("building mint request failed", "error", err)
		return uuid.NewString()
	}
	req.Header.Set("Content-Type", "application/json")
	if a.backendToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.backendToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("minting conversation failed", "error", err)
		return uuid.NewString()
	}
	defer resp.Body.Close()

	var conv struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil || conv.ID == "" {
		a.logger.Warn("decoding minted conversation failed", "error", err)
		return uuid.NewString()
	}
	return conv.ID
}

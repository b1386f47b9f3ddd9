package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// maxPromptTokens bounds the evidence handed to the model; evidence past
// the budget is cut, never the question.
const maxPromptTokens = 3500

const systemPrompt = `You are an assistant answering questions about campus placement interviews.
Answer ONLY from the provided interview experiences. Quote questions and tips as the candidates wrote them.
If the experiences do not contain the answer, say 'The recorded experiences do not cover this.'
Do not add introductions or information from outside the provided context.`

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Agent generates answers through a local Ollama server. It satisfies
// rag.Generator; wiring it in is optional and the extractive synthesizer
// serves alone without it.
type Agent struct {
	url    string
	model  string
	client *http.Client
}

func New(url, model string) *Agent {
	return &Agent{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Agent) Generate(ctx context.Context, evidence, question string) (string, error) {
	start := time.Now()
	defer func() {
		log.Printf("[AGENT] generation took %v", time.Since(start))
	}()

	evidence = trimToBudget(evidence)
	prompt := fmt.Sprintf(`Answer the question based on the interview experiences below.

Experiences:
%s
Question:
%s
Answer:`, evidence, question)

	reqBody, err := json.Marshal(GenerateRequest{
		Model:  a.model,
		System: systemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to reach generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation backend error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Ollama may answer in one object or as a stream of chunks; collect
	// either into one string.
	var b bytes.Buffer
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if b.Len() == 0 {
		return "", errors.New("generation backend returned an empty answer")
	}
	return b.String(), nil
}

func trimToBudget(evidence string) string {
	// A token covers at least one byte, so short evidence cannot exceed
	// the budget.
	if len(evidence) <= maxPromptTokens {
		return evidence
	}
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return evidence
	}
	tokens := enc.Encode(evidence, nil, nil)
	if len(tokens) <= maxPromptTokens {
		return evidence
	}
	log.Printf("[AGENT] evidence trimmed from %d to %d tokens", len(tokens), maxPromptTokens)
	return enc.Decode(tokens[:maxPromptTokens])
}

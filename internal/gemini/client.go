// Package gemini is a thin JSON client for the Gemini generateContent
// API. Every call is a single attempt with no retry: callers treat
// failures as a best-effort gap, never a hard error.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medix/medix-server/pkg/models"
)

type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate sends one prompt and returns the first candidate's text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", models.Wrap(models.KindUpstream, err, "calling Gemini")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", models.E(models.KindUpstream, "Gemini returned status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", models.Wrap(models.KindUpstream, err, "decoding Gemini response")
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", models.E(models.KindUpstream, "Gemini returned no candidates")
	}
	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// AnalyzeSymptoms asks Gemini to reconcile the ranked predictions with
// the patient's reported symptoms. One attempt; on any failure the
// caller degrades to the top prediction.
func (c *Client) AnalyzeSymptoms(ctx context.Context, predictions []models.Prediction, symptoms string, user *models.User) (*models.Refinement, error) {
	prompt := analyzePrompt(predictions, symptoms, user)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var refinement models.Refinement
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &refinement); err != nil {
		// Structured-text fallback: keep the model's prose as the
		// recommendation and fill the rest conservatively.
		top := ""
		if len(predictions) > 0 {
			top = predictions[0].Disease
		}
		refinement = models.Refinement{
			LikelyDiagnosis:   top,
			FollowUpQuestions: "Please consult with a healthcare professional for proper evaluation.",
			Recommendations:   text,
			EmergencySigns:    "Seek immediate medical attention if symptoms worsen rapidly.",
		}
	}
	return &refinement, nil
}

// DiseaseInfo returns general information about a condition.
func (c *Client) DiseaseInfo(ctx context.Context, disease, detailLevel string) (string, error) {
	if detailLevel == "" {
		detailLevel = "comprehensive"
	}
	return c.generate(ctx, diseaseInfoPrompt(disease, detailLevel))
}

// EmergencyAssessment asks Gemini to grade symptom urgency. Callers are
// expected to substitute the conservative fallback on error.
func (c *Client) EmergencyAssessment(ctx context.Context, symptoms string) (*models.EmergencyAssessment, error) {
	text, err := c.generate(ctx, emergencyPrompt(symptoms))
	if err != nil {
		return nil, err
	}

	var assessment models.EmergencyAssessment
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &assessment); err != nil {
		return &models.EmergencyAssessment{
			UrgencyLevel:     "urgent",
			Reasoning:        "Unable to properly assess - recommend medical evaluation",
			ImmediateActions: "Contact healthcare provider or emergency services if concerned",
			Timeline:         "Seek medical attention promptly",
		}, nil
	}
	return &assessment, nil
}

// ChatReply generates the assistant's next turn given the persisted
// transcript. Session memory is only what the transcript carries.
func (c *Client) ChatReply(ctx context.Context, history []models.ChatMessage, message string, user *models.User) (string, error) {
	return c.generate(ctx, chatPrompt(history, message, user))
}

// stripCodeFence unwraps ```json ... ``` fences Gemini often adds
// around JSON answers.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// Package report assembles prompts from clinical state and calls the AI
// backend to produce a per-lens report. The report text is opaque to the rest
// of the system; this package never parses its medical content.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

type Client struct {
	apiKey     string
	baseURL    string
	modelName  string
	catalog    Catalog
	httpClient *http.Client
}

// NewClient builds a backend client. An empty catalog falls back to the
// built-in one; the prose-fallback path in Generate indexes the first lens and
// must never see a lensless client.
func NewClient(apiKey, baseURL, modelName string, catalog Catalog) *Client {
	if len(catalog.Lenses) == 0 {
		catalog = DefaultCatalog()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelName:  modelName,
		catalog:    catalog,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate produces a full report for the given clinical state plus a window
// of recent history summaries. It returns either a complete report or an
// error; a partial report is never returned, so callers can append the result
// all-or-nothing.
func (c *Client) Generate(ctx context.Context, state models.ClinicalState, recentSummaries []string) (models.Report, error) {
	prompt := c.buildPrompt(state, recentSummaries)

	content, err := c.callLLM(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	var result models.Report
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Backend returned prose instead of the requested JSON mapping; store
		// it whole under the first lens rather than failing the run.
		result = models.Report{c.catalog.Lenses[0].Name: content}
	}

	// Every configured lens gets a key so the report surface is stable.
	for _, lens := range c.catalog.Lenses {
		if _, ok := result[lens.Name]; !ok {
			result[lens.Name] = ""
		}
	}

	return result, nil
}

func (c *Client) buildPrompt(state models.ClinicalState, recentSummaries []string) string {
	var b strings.Builder

	b.WriteString("You are a clinical charting assistant. Write a report with the following sections:\n")
	for _, lens := range c.catalog.Lenses {
		fmt.Fprintf(&b, "- %s: %s\n", lens.Name, lens.Instruction)
	}
	b.WriteString("\nReturn a JSON object mapping each section name to its text.\n")

	b.WriteString("\nCurrent clinical state:\n")
	parts := make([]string, 0, len(state.Issues))
	for part := range state.Issues {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	for _, part := range parts {
		for _, issue := range state.Issues[part] {
			fmt.Fprintf(&b, "- %s (%s): pain %d/10, %s\n", issue.DisplayName, part, issue.PainLevel, issue.Description)
			if issue.Recommendation != "" {
				fmt.Fprintf(&b, "  recommendation: %s\n", issue.Recommendation)
			}
		}
	}

	fmt.Fprintf(&b, "\nVitals: BP %s, HR %s, Temp %s, SpO2 %s, Weight %s, Height %s\n",
		state.Vitals.BloodPressure, state.Vitals.HeartRate, state.Vitals.Temperature,
		state.Vitals.OxygenSaturation, state.Vitals.Weight, state.Vitals.Height)

	if state.Goals != "" {
		fmt.Fprintf(&b, "\nPatient goals: %s\n", state.Goals)
	}
	if state.ActiveCarePlan != nil {
		fmt.Fprintf(&b, "\nActive care plan: %s\n", *state.ActiveCarePlan)
	}
	for _, item := range state.DraftCarePlanItems {
		fmt.Fprintf(&b, "Draft plan item: %s\n", item)
	}

	if len(recentSummaries) > 0 {
		b.WriteString("\nRecent history:\n")
		for _, summary := range recentSummaries {
			fmt.Fprintf(&b, "- %s\n", summary)
		}
	}

	return b.String()
}

func (c *Client) callLLM(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		// Mock response for development.
		mock := make(models.Report, len(c.catalog.Lenses))
		for _, lens := range c.catalog.Lenses {
			mock[lens.Name] = fmt.Sprintf("(mock) %s section", lens.Name)
		}
		content, _ := json.Marshal(mock)
		return string(content), nil
	}

	payload := map[string]interface{}{
		"model": c.modelName,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
	}

	payloadBytes, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm backend returned status %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("no response from LLM")
}

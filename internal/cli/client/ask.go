package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer",
		Long: `Ask a question against the document corpus and stream the answer as it
is generated. Progress steps go to stderr, answer tokens to stdout, and
sources print after the answer completes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().String("user", "", "User id (defaults to DOCSAGE_USER_ID)")
	cmd.Flags().String("project", "", "Project id to scope retrieval")
	cmd.Flags().String("mode", "", "Generation mode: auto, gemini or chunks")
	cmd.Flags().String("intent", "", "Answer intent hint")

	return cmd
}

type askBody struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Intent    string `json:"intent,omitempty"`
}

type sourcePayload struct {
	Mode           string `json:"mode"`
	OverrideReason string `json:"override_reason"`
	Sources        []struct {
		Name        string  `json:"name"`
		Layer       string  `json:"layer"`
		Similarity  float32 `json:"similarity"`
		DownloadURL string  `json:"download_url"`
	} `json:"sources"`
	DurationMS int64 `json:"duration_ms"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	api := NewAPIClient(cmd)

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = os.Getenv(envUserID)
	}
	if userID == "" {
		return fmt.Errorf("user id is required (--user or %s)", envUserID)
	}

	projectID, _ := cmd.Flags().GetString("project")
	mode, _ := cmd.Flags().GetString("mode")
	intent, _ := cmd.Flags().GetString("intent")

	body, err := json.Marshal(askBody{
		Query:     strings.Join(args, " "),
		UserID:    userID,
		OrgID:     api.orgID,
		ProjectID: projectID,
		Mode:      mode,
		Intent:    intent,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, api.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.httpClient.Do(api.newRequest(req))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return consumeStream(cmd, resp.Body)
}

// consumeStream reads the SSE response line by line. Unrecognized lines
// are skipped so a noisy proxy cannot kill the stream.
func consumeStream(cmd *cobra.Command, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			handleEvent(cmd, event, strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

func handleEvent(cmd *cobra.Command, event, data string) {
	switch event {
	case "step":
		var step struct {
			Label string `json:"label"`
		}
		if json.Unmarshal([]byte(data), &step) == nil && step.Label != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "… %s\n", step.Label)
		}
	case "token":
		var tok struct {
			Text string `json:"text"`
		}
		if json.Unmarshal([]byte(data), &tok) == nil {
			fmt.Fprint(cmd.OutOrStdout(), tok.Text)
		}
	case "sources":
		var payload sourcePayload
		if json.Unmarshal([]byte(data), &payload) != nil {
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\n\nmode: %s", payload.Mode)
		if payload.OverrideReason != "" {
			fmt.Fprintf(out, " (%s)", payload.OverrideReason)
		}
		fmt.Fprintf(out, "  %dms\n", payload.DurationMS)
		for _, s := range payload.Sources {
			fmt.Fprintf(out, "  - %s [%s] %.2f", s.Name, s.Layer, s.Similarity)
			if s.DownloadURL != "" {
				fmt.Fprintf(out, "  %s", s.DownloadURL)
			}
			fmt.Fprintln(out)
		}
	case "error":
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(data), &msg) == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg.Message)
		}
	}
}

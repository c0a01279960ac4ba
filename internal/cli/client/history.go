package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// HistoryCmd returns the history command
func HistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Show stored turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "Maximum turns to fetch")

	return cmd
}

type historyResponse struct {
	Data struct {
		Messages []struct {
			Role       string `json:"role"`
			Content    string `json:"content"`
			Mode       string `json:"mode"`
			DurationMS int64  `json:"duration_ms"`
			CreatedAt  string `json:"created_at"`
		} `json:"messages"`
	} `json:"data"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	api := NewAPIClient(cmd)
	limit, _ := cmd.Flags().GetInt("limit")

	url := fmt.Sprintf("%s/conversations/%s/messages?limit=%d", api.baseURL, args[0], limit)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := api.httpClient.Do(api.newRequest(req))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, m := range body.Data.Messages {
		fmt.Fprintf(out, "[%s] %s", m.Role, m.Content)
		if m.Mode != "" {
			fmt.Fprintf(out, "  (%s, %dms)", m.Mode, m.DurationMS)
		}
		fmt.Fprintln(out)
	}
	return nil
}

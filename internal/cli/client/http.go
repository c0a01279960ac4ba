package client

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIURL = "DOCSAGE_API_URL"
	envOrgID  = "DOCSAGE_ORG_ID"
	envUserID = "DOCSAGE_USER_ID"

	defaultAPIURL = "http://localhost:8080"
)

// APIClient talks to a docsage server.
type APIClient struct {
	baseURL    string
	orgID      string
	httpClient *http.Client
}

// NewAPIClient builds a client with config cascade: flag, then env, then
// default. Streaming requests disable the client timeout; answers can run
// long.
func NewAPIClient(cmd *cobra.Command) *APIClient {
	_ = godotenv.Load()

	var baseURL, orgID string
	if cmd != nil {
		if flagURL, err := cmd.Flags().GetString("api-url"); err == nil && flagURL != "" {
			baseURL = flagURL
		}
		if flagOrg, err := cmd.Flags().GetString("org"); err == nil && flagOrg != "" {
			orgID = flagOrg
		}
	}
	if baseURL == "" {
		baseURL = os.Getenv(envAPIURL)
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if orgID == "" {
		orgID = os.Getenv(envOrgID)
	}

	return &APIClient{
		baseURL: baseURL,
		orgID:   orgID,
		httpClient: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

func (c *APIClient) newRequest(req *http.Request) *http.Request {
	if c.orgID != "" {
		req.Header.Set("X-Org-ID", c.orgID)
	}
	return req
}

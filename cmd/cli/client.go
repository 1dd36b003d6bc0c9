package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080/api"

// apiClient talks to a running server using the token saved by auth login
type apiClient struct {
	baseURL   string
	tokenPath string
	http      *http.Client
}

func newAPIClient(cmd *cobra.Command) *apiClient {
	base, _ := cmd.Flags().GetString("api")
	if base == "" {
		base = os.Getenv("PLOTCTL_API")
	}
	if base == "" {
		base = defaultAPIURL
	}
	return &apiClient{
		baseURL:   strings.TrimRight(base, "/"),
		tokenPath: tokenFile(),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func tokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".plotctl_token")
}

func (c *apiClient) saveToken(token string) error {
	return os.WriteFile(c.tokenPath, []byte(token), 0o600)
}

func (c *apiClient) loadToken() string {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *apiClient) clearToken() error {
	if err := os.Remove(c.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// apiError is a non-2xx reply
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// do sends body as JSON and decodes a 2xx reply into out when out is non-nil
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type plotView struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	Name     string  `json:"name"`
	CropType string  `json:"cropType"`
	Status   string  `json:"status"`
	Area     float64 `json:"area"`
}

func (c *apiClient) login(ctx context.Context, username, password string) (*userView, error) {
	var res struct {
		Token string    `json:"token"`
		User  *userView `json:"user"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &res); err != nil {
		return nil, err
	}
	if err := c.saveToken(res.Token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return res.User, nil
}

func (c *apiClient) logout(ctx context.Context) error {
	if c.loadToken() != "" {
		if err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
			return err
		}
	}
	return c.clearToken()
}

func (c *apiClient) me(ctx context.Context) (*userView, error) {
	var u userView
	if err := c.do(ctx, http.MethodGet, "/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *apiClient) listPlots(ctx context.Context, all bool) ([]plotView, error) {
	path := "/my-plots"
	if all {
		path = "/plots"
	}
	var plots []plotView
	if err := c.do(ctx, http.MethodGet, path, nil, &plots); err != nil {
		return nil, err
	}
	return plots, nil
}

func (c *apiClient) deletePlot(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/plots/"+id, nil, nil)
}

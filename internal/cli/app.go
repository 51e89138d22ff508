package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailord/tailord/internal/config"
)

type App struct {
	Config     config.Config
	ConfigPath string
	ServerAddr string
	Owner      string

	client *http.Client
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	serverOverride, _ := cmd.Flags().GetString("server")
	owner, _ := cmd.Flags().GetString("owner")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if owner == "" {
		owner = os.Getenv("TAILORD_OWNER")
	}
	if owner == "" {
		owner = "local"
	}

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		ServerAddr: resolveServer(serverOverride, cfg),
		Owner:      owner,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *App) url(path string) string {
	return "http://" + a.ServerAddr + path
}

func (a *App) request(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.url(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Owner-ID", a.Owner)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		printServerNotRunning(a.ServerAddr, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("server: %s", payload.Error)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

func printServerNotRunning(addr string, err error) {
	fmt.Println(styleError.Render("server is not running at " + addr))
	fmt.Println("start with: " + styleCommand.Render("tailord serve"))
	if err != nil {
		fmt.Println(styleDim.Render(err.Error()))
	}
}

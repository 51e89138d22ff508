package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tailord/tailord/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file and create the data directory",
		RunE:  runInitCmd,
	}
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}

	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	fmt.Println(styleSuccess.Render("config ready") + " " + styleDim.Render(configPath))
	fmt.Println("data dir: " + styleDim.Render(cfg.DataDir))
	fmt.Println("edit " + styleCommand.Render("[provider]") + " and " +
		styleCommand.Render("[renderer]") + " endpoints before starting the server")
	return nil
}

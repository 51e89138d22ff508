package cli

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and adjust generation budgets",
	}

	cmd.AddCommand(newQuotaShowCmd())
	cmd.AddCommand(newQuotaGrantCmd())

	return cmd
}

func newQuotaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your remaining budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var payload struct {
				Owner     string `json:"owner"`
				Remaining int    `json:"remaining"`
			}
			if err := a.request(http.MethodGet, "/api/quota", nil, &payload); err != nil {
				return err
			}

			fmt.Printf("%s: %s generations remaining\n",
				payload.Owner, styleSuccess.Render(strconv.Itoa(payload.Remaining)))
			return nil
		},
	}
}

func newQuotaGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <owner> <delta>",
		Short: "Add (or with a negative delta, remove) budget for an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta must be an integer: %w", err)
			}

			var payload struct {
				Owner     string `json:"owner"`
				Remaining int    `json:"remaining"`
			}
			body := map[string]any{"owner": args[0], "delta": delta}
			if err := a.request(http.MethodPost, "/api/quota/grant", body, &payload); err != nil {
				return err
			}

			fmt.Printf("%s now has %s generations\n",
				payload.Owner, styleSuccess.Render(strconv.Itoa(payload.Remaining)))
			return nil
		},
	}
}

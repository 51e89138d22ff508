package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tailord/tailord/internal/core"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage generation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var payload struct {
				Sessions []core.Session `json:"sessions"`
			}
			if err := a.request(http.MethodGet, "/api/sessions", nil, &payload); err != nil {
				return err
			}

			if len(payload.Sessions) == 0 {
				fmt.Println(styleDim.Render("no sessions"))
				return nil
			}

			t := newTable("ID", "COMPANY", "ROLE", "STATUS", "UPDATED")
			for _, s := range payload.Sessions {
				t.Row(
					string(s.ID),
					s.Company,
					s.Role,
					statusStyle(string(s.Status)).Render(string(s.Status)),
					s.UpdatedAt.Format("2006-01-02 15:04"),
				)
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var session core.Session
			if err := a.request(http.MethodGet, "/api/sessions/"+args[0], nil, &session); err != nil {
				return err
			}

			printSession(session)
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			if err := a.request(http.MethodDelete, "/api/sessions/"+args[0], nil, nil); err != nil {
				return err
			}

			fmt.Println(styleSuccess.Render("deleted " + args[0]))
			return nil
		},
	}
}

func printSession(s core.Session) {
	fmt.Println(styleCommand.Render(string(s.ID)))
	fmt.Printf("  %s at %s\n", s.Role, s.Company)
	fmt.Printf("  status: %s\n", statusStyle(string(s.Status)).Render(string(s.Status)))

	if len(s.Artifacts) > 0 {
		fmt.Println("  artifacts:")
		for name, ref := range s.Artifacts {
			fmt.Printf("    %s  %s\n", name, styleDim.Render(ref))
		}
	}

	for kind, versions := range s.Versions {
		fmt.Printf("  %s versions:\n", kind)
		for _, v := range versions {
			line := fmt.Sprintf("    %s  %s", v.GenerationID, statusStyle(string(v.Status)).Render(string(v.Status)))
			if v.PageCount != nil {
				line += fmt.Sprintf("  %dp", *v.PageCount)
			}
			if v.ErrorMessage != "" {
				line += "  " + styleError.Render(v.ErrorMessage)
			}
			fmt.Println(line)
		}
	}
}

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

type healthResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

func newHealthCmd() *cobra.Command {
	var (
		apiURL  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running service's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out healthResponse
			resp, err := resty.New().
				SetBaseURL(apiURL).
				SetTimeout(timeout).
				R().
				SetContext(cmd.Context()).
				SetResult(&out).
				Get("/api/health")
			if err != nil {
				return fmt.Errorf("health request: %w", err)
			}
			if resp.IsError() {
				return fmt.Errorf("health request: status %d", resp.StatusCode())
			}

			names := make([]string, 0, len(out.Components))
			for name := range out.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status: %s\n", out.Status)
			for _, name := range names {
				state := "down"
				if out.Components[name] {
					state = "up"
				}
				fmt.Fprintf(w, "  %-10s %s\n", name, state)
			}
			if out.Status != "healthy" {
				return fmt.Errorf("service unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&apiURL, "api", "a", "http://localhost:8080", "moodtrack service base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

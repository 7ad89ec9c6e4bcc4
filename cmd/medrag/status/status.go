// Package statuscmder provides the status command for displaying index
// contents and sync watermarks from a running medrag server.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clidram/medrag/pkg/cliui"
	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/etl"
)

type statusCommander struct {
	apiTarget string
}

const statusLongDesc string = `Show the index status of a running medrag server.

Displays chunk counts per source kind and the per-kind sync watermarks
(last indexed write date, total records and chunks).

Examples:
  medrag status
  medrag status --api-target http://localhost:8090`

const statusShortDesc string = "Show index status and watermarks"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})
			cmder.apiTarget = config.FromViper(v).Client.APITarget
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *statusCommander) run() error {
	status, err := fetchIndexStatus(c.apiTarget)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s  %d chunks\n\n", cliui.KeyStyle.Render("Indexed:"), status.Store.Total)

	kinds := make([]string, 0, len(status.Store.ByKind))
	for kind := range status.Store.ByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-13s %s\n", kind,
			cliui.ValueStyle.Render(fmt.Sprintf("%d chunks", status.Store.ByKind[kind])))
	}

	if len(status.Watermarks) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No watermarks recorded yet. Run medrag index."))
		return nil
	}

	fmt.Printf("\n  %s\n", cliui.KeyStyle.Render("Watermarks:"))
	for _, mark := range status.Watermarks {
		fmt.Printf("  %-13s %s %s\n",
			mark.SourceKind,
			cliui.ValueStyle.Render(fmt.Sprintf("%d records, %d chunks", mark.RecordsIndexed, mark.ChunksCreated)),
			cliui.DimStyle.Render("last write "+mark.LastWriteDate.Format("2006-01-02 15:04:05")),
		)
	}
	fmt.Println()

	return nil
}

func fetchIndexStatus(apiTarget string) (*etl.IndexStatus, error) {
	statusURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	statusURL.Path = "/v1/etl/index-status"

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, statusURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating status request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling medrag API (is the server running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("medrag API returned %d: %s", resp.StatusCode, body)
	}

	var status etl.IndexStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status response: %w", err)
	}
	return &status, nil
}

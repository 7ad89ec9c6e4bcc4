// Package querycmder provides the query command for one-shot RAG questions
// against a running medrag server.
package querycmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/clidram/medrag/pkg/cliui"
	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/rag"
)

type queryCommander struct {
	prompt     string
	patientSeq string
	topK       int
	showSrc    bool

	apiTarget string
}

const queryLongDesc string = `Ask a one-shot question over the indexed clinical records.

The question is answered by a running medrag server using retrieval-augmented
generation. Use --patient to scope retrieval to a single patient's records.

Examples:
  medrag query "which patients are on metformin?"
  medrag query "summarize the latest prescription" --patient PAT-0042
  medrag query "recent asthma appointments" --sources`

const queryShortDesc string = "Ask a question over indexed records"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagAPITarget,
				config.FlagTopK,
			})
			cfg := config.FromViper(v)
			cmder.apiTarget = cfg.Client.APITarget
			cmder.topK = cfg.RAG.TopK
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.prompt = args[0]
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddIntFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	cmd.Flags().StringVarP(&cmder.patientSeq, "patient", "p", "", "Scope retrieval to this patient sequence number")
	cmd.Flags().BoolVar(&cmder.showSrc, "sources", false, "Show retrieved source chunks below the answer")

	return cmd
}

func (c *queryCommander) run() error {
	answer, err := QueryAPI(c.apiTarget, rag.QueryRequest{
		Prompt:     c.prompt,
		PatientSeq: c.patientSeq,
		TopK:       c.topK,
	})
	if err != nil {
		return err
	}

	rendered, err := cliui.RenderMarkdown(answer.Response)
	if err != nil {
		// Fall back to the raw text when the terminal renderer fails.
		rendered = answer.Response + "\n"
	}
	fmt.Print(rendered)

	if c.showSrc {
		fmt.Printf("  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("Sources (%d):", len(answer.Sources))))
		for i, source := range answer.Sources {
			fmt.Printf("  %s %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%d. similarity %.4f", i+1, source.Similarity)),
				cliui.ValueStyle.Render(source.Content),
			)
		}
		fmt.Println()
	}

	return nil
}

// QueryAPI calls the medrag query endpoint and returns the parsed answer.
func QueryAPI(apiTarget string, request rag.QueryRequest) (*rag.Answer, error) {
	queryURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	queryURL.Path = "/v1/rag/query"

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding query request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, queryURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling medrag API (is the server running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("medrag API returned %d: %s", resp.StatusCode, body)
	}

	var answer rag.Answer
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}
	return &answer, nil
}

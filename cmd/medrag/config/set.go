package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clidram/medrag/pkg/cliui"
	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/credentials"
)

// credentialKey routes to credentials.toml instead of config.toml so the
// generation API key never lands in the plain config file.
const credentialKey = "google.api_key"

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .medrag/ directory. Keys use dotted notation matching
the TOML section structure.

Valid keys:
  server.listen, client.api_target,
  source.url, source.api_key, source.timeout_seconds,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  vector_store.provider, vector_store.target, vector_store.sqlite_path,
  etl.chunk_size, etl.chunk_overlap, etl.chunk_threshold,
  etl.embed_batch, etl.upsert_batch, etl.workers,
  llm.provider, llm.target, llm.model, llm.fallback_family, llm.timeout_seconds,
  session.ttl_seconds, rag.top_k,
  events.enabled, events.brokers, events.topic

The special key google.api_key is persisted to credentials.toml rather than
config.toml.

Examples:
  medrag config set source.url http://emr.local:8069
  medrag config set vector_store.provider sqlite
  medrag config set embedding.dimensions 768
  medrag config set google.api_key AIza...`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(key, value, configDir string) error {
	if key == credentialKey {
		return setCredential(value, configDir)
	}

	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if target != "" {
		fmt.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	err = cfger.SetConfigValue(key, value)
	if err != nil {
		return err
	}

	fmt.Printf("  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}

func setCredential(value, configDir string) error {
	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("opening credentials: %w", err)
	}

	if err := creds.SetKey(value, ""); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Printf("  %s Saved generation API key to %s\n\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(creds.GetTarget()),
	)
	return nil
}

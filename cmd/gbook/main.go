package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/guestchain/guestchain/pkg/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gbook",
	Short: "guestchain guestbook CLI",
	Long: `gbook is the command-line client for a guestchain node.

It posts guestbook entries, shows the reconciled view, inspects the
ledger chain, and watches submission events live.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.gbook")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.gbook/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "guestchain node URL (default http://localhost:8080)")

	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL)
}

// ── post ─────────────────────────────────────────────────────────────────────

var (
	postAuthor string
	postWait   time.Duration
)

var postCmd = &cobra.Command{
	Use:   "post <message>",
	Short: "Post a guestbook entry",
	Long: `Post submits an entry and prints its correlation handle.

With --wait the command polls until the entry settles (or fails):

  gbook post --author alice --wait 15s "hello world"`,
	Args: cobra.ExactArgs(1),
	RunE: runPost,
}

func init() {
	postCmd.Flags().StringVar(&postAuthor, "author", "", "Author name recorded with the entry")
	postCmd.Flags().DurationVar(&postWait, "wait", 0, "Poll until the entry settles, up to this long (0 returns immediately)")
}

func runPost(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	res, err := c.Post(ctx, postAuthor, args[0])
	if err != nil {
		return err
	}

	if postWait == 0 {
		pterm.Info.Printfln("submitted — handle %s", res.Handle)
		return nil
	}

	spinner, _ := pterm.DefaultSpinner.Start("waiting for settlement...")
	deadline := time.Now().Add(postWait)
	for time.Now().Before(deadline) {
		sub, err := c.Submission(ctx, res.Handle)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		switch sub.Status {
		case "confirmed":
			spinner.Success(fmt.Sprintf("confirmed at index %d", sub.Index))
			return nil
		case "failed":
			spinner.Fail(fmt.Sprintf("failed: %s", sub.Reason))
			return fmt.Errorf("submission failed: %s", sub.Reason)
		}
		time.Sleep(200 * time.Millisecond)
	}
	spinner.Warning("still pending — it may yet settle; check with 'gbook list'")
	return nil
}

// ── list ─────────────────────────────────────────────────────────────────────

var (
	listRefresh bool
	listFormat  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the guestbook view",
	Long: `List prints the node's current view: settled entries in ledger
order followed by any entries still awaiting settlement.

Use --refresh to force the node to re-read the ledger first, picking up
entries written by other clients.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listRefresh, "refresh", false, "Force a ledger re-read before listing")
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var entries []client.ViewEntry
	if listRefresh {
		entries, err = c.Refresh(cmd.Context())
	} else {
		entries, err = c.View(cmd.Context())
	}
	if err != nil {
		return err
	}

	if listFormat == "json" {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(entries) == 0 {
		pterm.Info.Println("the guestbook is empty")
		return nil
	}

	rows := pterm.TableData{{"INDEX", "STATUS", "AUTHOR", "MESSAGE"}}
	for _, e := range entries {
		idx := "-"
		if e.Index >= 0 {
			idx = fmt.Sprintf("%d", e.Index)
		}
		status := e.Status
		if e.Status == "submitted" {
			status = pterm.LightYellow(e.Status)
		}
		rows = append(rows, []string{idx, status, e.Author, e.Body})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// ── watch ────────────────────────────────────────────────────────────────────

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream submission and view events live",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		pterm.Info.Printfln("watching %s (ctrl-c to stop)", serverURL)
		err = c.Watch(cmd.Context(), func(e client.Event) {
			switch e.Kind {
			case "confirmed":
				pterm.Success.Printfln("confirmed %s", e.Handle)
			case "failed":
				pterm.Error.Printfln("failed %s: %s", e.Handle, e.Reason)
			case "error":
				pterm.Error.Printfln("node error: %s", e.Reason)
			default:
				pterm.Info.Printfln("%s %s", e.Kind, e.Handle)
			}
		})
		if err != nil && cmd.Context().Err() == nil {
			return err
		}
		return nil
	},
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerVerify bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the ledger chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		overview, err := c.LedgerOverview(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("%d entries, root %s", overview.Entries, overview.Root)

		if !ledgerVerify {
			return nil
		}
		valid, reason, err := c.VerifyLedger(ctx)
		if err != nil {
			return err
		}
		if !valid {
			pterm.Error.Printfln("chain verification FAILED: %s", reason)
			return fmt.Errorf("ledger chain invalid")
		}
		pterm.Success.Println("chain verified")
		return nil
	},
}

func init() {
	ledgerCmd.Flags().BoolVar(&ledgerVerify, "verify", false, "Walk the full chain and verify hashes")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gbook version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gbook", version)
	},
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/psantos/centavo/pkg/config"
	"github.com/psantos/centavo/pkg/importer"
	"github.com/psantos/centavo/pkg/ledger"
	"github.com/psantos/centavo/pkg/models"
	"github.com/psantos/centavo/pkg/rules"
)

var (
	cfgFile     string
	householdID string
	accountID   string
	debugDump   bool
)

var rootCmd = &cobra.Command{
	Use:   "centavo",
	Short: "Bank statement import and ledger maintenance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <statement_file>",
	Short: "Parse a statement and show what an import would do, without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := buildBase(cmd)
		if err != nil {
			return err
		}
		store, err := ledger.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		imp := newImporter(store, logger)
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		preview, err := imp.Preview(context.Background(), data, filepath.Base(args[0]),
			importer.Options{DayFirst: cfg.DayFirst})
		if err != nil {
			return err
		}

		if debugDump {
			pp.Println(preview)
			return nil
		}

		fmt.Printf("Headers: %v\n", preview.Headers)
		fmt.Printf("Rows: %d total, %d parsed, %d errors, %d warnings\n",
			preview.TotalRows, preview.ParsedCount, preview.Errors, preview.Warnings)
		for _, row := range preview.Rows {
			fmt.Printf("  %s | %-8s | %10s | %s\n", row.Date, row.Type, row.Amount, row.Description)
		}
		for _, e := range preview.ParseErrors {
			fmt.Printf("  row %d: %s\n", e.Row, e.Message)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <statement_file>",
	Short: "Import a statement into an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if householdID == "" || accountID == "" {
			return fmt.Errorf("--household and --account are required")
		}
		cfg, logger, err := buildBase(cmd)
		if err != nil {
			return err
		}
		store, err := ledger.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		imp := newImporter(store, logger)
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		batch, err := imp.Import(context.Background(), data, filepath.Base(args[0]),
			householdID, accountID, importer.Options{DayFirst: cfg.DayFirst})
		if err != nil {
			return err
		}

		fmt.Printf("Batch %s: %d rows, %d imported, %d skipped, %d errors\n",
			batch.ID, batch.TotalRows, batch.Imported, batch.Skipped, batch.Errors)
		for _, e := range batch.ParseErrors {
			fmt.Printf("  row %d: %s\n", e.Row, e.Message)
		}
		return nil
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List or create accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a household's accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if householdID == "" {
			return fmt.Errorf("--household is required")
		}
		cfg, logger, err := buildBase(cmd)
		if err != nil {
			return err
		}
		store, err := ledger.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		accounts, err := store.AccountsByHousehold(context.Background(), householdID)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			fmt.Printf("%s  %-20s %s %s\n", a.ID, a.Name, a.Currency, a.CurrentBalance.StringFixed(2))
		}
		return nil
	},
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create <name> <currency>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if householdID == "" {
			return fmt.Errorf("--household is required")
		}
		cfg, logger, err := buildBase(cmd)
		if err != nil {
			return err
		}
		store, err := ledger.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		account := &models.Account{
			HouseholdID: householdID,
			Name:        args[0],
			Currency:    args[1],
		}
		if err := store.CreateAccount(context.Background(), account); err != nil {
			return err
		}
		fmt.Println(account.ID)
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage category rules",
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed <rules_file>",
	Short: "Load category rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if householdID == "" {
			return fmt.Errorf("--household is required")
		}
		cfg, logger, err := buildBase(cmd)
		if err != nil {
			return err
		}
		store, err := ledger.Open(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rf, err := models.RulesFromFile(args[0])
		if err != nil {
			return err
		}
		for _, spec := range rf.Rules {
			rule := spec.Rule(householdID)
			if err := store.InsertRule(context.Background(), &rule); err != nil {
				return err
			}
		}
		fmt.Printf("seeded %d rules\n", len(rf.Rules))
		return nil
	},
}

func buildBase(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	level := log.InfoLevel
	if debugDump {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "centavo",
		Level:           level,
	})
	return cfg, logger, nil
}

func newImporter(store *ledger.Store, logger *log.Logger) *importer.Importer {
	mutator := ledger.NewMutator(store, logger)
	classifier := rules.New(store, logger)
	return importer.New(store, mutator, classifier, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("db", "centavo.db", "ledger database path")
	rootCmd.PersistentFlags().Bool("day-first", true, "prefer DD/MM/YYYY for ambiguous dates")
	rootCmd.PersistentFlags().StringVar(&householdID, "household", "", "household id")
	rootCmd.PersistentFlags().StringVar(&accountID, "account", "", "target account id")
	rootCmd.PersistentFlags().BoolVar(&debugDump, "debug", false, "debug output")

	accountsCmd.AddCommand(accountsListCmd, accountsCreateCmd)
	rulesCmd.AddCommand(rulesSeedCmd)
	rootCmd.AddCommand(previewCmd, importCmd, accountsCmd, rulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

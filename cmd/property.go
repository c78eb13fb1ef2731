package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/catalog"
	"github.com/ekaya-inc/ekaya-mapper/pkg/repositories"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Manage the target property catalog",
}

var propertyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the target properties",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		backend, closeBackend, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closeBackend()

		schema := services.NewSchemaCache(backend, backend, logger)
		if err := schema.Load(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, p := range schema.Properties() {
			fmt.Fprintf(out, "%s\t%s\tsynonyms=%s\tantonyms=%s\n",
				p.DisplayName, p.LocalID, strings.Join(p.Synonyms, ";"), strings.Join(p.Antonyms, ";"))
		}
		return nil
	},
}

var propertyAddCmd = &cobra.Command{
	Use:   "add <display-name>",
	Short: "Add a target property",
	Long: `Add a property to the target catalog. The name must not already exist,
ignoring case.

Examples:
  ekaya-mapper property add "Material Grade"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		backend, closeBackend, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closeBackend()

		schema := services.NewSchemaCache(backend, backend, logger)
		if err := schema.Load(ctx); err != nil {
			return err
		}
		if err := schema.AddProperty(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", strings.TrimSpace(args[0]))
		return nil
	},
}

var propertySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the HTTP catalog into the local database",
	Long: `Copy every property of the HTTP catalog, with its synonyms and antonyms,
into the local PostgreSQL catalog. Properties are matched by display name
ignoring case; existing rows are updated.

Run it before switching catalog.backend to postgres.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		props, err := catalog.NewClient(&cfg.Catalog, logger).ListProperties(ctx)
		if err != nil {
			return err
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := repositories.NewTargetPropertyRepository(db)

		synced := 0
		for i := range props {
			if strings.TrimSpace(props[i].DisplayName) == "" {
				continue
			}
			if err := repo.Upsert(ctx, &props[i]); err != nil {
				return fmt.Errorf("sync %q: %w", props[i].DisplayName, err)
			}
			synced++
		}
		logger.Info("Catalog synced", zap.Int("properties", synced))
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d properties\n", synced)
		return nil
	},
}

func init() {
	propertyCmd.AddCommand(propertyListCmd, propertyAddCmd, propertySyncCmd)
	rootCmd.AddCommand(propertyCmd)
}

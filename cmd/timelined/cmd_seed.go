package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"timelined/internal/store"
)

var seedFixture string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a YAML fixture of summaries into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		fixture, err := store.LoadFixture(seedFixture)
		if err != nil {
			return err
		}

		st, err := store.NewLocalStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := fixture.Apply(cmd.Context(), st); err != nil {
			return err
		}
		cmd.Printf("Seeded %d summaries, %d selection sets, %d runs, %d originals into folder %q.\n",
			len(fixture.Summaries), len(fixture.SelectionSets), len(fixture.Runs),
			len(fixture.Originals), fixture.Folder)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFixture, "fixture", "fixtures/sample.yaml", "path to the fixture file")
	rootCmd.AddCommand(seedCmd)
}

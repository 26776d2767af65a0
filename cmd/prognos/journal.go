package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prognos/internal/store"
)

func newJournalCmd() *cobra.Command {
	var limit int
	var questionID string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled forecasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			journal, err := store.NewJournal(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer journal.Close()

			var entries []store.Entry
			if questionID != "" {
				entries, err = journal.ByQuestion(cmd.Context(), questionID)
			} else {
				entries, err = journal.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("journal is empty")
				return nil
			}

			for _, e := range entries {
				degraded := ""
				if e.Degraded {
					degraded = " degraded"
				}
				fmt.Printf("#%d  %s  %s  %s%s\n",
					e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.QuestionID, e.Kind, degraded)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().StringVar(&questionID, "question", "", "show all entries for one question id")
	return cmd
}

// Package index implements lifecycle commands for the article search index.
package index

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/database"
)

// Command returns the index command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the article search index",
	}
	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	cmd.AddCommand(rebuildCommand())
	return cmd
}

func createCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the article index if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			client, err := deps.SearchClient()
			if err != nil {
				return err
			}
			if err := client.EnsureIndex(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Index ready")
			return nil
		},
	}
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Drop the article index",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			client, err := deps.SearchClient()
			if err != nil {
				return err
			}
			if err := client.DeleteIndex(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Index deleted")
			return nil
		},
	}
}

func rebuildCommand() *cobra.Command {
	var pageSize int
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reindex every stored article",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			client, err := deps.SearchClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.EnsureIndex(ctx); err != nil {
				return err
			}

			repo := database.NewArticleRepository(deps.DB)
			indexed := 0
			for offset := 0; ; offset += pageSize {
				page, err := repo.ListInWindow(ctx, nil, nil, pageSize, offset)
				if err != nil {
					return err
				}
				if len(page) == 0 {
					break
				}
				for _, a := range page {
					if err := client.IndexArticle(ctx, a); err != nil {
						return fmt.Errorf("failed to index article %d: %w", a.ID, err)
					}
					indexed++
				}
			}
			fmt.Printf("Indexed %d articles\n", indexed)
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 500, "articles fetched per batch")
	return cmd
}

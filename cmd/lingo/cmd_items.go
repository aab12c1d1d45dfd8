package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

func newItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage the item catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert or replace items from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			items, err := parseItems(f)
			if err != nil {
				return err
			}

			srv, err := openServer(cmd)
			if err != nil {
				return err
			}
			defer srv.Shutdown(context.Background())

			for _, it := range items {
				if err := srv.Backend.Items.PutItem(cmd.Context(), it); err != nil {
					return fmt.Errorf("put item %s: %w", it.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items\n", len(items))
			return nil
		},
	})
	return cmd
}

// seedFile is the YAML layout of a catalog file. Items are active unless
// they say otherwise; a missing difficulty starts at the default rating.
type seedFile struct {
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	ID             string   `yaml:"id"`
	Lang           string   `yaml:"lang"`
	Level          string   `yaml:"level"`
	Exam           string   `yaml:"exam"`
	SkillScope     []string `yaml:"skill_scope"`
	Tags           []string `yaml:"tags"`
	DifficultyElo  float64  `yaml:"difficulty_elo"`
	ContentVersion string   `yaml:"content_version"`
	Active         *bool    `yaml:"active"`
}

func parseItems(r io.Reader) ([]domain.Item, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	items := make([]domain.Item, 0, len(file.Items))
	seen := make(map[string]bool, len(file.Items))
	for i, raw := range file.Items {
		it := domain.Item{
			ID:             raw.ID,
			Lang:           raw.Lang,
			Level:          raw.Level,
			Exam:           raw.Exam,
			SkillScope:     raw.SkillScope,
			Tags:           raw.Tags,
			DifficultyElo:  raw.DifficultyElo,
			ContentVersion: raw.ContentVersion,
			Active:         raw.Active == nil || *raw.Active,
		}
		if it.ID == "" {
			return nil, fmt.Errorf("item %d: id is required", i)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("item %s: duplicate id", it.ID)
		}
		seen[it.ID] = true

		if it.DifficultyElo == 0 {
			it.DifficultyElo = domain.DefaultRating
		}
		items = append(items, it)
	}
	return items, nil
}

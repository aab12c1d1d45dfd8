package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/domain"
)

// skillFlags are shared by the rating and deck commands.
type skillFlags struct {
	user, lang, exam, skill, tag string
}

func (f *skillFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "Learner id")
	cmd.Flags().StringVar(&f.lang, "lang", "", "Language code, e.g. de")
	cmd.Flags().StringVar(&f.exam, "exam", "", "Exam family, e.g. goethe")
	cmd.Flags().StringVar(&f.skill, "skill", "", "Skill code: R, W, L or S")
	cmd.Flags().StringVar(&f.tag, "tag", "", "Optional grammar or topic tag")
}

func (f *skillFlags) key() domain.SkillKey {
	return domain.SkillKey{UserID: f.user, Lang: f.lang, Exam: f.exam, Skill: f.skill, Tag: f.tag}
}

func newRatingCmd() *cobra.Command {
	var flags skillFlags
	get := &cobra.Command{
		Use:   "get",
		Short: "Show a learner's rating for one skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := flags.key()
			if err := key.Validate(); err != nil {
				return err
			}
			srv, err := openServer(cmd)
			if err != nil {
				return err
			}
			defer srv.Shutdown(context.Background())

			r, err := srv.Backend.Ratings.GetUserRating(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				domain.SkillKey
				domain.Rating
			}{key, r})
		},
	}
	flags.register(get)

	cmd := &cobra.Command{
		Use:   "rating",
		Short: "Inspect learner ratings",
	}
	cmd.AddCommand(get)
	return cmd
}

func newDeckCmd() *cobra.Command {
	var (
		flags   skillFlags
		level   string
		size    int
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "deck",
		Short: "Build a deck of items near the learner's rating",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := openServer(cmd)
			if err != nil {
				return err
			}
			defer srv.Shutdown(context.Background())

			d, err := srv.Decks.Build(cmd.Context(), deck.Request{
				UserID:     flags.user,
				Lang:       flags.lang,
				Level:      level,
				Exam:       flags.exam,
				Skill:      flags.skill,
				Tag:        flags.tag,
				Size:       size,
				ExcludeIDs: exclude,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User rating: %.0f\n", d.UserRating)
			for i, it := range d.Items {
				fmt.Fprintf(out, "%2d. %-24s %6.0f  %s\n", i+1, it.ID, it.DifficultyElo, strings.Join(it.Tags, ","))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&level, "level", "", "CEFR level, e.g. B1")
	cmd.Flags().IntVar(&size, "size", 0, "Number of items (default from config)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Item ids to leave out")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

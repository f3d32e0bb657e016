package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
)

var (
	scoreTier      string
	scoreUrgency   string
	scoreSentiment string
	scoreAgeDays   int
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the priority score for a set of signals",
	Long: `Applies the configured scoring weights to a tier, urgency, sentiment and
age without touching the store or a provider. Useful for tuning weights.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := scoreInput(scoreTier, scoreUrgency, scoreSentiment, scoreAgeDays)
		if err != nil {
			return err
		}
		sc, err := scorer.New(scorer.WeightsFromConfig(cfg.Scoring))
		if err != nil {
			return eris.Wrap(err, "scoring weights")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "priority: %.1f\narr_estimate: %d\n",
			sc.Priority(in), sc.ARREstimate(in.Tier))
		return nil
	},
}

func scoreInput(tier, urgency, sentiment string, ageDays int) (scorer.Input, error) {
	t, ok := model.ParseTier(tier)
	if !ok {
		return scorer.Input{}, eris.Errorf("invalid tier %q", tier)
	}
	u := model.Urgency(urgency)
	if !u.Valid() {
		return scorer.Input{}, eris.Errorf("invalid urgency %q", urgency)
	}
	s := model.Sentiment(sentiment)
	if !s.Valid() {
		return scorer.Input{}, eris.Errorf("invalid sentiment %q", sentiment)
	}
	if ageDays < 0 {
		return scorer.Input{}, eris.New("age-days must be >= 0")
	}
	return scorer.Input{Tier: t, Urgency: u, Sentiment: s, AgeDays: ageDays}, nil
}

func init() {
	scoreCmd.Flags().StringVar(&scoreTier, "tier", "free", "customer tier (free, pro, enterprise)")
	scoreCmd.Flags().StringVar(&scoreUrgency, "urgency", "medium", "urgency (critical, high, medium, low)")
	scoreCmd.Flags().StringVar(&scoreSentiment, "sentiment", "neutral", "sentiment (positive, neutral, negative)")
	scoreCmd.Flags().IntVar(&scoreAgeDays, "age-days", 0, "days since the feedback was created")
	rootCmd.AddCommand(scoreCmd)
}

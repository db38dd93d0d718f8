// Command analyze_confidence replays the stored experience history through
// the confidence calculator and reports how realized P&L distributes across
// confidence levels, to help pick an entry threshold.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/confidence"
	"quotrading/internal/experience"
	"quotrading/internal/similarity"
)

type bucket struct {
	minConf       float64
	maxConf       float64
	totalTrades   int
	winningTrades int
	losingTrades  int
	totalPnL      float64
}

type scoredTrade struct {
	confidence float64
	reward     float64
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	experiences, err := loadHistory(cfg)
	if err != nil {
		fmt.Printf("Failed to load experience history: %v\n", err)
		os.Exit(1)
	}
	if len(experiences) == 0 {
		fmt.Println("No experiences recorded yet. Run a backtest or a live session first.")
		return
	}

	fmt.Println("================================================================================")
	fmt.Println("CONFIDENCE THRESHOLD ANALYSIS")
	fmt.Println("================================================================================")
	fmt.Printf("\nAnalyzing %d recorded experiences...\n\n", len(experiences))

	trades := scoreHistory(cfg, experiences)

	buckets := []bucket{
		{minConf: 0.00, maxConf: 0.35},
		{minConf: 0.35, maxConf: 0.50},
		{minConf: 0.50, maxConf: 0.55},
		{minConf: 0.55, maxConf: 0.65},
		{minConf: 0.65, maxConf: 0.75},
		{minConf: 0.75, maxConf: 1.01},
	}

	for _, t := range trades {
		for i := range buckets {
			if t.confidence >= buckets[i].minConf && t.confidence < buckets[i].maxConf {
				buckets[i].totalTrades++
				buckets[i].totalPnL += t.reward
				if t.reward > 0 {
					buckets[i].winningTrades++
				} else if t.reward < 0 {
					buckets[i].losingTrades++
				}
				break
			}
		}
	}

	fmt.Println("Confidence       Trades  Winners  Losers   Total PnL     Avg PnL      Win Rate")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, b := range buckets {
		avgPnL, winRate := 0.0, 0.0
		if b.totalTrades > 0 {
			avgPnL = b.totalPnL / float64(b.totalTrades)
			winRate = float64(b.winningTrades) / float64(b.totalTrades) * 100
		}
		fmt.Printf("%5.0f%% - %5.0f%%  %6d  %7d  %6d  %+11.2f  %+11.2f  %7.1f%%\n",
			b.minConf*100, b.maxConf*100,
			b.totalTrades, b.winningTrades, b.losingTrades,
			b.totalPnL, avgPnL, winRate)
	}

	fmt.Println("\n================================================================================")
	fmt.Println("THRESHOLD COMPARISON")
	fmt.Println("================================================================================")

	thresholds := []float64{0.35, 0.50, 0.55, 0.65, 0.75}
	bestThreshold := cfg.ConfidenceConfig.Threshold
	bestAvoidedLoss := 0.0

	for _, threshold := range thresholds {
		var included, excluded int
		var includedPnL, excludedPnL float64
		var includedWins int

		for _, t := range trades {
			if t.confidence >= threshold {
				included++
				includedPnL += t.reward
				if t.reward > 0 {
					includedWins++
				}
			} else {
				excluded++
				excludedPnL += t.reward
			}
		}

		includedWinRate := 0.0
		if included > 0 {
			includedWinRate = float64(includedWins) / float64(included) * 100
		}

		fmt.Printf("\nThreshold %.0f%%:\n", threshold*100)
		fmt.Printf("  included: %d trades, PnL $%.2f, win rate %.1f%%\n", included, includedPnL, includedWinRate)
		fmt.Printf("  excluded: %d trades, PnL $%.2f\n", excluded, excludedPnL)
		if excludedPnL < 0 {
			fmt.Printf("  avoided loss: $%.2f\n", -excludedPnL)
		} else if excludedPnL > 0 {
			fmt.Printf("  missed profit: $%.2f\n", excludedPnL)
		}

		if excludedPnL < bestAvoidedLoss {
			bestAvoidedLoss = excludedPnL
			bestThreshold = threshold
		}
	}

	fmt.Println("\n================================================================================")
	if bestAvoidedLoss < 0 {
		fmt.Printf("Suggested threshold: %.0f%% (would have avoided $%.2f in losses)\n",
			bestThreshold*100, -bestAvoidedLoss)
	} else {
		fmt.Println("No threshold cleanly separates winners from losers on this history.")
	}
}

// loadHistory hydrates the experience list from the configured backend.
func loadHistory(cfg *config.Config) ([]experience.Experience, error) {
	switch cfg.StoreConfig.Backend {
	case "postgres":
		ctx := context.Background()
		pg, err := experience.NewPostgresStore(ctx, cfg.DatabaseConfig)
		if err != nil {
			return nil, err
		}
		defer pg.Close()
		return pg.LoadExperiences(ctx)
	default:
		fs := experience.NewFileStore(cfg.StoreConfig.FilePath, cfg.StoreConfig.ExitFilePath)
		return fs.LoadExperiences()
	}
}

// scoreHistory computes a leave-one-out confidence for every taken trade:
// each experience is scored against a store holding all the others, which is
// what the calculator would have seen at decision time with full hindsight.
func scoreHistory(cfg *config.Config, experiences []experience.Experience) []scoredTrade {
	engine := similarity.NewEngine(cfg.SimilarityConfig)
	calculator := confidence.NewCalculator(cfg.ConfidenceConfig, engine, zerolog.Nop())

	trades := make([]scoredTrade, 0, len(experiences))

	for i, e := range experiences {
		if !e.TookTrade {
			continue
		}

		rest := make([]experience.Experience, 0, len(experiences)-1)
		rest = append(rest, experiences[:i]...)
		rest = append(rest, experiences[i+1:]...)

		store := experience.NewStore()
		store.Replace(rest)

		decision := calculator.Evaluate(e.State, store)
		trades = append(trades, scoredTrade{confidence: decision.Confidence, reward: e.Reward})
	}
	return trades
}

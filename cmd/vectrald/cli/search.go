package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/vectral/vectral/internal/search"
	"github.com/vectral/vectral/internal/vectordb"
)

var errUnknownMetricOrMode = errors.New("unknown --metric or --mode")

// SearchCmd returns the search command.
func SearchCmd(db *vectordb.DB) *Command {
	flags := flag.NewFlagSet("search", flag.ContinueOnError)
	values := flags.String("values", "", "Query vector as a JSON array (required)")
	metric := flags.String("metric", "l2", "Distance metric: l2|dot|cosine")
	mode := flags.String("mode", "auto", "Candidate gathering: exact|ivf|auto")
	k := flags.Int("k", 10, "Number of hits to return")
	targetRecall := flags.Float64("target-recall", 0, "Target recall in (0, 1] for ivf mode")
	filterJSON := flags.String("filter", "", `Metadata filter as JSON, e.g. {"must":[{"type":"match","field":"tag","value":"a"}]}`)
	includePayload := flags.Bool("include-payload", false, "Include each hit's payload")

	return &Command{
		Flags: flags,
		Usage: "search <collection> --values <json-array> [--metric l2|dot|cosine] [--mode exact|ivf|auto] [--k n] [--filter <json>]",
		Short: "Run a top-k query against a collection",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}

			if *values == "" {
				return errValuesRequired
			}

			var vec []float32
			if err := json.Unmarshal([]byte(*values), &vec); err != nil {
				return fmt.Errorf("invalid --values: %w", err)
			}

			m, err := parseMetric(*metric)
			if err != nil {
				return err
			}

			md, err := parseMode(*mode)
			if err != nil {
				return err
			}

			var filter *search.Filter
			if *filterJSON != "" {
				filter = &search.Filter{}
				if err := json.Unmarshal([]byte(*filterJSON), filter); err != nil {
					return fmt.Errorf("invalid --filter: %w", err)
				}
			}

			var recall *float64
			if flags.Changed("target-recall") {
				recall = targetRecall
			}

			result, err := db.Search(ctx, args[0], search.Request{
				Values:         vec,
				Metric:         m,
				Mode:           md,
				K:              *k,
				TargetRecall:   recall,
				Filter:         filter,
				IncludePayload: *includePayload,
			})
			if err != nil {
				return err
			}

			data, err := json.Marshal(result)
			if err != nil {
				return err
			}

			o.Println(string(data))
			return nil
		},
	}
}

func parseMetric(s string) (search.Metric, error) {
	switch s {
	case "l2":
		return search.MetricL2, nil
	case "dot":
		return search.MetricDot, nil
	case "cosine":
		return search.MetricCosine, nil
	default:
		return 0, fmt.Errorf("%w: metric %q", errUnknownMetricOrMode, s)
	}
}

func parseMode(s string) (search.Mode, error) {
	switch s {
	case "exact":
		return search.ModeExact, nil
	case "ivf":
		return search.ModeIVF, nil
	case "auto":
		return search.ModeAuto, nil
	default:
		return 0, fmt.Errorf("%w: mode %q", errUnknownMetricOrMode, s)
	}
}

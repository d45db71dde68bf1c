package cli

import (
	"context"
	"encoding/json"

	flag "github.com/spf13/pflag"

	"github.com/vectral/vectral/internal/vectordb"
)

// StatsCmd returns the stats command.
func StatsCmd(db *vectordb.DB) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stats", flag.ContinueOnError),
		Usage: "stats",
		Short: "Show per-collection and process-wide resource usage",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			data, err := json.MarshalIndent(db.Stats(), "", "  ")
			if err != nil {
				return err
			}

			o.Println(string(data))
			return nil
		},
	}
}

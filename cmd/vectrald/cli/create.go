package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/vectral/vectral/internal/vectordb"
)

var errNameRequired = errors.New("collection name is required")

// CreateCollectionCmd returns the create-collection command.
func CreateCollectionCmd(db *vectordb.DB) *Command {
	flags := flag.NewFlagSet("create-collection", flag.ContinueOnError)
	dimension := flags.Int("dimension", 0, "Vector dimension (required)")
	strictFinite := flags.Bool("strict-finite", true, "Reject non-finite components on upsert")

	return &Command{
		Flags: flags,
		Usage: "create-collection <name> --dimension <n> [--strict-finite]",
		Short: "Create a collection",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}

			var strict *bool
			if flags.Changed("strict-finite") {
				strict = strictFinite
			}

			_, err := db.CreateCollection(args[0], *dimension, strict)
			if err != nil {
				return err
			}

			o.Println("created", args[0])
			return nil
		},
	}
}

// DeleteCollectionCmd returns the delete-collection command.
func DeleteCollectionCmd(db *vectordb.DB) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete-collection", flag.ContinueOnError),
		Usage: "delete-collection <name>",
		Short: "Delete a collection",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}

			deleted, err := db.DeleteCollection(args[0])
			if err != nil {
				return err
			}

			if deleted {
				o.Println("deleted", args[0])
			} else {
				o.Println("not found:", args[0])
			}

			return nil
		},
	}
}

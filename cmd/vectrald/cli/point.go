package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/vectordb"
)

var (
	errCollectionAndIDRequired = errors.New("collection and id are required")
	errValuesRequired          = errors.New("--values is required")
)

// UpsertCmd returns the upsert command.
func UpsertCmd(db *vectordb.DB) *Command {
	flags := flag.NewFlagSet("upsert", flag.ContinueOnError)
	values := flags.String("values", "", "Vector components as a JSON array, e.g. [1,2,3] (required)")
	payload := flags.String("payload", "", "Payload as a JSON object, e.g. {\"k\":\"v\"}")

	return &Command{
		Flags: flags,
		Usage: "upsert <collection> <id> --values <json-array> [--payload <json-object>]",
		Short: "Insert or replace a point",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errCollectionAndIDRequired
			}

			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			if *values == "" {
				return errValuesRequired
			}

			var vec []float32
			if err := json.Unmarshal([]byte(*values), &vec); err != nil {
				return fmt.Errorf("invalid --values: %w", err)
			}

			var p collection.Payload
			if *payload != "" {
				if err := json.Unmarshal([]byte(*payload), &p); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}

			created, err := db.UpsertPoint(args[0], id, vec, p)
			if err != nil {
				return err
			}

			if created {
				o.Println("created")
			} else {
				o.Println("replaced")
			}

			return nil
		},
	}
}

// GetCmd returns the get command.
func GetCmd(db *vectordb.DB) *Command {
	return &Command{
		Flags: flag.NewFlagSet("get", flag.ContinueOnError),
		Usage: "get <collection> <id>",
		Short: "Fetch a point's vector and payload",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errCollectionAndIDRequired
			}

			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			values, payload, err := db.GetPoint(args[0], id)
			if err != nil {
				return err
			}

			return printPoint(o, id, values, payload)
		},
	}
}

// DeletePointCmd returns the delete-point command.
func DeletePointCmd(db *vectordb.DB) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete-point", flag.ContinueOnError),
		Usage: "delete-point <collection> <id>",
		Short: "Delete a point",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errCollectionAndIDRequired
			}

			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			deleted, err := db.DeletePoint(args[0], id)
			if err != nil {
				return err
			}

			if deleted {
				o.Println("deleted")
			} else {
				o.Println("not found")
			}

			return nil
		},
	}
}

// ListCmd returns the list command.
func ListCmd(db *vectordb.DB) *Command {
	flags := flag.NewFlagSet("list", flag.ContinueOnError)
	cursor := flags.Uint64("cursor", 0, "Resume after this id")
	offset := flags.Int("offset", 0, "Skip this many ids instead of resuming from a cursor")
	changed := flags.Changed
	limit := flags.Int("limit", 100, "Max ids to return")

	return &Command{
		Flags: flags,
		Usage: "list <collection> [--cursor <id> | --offset <n>] [--limit <n>]",
		Short: "Page through a collection's ids in ascending order",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}

			if changed("offset") {
				ids, err := db.ListIDsOffset(args[0], *offset, *limit)
				if err != nil {
					return err
				}
				for _, id := range ids {
					o.Println(id)
				}
				return nil
			}

			var cur *uint64
			if changed("cursor") {
				cur = cursor
			}

			ids, next, err := db.ListIDsPage(args[0], cur, *limit)
			if err != nil {
				return err
			}

			for _, id := range ids {
				o.Println(id)
			}

			if next != nil {
				o.Println("next_cursor:", *next)
			}

			return nil
		},
	}
}

func printPoint(o *IO, id uint64, values []float32, payload collection.Payload) error {
	out := struct {
		ID      uint64             `json:"id"`
		Values  []float32          `json:"values"`
		Payload collection.Payload `json:"payload,omitempty"`
	}{ID: id, Values: values, Payload: payload}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	o.Println(string(data))
	return nil
}

package cli

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/store"
)

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [entity] [file|-]",
		Short: "Validate JSON records against an entity type and print the coerced records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			records, err := readRecords(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}

			out := make([]model.Record, 0, len(records))
			failed := 0
			for i, r := range records {
				valid, err := d.Validate(r)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "record %d: %v\n", i, err)
					continue
				}
				out = append(out, valid)
			}
			if err := writeOut(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d records invalid", failed, len(records))
			}
			return nil
		},
	}
}

func (a *app) transformCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transform [entity] [file|-]",
		Short: "Print the transformed form of JSON records: aliases resolved, relations folded, composites computed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			records, err := readRecords(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			out := make([]model.Record, len(records))
			for i, r := range records {
				out[i] = d.Transform(r)
			}
			return writeOut(cmd.OutOrStdout(), out)
		},
	}
}

// storeCommands returns the commands that talk to the table.
func (a *app) storeCommands() []*cobra.Command {
	cmds := []*cobra.Command{
		a.getCommand(),
		a.putCommand(),
		a.deleteCommand(),
		a.scanCommand(),
		a.queryCommand(),
	}
	for _, cmd := range cmds {
		setupStoreFlags(cmd)
		cmd.PreRunE = a.connect
		cmd.PostRun = a.dumpMetrics
	}
	return cmds
}

// connect creates the store for the loaded definitions.
func (a *app) connect(cmd *cobra.Command, _ []string) error {
	client, err := a.newClient(cmd.Context(), a.v)
	if err != nil {
		return err
	}
	s, err := store.New(client, storeConfig(a.v), a.set.Types()...)
	if err != nil {
		return err
	}
	s.SetLogger(a.logger)
	a.store = s
	return nil
}

func (a *app) dumpMetrics(cmd *cobra.Command, _ []string) {
	if a.store != nil && a.v.GetBool("metrics") {
		a.store.WriteMetrics(cmd.ErrOrStderr())
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [entity] [pk] [sk]",
		Short: "Get a record by its raw key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			inst, err := a.store.Get(cmd.Context(), d, store.Key{PK: args[1], SK: args[2]})
			if err != nil {
				return err
			}
			if inst == nil {
				return fmt.Errorf("%s %s/%s not found", d.Name(), args[1], args[2])
			}
			return writeOut(cmd.OutOrStdout(), inst.Attributes())
		},
	}
}

func (a *app) putCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [entity] [file|-]",
		Short: "Write JSON records, including their linked relations, one transaction per record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			records, err := readRecords(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			update := a.v.GetBool("update")

			out := make([]model.Record, 0, len(records))
			for i, r := range records {
				inst, err := model.NewFrom(d, r)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if update {
					err = a.store.Update(cmd.Context(), inst)
				} else {
					err = a.store.Create(cmd.Context(), inst)
				}
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				out = append(out, inst.Attributes())
			}
			return writeOut(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Bool("update", false, WrapString("fail for records that do not exist yet instead of creating them"))
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [entity] [pk] [sk]",
		Short: "Delete a record by its raw key and print its last state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			inst, err := a.store.Delete(cmd.Context(), d, store.Key{PK: args[1], SK: args[2]})
			if err != nil {
				return err
			}
			return writeOut(cmd.OutOrStdout(), inst.Attributes())
		},
	}
}

// setupReadFlags adds the flags shared by scan and query
func setupReadFlags(cmd *cobra.Command) {
	key := "index"
	cmd.Flags().String(key, "", WrapString("index to read instead of the base table"))
	key = "filter"
	cmd.Flags().String(key, "", WrapString("filter expression, combined with the entity filter"))
	key = "names"
	cmd.Flags().String(key, "", WrapString(`expression attribute names as JSON, e.g. {"#n":"name"}`))
	key = "values"
	cmd.Flags().String(key, "", WrapString(`expression attribute values as JSON, e.g. {":n":"Ada"}`))
	key = "limit"
	cmd.Flags().Int32(key, 0, WrapString("items evaluated per page (0 = no limit)"))
	key = "all"
	cmd.Flags().Bool(key, false, WrapString("fetch every page instead of only the first"))
}

func (a *app) scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [entity]",
		Short: "Scan records of an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			names, err := parseNames(a.v.GetString("names"))
			if err != nil {
				return err
			}
			values, err := parseValues(a.v.GetString("values"))
			if err != nil {
				return err
			}
			c, err := a.store.Scan(cmd.Context(), d, store.ScanInput{
				IndexName:                 a.v.GetString("index"),
				FilterExpression:          a.v.GetString("filter"),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
				Limit:                     a.v.GetInt32("limit"),
			})
			if err != nil {
				return err
			}
			return a.writeCursor(cmd, c)
		},
	}
	setupReadFlags(cmd)
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [entity]",
		Short: "Query records of an entity type, optionally with their linked children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.entity(args[0])
			if err != nil {
				return err
			}
			names, err := parseNames(a.v.GetString("names"))
			if err != nil {
				return err
			}
			values, err := parseValues(a.v.GetString("values"))
			if err != nil {
				return err
			}
			in := store.QueryInput{
				IndexName:                 a.v.GetString("index"),
				KeyConditionExpression:    a.v.GetString("key-condition"),
				FilterExpression:          a.v.GetString("filter"),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
				IncludeRelated:            a.v.GetBool("include-related"),
				Limit:                     a.v.GetInt32("limit"),
			}
			if a.v.GetBool("descending") {
				in.ScanIndexForward = aws.Bool(false)
			}
			c, err := a.store.Query(cmd.Context(), d, in)
			if err != nil {
				return err
			}
			return a.writeCursor(cmd, c)
		},
	}
	setupReadFlags(cmd)
	key := "key-condition"
	cmd.Flags().String(key, "", WrapString("key condition expression; key values are matched in tagged form, e.g. User-42"))
	key = "include-related"
	cmd.Flags().Bool(key, false, WrapString("also return linked children resolved through --index, attached to their parents"))
	key = "descending"
	cmd.Flags().Bool(key, false, WrapString("return items in descending sort key order"))
	return cmd
}

func (a *app) writeCursor(cmd *cobra.Command, c *store.Cursor) error {
	if a.v.GetBool("all") {
		if _, err := c.All(cmd.Context()); err != nil && !errors.Is(err, store.ErrCursorExhausted) {
			return err
		}
	} else if c.MorePages() {
		fmt.Fprintln(cmd.ErrOrStderr(), "more pages available, use --all to fetch them")
	}

	items := c.Items()
	out := make([]model.Record, len(items))
	for i, inst := range items {
		out[i] = inst.Attributes()
	}
	return writeOut(cmd.OutOrStdout(), out)
}

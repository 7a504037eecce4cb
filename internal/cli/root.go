// Package cli implements the espalier command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/espalier/definition"
	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/store"
)

const (
	Version = "0.3.0"
)

// ClientFactory creates the table client used by store commands.
type ClientFactory func(ctx context.Context, v *viper.Viper) (store.Client, error)

// app holds the state shared by the commands of one invocation.
type app struct {
	v         *viper.Viper
	newClient ClientFactory
	logger    *slog.Logger
	set       *definition.Set
	store     *store.Store
}

// NewRootCommand builds the command tree. A nil factory connects to DynamoDB
// using the AWS configuration of the environment.
func NewRootCommand(newClient ClientFactory) *cobra.Command {
	if newClient == nil {
		newClient = dynamoClient
	}
	a := &app{v: viper.New(), newClient: newClient}

	root := &cobra.Command{
		Use:   "espalier",
		Short: "map entity records onto a shared DynamoDB table",
		Long: fmt.Sprintf(`espalier (v%s)

Validate and transform records against YAML entity definitions, and read or
write them in a single DynamoDB table shared by every entity type.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	key := "definitions"
	root.PersistentFlags().StringP(key, "d", "entities.yaml", WrapString("YAML file with the entity definitions"))
	key = "log-level"
	root.PersistentFlags().String(key, "warn", WrapString("log level (debug, info, warn, error)"))

	root.AddCommand(
		a.versionCommand(),
		a.typesCommand(),
		a.validateCommand(),
		a.transformCommand(),
	)
	root.AddCommand(a.storeCommands()...)
	return root
}

// Execute runs the command line tool against DynamoDB.
func Execute() {
	if err := NewRootCommand(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// setup binds flags, loads configuration and the entity definitions.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := initConfig(a.v, cmd); err != nil {
		return err
	}

	level, err := parseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if cmd.Name() == "version" {
		return nil
	}
	set, err := definition.LoadFile(a.v.GetString("definitions"))
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	a.set = set
	return nil
}

func (a *app) entity(name string) (*model.Descriptor, error) {
	d, ok := a.set.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (known: %v)", name, a.set.Catalog().Names())
	}
	return d, nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of espalier",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "espalier v%s\n", Version)
		},
	}
}

func (a *app) typesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the entity types of the definitions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, d := range a.set.Types() {
				keys := ""
				if d.PrimaryKey() != "" {
					keys = fmt.Sprintf(" (%s, %s)", d.PrimaryKey(), d.SecondaryKey())
				}
				fmt.Fprintf(out, "%s%s\n", d.Name(), keys)
			}
		},
	}
}

func writeOut(w io.Writer, v any) error {
	data, err := marshalRecord(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/espalier/store"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// setupStoreFlags adds the table connection flags to a command
func setupStoreFlags(cmd *cobra.Command) {
	key := "table"
	cmd.PersistentFlags().String(key, "", WrapString("name of the table every entity type is stored in"))

	key = "region"
	cmd.PersistentFlags().String(key, "", WrapString("AWS region (defaults to the AWS configuration of the environment)"))

	key = "profile"
	cmd.PersistentFlags().String(key, "", WrapString("shared AWS config profile"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("custom DynamoDB endpoint, e.g. http://localhost:8000 for DynamoDB Local"))

	key = "tag-delimiter"
	cmd.PersistentFlags().String(key, "-", WrapString("separator between entity name and raw key values"))

	key = "consistent-read"
	cmd.PersistentFlags().Bool(key, true, WrapString("use strongly consistent reads on the base table"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("print store metrics in Prometheus format to stderr after the command"))
}

// initConfig loads .env files, binds command flags and reads ESPALIER_*
// environment variables.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	// load .env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("espalier")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v.BindPFlags(cmd.Flags())
}

// storeConfig returns the store configuration of the bound flags.
func storeConfig(v *viper.Viper) store.Config {
	cfg := store.DefaultConfig(v.GetString("table"))
	if d := v.GetString("tag-delimiter"); d != "" {
		cfg.TagDelimiter = d
	}
	cfg.ConsistentRead = v.GetBool("consistent-read")
	return cfg
}

// dynamoClient creates a DynamoDB client from the AWS configuration of the
// environment and the region, profile and endpoint flags.
func dynamoClient(ctx context.Context, v *viper.Viper) (store.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := v.GetString("region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := v.GetString("profile"); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := v.GetString("endpoint")
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Package commands implements the restctl CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/restkit/config"
	"github.com/kbukum/restkit/core"
)

// DefaultName selects the config file and environment prefix when --name is
// not given.
const DefaultName = "restctl"

// GlobalFlags holds the persistent flag values.
type GlobalFlags struct {
	Name    string
	Config  string
	EnvFile string
	Output  string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "restctl",
		Short: "Send REST requests through a restkit client",
		Long: `restctl drives a restkit client from the command line: it sends requests
under any cache policy, inspects and clears the durable queue and clears the
response cache.

Configuration is read from restctl.yaml (or --config), a .env file and
RESTCTL_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.Name, "name", DefaultName, "client name used to locate configuration")
	root.PersistentFlags().StringVar(&flags.Config, "config", "", "config file (default: ./restctl.yaml)")
	root.PersistentFlags().StringVar(&flags.EnvFile, "env-file", "", "env file loaded before the environment")
	root.PersistentFlags().StringVarP(&flags.Output, "output", "o", "table", "output format (table, json, yaml)")

	root.AddCommand(newSendCmd(flags))
	root.AddCommand(newQueueCmd(flags))
	root.AddCommand(newCacheCmd(flags))
	root.AddCommand(newVersionCmd(flags))
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// newClient loads the configuration selected by flags and builds a client.
func newClient(ctx context.Context, flags *GlobalFlags, opts ...core.Option) (*core.Client, error) {
	var loadOpts []config.LoaderOption
	if flags.Config != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(flags.Config))
	}
	if flags.EnvFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(flags.EnvFile))
	}
	cfg, err := core.LoadConfig(flags.Name, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return core.New(ctx, *cfg, opts...)
}

// withClient runs task on a started client and closes it afterwards.
func withClient(cmd *cobra.Command, flags *GlobalFlags, task func(ctx context.Context, c *core.Client) error) error {
	c, err := newClient(cmd.Context(), flags)
	if err != nil {
		return err
	}
	return c.RunTask(cmd.Context(), func(ctx context.Context) error {
		return task(ctx, c)
	})
}

// withStoppedClient runs task without starting the queue or the prober.
func withStoppedClient(cmd *cobra.Command, flags *GlobalFlags, task func(ctx context.Context, c *core.Client) error) error {
	c, err := newClient(cmd.Context(), flags)
	if err != nil {
		return err
	}
	taskErr := task(cmd.Context(), c)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), core.DefaultGracefulTimeout)
	defer cancel()
	if err := c.Close(ctx); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}

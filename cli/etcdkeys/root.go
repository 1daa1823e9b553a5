package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/KarpelesLab/etcd"
	"github.com/KarpelesLab/etcd/transport"
	"github.com/KarpelesLab/pjson"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	Endpoints   []string
	Timeout     time.Duration
	DialTimeout time.Duration
	User        string
	Password    string
	Debug       bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:           "etcdkeys",
	Short:         "etcd v2 keys client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Debug {
			etcd.Debug = true
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&globalFlags.Endpoints, "endpoints", []string{etcd.DefaultAddr}, "etcd addresses as host:port")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.Timeout, "timeout", transport.DefaultTimeout, "time budget for sending a request and reading its response")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.DialTimeout, "dial-timeout", etcd.DefaultDialTimeout, "connection timeout")
	rootCmd.PersistentFlags().StringVar(&globalFlags.User, "user", "", "username for basic authentication")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Password, "password", "", "password (prompted for when --user is set and stdin is a terminal)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "log requests to stderr")

	rootCmd.AddCommand(versionCmd, getCmd, setCmd, mkCmd, updateCmd, mkdirCmd, updateDirCmd, rmCmd, rmdirCmd, lsCmd, valuesCmd, enqueueCmd)
}

// getClient returns a client and a context carrying the credentials given on
// the command line.
func getClient(ctx context.Context) (*etcd.Client, context.Context, error) {
	c, err := etcd.New(etcd.Options{
		Addrs:       globalFlags.Endpoints,
		Timeout:     globalFlags.Timeout,
		DialTimeout: globalFlags.DialTimeout,
	})
	if err != nil {
		return nil, ctx, err
	}
	if globalFlags.User == "" {
		return c, ctx, nil
	}

	pass := globalFlags.Password
	if pass == "" && term.IsTerminal(int(syscall.Stdin)) {
		pass, err = promptPassword("Password")
		if err != nil {
			return nil, ctx, err
		}
	}
	cred := &etcd.Credentials{Username: globalFlags.User, Password: pass}
	return c, cred.Use(ctx), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt+": ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return string(bytePassword), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := pjson.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return err
}

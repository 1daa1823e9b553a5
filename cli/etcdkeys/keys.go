package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var (
	setTTL    time.Duration
	setCond   string
	recursive bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the server and cluster versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		v, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
		return err
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set the value of a key",
	Long: `Set the value of a key, optionally under conditions.

Examples:
  etcdkeys set /config/a 1
  etcdkeys set /config/a 2 --cond 'prevValue=1'
  etcdkeys set /lock me --ttl 30s --cond '{"prevExist":"false"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseCond(setCond)
		if err != nil {
			return err
		}
		opts.TTL = setTTL
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Set(ctx, args[0], args[1], opts)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var mkCmd = &cobra.Command{
	Use:   "mk <key> <value>",
	Short: "Set a key without conditions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Create(ctx, args[0], args[1], setTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <key> <value>",
	Short: "Update an existing key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cond, err := parseCond(setCond)
		if err != nil {
			return err
		}
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Update(ctx, args[0], args[1], setTTL, cond)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <key>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Mkdir(ctx, args[0], setTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var updateDirCmd = &cobra.Command{
	Use:   "updatedir <key>",
	Short: "Change the TTL of a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.UpdateDir(ctx, args[0], setTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Rm(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <key>",
	Short: "Remove a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Rmdir(ctx, args[0], recursive)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		keys, err := c.Ls(ctx, dirArg(args), recursive)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var valuesCmd = &cobra.Command{
	Use:   "values [dir]",
	Short: "Print every key with its value",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		values, err := c.KeysValue(ctx, dirArg(args), recursive)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k])
		}
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <dir> <value>",
	Short: "Create an in-order key below a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, err := getClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.CreateInOrder(ctx, args[0], args[1], setTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return "/"
	}
	return args[0]
}

func init() {
	for _, cmd := range []*cobra.Command{setCmd, mkCmd, updateCmd, mkdirCmd, updateDirCmd, enqueueCmd} {
		cmd.Flags().DurationVar(&setTTL, "ttl", 0, "time to live, in whole seconds")
	}
	for _, cmd := range []*cobra.Command{setCmd, updateCmd} {
		cmd.Flags().StringVar(&setCond, "cond", "", "conditions as a query string or JSON object (prevValue, prevIndex, prevExist)")
	}
	for _, cmd := range []*cobra.Command{rmdirCmd, lsCmd, valuesCmd} {
		cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "include nested directories")
	}
}

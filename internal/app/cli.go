package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, out io.Writer, errOut io.Writer) int {
	return App{Out: out, Err: errOut}.Run(args)
}

func (app App) Run(args []string) int {
	out, errOut := app.Out, app.Err
	flags := GlobalFlags{}
	var showVersion bool

	root := &cobra.Command{
		Use:           "patsearch",
		Short:         "Search patent offices through a real browser",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "version")
	root.PersistentFlags().StringVarP(&flags.SourceDir, "source-dir", "D", "", "source directory")
	root.PersistentFlags().StringVar(&flags.Socket, "socket", "", "daemon socket path")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&flags.Browser, "browser", "b", "", "browser type")
	root.PersistentFlags().StringVarP(&flags.Channel, "channel", "c", "", "browser channel")
	root.PersistentFlags().BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	root.PersistentFlags().StringVarP(&flags.Timeout, "timeout", "t", "", "per-step timeout")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		return nil
	}

	// withEnv loads configuration once per command and turns setup failures
	// into exit 1.
	withEnv := func(fn func(cmd *cobra.Command, args []string, e env) int) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			return exitOrNil(fn(cmd, args, e))
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitOrNil(app.runInstall(flags))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check install and environment health",
		RunE: withEnv(func(_ *cobra.Command, _ []string, e env) int {
			return app.runDoctor(e, flags)
		}),
	})

	var searchOpts searchOptions
	searchCmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search one source and print the records found",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e env) int {
			return app.runSearch(cmd.Context(), e, flags, searchOpts, strings.Join(args, " "))
		}),
	}
	searchCmd.Flags().StringVarP(&searchOpts.Source, "source", "s", "", "source name")
	searchCmd.Flags().IntVarP(&searchOpts.MaxPages, "max-pages", "n", 0, "page limit for this search")
	searchCmd.Flags().BoolVarP(&searchOpts.Local, "local", "l", false, "run in process even if a daemon is up")
	root.AddCommand(searchCmd)

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage source descriptors",
	}
	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored and built-in sources",
		RunE: withEnv(func(_ *cobra.Command, _ []string, e env) int {
			return app.runSourcesList(e, flags)
		}),
	})
	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show a source",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(_ *cobra.Command, args []string, e env) int {
			return app.runSourcesShow(e, flags, args[0])
		}),
	})
	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add or update a source",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e env) int {
			f := cmd.Flags()
			url, _ := f.GetString("url")
			loginURL, _ := f.GetString("login-url")
			queryURL, _ := f.GetString("query-url")
			credRef, _ := f.GetString("credential-ref")
			stepTimeout, _ := f.GetString("step-timeout")
			next, _ := f.GetStringSlice("next")
			var requiresAuth *bool
			if f.Changed("requires-auth") {
				v, _ := f.GetBool("requires-auth")
				requiresAuth = &v
			}
			var maxPages *int
			if f.Changed("max-pages") {
				v, _ := f.GetInt("max-pages")
				maxPages = &v
			}
			overrides, err := sourceOverrides(url, loginURL, queryURL, credRef, requiresAuth, maxPages, stepTimeout, next)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitUsage
			}
			return app.runSourcesAdd(e, flags, args[0], overrides)
		}),
	}
	addCmd.Flags().StringP("url", "u", "", "search page url")
	addCmd.Flags().String("login-url", "", "login page url")
	addCmd.Flags().String("query-url", "", "results url with a {query} placeholder")
	addCmd.Flags().String("credential-ref", "", "env prefix for <REF>_USERNAME/<REF>_PASSWORD")
	addCmd.Flags().Bool("requires-auth", false, "sign in before searching")
	addCmd.Flags().IntP("max-pages", "n", 0, "page limit")
	addCmd.Flags().String("step-timeout", "", "per-step timeout")
	addCmd.Flags().StringSlice("next", nil, "next-page selectors")
	sourcesCmd.AddCommand(addCmd)
	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove stored sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEnv(func(_ *cobra.Command, args []string, e env) int {
			return app.runSourcesRemove(e, flags, args)
		}),
	})
	root.AddCommand(sourcesCmd)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon in the foreground",
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e env) int {
			return app.runServe(cmd.Context(), e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the search daemon",
		RunE: withEnv(func(_ *cobra.Command, _ []string, e env) int {
			return app.runStop(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show search daemon status",
		RunE: withEnv(func(_ *cobra.Command, _ []string, e env) int {
			return app.runStatus(e, flags)
		}),
	})

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}

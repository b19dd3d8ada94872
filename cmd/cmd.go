// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bundlex/internal/shared"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   shared.DefaultConfigPath,
	}
}

// runFlags are shared by build and watch.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "production",
			Aliases: []string{"p"},
			Usage:   "Minify output and set process.env.NODE_ENV to true",
		},
		&cli.BoolFlag{
			Name:  "sourcemaps",
			Usage: "Write .map files next to the output",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Do not record runs in the history database",
		},
	}
}

// buildCommand runs tasks once.
func buildCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "build",
		Aliases:   []string{"b"},
		Usage:     "Bundle every task, or the named tasks, once",
		ArgsUsage: "[task...]",
		Flags:     runFlags(),
		Action:    r.Build,
	}
}

// watchCommand re-runs tasks on change.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Bundle every task, then re-bundle whenever its sources change",
		Flags: append(runFlags(),
			&cli.BoolFlag{
				Name:  "ui",
				Usage: "Show an interactive dashboard",
			},
			&cli.BoolFlag{
				Name:  "skip-initial",
				Usage: "Do not run every task before watching",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the dashboard is open",
				Value: "./tmp/bundlex-watch.log",
			},
		),
		Action: r.Watch,
	}
}

// historyCommand lists recorded runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded task runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "task",
				Aliases: []string{"t"},
				Usage:   "Only show runs of this task",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show runs with this status (running, succeeded, failed, cancelled)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of runs to show",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show one run with its steps",
				ArgsUsage: "<run-id>",
				Action:    r.HistoryShow,
			},
			{
				Name:  "export",
				Usage: "Write the listed runs to a CSV, Markdown or text file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, md, txt); defaults to the output extension",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: runs.<format>)",
					},
				},
				Action: r.HistoryExport,
			},
			{
				Name:      "rm",
				Usage:     "Delete a recorded run",
				ArgsUsage: "<run-id>",
				Action:    r.HistoryDelete,
			},
		},
		Action: r.History,
	}
}

// tasksCommand lists configured tasks.
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tasks",
		Usage:  "List configured tasks and their resolved options",
		Action: r.Tasks,
	}
}

// setupCommand handles database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the run history database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.SetupDatabase,
	}
}

// configCommand manages the configuration file.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example configuration file",
				Action: r.ConfigInit,
			},
		},
	}
}

// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/models"
)

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: txt, json, csv or markdown",
		Value:   value,
	}
}

// setupCommand creates the config file and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the bearer token used for likes and favourites",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password and save the token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password",
						Sources: cli.EnvVars("SCOREBOOK_PASSWORD"),
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Remove the saved token",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show which user the current token belongs to",
				Action: r.AuthStatus,
			},
			{
				Name:  "import-curl",
				Usage: "Save the bearer token from a request copied as cURL in the browser DevTools",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
				},
				Action: r.AuthImportCurl,
			},
		},
	}
}

// songsCommand handles catalogue operations
func songsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "songs",
		Usage: "Browse and sync the song catalogue",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List songs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number",
						Value: 1,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Songs per page",
						Value:   20,
					},
					&cli.BoolFlag{
						Name:  "local",
						Usage: "Read the synced local catalogue instead of the API",
					},
					&cli.StringFlag{
						Name:  "genre",
						Usage: "Filter the local catalogue by genre",
					},
					formatFlag("txt"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.SongsList,
			},
			{
				Name:  "show",
				Usage: "Show one song with your like and favourite status",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "local",
						Usage: "Read the synced local catalogue instead of the API",
					},
					formatFlag("txt"),
				},
				Action: r.SongsShow,
			},
			{
				Name:  "sync",
				Usage: "Copy the remote catalogue into the local database",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Songs requested per page",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "max-pages",
						Usage: "Stop after this many pages (0 for all)",
					},
				},
				Action: r.SongsSync,
			},
			{
				Name:  "prefetch",
				Usage: "Warm the like and favourite statuses of the local catalogue",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of songs to prefetch",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent requests",
						Value: 4,
					},
				},
				Action: r.SongsPrefetch,
			},
		},
	}
}

func likeCommand(r *Runner) *cli.Command {
	return statusCommand(r, models.KindLike, []string{"likes"})
}

func favouriteCommand(r *Runner) *cli.Command {
	return statusCommand(r, models.KindFavourite, []string{"fav", "favourites", "favorite"})
}

// statusCommand builds the status, toggle and history subcommands of kind.
func statusCommand(r *Runner, kind models.Kind, aliases []string) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}
	return &cli.Command{
		Name:    string(kind),
		Aliases: aliases,
		Usage:   "Read and toggle " + kind.Resource(),
		Commands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "Show whether a song is " + kind.Verb(),
				Arguments: idArg,
				Flags:     []cli.Flag{formatFlag("txt")},
				Action:    r.statusAction(kind),
			},
			{
				Name:      "toggle",
				Usage:     "Flip the " + string(kind) + " of a song and wait for the server",
				Arguments: idArg,
				Flags: []cli.Flag{
					formatFlag("txt"),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up (and roll back) after this long",
						Value: 0,
					},
				},
				Action: r.toggleAction(kind),
			},
			{
				Name:      "history",
				Usage:     "Show recent toggles from the local journal",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of records",
						Value: 20,
					},
				},
				Action: r.historyAction(kind),
			},
		},
	}
}

// serveCommand runs the hosting server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the frontend and proxy /api to the upstream API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (default from config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (default from config)",
			},
			&cli.StringFlag{
				Name:  "upstream",
				Usage: "API origin requests under /api are forwarded to",
			},
			&cli.StringFlag{
				Name:  "static",
				Usage: "Frontend build directory",
			},
			&cli.StringFlag{
				Name:  "media",
				Usage: "Directory served at /api/media_files/",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Redis URL for the catalogue cache",
			},
			&cli.BoolFlag{
				Name:  "trust-proxy",
				Usage: "Rate limit by X-Forwarded-For; only behind a reverse proxy",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the site in the default browser",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse songs and toggle likes and favourites interactively",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "local",
				Usage: "List the synced local catalogue instead of the API",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Songs to load",
				Value: 50,
			},
		},
		Action: r.TUI,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the REST API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body to send",
						Value:   "{}",
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kenku-bot/crowevents/internal/config"
	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/events"
	"github.com/kenku-bot/crowevents/internal/logging"
	"github.com/kenku-bot/crowevents/internal/models"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, verr.Error())
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// env: открытая база и менеджер на время одной команды.
type env struct {
	db  *sql.DB
	mgr *events.Manager
	out io.Writer
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "eventsctl",
		Usage: "administer event channels, scores and adjustments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-url", EnvVars: []string{"DATABASE_URL"}, Required: true},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"LOG_LEVEL"}, Value: "warn"},
			&cli.StringFlag{Name: "weights-file", EnvVars: []string{"REACTION_WEIGHTS_FILE"}},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "bring the schema to the current version",
				Action: withEnv(func(c *cli.Context, e *env) error { return nil }),
			},
			{
				Name:  "weights",
				Usage: "print the reaction weights in effect",
				Action: func(c *cli.Context) error {
					w, err := reactionWeights(c)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(w))
					for name := range w {
						names = append(names, name)
					}
					sort.Strings(names)
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "REACTION\tWEIGHT")
					for _, name := range names {
						_, _ = fmt.Fprintf(tw, "%s\t%d\n", name, w[name])
					}
					return tw.Flush()
				},
			},
			scoreCommand(),
			channelCommand(),
			leaderboardCommand(),
			adjustmentsCommand(),
			exportCommand(),
			{
				Name:  "recalc",
				Usage: "recompute cached scores of every event channel",
				Action: withEnv(func(c *cli.Context, e *env) error {
					return e.mgr.RecalculateAll(c.Context)
				}),
			},
			{
				Name:      "name",
				Usage:     "set a cached display name",
				ArgsUsage: "ID NAME",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: eventsctl name ID NAME", 2)
					}
					id, err := parseID(c.Args().Get(0))
					if err != nil {
						return err
					}
					return db.UpdateSnowflake(c.Context, e.db, id, c.Args().Get(1))
				}),
			},
		},
	}
}

// withEnv открывает базу, применяет миграции и собирает менеджер.
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		lg, err := logging.Init(c.String("log-level"), "dev")
		if err != nil {
			return err
		}
		defer lg.Closer()

		database, err := db.Open(c.Context, c.String("database-url"))
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		if err := db.Migrate(c.Context, database, lg.Component("migrate")); err != nil {
			return err
		}
		weights, err := reactionWeights(c)
		if err != nil {
			return err
		}
		return fn(c, &env{
			db:  database,
			mgr: events.NewManager(database, lg.Component("events"), events.WithWeights(weights)),
			out: c.App.Writer,
		})
	}
}

// reactionWeights: веса из --weights-file или значения по умолчанию.
func reactionWeights(c *cli.Context) (events.Weights, error) {
	path := c.String("weights-file")
	if path == "" {
		return events.DefaultWeights(), nil
	}
	return config.LoadWeights(path)
}

// scoreCommand оценивает сообщение вручную: все указанные реакции
// считаются поставленными оценщиком.
func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "score a message by reaction names (no reactions removes its point)",
		Flags: []cli.Flag{
			guildFlag(), channelFlag(),
			&cli.Int64Flag{Name: "message", Aliases: []string{"m"}, Required: true},
			&cli.Int64Flag{Name: "author", Aliases: []string{"a"}, Required: true},
			&cli.StringFlag{Name: "author-name"},
			&cli.StringSliceFlag{Name: "reaction", Aliases: []string{"r"}},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			msg := events.Message{
				ID:         c.Int64("message"),
				AuthorID:   c.Int64("author"),
				AuthorName: c.String("author-name"),
				ChannelID:  c.Int64("channel"),
				GuildID:    c.Int64("guild"),
				SentAt:     time.Now().UTC(),
			}
			var reactions []events.Reaction
			for _, name := range c.StringSlice("reaction") {
				reactions = append(reactions, events.Reaction{Name: name, UserIDs: []int64{0}})
			}
			added, counted, err := e.mgr.ScoreReactions(c.Context, msg, reactions, func(int64) bool { return true })
			if err != nil {
				return err
			}
			if !added {
				_, _ = fmt.Fprintf(e.out, "message %d: no point recorded\n", msg.ID)
				return nil
			}
			_, _ = fmt.Fprintf(e.out, "message %d: scored by %s\n", msg.ID, strings.Join(counted, " "))
			return nil
		}),
	}
}

func guildFlag() cli.Flag {
	return &cli.Int64Flag{Name: "guild", Aliases: []string{"g"}, Required: true}
}

func channelFlag() cli.Flag {
	return &cli.Int64Flag{Name: "channel", Aliases: []string{"c"}, Required: true}
}

func channelCommand() *cli.Command {
	return &cli.Command{
		Name:  "channel",
		Usage: "event channel settings",
		Subcommands: []*cli.Command{
			{
				Name:  "configure",
				Usage: "set the point value of a channel (0 removes it from the season)",
				Flags: []cli.Flag{
					guildFlag(), channelFlag(),
					&cli.IntFlag{Name: "value", Required: true},
					&cli.StringFlag{Name: "name"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					ref := events.ChannelRef{ID: c.Int64("channel"), GuildID: c.Int64("guild"), Name: c.String("name")}
					if err := e.mgr.ConfigureChannel(c.Context, ref, c.Int("value")); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(e.out, "channel %d: point value %d\n", ref.ID, c.Int("value"))
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "list event channels of the guild season",
				Flags: []cli.Flag{guildFlag()},
				Action: withEnv(func(c *cli.Context, e *env) error {
					season, channels, err := e.mgr.GetSeasonChannels(c.Context, c.Int64("guild"))
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(e.out, "%s (id %d)\n", season.Name, season.ID)
					tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "CHANNEL\tPOINT VALUE")
					for _, ch := range channels {
						_, _ = fmt.Fprintf(tw, "%d\t%d\n", ch.ChannelID, ch.PointValue)
					}
					return tw.Flush()
				}),
			},
		},
	}
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "print the season leaderboard, or a channel's with --channel",
		Flags: []cli.Flag{
			guildFlag(),
			&cli.Int64Flag{Name: "channel", Aliases: []string{"c"}},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			var scores []models.Score
			if ch := c.Int64("channel"); ch != 0 {
				s, ok, err := e.mgr.GetEventLeaderboard(c.Context, ch)
				if err != nil {
					return err
				}
				if !ok {
					return cli.Exit(fmt.Sprintf("channel %d is not an event", ch), 1)
				}
				scores = s
			} else {
				_, s, err := e.mgr.GetSeasonLeaderboard(c.Context, c.Int64("guild"))
				if err != nil {
					return err
				}
				scores = s
			}
			tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "#\tUSER\tSCORE")
			for i, s := range scores {
				_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\n", i+1, s.UserID, s.Score)
			}
			return tw.Flush()
		}),
	}
}

func adjustmentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "adjustments",
		Usage: "manual score adjustments as CSV",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "write the channel's adjustments as CSV",
				Flags: []cli.Flag{channelFlag(), &cli.StringFlag{Name: "out", Aliases: []string{"o"}}},
				Action: withEnv(func(c *cli.Context, e *env) error {
					w, closeFn, err := output(c.String("out"), e.out)
					if err != nil {
						return err
					}
					defer closeFn()
					_, err = e.mgr.GetAdjustments(c.Context, c.Int64("channel"), "", w)
					return err
				}),
			},
			{
				Name:  "put",
				Usage: "replace the channel's adjustments from a CSV file",
				Flags: []cli.Flag{guildFlag(), channelFlag(), &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true}},
				Action: withEnv(func(c *cli.Context, e *env) error {
					f, err := os.Open(c.String("file"))
					if err != nil {
						return err
					}
					defer func() { _ = f.Close() }()
					n, err := e.mgr.ReplaceAdjustments(c.Context, c.Int64("guild"), c.Int64("channel"), f, e.mgr.CachedNames())
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(e.out, "%d adjustments saved\n", n)
					return nil
				}),
			},
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "export every point of the guild",
		Flags: []cli.Flag{
			guildFlag(),
			&cli.StringFlag{Name: "format", Value: "csv", Usage: "csv or xlsx"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			format := c.String("format")
			if format != "csv" && format != "xlsx" {
				return cli.Exit("format must be csv or xlsx", 2)
			}
			if format == "xlsx" && c.String("out") == "" {
				return cli.Exit("xlsx export needs --out", 2)
			}
			w, closeFn, err := output(c.String("out"), e.out)
			if err != nil {
				return err
			}
			defer closeFn()
			if format == "xlsx" {
				return e.mgr.ExportPointsXLSX(c.Context, c.Int64("guild"), w)
			}
			_, err = e.mgr.ExportPoints(c.Context, c.Int64("guild"), w)
			return err
		}),
	}
}

func output(path string, def io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return def, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"reviewbot/internal/db"
	"reviewbot/internal/domain/broadcasts"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/stats"
	"reviewbot/internal/domain/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func openPool(cctx *cli.Context) (*pgxpool.Pool, error) {
	pool, err := db.New(cctx.String("db"), int32(cctx.Int("max-conns")), "1m")
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return pool, nil
}

var cmdMigrate = &cli.Command{
	Name:  "migrate",
	Usage: "create or upgrade the schema",
	Action: func(cctx *cli.Context) error {
		pool, err := openPool(cctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(cctx.Context, pool); err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, "schema is up to date")
		return nil
	},
}

var cmdPurgeReviews = &cli.Command{
	Name:  "purge-reviews",
	Usage: "delete every review, whatever its status",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "confirm the deletion",
		},
	},
	Action: func(cctx *cli.Context) error {
		if !cctx.Bool("yes") {
			return fmt.Errorf("refusing to delete all reviews without --yes")
		}
		pool, err := openPool(cctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := storage.NewContainer(pool).Reviews.DeleteAll(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "deleted %d reviews\n", n)
		return nil
	},
}

var cmdStats = &cli.Command{
	Name:  "stats",
	Usage: "print user and review statistics",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print as JSON",
		},
	},
	Action: func(cctx *cli.Context) error {
		pool, err := openPool(cctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := stats.Collect(cctx.Context, storage.NewContainer(pool).Stats)
		if err != nil {
			return err
		}
		if cctx.Bool("json") {
			enc := json.NewEncoder(cctx.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return printReport(cctx.App.Writer, report)
	},
}

var cmdBroadcasts = &cli.Command{
	Name:  "broadcasts",
	Usage: "list recent completed broadcasts",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 10,
		},
	},
	Action: func(cctx *cli.Context) error {
		pool, err := openPool(cctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := storage.NewContainer(pool).Broadcasts.ListRecent(cctx.Context, cctx.Int("limit"))
		if err != nil {
			return err
		}
		return printBroadcasts(cctx.App.Writer, runs)
	},
}

func printReport(w io.Writer, r *stats.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "users\t%d\n", r.TotalUsers)
	fmt.Fprintf(tw, "new today\t%d\n", r.NewUsersToday)
	fmt.Fprintf(tw, "active today\t%d\n", r.ActiveToday)
	fmt.Fprintf(tw, "inactive 7 days\t%d\n", r.Inactive7Days)
	fmt.Fprintf(tw, "reviews\t%d\n", r.TotalReviews)
	fmt.Fprintf(tw, "approved\t%d\n", r.ApprovedReviews)
	fmt.Fprintf(tw, "reviews today\t%d\n", r.ReviewsToday)
	fmt.Fprintf(tw, "average rating\t%.2f\n", r.AverageRating)

	statuses := make([]reviews.Status, 0, len(r.ByStatus))
	for s := range r.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Fprintf(tw, "status %s\t%d\n", s, r.ByStatus[s])
	}
	for rating := 5; rating >= 1; rating-- {
		fmt.Fprintf(tw, "%s\t%d\n", strings.Repeat("*", rating), r.Ratings[rating])
	}
	return tw.Flush()
}

func printBroadcasts(w io.Writer, runs []broadcasts.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no broadcasts recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tSENT\tFAILED\tTOTAL\tTEXT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.FinishedAt.Format(time.DateTime), r.Sent, r.Failed, r.Total, preview(r.Text, 40))
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

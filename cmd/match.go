package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/matcher"
	"github.com/spigell/jobmatch/internal/secrets"
	"github.com/spigell/jobmatch/internal/source"
	"github.com/spigell/jobmatch/internal/utils"
)

const (
	outputJSON  = "json"
	outputTable = "table"

	excludeReason  = "ranked by jobmatch"
	maxTitleLength = 48
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank postings from a file or a feed against a resume",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("resume", "r", "", "resume file (json or yaml)")
	matchCmd.Flags().StringP("postings", "p", "", "file with raw posting records (json or yaml)")
	matchCmd.Flags().String("feed", "", "url of a paginated posting feed, overrides feed.url")
	matchCmd.Flags().StringP("output", "o", outputTable, "output format: table or json")
	matchCmd.Flags().String("out", "", "write the output to this file instead of stdout")
	matchCmd.Flags().StringP("append-exclude", "e", "", "append ranked postings to this exclude file")
	matchCmd.Flags().Bool("dump", false, "dump canonical postings to a temporary file")

	matchCmd.MarkFlagRequired("resume")

	viper.BindPFlag("feed.url", matchCmd.Flags().Lookup("feed"))
}

// match is the main command for the cli.
func match(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobmatch", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config.redacted(), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	format := strings.ToLower(cmd.Flag("output").Value.String())
	if format != outputJSON && format != outputTable {
		logger.Fatal("unsupported output format", zap.String("output", format))
	}

	resume, err := source.LoadResume(cmd.Flag("resume").Value.String())
	if err != nil {
		logger.Fatal("loading resume", zap.Error(err))
	}

	records, err := loadRecords(ctx, cmd.Flag("postings").Value.String(), config.Feed, logger)
	if err != nil {
		logger.Fatal("loading postings", zap.Error(err))
	}

	postings, rejected := jobs.DecodePostings(records)
	for _, rej := range rejected {
		logger.Warn("dropping undecodable posting record", zap.Int("index", rej.Index), zap.Error(rej.Err))
	}
	logger.Info("getting postings", zap.Int("count", len(postings)), zap.Int("rejected", len(rejected)))

	comps, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("closing components", zap.Error(err))
		}
	}()

	report, runErr := comps.matcher.Run(ctx, resume, postings)
	if report != nil {
		report.AddRejected(rejected)
	}

	if err := deliverReport(cmd.Flag("out").Value.String(), format, report, runErr); err != nil {
		// Fatal skips deferred calls.
		if cerr := comps.Close(); cerr != nil {
			logger.Warn("closing components", zap.Error(cerr))
		}
		logger.Fatal("matching did not finish", zap.Error(err))
	}

	logger.Info("matching finished",
		zap.String("state", string(report.State)),
		zap.Int("results", len(report.Results)),
		zap.Int("diagnostics", len(report.Diagnostics)),
	)

	if ok, _ := cmd.Flags().GetBool("dump"); ok {
		filename, err := (&jobs.Postings{Items: report.Postings}).DumpToTmpFile()
		if err != nil {
			logger.Error("dump postings to file", zap.Error(err))
			return
		}
		logger.Info("dumping postings to file", zap.String("filename", filename))
	}

	if excludeFile := cmd.Flag("append-exclude").Value.String(); excludeFile != "" {
		if err := appendExcluded(excludeFile, rankedPostings(report)); err != nil {
			logger.Error("appending to exclude file", zap.Error(err))
			return
		}
		logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(report.Results)))
	}
}

// deliverReport writes whatever report the run produced, including a failed
// one, and returns an error when the run or the write failed.
func deliverReport(out, format string, report *matcher.Report, runErr error) error {
	var errs []error
	if runErr != nil {
		errs = append(errs, fmt.Errorf("matching failed: %w", runErr))
	}
	if report != nil {
		if err := writeReport(out, format, report); err != nil {
			errs = append(errs, fmt.Errorf("writing results: %w", err))
		}
	}
	return errors.Join(errs...)
}

// loadRecords prefers the postings file and falls back to the configured feed.
func loadRecords(ctx context.Context, path string, feed FeedConfig, log *zap.Logger) ([]jobs.Record, error) {
	if path != "" {
		return source.LoadPostingRecords(path)
	}
	if feed.URL == "" {
		return nil, errors.New("either --postings or a feed url is required")
	}

	var token string
	if feed.Token.File != "" || feed.Token.Value != "" || feed.Token.Env != "" {
		feed.Token.Name = "feed token"
		var err error
		if token, err = secrets.Load(feed.Token); err != nil {
			return nil, err
		}
	}

	f, err := source.NewFeed(feed.URL, source.FeedOptions{
		Token:         token,
		Query:         url.Values(feed.Query),
		RatePerSecond: feed.Rate,
		Timeout:       feed.Timeout,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}
	if feed.UserAgent != "" {
		f.UserAgent = feed.UserAgent
	}

	log.Info("fetching postings from feed", zap.String("url", feed.URL))
	return f.Fetch(ctx)
}

func writeReport(path, format string, report *matcher.Report) error {
	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
		color.NoColor = true
	}

	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	return renderTable(w, report)
}

func renderTable(w io.Writer, report *matcher.Report) error {
	header := color.New(color.Bold).SprintFunc()
	degraded := color.New(color.FgYellow).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header("RANK\tSCORE\tSTRUCTURED\tSEMANTIC\tTITLE\tCOMPANY\tLOCATION\tURL"))

	for _, result := range report.Results {
		posting := report.Posting(result.PostingID)
		if posting == nil {
			continue
		}

		semantic := fmt.Sprintf("%.3f", result.SemanticScore)
		if !result.SemanticAvailable {
			semantic = degraded("n/a")
		}

		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\t%s\t%s\t%s\t%s\n",
			result.Rank,
			scoreColor(result.CombinedScore).Sprintf("%.3f", result.CombinedScore),
			result.StructuredScore,
			semantic,
			utils.TruncateForLog(posting.Title, maxTitleLength),
			posting.Company,
			posting.Location,
			posting.URL,
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Results) == 0 {
		fmt.Fprintln(w, degraded("no postings matched"))
	}

	for _, d := range report.Diagnostics {
		fmt.Fprintf(w, "%s %s %s\n", degraded(d.Kind), d.PostingID, d.Message)
	}

	return nil
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 0.7:
		return color.New(color.FgGreen)
	case score >= 0.4:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func rankedPostings(report *matcher.Report) *jobs.Postings {
	ranked := &jobs.Postings{}
	for _, result := range report.Results {
		if p := report.Posting(result.PostingID); p != nil {
			ranked.Items = append(ranked.Items, p)
		}
	}
	return ranked
}

func appendExcluded(path string, postings *jobs.Postings) error {
	excluded, err := jobs.LoadExcludedPostings(path)
	if err != nil {
		return err
	}

	excluded.Append(postings.ToExcluded(excludeReason))

	return excluded.ToFile(path)
}

// redacted returns a copy safe for logging.
func (c *Config) redacted() *Config {
	clone := *c
	if clone.Embedding.APIKey.Value != "" {
		clone.Embedding.APIKey.Value = "***"
	}
	if clone.Feed.Token.Value != "" {
		clone.Feed.Token.Value = "***"
	}
	if clone.Cache.Password != "" {
		clone.Cache.Password = "***"
	}
	return &clone
}

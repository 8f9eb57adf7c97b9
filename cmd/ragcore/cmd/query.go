package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/output"
	"github.com/answerforge/ragcore/pkg/rag"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	limit   int
	variant string
	format  string // "text", "json", or "" for tty detection
	user    string
	session string
	filters []string // key=value pairs
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the ingested corpus",
		Long: `Ask a question. Retrieval runs the experiment-assigned variant
unless one is forced with --variant.

Examples:
  ragcore query "what is hybrid search?"
  ragcore query "how does fusion work" --variant hybrid -n 2
  ragcore query "query caching" --filter source=custom --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "max-results", "n", 0, "Maximum passages to retrieve (1-20, default 4)")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "Force a retrieval variant: baseline, reranked, hybrid, finetuned")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: text, json (default: json when piped)")
	cmd.Flags().StringVar(&opts.user, "user", "", "User id for stable experiment bucketing")
	cmd.Flags().StringVar(&opts.session, "session", "", "Session id for experiment bucketing")
	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "Metadata filter as key=value (repeatable)")

	return cmd
}

func runQuery(cmd *cobra.Command, question string, opts queryOptions) error {
	filter, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	svc, err := buildService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Query(cmd.Context(), question, &rag.QueryOptions{
		MaxResults:     opts.limit,
		MetadataFilter: filter,
		Variant:        opts.variant,
		UserID:         opts.user,
		SessionID:      opts.session,
	})
	if err != nil {
		return err
	}

	if jsonOutput(opts.format) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	renderAnswer(output.New(cmd.OutOrStdout()), answer)
	return nil
}

func renderAnswer(out *output.Writer, answer *model.Answer) {
	out.Status("", answer.Text)
	out.Newline()

	for i, p := range answer.Passages {
		title := p.Chunk.Title
		if title == "" {
			title = p.Chunk.ID
		}
		out.Statusf("", "[%d] %s (score %.4f)", i+1, title, p.Fused)
	}
	if len(answer.Passages) > 0 {
		out.Newline()
	}

	out.Statusf("", "variant=%s confidence=%.3f cost=$%.6f latency=%.0fms status=%s",
		answer.Variant, answer.Confidence, answer.CostUSD, answer.LatencyMS, answer.Status)
	if answer.CacheHit {
		out.Status("", "(served from cache)")
	}
	if answer.Status == model.StatusFailed {
		out.Errorf("query failed: %s", answer.ErrorMessage)
	}
}

// parseFilters converts key=value pairs into a metadata filter.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

// jsonOutput resolves the output format, defaulting to JSON when stdout is
// not a terminal.
func jsonOutput(format string) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

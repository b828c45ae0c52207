package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/client"
	"github.com/textlens/textlens/internal/core"
	errwrap "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/output"
	"github.com/textlens/textlens/internal/retry"
)

// analysis describes one analysis subcommand.
type analysis struct {
	use      string
	short    string
	long     string
	endpoint core.Endpoint
}

var analyses = []analysis{
	{
		use:      "summarize [text...]",
		short:    "Summarize a text",
		long:     "Summarize a text. The text is read from the arguments, or from --file.",
		endpoint: core.EndpointSummarize,
	},
	{
		use:      "sentiment [text...]",
		short:    "Analyze the sentiment of a text",
		long:     "Score each sentence of a text by emotion and report the dominant one.",
		endpoint: core.EndpointSentiment,
	},
	{
		use:      "ask --question QUESTION [text...]",
		short:    "Answer a question about a text",
		long:     "Answer a question using the text as context, with answer quality metrics.",
		endpoint: core.EndpointQA,
	},
	{
		use:      "related --question QUESTION [text...]",
		short:    "Suggest questions related to a question about a text",
		endpoint: core.EndpointRelatedQuestions,
	},
	{
		use:      "follow-up --answer ANSWER [text...]",
		short:    "Suggest a follow-up question for an answer",
		endpoint: core.EndpointFollowUp,
	},
}

func init() {
	for _, a := range analyses {
		rootCmd.AddCommand(newAnalysisCmd(a))
	}
}

func newAnalysisCmd(a analysis) *cobra.Command {
	cmd := &cobra.Command{
		Use:   a.use,
		Short: a.short,
		Long:  a.long,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, a.endpoint, args)
		},
	}

	cmd.Flags().String("file", "", "read text from file (- for stdin)")
	switch a.endpoint {
	case core.EndpointQA, core.EndpointRelatedQuestions:
		cmd.Flags().StringP("question", "q", "", "question about the text")
		_ = cmd.MarkFlagRequired("question")
	case core.EndpointFollowUp:
		cmd.Flags().StringP("answer", "a", "", "answer to suggest a follow-up for")
		_ = cmd.MarkFlagRequired("answer")
	}
	return cmd
}

func runAnalysis(cmd *cobra.Command, endpoint core.Endpoint, positional []string) (err error) {
	defer func() { metrics.RecordCommand(endpoint.String(), err == nil) }()

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return errwrap.NewInvalidInputError(err.Error())
	}

	args, err := analysisArgs(cmd, endpoint, positional)
	if err != nil {
		return errwrap.NewInvalidInputError(err.Error())
	}

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}

	svc, err := newApp(ctx, cfg, cliLogger())
	if err != nil {
		return errwrap.WrapInternal(ctx, err, "failed to initialize dispatcher")
	}
	defer svc.Close(context.WithoutCancel(ctx)) // nolint:errcheck // best-effort cleanup

	if svc.probe != nil {
		svc.probe.Check(ctx)
	}

	policy := retry.NewPolicy(retries)
	policy.Logger = cliLogger()
	value, err := retry.Do(ctx, policy, func(ctx context.Context) (any, error) {
		return dispatch(ctx, svc.client, endpoint, args)
	})
	if err != nil {
		cliLogger().Debug("Request failed",
			zap.String("endpoint", endpoint.String()),
			zap.Bool("online", svc.client.Online()),
			zap.Error(err))
		return err
	}

	result := &output.Result{Operation: endpoint.String(), Value: value}
	return writeOutput(cmd.OutOrStdout(), endpoint.String(), format, func(f output.Formatter) (string, error) {
		return f.FormatResult(result)
	})
}

func analysisArgs(cmd *cobra.Command, endpoint core.Endpoint, positional []string) (client.Args, error) {
	textFile, err := cmd.Flags().GetString("file")
	if err != nil {
		return client.Args{}, err
	}
	text, err := resolveText(positional, textFile)
	if err != nil {
		return client.Args{}, err
	}

	args := client.Args{Text: text}
	if flag := cmd.Flags().Lookup("question"); flag != nil {
		args.Question = strings.TrimSpace(flag.Value.String())
	}
	if flag := cmd.Flags().Lookup("answer"); flag != nil {
		args.Answer = strings.TrimSpace(flag.Value.String())
	}
	if err := args.Validate(endpoint); err != nil {
		return client.Args{}, err
	}
	return args, nil
}

// dispatch runs one request through the client's typed operations.
func dispatch(ctx context.Context, c *client.Client, endpoint core.Endpoint, args client.Args) (any, error) {
	switch endpoint {
	case core.EndpointSummarize:
		return awaitAny(ctx, c.Summarize(ctx, args.Text).Await)
	case core.EndpointSentiment:
		return awaitAny(ctx, c.AnalyzeSentiment(ctx, args.Text).Await)
	case core.EndpointQA:
		return awaitAny(ctx, c.AnswerQuestion(ctx, args.Text, args.Question).Await)
	case core.EndpointRelatedQuestions:
		return awaitAny(ctx, c.RelatedQuestions(ctx, args.Text, args.Question).Await)
	case core.EndpointFollowUp:
		return awaitAny(ctx, c.FollowUpQuestion(ctx, args.Text, args.Answer).Await)
	default:
		return nil, errwrap.NewUnknownEndpointError(endpoint.String())
	}
}

func awaitAny[T any](ctx context.Context, await func(context.Context) (T, error)) (any, error) {
	value, err := await(ctx)
	if err != nil {
		return nil, err
	}
	return value, nil
}

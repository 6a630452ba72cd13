package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fer-inference/internal/bias"
	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/internal/loader"
	"github.com/Brownie44l1/fer-inference/internal/metrics"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

type options struct {
	corpus       string
	models       []string
	metadata     string
	libraryPath  string
	chunkSize    int
	sample       bool
	fraction     float64
	seed         int64
	noCorrection bool
	asJSON       bool
	logLevel     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "fer-evaluate",
		Short: "Score an emotion model against a labeled image corpus",
		Long: `Loads the first usable model artifact and classifies every image under
<corpus>/<Label>/. Prints overall and per-class accuracy plus the confusion
matrix.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.corpus, "corpus", os.Getenv("EVAL_CORPUS_ROOT"), "corpus root containing one directory per label")
	f.StringSliceVar(&opts.models, "model", nil, "candidate artifact locations, tried in order (repeatable)")
	f.StringVar(&opts.metadata, "metadata", os.Getenv("MODEL_METADATA_PATH"), "sidecar metadata override")
	f.StringVar(&opts.libraryPath, "ort-lib", os.Getenv("ONNXRUNTIME_LIB"), "onnxruntime shared library")
	f.IntVar(&opts.chunkSize, "chunk-size", evaluation.DefaultChunkSize, "images per predict batch")
	f.BoolVar(&opts.sample, "sample", false, "score a deterministic subset without bias correction")
	f.Float64Var(&opts.fraction, "fraction", 0.05, "share of each label directory scored in --sample mode")
	f.Int64Var(&opts.seed, "seed", 42, "sampling seed")
	f.BoolVar(&opts.noCorrection, "no-correction", false, "disable neutral bias correction for full runs")
	f.BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	log, err := logger.New(opts.logLevel, "development")
	if err != nil {
		return err
	}
	defer log.Sync()

	metrics.Init()

	d := &model.ONNXDeserializer{
		MetadataPath:     opts.metadata,
		LibraryPath:      opts.libraryPath,
		SerializePredict: true,
	}
	loaded, err := loader.New(d, nil, log).Load(ctx, opts.models...)
	if err != nil {
		return err
	}
	defer func() {
		_ = loaded.Handle.Close()
		_ = model.DestroyEnvironment()
	}()

	meta := loaded.Handle.Metadata()
	var corrector bias.Corrector = bias.NeutralSuppressor()
	if opts.noCorrection {
		corrector = bias.Identity{}
	}
	e := evaluation.New(loaded.Handle, preprocess.New(meta.ImageSize), corrector, opts.chunkSize, log)

	start := time.Now()
	var result *evaluation.Result
	if opts.sample {
		result, err = e.Sample(ctx, opts.corpus, opts.fraction, opts.seed)
	} else {
		result, err = e.Evaluate(ctx, opts.corpus)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printReport(out, loaded, result, time.Since(start))
}

func printReport(out io.Writer, loaded *loader.Loaded, r *evaluation.Result, took time.Duration) error {
	fmt.Fprintf(out, "model:     %s (%s)\n", loaded.Path, loaded.Strategy)
	fmt.Fprintf(out, "mode:      %s, bias corrected: %t\n", r.Mode, r.BiasCorrected)
	fmt.Fprintf(out, "images:    %s scored, %s skipped in %s\n",
		humanize.Comma(int64(r.TotalImages)), humanize.Comma(int64(r.SkippedImages)), took.Round(time.Millisecond))
	fmt.Fprintf(out, "accuracy:  %.2f%% (%s/%s)\n\n",
		r.OverallAccuracy*100, humanize.Comma(int64(r.CorrectPredictions)), humanize.Comma(int64(r.TotalImages)))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "label\tcorrect\ttotal\taccuracy\t")
	for _, label := range emotion.Labels {
		m, ok := r.ClassMetrics[label]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\t\n", label, m.Correct, m.Total, m.Accuracy*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nconfusion matrix (rows true, columns predicted):")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, label := range emotion.Labels {
		fmt.Fprintf(tw, "%s\t", label)
	}
	fmt.Fprintln(tw)
	for i, row := range r.ConfusionMatrix {
		fmt.Fprintf(tw, "%s\t", emotion.Labels[i])
		for _, n := range row {
			fmt.Fprintf(tw, "%d\t", n)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Package evaluation scores the classifier against a labeled image corpus laid
// out as root/<Label>/*.{png,jpg,jpeg}.
package evaluation

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/fer-inference/internal/bias"
	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/metrics"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

// DefaultChunkSize bounds how many images are held in memory at once.
const DefaultChunkSize = 100

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Evaluator streams a corpus through preprocess → predict → correct in
// fixed-size chunks. Chunks run strictly one after another.
type Evaluator struct {
	model     model.Predictor
	pre       *preprocess.Preprocessor
	corrector bias.Corrector
	chunkSize int
	log       *logger.Logger
}

// New creates an evaluator. chunkSize <= 0 selects DefaultChunkSize and a nil
// corrector selects the Neutral suppressor.
func New(m model.Predictor, pre *preprocess.Preprocessor, corrector bias.Corrector, chunkSize int, log *logger.Logger) *Evaluator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if corrector == nil {
		corrector = bias.NeutralSuppressor()
	}
	return &Evaluator{
		model:     m,
		pre:       pre,
		corrector: corrector,
		chunkSize: chunkSize,
		log:       log.With("component", "evaluator"),
	}
}

// Evaluate scores every image under root with bias correction applied.
// Images that fail to decode are skipped and counted in SkippedImages only.
// Label directories missing from root are left out of ClassMetrics.
func (e *Evaluator) Evaluate(ctx context.Context, root string) (*Result, error) {
	return e.run(ctx, root, ModeFull, e.corrector, func(_ int, files []string) []string {
		return files
	})
}

// Sample scores a deterministic random subset of each label directory
// (fraction of its images, at least one) against the raw model output with
// no bias correction.
func (e *Evaluator) Sample(ctx context.Context, root string, fraction float64, seed int64) (*Result, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "sample fraction %v outside (0,1]", fraction)
	}
	return e.run(ctx, root, ModeSample, bias.Identity{}, func(_ int, files []string) []string {
		return sample(files, fraction, seed)
	})
}

// sample picks max(1, floor(len*fraction)) files without replacement. The
// generator is reseeded per directory so each label's pick is reproducible on
// its own. The pick keeps directory order.
func sample(files []string, fraction float64, seed int64) []string {
	if len(files) == 0 {
		return nil
	}
	n := int(float64(len(files)) * fraction)
	if n < 1 {
		n = 1
	}
	r := rand.New(rand.NewSource(seed))
	picked := r.Perm(len(files))[:n]
	sort.Ints(picked)

	out := make([]string, n)
	for i, idx := range picked {
		out[i] = files[idx]
	}
	return out
}

type selector func(classIdx int, files []string) []string

func (e *Evaluator) run(ctx context.Context, root, mode string, corrector bias.Corrector, pick selector) (*Result, error) {
	start := time.Now()

	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, errors.NewDomainError(errors.CodeCorpusMissing, "test directory not found",
			errors.Wrapf(errors.ErrCorpusMissing, "%s", root))
	}

	acc := &accumulator{}
	for idx, label := range emotion.Labels {
		dir := filepath.Join(root, label)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}

		files, err := listImages(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", dir)
		}
		files = pick(idx, files)
		acc.present[idx] = true

		for lo := 0; lo < len(files); lo += e.chunkSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hi := min(lo+e.chunkSize, len(files))
			if err := e.processChunk(ctx, idx, files[lo:hi], corrector, acc); err != nil {
				return nil, err
			}
		}

		e.log.Debugw("Label evaluated", "mode", mode, "label", label, "images", humanize.Comma(int64(len(files))))
	}

	_, raw := corrector.(bias.Identity)
	result := acc.result(mode, !raw)
	elapsed := time.Since(start)

	processed := result.TotalImages
	accuracies := map[string]float64{"overall": result.OverallAccuracy}
	for label, m := range result.ClassMetrics {
		accuracies[label] = m.Accuracy
	}
	metrics.RecordEvaluation(mode, elapsed, processed, result.SkippedImages, accuracies)

	if processed == 0 {
		return nil, errors.NewDomainError(errors.CodeNoImages, "no images were successfully processed",
			errors.Wrapf(errors.ErrNoImages, "%s (%d skipped)", root, result.SkippedImages))
	}

	e.log.Infow("Evaluation complete",
		"mode", mode,
		"root", root,
		"images", humanize.Comma(int64(processed)),
		"skipped", result.SkippedImages,
		"accuracy", result.OverallAccuracy,
		"elapsed", elapsed,
	)
	return result, nil
}

// processChunk preprocesses files, predicts them in one call and folds the
// corrected predictions into acc. Tensors are dropped when it returns.
func (e *Evaluator) processChunk(ctx context.Context, trueIdx int, files []string, corrector bias.Corrector, acc *accumulator) error {
	tensors := make([]*preprocess.Tensor, 0, len(files))
	for _, path := range files {
		t, err := e.pre.FromFile(path)
		if err != nil {
			acc.skipped++
			e.log.Debugw("Skipping image", "path", path, "error", err)
			continue
		}
		tensors = append(tensors, t)
	}
	if len(tensors) == 0 {
		return nil
	}

	batch, err := preprocess.Stack(tensors...)
	if err != nil {
		return err
	}

	rows, err := e.model.Predict(ctx, batch)
	if err != nil {
		return errors.Join(errors.ErrPrediction, err)
	}
	if len(rows) != len(tensors) {
		return errors.Wrapf(errors.ErrPrediction, "model returned %d rows for %d images", len(rows), len(tensors))
	}

	for _, row := range bias.CorrectBatch(corrector, rows) {
		if len(row) != emotion.NumClasses {
			return errors.Wrapf(errors.ErrPrediction, "model returned %d classes, want %d", len(row), emotion.NumClasses)
		}
		acc.add(trueIdx, row.Argmax())
	}
	return nil
}

// listImages returns the png/jpg/jpeg files in dir in name order.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

package dil

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/dil/classifier"
	"github.com/happyhackingspace/dil/internal/storage"
)

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	Folds      int
	Languages  []string
	Classifier classifier.Config
	// Baseline also scores whatlanggo restricted to the configured languages.
	Baseline bool
	Verbose  bool
}

// ClassReport holds per-language evaluation scores.
type ClassReport struct {
	Language  string  `json:"language"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvalResult holds cross-validation evaluation results.
type EvalResult struct {
	Languages []string `json:"languages"`
	Folds     int      `json:"folds"`
	Accuracy  float64  `json:"accuracy"`
	Correct   int      `json:"correct"`
	Total     int      `json:"total"`
	// Confusion is indexed [true][predicted] in Languages order.
	Confusion [][]int       `json:"confusion"`
	Classes   []ClassReport `json:"classes"`
	MacroF1   float64       `json:"macro_f1"`

	HasBaseline      bool    `json:"has_baseline"`
	BaselineAccuracy float64 `json:"baseline_accuracy,omitempty"`
}

// Evaluate runs grouped k-fold cross-validation on the approved samples of source.
// Samples sharing a source domain always land in the same fold.
func Evaluate(ctx context.Context, source SampleSource, config *EvalConfig) (*EvalResult, error) {
	cfg := EvalConfig{Folds: 10}
	if config != nil {
		cfg = *config
		if cfg.Folds <= 0 {
			cfg.Folds = 10
		}
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = classifier.DefaultLanguages()
	}

	samples, err := source.ApprovedSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}
	samples = lo.Filter(samples, func(s Sample, _ int) bool {
		return slices.Contains(cfg.Languages, s.Language)
	})
	if len(samples) == 0 {
		return nil, fmt.Errorf("dil: no samples found")
	}
	texts, labels := splitSamples(samples)

	folds := groupKFold(domainGroups(samples), cfg.Folds)
	preds := make([]string, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, testIdx := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			testSet := makeTestSet(len(samples), testIdx)
			trainTexts, trainLabels := filterByIndex(texts, labels, testSet, false)
			if len(trainTexts) == 0 {
				return nil
			}
			c, err := classifier.New(cfg.Languages, cfg.Classifier, nil)
			if err != nil {
				return err
			}
			if _, err := c.Train(trainTexts, trainLabels); err != nil {
				return err
			}
			for _, idx := range testIdx {
				// each index belongs to exactly one fold
				if preds[idx], err = c.Predict(texts[idx]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}

	result := score(cfg.Languages, labels, preds)
	result.Folds = len(folds)
	if cfg.Baseline {
		result.HasBaseline = true
		result.BaselineAccuracy = baselineAccuracy(cfg.Languages, texts, labels)
	}
	return result, nil
}

func score(languages, labels, preds []string) *EvalResult {
	index := make(map[string]int, len(languages))
	for i, l := range languages {
		index[l] = i
	}
	r := &EvalResult{
		Languages: slices.Clone(languages),
		Confusion: make([][]int, len(languages)),
	}
	for i := range r.Confusion {
		r.Confusion[i] = make([]int, len(languages))
	}
	for i, want := range labels {
		got, ok := index[preds[i]]
		if !ok {
			// fold had no training data
			continue
		}
		r.Confusion[index[want]][got]++
		r.Total++
		if preds[i] == want {
			r.Correct++
		}
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total)
	}

	for k, lang := range languages {
		tp := r.Confusion[k][k]
		predicted, actual := 0, 0
		for j := range languages {
			predicted += r.Confusion[j][k]
			actual += r.Confusion[k][j]
		}
		cr := ClassReport{Language: lang, Support: actual}
		if predicted > 0 {
			cr.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			cr.Recall = float64(tp) / float64(actual)
		}
		if cr.Precision+cr.Recall > 0 {
			cr.F1 = 2 * cr.Precision * cr.Recall / (cr.Precision + cr.Recall)
		}
		r.Classes = append(r.Classes, cr)
		r.MacroF1 += cr.F1
	}
	if len(languages) > 0 {
		r.MacroF1 /= float64(len(languages))
	}
	return r
}

var whatlangCodes = map[string]whatlanggo.Lang{
	"en": whatlanggo.Eng,
	"es": whatlanggo.Spa,
	"fr": whatlanggo.Fra,
	"de": whatlanggo.Deu,
	"bg": whatlanggo.Bul,
}

func baselineAccuracy(languages, texts, labels []string) float64 {
	opts := whatlanggo.Options{Whitelist: make(map[whatlanggo.Lang]bool)}
	codes := make(map[whatlanggo.Lang]string)
	for _, l := range languages {
		if wl, ok := whatlangCodes[l]; ok {
			opts.Whitelist[wl] = true
			codes[wl] = l
		}
	}
	if len(texts) == 0 {
		return 0
	}
	correct := 0
	for i, text := range texts {
		info := whatlanggo.DetectWithOptions(text, opts)
		if codes[info.Lang] == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(texts))
}

// groupKFold assigns whole groups to folds round-robin in group order.
func groupKFold(groups []int, nFolds int) [][]int {
	uniqueGroups := lo.Uniq(groups)
	slices.Sort(uniqueGroups)

	if nFolds > len(uniqueGroups) {
		nFolds = len(uniqueGroups)
	}

	groupToFold := make(map[int]int)
	for i, g := range uniqueGroups {
		groupToFold[g] = i % nFolds
	}

	folds := make([][]int, nFolds)
	for i, g := range groups {
		fold := groupToFold[g]
		folds[fold] = append(folds[fold], i)
	}
	return folds
}

// domainGroups groups samples by source domain; samples without a source
// form their own group.
func domainGroups(samples []Sample) []int {
	groups := make([]int, len(samples))
	domainMap := make(map[string]int)
	next := 0
	for i, s := range samples {
		if s.Source == "" {
			groups[i] = next
			next++
			continue
		}
		domain := storage.GetDomain(s.Source)
		if _, ok := domainMap[domain]; !ok {
			domainMap[domain] = next
			next++
		}
		groups[i] = domainMap[domain]
	}
	return groups
}

func makeTestSet(n int, testIdx []int) []bool {
	set := make([]bool, n)
	for _, i := range testIdx {
		set[i] = true
	}
	return set
}

func filterByIndex(texts, labels []string, testSet []bool, isTest bool) ([]string, []string) {
	var outTexts, outLabels []string
	for i := range texts {
		if testSet[i] == isTest {
			outTexts = append(outTexts, texts[i])
			outLabels = append(outLabels, labels[i])
		}
	}
	return outTexts, outLabels
}

package classifier

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds the classifier hyperparameters.
type Config struct {
	LearningRate float64 `json:"learning_rate" msgpack:"learning_rate"`
	MaxEpochs    int     `json:"max_epochs" msgpack:"max_epochs"`
	// Tolerance is the loss delta between consecutive checkpoints that stops training.
	Tolerance       float64 `json:"tolerance" msgpack:"tolerance"`
	CheckpointEvery int     `json:"checkpoint_every" msgpack:"checkpoint_every"`
	// InitScale is the standard deviation of the initial weights.
	InitScale float64 `json:"init_scale" msgpack:"init_scale"`
	// Seed drives weight initialization and shuffling. Zero picks a random seed.
	Seed uint64 `json:"seed" msgpack:"seed"`
}

// DefaultConfig returns the default hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:    0.01,
		MaxEpochs:       1000,
		Tolerance:       1e-6,
		CheckpointEvery: 10,
		InitScale:       0.01,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = d.MaxEpochs
	}
	if c.Tolerance < 0 {
		c.Tolerance = d.Tolerance
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = d.CheckpointEvery
	}
	if c.InitScale < 0 {
		c.InitScale = d.InitScale
	}
	return c
}

// Checkpoint is one training history sample.
type Checkpoint struct {
	Epoch     int     `json:"epoch" msgpack:"epoch"`
	Loss      float64 `json:"loss" msgpack:"loss"`
	Accuracy  float64 `json:"accuracy" msgpack:"accuracy"`
	ErrorRate float64 `json:"error_rate" msgpack:"error_rate"`
}

// Metrics summarizes a training call.
type Metrics struct {
	Accuracy        float64       `json:"accuracy"`
	Loss            float64       `json:"loss"`
	ErrorRate       float64       `json:"error_rate"`
	EpochsCompleted int           `json:"epochs_completed"`
	Converged       bool          `json:"converged"`
	TrainingTime    time.Duration `json:"training_time"`
	SamplesCount    int           `json:"samples_count"`
	FeatureCount    int           `json:"feature_count"`
	LearningRate    float64       `json:"learning_rate"`
}

// Classifier is a one-vs-all multi-class perceptron with sigmoid units.
//
// Train takes an exclusive lock, so scoring never observes a half-updated model.
// Long-lived services should still train into a fresh instance and swap it in,
// see dil.Handle.
type Classifier struct {
	mu        sync.RWMutex
	cfg       Config
	languages []string
	index     map[string]int
	extractor *Extractor
	units     []*Unit
	trained   bool
	history   []Checkpoint
	rng       *rand.Rand
}

// New creates an untrained classifier over the given language codes.
// A nil extractor selects NewExtractor().
func New(languages []string, cfg Config, extractor *Extractor) (*Classifier, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("%w: no languages configured", ErrInvalidInput)
	}
	index := make(map[string]int, len(languages))
	for i, lang := range languages {
		if lang == "" {
			return nil, fmt.Errorf("%w: empty language code", ErrInvalidInput)
		}
		if _, dup := index[lang]; dup {
			return nil, fmt.Errorf("%w: duplicate language %q", ErrInvalidInput, lang)
		}
		index[lang] = i
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	cfg = cfg.withDefaults()
	return &Classifier{
		cfg:       cfg,
		languages: slices.Clone(languages),
		index:     index,
		extractor: extractor,
		rng:       newRand(cfg.Seed),
	}, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Languages returns the configured language codes in index order.
func (c *Classifier) Languages() []string {
	return slices.Clone(c.languages)
}

// FeatureNames returns the extractor's feature names in vector order.
func (c *Classifier) FeatureNames() []string {
	return c.extractor.FeatureNames()
}

// Extractor returns the feature extractor.
func (c *Classifier) Extractor() *Extractor {
	return c.extractor
}

// Config returns the hyperparameters.
func (c *Classifier) Config() Config {
	return c.cfg
}

// IsTrained reports whether at least one training pass has completed.
func (c *Classifier) IsTrained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trained
}

// History returns the training history.
func (c *Classifier) History() []Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

// Reset discards weights and history, returning the classifier to the untrained state.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = nil
	c.trained = false
	c.history = nil
}

// Clone returns a deep copy that can be trained without affecting c.
func (c *Classifier) Clone() *Classifier {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()
	return c.CloneWithConfig(cfg)
}

// CloneWithConfig returns a deep copy that keeps the weights and history of c
// but trains with cfg. Unless cfg names a new seed, the copy's random source
// continues from c.
func (c *Classifier) CloneWithConfig(cfg Config) *Classifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 || seed == c.cfg.Seed {
		seed = c.rng.Uint64() | 1
	}
	out := &Classifier{
		cfg:       cfg,
		languages: slices.Clone(c.languages),
		index:     c.index,
		extractor: c.extractor,
		trained:   c.trained,
		history:   slices.Clone(c.history),
		rng:       newRand(seed),
	}
	if c.units != nil {
		out.units = make([]*Unit, len(c.units))
		for i, u := range c.units {
			out.units[i] = u.clone()
		}
	}
	return out
}

// Train fits the classifier on texts and their language labels.
//
// The first call allocates one unit per language; later calls continue from the
// current weights and append to the history. Invalid input leaves the classifier untouched.
func (c *Classifier) Train(texts, labels []string) (Metrics, error) {
	if len(texts) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: %d texts but %d labels", ErrInvalidInput, len(texts), len(labels))
	}
	if len(texts) == 0 {
		return Metrics{}, fmt.Errorf("%w: no training samples", ErrInvalidInput)
	}
	y := make([]int, len(labels))
	var unknown []string
	for i, l := range labels {
		k, ok := c.index[l]
		if !ok {
			if !slices.Contains(unknown, l) {
				unknown = append(unknown, l)
			}
			continue
		}
		y[i] = k
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Metrics{}, fmt.Errorf("%w: unknown language labels %v", ErrInvalidInput, unknown)
	}

	start := time.Now()
	x := c.extractAll(texts)

	c.mu.Lock()
	defer c.mu.Unlock()

	slog.Info("Starting training", "samples", len(texts), "languages", len(c.languages))
	if c.units == nil {
		c.units = make([]*Unit, len(c.languages))
		for k := range c.units {
			c.units[k] = newUnit(c.extractor.Dim(), c.cfg.InitScale, c.rng)
		}
	}

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	prevLoss := math.Inf(1)
	converged := false
	epoch := 0
	for ; epoch < c.cfg.MaxEpochs; epoch++ {
		c.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			for k, u := range c.units {
				target := 0.0
				if y[i] == k {
					target = 1.0
				}
				u.Update(x[i], target, c.cfg.LearningRate)
			}
		}

		if epoch%c.cfg.CheckpointEvery != 0 {
			continue
		}
		loss := c.loss(x, y)
		acc := c.accuracy(x, y)
		c.history = append(c.history, Checkpoint{Epoch: epoch, Loss: loss, Accuracy: acc, ErrorRate: 1 - acc})
		slog.Debug("Checkpoint", "epoch", epoch, "loss", loss, "accuracy", acc)
		if math.Abs(prevLoss-loss) < c.cfg.Tolerance {
			converged = true
			slog.Info("Converged", "epoch", epoch)
			break
		}
		prevLoss = loss
	}
	epochs := epoch
	if converged {
		epochs = epoch + 1
	}

	c.trained = true
	loss := c.loss(x, y)
	acc := c.accuracy(x, y)
	m := Metrics{
		Accuracy:        acc,
		Loss:            loss,
		ErrorRate:       1 - acc,
		EpochsCompleted: epochs,
		Converged:       converged,
		TrainingTime:    time.Since(start),
		SamplesCount:    len(texts),
		FeatureCount:    c.extractor.Dim(),
		LearningRate:    c.cfg.LearningRate,
	}
	slog.Info("Training completed", "accuracy", m.Accuracy, "loss", m.Loss, "epochs", m.EpochsCompleted)
	return m, nil
}

func (c *Classifier) extractAll(texts []string) [][]float64 {
	x := make([][]float64, len(texts))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range texts {
		g.Go(func() error {
			x[i] = c.extractor.Extract(text)
			return nil
		})
	}
	_ = g.Wait()
	return x
}

// loss is the mean over samples of the summed one-vs-all binary cross-entropy.
func (c *Classifier) loss(x [][]float64, y []int) float64 {
	const eps = 1e-15
	total := 0.0
	for i, xi := range x {
		for k, u := range c.units {
			p := math.Max(eps, math.Min(1-eps, u.Score(xi)))
			if y[i] == k {
				total -= math.Log(p)
			} else {
				total -= math.Log(1 - p)
			}
		}
	}
	return total / float64(len(x))
}

func (c *Classifier) accuracy(x [][]float64, y []int) float64 {
	correct := 0
	scores := make([]float64, len(c.units))
	for i, xi := range x {
		for k, u := range c.units {
			scores[k] = u.Score(xi)
		}
		if argmax(scores) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

// argmax returns the first index holding the maximum value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// PredictProba scores text with every unit and sum-normalizes the scores.
// When all raw scores are zero they are returned unchanged.
func (c *Classifier) PredictProba(text string) (Distribution, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.trained {
		return Distribution{}, ErrNotTrained
	}
	return c.distribution(c.extractor.Extract(text)), nil
}

// ScoreFeatures is PredictProba over an already extracted feature vector.
func (c *Classifier) ScoreFeatures(x []float64) (Distribution, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.trained {
		return Distribution{}, ErrNotTrained
	}
	if len(x) != c.extractor.Dim() {
		return Distribution{}, fmt.Errorf("%w: feature vector has %d entries, want %d", ErrInvalidInput, len(x), c.extractor.Dim())
	}
	return c.distribution(x), nil
}

func (c *Classifier) distribution(x []float64) Distribution {
	probs := make([]float64, len(c.units))
	sum := 0.0
	for k, u := range c.units {
		probs[k] = u.Score(x)
		sum += probs[k]
	}
	if sum > 0 {
		for k := range probs {
			probs[k] /= sum
		}
	}
	return Distribution{Languages: slices.Clone(c.languages), Probabilities: probs}
}

// Predict returns the most probable language.
// Ties resolve to the language configured first.
func (c *Classifier) Predict(text string) (string, error) {
	d, err := c.PredictProba(text)
	if err != nil {
		return "", err
	}
	lang, _ := d.Best()
	return lang, nil
}

// FeatureWeight pairs a feature name with an absolute weight.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// FeatureImportance returns |weight| per feature for every language, sorted descending.
func (c *Classifier) FeatureImportance() (map[string][]FeatureWeight, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.trained {
		return nil, ErrNotTrained
	}
	names := c.extractor.FeatureNames()
	out := make(map[string][]FeatureWeight, len(c.languages))
	for k, lang := range c.languages {
		fw := make([]FeatureWeight, len(names))
		for i, name := range names {
			fw[i] = FeatureWeight{Feature: name, Weight: math.Abs(c.units[k].Weights[i])}
		}
		slices.SortStableFunc(fw, func(a, b FeatureWeight) int {
			return cmp.Compare(b.Weight, a.Weight)
		})
		out[lang] = fw
	}
	return out, nil
}

// Summary is a read-only snapshot of the classifier state.
type Summary struct {
	Status           string        `json:"status"`
	Trained          bool          `json:"trained"`
	Languages        []string      `json:"languages"`
	FeatureDimension int           `json:"feature_dimension"`
	Config           Config        `json:"hyperparameters"`
	TrainingHistory  []Checkpoint  `json:"training_history"`
	Extractor        ExtractorInfo `json:"feature_extractor_info"`
}

// Summary reports status, languages, dimensionality, hyperparameters and history.
func (c *Classifier) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Summary{
		Status:           "untrained",
		Trained:          c.trained,
		Languages:        slices.Clone(c.languages),
		FeatureDimension: c.extractor.Dim(),
		Config:           c.cfg,
		TrainingHistory:  slices.Clone(c.history),
		Extractor:        c.extractor.Info(),
	}
	if c.trained {
		s.Status = "trained"
	}
	return s
}

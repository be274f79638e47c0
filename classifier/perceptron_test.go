package classifier

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	greetingTexts = []string{
		"Hello world", "Good morning", "Thank you",
		"Hola mundo", "Buenos días", "Gracias",
		"Bonjour monde", "Bonjour", "Merci",
	}
	greetingLabels = []string{"en", "en", "en", "es", "es", "es", "fr", "fr", "fr"}
)

func newTestClassifier(t *testing.T, languages []string, cfg Config) *Classifier {
	t.Helper()
	c, err := New(languages, cfg, nil)
	require.NoError(t, err)
	return c
}

func seeded(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

func TestNewRejectsBadLanguages(t *testing.T) {
	for _, langs := range [][]string{nil, {"en", "en"}, {"en", ""}} {
		_, err := New(langs, DefaultConfig(), nil)
		assert.ErrorIs(t, err, ErrInvalidInput, "%v", langs)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := newTestClassifier(t, []string{"en"}, Config{})
	assert.Equal(t, 0.01, c.Config().LearningRate)
	assert.Equal(t, 1000, c.Config().MaxEpochs)
	assert.Equal(t, 10, c.Config().CheckpointEvery)
}

func TestNotTrained(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es"}, DefaultConfig())
	assert.False(t, c.IsTrained())

	_, err := c.Predict("hello")
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = c.PredictProba("hello")
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = c.FeatureImportance()
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = c.ScoreFeatures(make([]float64, c.Extractor().Dim()))
	assert.ErrorIs(t, err, ErrNotTrained)

	s := c.Summary()
	assert.Equal(t, "untrained", s.Status)
	assert.Empty(t, s.TrainingHistory)
}

func TestTrainInvalidInput(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es"}, DefaultConfig())

	_, err := c.Train([]string{"a", "b"}, []string{"en"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Train(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Train([]string{"hello", "bonjour"}, []string{"en", "fr"})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "fr")

	assert.False(t, c.IsTrained())
	assert.Empty(t, c.History())
}

func TestTrainGreetings(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es", "fr"}, seeded(7))

	m, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	assert.True(t, c.IsTrained())
	assert.Greater(t, m.Accuracy, 0.5)
	assert.InDelta(t, 1-m.Accuracy, m.ErrorRate, 1e-12)
	assert.Equal(t, 9, m.SamplesCount)
	assert.Equal(t, 110, m.FeatureCount)
	assert.Equal(t, 0.01, m.LearningRate)
	assert.GreaterOrEqual(t, m.EpochsCompleted, 50)
	assert.LessOrEqual(t, m.EpochsCompleted, 1000)

	lang, err := c.Predict("Hello")
	require.NoError(t, err)
	assert.Contains(t, []string{"en", "es", "fr"}, lang)

	history := c.History()
	require.NotEmpty(t, history)
	assert.Equal(t, 0, history[0].Epoch)
	for i, cp := range history {
		assert.Zero(t, cp.Epoch%10, "checkpoint %d", i)
		assert.InDelta(t, 1-cp.Accuracy, cp.ErrorRate, 1e-12)
	}

	s := c.Summary()
	assert.Equal(t, "trained", s.Status)
	assert.Equal(t, 110, s.FeatureDimension)
	assert.Len(t, s.TrainingHistory, len(history))
}

func TestPredictProbaProperties(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es", "fr"}, seeded(11))
	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)

	for _, text := range []string{"Hello", "Buenos días amigo", "Merci beaucoup", "", "Здравей", "12345"} {
		d, err := c.PredictProba(text)
		require.NoError(t, err)
		require.Equal(t, []string{"en", "es", "fr"}, d.Languages)
		if d.Sum() > 0 {
			assert.InDelta(t, 1.0, d.Sum(), 1e-9, text)
		}
		for _, p := range d.Probabilities {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}

		lang, err := c.Predict(text)
		require.NoError(t, err)
		best, _ := d.Best()
		assert.Equal(t, best, lang, text)
	}
}

func TestScoreFeaturesDimension(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es", "fr"}, seeded(3))
	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)

	_, err = c.ScoreFeatures([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidInput)

	x := c.Extractor().Extract("Gracias")
	a, err := c.ScoreFeatures(x)
	require.NoError(t, err)
	b, err := c.PredictProba("Gracias")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestTrainConverges(t *testing.T) {
	texts := []string{
		"the cat and the dog", "the house is in the city", "the sun and the moon",
		"it is the time to go", "the end of the road",
		"това е къща", "котка и куче", "слънце и луна", "време е да се", "края на пътя",
	}
	labels := []string{"en", "en", "en", "en", "en", "bg", "bg", "bg", "bg", "bg"}

	cfg := seeded(5)
	cfg.Tolerance = 1e-3
	cfg.MaxEpochs = 5000
	c := newTestClassifier(t, []string{"en", "bg"}, cfg)

	m, err := c.Train(texts, labels)
	require.NoError(t, err)
	assert.True(t, m.Converged)
	assert.Less(t, m.EpochsCompleted, cfg.MaxEpochs)
	assert.Equal(t, 1.0, m.Accuracy)

	lang, err := c.Predict("добро утро")
	require.NoError(t, err)
	assert.Equal(t, "bg", lang)
}

func TestTrainWarmStartAndReset(t *testing.T) {
	cfg := seeded(9)
	cfg.MaxEpochs = 20
	c := newTestClassifier(t, []string{"en", "es", "fr"}, cfg)

	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	first := c.History()
	weights := c.Snapshot().Units[0].Weights

	_, err = c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	second := c.History()
	assert.Len(t, second, 2*len(first))
	assert.Equal(t, first, second[:len(first)])
	assert.NotEqual(t, weights, c.Snapshot().Units[0].Weights)

	c.Reset()
	assert.False(t, c.IsTrained())
	assert.Empty(t, c.History())
	_, err = c.Predict("Hello")
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := seeded(13)
	cfg.MaxEpochs = 20
	c := newTestClassifier(t, []string{"en", "es", "fr"}, cfg)
	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	before, err := c.PredictProba("Hello")
	require.NoError(t, err)

	clone := c.Clone()
	_, err = clone.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)

	after, err := c.PredictProba("Hello")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Greater(t, len(clone.History()), len(c.History()))
}

func TestCloneWithConfig(t *testing.T) {
	cfg := seeded(13)
	cfg.MaxEpochs = 20
	c := newTestClassifier(t, []string{"en", "es", "fr"}, cfg)
	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	before, err := c.PredictProba("Hello")
	require.NoError(t, err)

	next := seeded(0)
	next.LearningRate = 0.5
	next.MaxEpochs = 7
	clone := c.CloneWithConfig(next)
	assert.Equal(t, 0.5, clone.Config().LearningRate)
	assert.Equal(t, 7, clone.Config().MaxEpochs)
	assert.Equal(t, c.History(), clone.History())

	sameWeights, err := clone.PredictProba("Hello")
	require.NoError(t, err)
	assert.Equal(t, before, sameWeights)

	m, err := clone.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.LearningRate)
	assert.Equal(t, 7, m.EpochsCompleted)
	assert.Equal(t, cfg.LearningRate, c.Config().LearningRate)
}

func TestFeatureImportance(t *testing.T) {
	c := newTestClassifier(t, []string{"en", "es", "fr"}, seeded(17))
	_, err := c.Train(greetingTexts, greetingLabels)
	require.NoError(t, err)

	fi, err := c.FeatureImportance()
	require.NoError(t, err)
	require.Len(t, fi, 3)
	for lang, weights := range fi {
		require.Len(t, weights, 110, lang)
		for i := 1; i < len(weights); i++ {
			assert.GreaterOrEqual(t, weights[i-1].Weight, weights[i].Weight, lang)
		}
		for _, w := range weights {
			assert.GreaterOrEqual(t, w.Weight, 0.0)
		}
	}
}

func TestUnitScoreClipping(t *testing.T) {
	u := &Unit{Weights: []float64{1}}
	assert.Equal(t, 0.5, u.Score([]float64{0}))

	hi := u.Score([]float64{1e6})
	lo := u.Score([]float64{-1e6})
	assert.False(t, math.IsNaN(hi) || math.IsNaN(lo))
	assert.InDelta(t, 1.0, hi, 1e-12)
	assert.Greater(t, lo, 0.0)
	assert.Less(t, lo, 1e-200)
}

func TestUnitUpdate(t *testing.T) {
	u := &Unit{Weights: []float64{0, 0}}
	x := []float64{1, 2}

	err := u.Update(x, 1, 0.1)
	assert.Equal(t, 0.5, err)
	assert.InDeltaSlice(t, []float64{0.05, 0.1}, u.Weights, 1e-12)
	assert.InDelta(t, 0.05, u.Bias, 1e-12)

	before := u.Score(x)
	for range 50 {
		u.Update(x, 1, 0.1)
	}
	assert.Greater(t, u.Score(x), before)
}

func TestDistribution(t *testing.T) {
	d := Distribution{Languages: []string{"en", "es", "fr"}, Probabilities: []float64{0.4, 0.4, 0.2}}

	lang, p := d.Best()
	assert.Equal(t, "en", lang, "ties resolve to the first language")
	assert.Equal(t, 0.4, p)
	assert.Equal(t, 0.2, d.Get("fr"))
	assert.Zero(t, d.Get("de"))
	assert.InDelta(t, 1.0, d.Sum(), 1e-12)
	assert.Equal(t, map[string]float64{"en": 0.4, "es": 0.4, "fr": 0.2}, d.Map())
	assert.Equal(t, []LanguageScore{{"en", 0.4}, {"es", 0.4}}, d.Above(0.3))

	lang, _ = Distribution{}.Best()
	assert.Empty(t, lang)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotTrained, ErrInvalidInput))
	assert.False(t, errors.Is(ErrModelMismatch, ErrInvalidInput))
}

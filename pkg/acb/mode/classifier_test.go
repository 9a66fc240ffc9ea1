package mode

import (
	"context"
	"errors"
	"testing"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	modes     map[string][]acb.Mode
	readErr   error
	appendErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{modes: make(map[string][]acb.Mode)}
}

func (f *fakeHistory) LastModes(_ context.Context, key string, n int) ([]acb.Mode, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	m := f.modes[key]
	if len(m) > n {
		m = m[len(m)-n:]
	}
	return append([]acb.Mode(nil), m...), nil
}

func (f *fakeHistory) AppendMode(_ context.Context, key string, m acb.Mode) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.modes[key] = append(f.modes[key], m)
	return nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		intent   string
		wantMode acb.Mode
		wantConf float64
	}{
		{"implement", acb.ModeTask, 1.0},
		{"Implement the retry worker", acb.ModeTask, 1.0},
		{"fix", acb.ModeDebugging, 1.0},
		{"error", acb.ModeDebugging, 1.0},
		{"fixing flaky errors", acb.ModeDebugging, 0.85},
		{"explore", acb.ModeExploration, 1.0},
		{"investigate latency", acb.ModeExploration, 1.0},
		{"exploring options", acb.ModeExploration, 0.85},
		{"explain", acb.ModeLearning, 1.0},
		{"teach me channels", acb.ModeLearning, 1.0},
		{"implemnt", acb.ModeTask, 0.75},
		{"Respond to user greeting", acb.ModeGeneral, 0},
		{"", acb.ModeGeneral, 0},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			mode, conf := Classify(tt.intent)
			assert.Equal(t, tt.wantMode, mode)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
		})
	}
}

func TestClassify_MixedIntentLosesConfidence(t *testing.T) {
	mode, conf := Classify("fix the error then implement")
	assert.Equal(t, acb.ModeDebugging, mode)
	assert.InDelta(t, 2.0/3.0, conf, 1e-9)
}

func TestSmooth(t *testing.T) {
	tests := []struct {
		name       string
		classified acb.Mode
		confidence float64
		recent     []acb.Mode
		want       acb.Mode
		smoothed   bool
	}{
		{
			name:       "stable history keeps classification",
			classified: acb.ModeTask, confidence: 1.0,
			recent: []acb.Mode{acb.ModeTask, acb.ModeTask, acb.ModeTask},
			want:   acb.ModeTask,
		},
		{
			name:       "three distinct modes force GENERAL",
			classified: acb.ModeTask, confidence: 1.0,
			recent:   []acb.Mode{acb.ModeTask, acb.ModeDebugging, acb.ModeExploration},
			want:     acb.ModeGeneral,
			smoothed: true,
		},
		{
			name:       "two distinct modes force GENERAL",
			classified: acb.ModeLearning, confidence: 0.95,
			recent:   []acb.Mode{acb.ModeLearning, acb.ModeLearning, acb.ModeTask},
			want:     acb.ModeGeneral,
			smoothed: true,
		},
		{
			name:       "low confidence downgrades",
			classified: acb.ModeDebugging, confidence: 0.69,
			want: acb.ModeGeneral,
		},
		{
			name:       "threshold is inclusive",
			classified: acb.ModeDebugging, confidence: 0.70,
			want: acb.ModeDebugging,
		},
		{
			name:       "empty history",
			classified: acb.ModeExploration, confidence: 0.85,
			want: acb.ModeExploration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Smooth(tt.classified, tt.confidence, tt.recent, DefaultThreshold)
			assert.Equal(t, tt.want, res.Mode)
			assert.Equal(t, tt.classified, res.Classified)
			assert.Equal(t, tt.smoothed, res.Smoothed)
		})
	}
}

func TestClassifier_ResolveRecordsHistory(t *testing.T) {
	history := newFakeHistory()
	history.modes["t:s"] = []acb.Mode{acb.ModeTask, acb.ModeDebugging, acb.ModeExploration}
	c := NewClassifier(history, DefaultThreshold, logger.NewNopLogger())

	res := c.Resolve(context.Background(), "t:s", "implement")
	assert.Equal(t, acb.ModeGeneral, res.Mode)
	assert.Equal(t, acb.ModeTask, res.Classified)
	assert.True(t, res.Smoothed)

	require.Len(t, history.modes["t:s"], 4)
	assert.Equal(t, acb.ModeGeneral, history.modes["t:s"][3])
}

// The resolved mode is what gets appended, so a steady stream of one intent
// after a run of GENERAL only surfaces every fourth turn.
func TestClassifier_RepeatedIntentCycles(t *testing.T) {
	history := newFakeHistory()
	history.modes["t:s"] = []acb.Mode{acb.ModeGeneral, acb.ModeGeneral, acb.ModeGeneral}
	c := NewClassifier(history, DefaultThreshold, logger.NewNopLogger())

	var got []acb.Mode
	for i := 0; i < 8; i++ {
		res := c.Resolve(context.Background(), "t:s", "fix")
		assert.Equal(t, acb.ModeDebugging, res.Classified)
		got = append(got, res.Mode)
	}

	d, g := acb.ModeDebugging, acb.ModeGeneral
	assert.Equal(t, []acb.Mode{d, g, g, g, d, g, g, g}, got)
}

func TestClassifier_HistoryFailuresNeverFail(t *testing.T) {
	history := newFakeHistory()
	history.readErr = errors.New("redis down")
	history.appendErr = errors.New("redis down")
	c := NewClassifier(history, DefaultThreshold, logger.NewNopLogger())

	res := c.Resolve(context.Background(), "t:s", "debug the crash")
	assert.Equal(t, acb.ModeDebugging, res.Mode)
	assert.False(t, res.Smoothed)
}

func TestClassifier_NilHistory(t *testing.T) {
	c := NewClassifier(nil, 0, logger.NewNopLogger())
	res := c.Resolve(context.Background(), "t:s", "explain goroutines")
	assert.Equal(t, acb.ModeLearning, res.Mode)
}

func TestWithinOneEdit(t *testing.T) {
	assert.True(t, withinOneEdit("implemnt", "implement"))
	assert.False(t, withinOneEdit("explian", "explain"))
	assert.True(t, withinOneEdit("debog", "debug"))
	assert.False(t, withinOneEdit("abc", "abcde"))
	assert.True(t, withinOneEdit("same", "same"))
}

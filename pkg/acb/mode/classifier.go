package mode

import (
	"context"
	"strings"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/lexical"
)

// WindowSize is the number of resolved modes remembered per session.
const WindowSize = 3

// DefaultThreshold is the minimum confidence for a non-GENERAL resolution.
const DefaultThreshold = 0.70

// Match scores.
const (
	scoreExact = 1.0
	scoreStem  = 0.85
	scoreTypo  = 0.75
)

// minTypoLength guards single-edit matching against short keywords.
const minTypoLength = 5

// intentTable maps intent keywords to modes.
var intentTable = map[string]acb.Mode{
	"implement": acb.ModeTask,
	"build":     acb.ModeTask,
	"create":    acb.ModeTask,
	"add":       acb.ModeTask,
	"write":     acb.ModeTask,
	"refactor":  acb.ModeTask,
	"update":    acb.ModeTask,
	"migrate":   acb.ModeTask,
	"deploy":    acb.ModeTask,
	"task":      acb.ModeTask,

	"fix":       acb.ModeDebugging,
	"error":     acb.ModeDebugging,
	"bug":       acb.ModeDebugging,
	"debug":     acb.ModeDebugging,
	"crash":     acb.ModeDebugging,
	"failing":   acb.ModeDebugging,
	"broken":    acb.ModeDebugging,
	"exception": acb.ModeDebugging,
	"panic":     acb.ModeDebugging,
	"trace":     acb.ModeDebugging,

	"explore":     acb.ModeExploration,
	"investigate": acb.ModeExploration,
	"research":    acb.ModeExploration,
	"search":      acb.ModeExploration,
	"discover":    acb.ModeExploration,
	"compare":     acb.ModeExploration,
	"survey":      acb.ModeExploration,
	"brainstorm":  acb.ModeExploration,

	"explain":    acb.ModeLearning,
	"teach":      acb.ModeLearning,
	"learn":      acb.ModeLearning,
	"understand": acb.ModeLearning,
	"tutorial":   acb.ModeLearning,
	"why":        acb.ModeLearning,
	"describe":   acb.ModeLearning,
}

// tieOrder breaks equal-confidence resolutions.
var tieOrder = []acb.Mode{acb.ModeDebugging, acb.ModeTask, acb.ModeExploration, acb.ModeLearning}

// History is the session-state collaborator holding recent resolved modes.
type History interface {
	LastModes(ctx context.Context, key string, n int) ([]acb.Mode, error)
	AppendMode(ctx context.Context, key string, mode acb.Mode) error
}

// Resolution is the outcome of classifying one turn.
type Resolution struct {
	Mode       acb.Mode
	Classified acb.Mode
	Confidence float64
	Smoothed   bool
	History    []acb.Mode
}

// Classifier resolves interaction modes. It never fails.
type Classifier struct {
	history   History
	threshold float64
	logger    logger.ILogger
}

// NewClassifier creates a classifier. A nil history disables smoothing.
func NewClassifier(history History, threshold float64, logger logger.ILogger) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Classifier{
		history:   history,
		threshold: threshold,
		logger:    logger,
	}
}

// Resolve classifies intent, applies history smoothing, and records the
// resolved mode in the session window.
func (c *Classifier) Resolve(ctx context.Context, key, intent string) Resolution {
	var recent []acb.Mode
	if c.history != nil {
		modes, err := c.history.LastModes(ctx, key, WindowSize)
		if err != nil {
			c.logger.Warn("MODE", "Mode history unavailable, classifying without smoothing", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		} else {
			recent = modes
		}
	}

	classified, confidence := Classify(intent)
	res := Smooth(classified, confidence, recent, c.threshold)

	if c.history != nil {
		if err := c.history.AppendMode(ctx, key, res.Mode); err != nil {
			c.logger.Warn("MODE", "Failed to append resolved mode", map[string]interface{}{
				"key":   key,
				"mode":  res.Mode,
				"error": err.Error(),
			})
		}
	}

	c.logger.Debug("MODE", "Mode resolved", map[string]interface{}{
		"key":        key,
		"mode":       res.Mode,
		"classified": res.Classified,
		"confidence": res.Confidence,
		"smoothed":   res.Smoothed,
	})
	return res
}

// Smooth applies the confidence threshold and the history stability rule to a
// raw classification.
func Smooth(classified acb.Mode, confidence float64, recent []acb.Mode, threshold float64) Resolution {
	res := Resolution{
		Mode:       classified,
		Classified: classified,
		Confidence: confidence,
		History:    recent,
	}
	if confidence < threshold {
		res.Mode = acb.ModeGeneral
	}
	if unstable(recent) {
		res.Mode = acb.ModeGeneral
		res.Smoothed = res.Classified != acb.ModeGeneral
	}
	return res
}

// unstable reports whether the last WindowSize modes hold two or more values.
func unstable(recent []acb.Mode) bool {
	if len(recent) > WindowSize {
		recent = recent[len(recent)-WindowSize:]
	}
	distinct := make(map[acb.Mode]bool)
	for _, m := range recent {
		distinct[m] = true
	}
	return len(distinct) >= 2
}

// Classify maps a declared intent to a mode and confidence without history.
// Unmatched intent yields GENERAL with confidence 0.
func Classify(intent string) (acb.Mode, float64) {
	best := make(map[acb.Mode]float64)
	votes := make(map[acb.Mode]int)
	total := 0

	for _, token := range lexical.Tokenize(intent) {
		mode, score, ok := lookup(token)
		if !ok {
			continue
		}
		total++
		votes[mode]++
		if score > best[mode] {
			best[mode] = score
		}
	}
	if total == 0 {
		return acb.ModeGeneral, 0
	}

	resolved := acb.ModeGeneral
	confidence := 0.0
	for _, m := range tieOrder {
		if votes[m] == 0 {
			continue
		}
		conf := best[m] * float64(votes[m]) / float64(total)
		if conf > confidence {
			resolved = m
			confidence = conf
		}
	}
	return resolved, confidence
}

// lookup matches one token against the intent table: exact, then stem, then a
// single-edit typo.
func lookup(token string) (acb.Mode, float64, bool) {
	if m, ok := intentTable[token]; ok {
		return m, scoreExact, true
	}

	var (
		found    bool
		mode     acb.Mode
		score    float64
		matchKey string
	)
	for keyword, m := range intentTable {
		var s float64
		switch {
		case isStem(token, keyword):
			s = scoreStem
		case len(keyword) >= minTypoLength && withinOneEdit(token, keyword):
			s = scoreTypo
		default:
			continue
		}
		// Map iteration is unordered; pick deterministically.
		if !found || s > score || (s == score && keyword < matchKey) {
			found, mode, score, matchKey = true, m, s, keyword
		}
	}
	return mode, score, found
}

var stemSuffixes = map[string]bool{
	"s": true, "es": true, "ed": true, "ing": true, "er": true, "ers": true,
	"ion": true, "ions": true, "ation": true, "ment": true, "ly": true, "al": true,
}

// isStem reports whether token is keyword plus a common inflection, allowing
// a dropped trailing "e" (explore -> exploring) and a doubled final consonant
// (debug -> debugging).
func isStem(token, keyword string) bool {
	bases := []string{keyword}
	if strings.HasSuffix(keyword, "e") && len(keyword) > 3 {
		bases = append(bases, strings.TrimSuffix(keyword, "e"))
	}
	for _, base := range bases {
		if len(base) < 3 || len(token) <= len(base) || !strings.HasPrefix(token, base) {
			continue
		}
		suffix := token[len(base):]
		if stemSuffixes[suffix] {
			return true
		}
		last := base[len(base)-1:]
		if strings.HasPrefix(suffix, last) && stemSuffixes[suffix[1:]] {
			return true
		}
	}
	return false
}

// withinOneEdit reports whether a and b differ by at most one insertion,
// deletion or substitution.
func withinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(ra)-len(rb) > 1 {
		return false
	}
	i, j, edits := 0, 0, 0
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(ra) == len(rb) {
			j++
		}
		i++
	}
	return edits+(len(ra)-i)+(len(rb)-j) <= 1
}

package analysis

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/ashureev/dayreview/internal/domain"
)

// Result is the scored outcome of one analysis, before it becomes a Report.
type Result struct {
	MoodIndex   float64 `json:"mood_index"`
	StressIndex float64 `json:"stress_index"`
	Caption     string  `json:"caption_text"`
	Summary     string  `json:"summary,omitempty"`
}

type band int

const (
	bandLow band = iota
	bandMid
	bandHigh
)

// captions is indexed by [mood band][stress band].
var captions = [3][3][]string{
	bandLow: {
		bandLow: {
			"A flat, quiet day. Tomorrow can be brighter.",
			"Low energy today. Rest counts too.",
		},
		bandMid: {
			"Grinding through it. Time to recharge.",
			"Not the easiest day. Be kind to yourself tonight.",
		},
		bandHigh: {
			"Heavy day under pressure. Step away and breathe.",
			"Worn out and stretched thin. Sleep early.",
		},
	},
	bandMid: {
		bandLow: {
			"A calm, steady day.",
			"Easygoing pace, nothing to complain about.",
		},
		bandMid: {
			"A balanced day of work and play.",
			"Steady progress with a bit of everything.",
		},
		bandHigh: {
			"Busy and focused. Remember to take breaks.",
			"Pushed hard today. A short walk would help.",
		},
	},
	bandHigh: {
		bandLow: {
			"Relaxed and in a good mood. Enjoy it.",
			"A light, cheerful day off the treadmill.",
		},
		bandMid: {
			"Good mood and good momentum.",
			"Productive with enough fun mixed in.",
		},
		bandHigh: {
			"Buzzing day: lots done and lots enjoyed.",
			"High energy all round. Wind down before bed.",
		},
	},
}

const emptyCaption = "Nothing tracked today."

const (
	summaryLongWork   = "Long working day, remember to rest."
	summaryHeavyPlay  = "Lots of gaming today, enjoying life."
	summaryBalanced   = "Work and rest were well balanced."
	summaryOrdinary   = "An ordinary day."
	heavyPlayDuration = 3 * time.Hour
	balancedThreshold = 70.0
)

// Fallback scores a day without any external call. It is pure: the same
// summary and weights always produce the same result.
func Fallback(day domain.DaySummary, w Weights) Result {
	durations := day.CategoryDurations()
	tracked := day.Tracked()
	if tracked <= 0 {
		return Result{
			MoodIndex:   round1(clamp(w.EmptyMood)),
			StressIndex: round1(clamp(w.EmptyStress)),
			Caption:     emptyCaption,
			Summary:     summaryOrdinary,
		}
	}

	work := durations[domain.CategoryWork]
	game := durations[domain.CategoryGame]
	leisure := game + durations[domain.CategoryEntertainment]

	leisureRatio := float64(leisure) / float64(tracked)
	density := inputDensity(day.InputTotal(), tracked, w.DensityCeiling)
	workLoad := math.Min(float64(work)/float64(w.BaselineWorkday), w.StressWorkCap)

	mood := clamp(w.MoodBase + w.MoodLeisureWeight*leisureRatio + w.MoodDensityWeight*density)
	stress := clamp(w.StressBase + w.StressWorkWeight*workLoad + w.StressDensityWeight*density)

	mood, stress = round1(mood), round1(stress)
	return Result{
		MoodIndex:   mood,
		StressIndex: stress,
		Caption:     pickCaption(day.Date, bandOf(mood, w), bandOf(stress, w)),
		Summary:     summarize(work, game, durations, w),
	}
}

func inputDensity(inputs int64, tracked time.Duration, ceiling float64) float64 {
	minutes := tracked.Minutes()
	if minutes <= 0 || ceiling <= 0 {
		return 0
	}
	return math.Min(float64(inputs)/minutes/ceiling, 1)
}

func summarize(work, game time.Duration, durations map[domain.Category]time.Duration, w Weights) string {
	switch {
	case work > w.BaselineWorkday*3/4:
		return summaryLongWork
	case game > heavyPlayDuration:
		return summaryHeavyPlay
	case AnalyzeProductivity(durations).BalanceScore > balancedThreshold:
		return summaryBalanced
	default:
		return summaryOrdinary
	}
}

func bandOf(v float64, w Weights) band {
	switch {
	case v < w.LowBand:
		return bandLow
	case v >= w.HighBand:
		return bandHigh
	default:
		return bandMid
	}
}

func pickCaption(date domain.Date, mood, stress band) string {
	options := captions[mood][stress]
	h := fnv.New32a()
	_, _ = h.Write([]byte(date))
	return options[h.Sum32()%uint32(len(options))]
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

package emotion

import (
	"strings"
)

// Mood 表示来电者当前的情绪倾向。
type Mood string

const (
	Neutral    Mood = "neutral"
	Pleased    Mood = "pleased"
	Frustrated Mood = "frustrated"
	Anxious    Mood = "anxious"
	Urgent     Mood = "urgent"
)

// Decision 给出情绪识别结果与得分。
type Decision struct {
	Mood  Mood
	Score int
}

var keywordBuckets = map[Mood][]string{
	Pleased: {
		"thanks", "thank you", "great", "awesome", "perfect", "wonderful", "appreciate", "lovely", "that helps",
	},
	Frustrated: {
		"angry", "furious", "annoyed", "ridiculous", "unacceptable", "terrible", "worst", "fed up", "again",
		"still not", "never arrived", "useless", "complain", "refund", "waste of time",
	},
	Anxious: {
		"worried", "nervous", "concerned", "afraid", "not sure", "lost", "missing", "haven't received",
		"did not receive", "didn't receive",
	},
	Urgent: {
		"urgent", "asap", "right now", "immediately", "today", "emergency", "as soon as possible", "hurry",
	},
}

// 同分时的优先级，越靠前越优先
var precedence = []Mood{Frustrated, Urgent, Anxious, Pleased}

// Analyze 根据来电者的话语推断情绪。
func Analyze(utterance string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(utterance))
	if normalized == "" {
		return Decision{Mood: Neutral}
	}

	scores := make(map[Mood]int)
	for mood, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[mood] += 3
			}
		}
	}

	if exclamations := strings.Count(utterance, "!"); exclamations > 1 {
		scores[Frustrated] += exclamations
	}
	if upperRatio(utterance) > 0.6 {
		scores[Frustrated] += 2
	}

	best := Decision{Mood: Neutral}
	for _, mood := range precedence {
		if s := scores[mood]; s > best.Score {
			best = Decision{Mood: mood, Score: s}
		}
	}
	return best
}

// Guidance 返回给模型的语气建议，中性情绪返回空串。
func (d Decision) Guidance() string {
	switch d.Mood {
	case Frustrated:
		return "The caller sounds frustrated. Acknowledge the inconvenience in one short sentence, stay calm, and offer to open a support case if the problem is not solved."
	case Anxious:
		return "The caller sounds worried. Reassure them briefly and give concrete next steps."
	case Urgent:
		return "The caller is in a hurry. Skip pleasantries and answer as directly as possible."
	case Pleased:
		return "The caller is in a good mood. Keep the tone warm and light."
	default:
		return ""
	}
}

// upperRatio reports the share of upper-case letters; short texts score 0.
func upperRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	if letters < 8 {
		return 0
	}
	return float64(upper) / float64(letters)
}

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

// Advisor explains how a misrecognized text differs from the intended one
type Advisor interface {
	Advise(ctx context.Context, wrongText, correctText string) (string, error)
}

// SimilarSoundAdvice is returned when no position differs in pronunciation
const SimilarSoundAdvice = "雖然文字不同，但發音非常相似，請多加練習語調。"

// initialHints maps an (intended, spoken) initial pair to a hint line
var initialHints = []struct {
	correct, wrong string
	hint           string
}{
	{"zh", "z", " -> 注意捲舌音 (ㄓ) 的發音。"},
	{"sh", "s", " -> 注意捲舌音 (ㄕ) 的發音。"},
	{"n", "l", " -> 注意鼻音 (ㄋ) 與邊音 (ㄌ) 的區別。"},
}

// Initials ordered so two-letter initials match first
var pinyinInitials = []string{
	"zh", "ch", "sh",
	"b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h",
	"j", "q", "x", "r", "z", "c", "s", "y", "w",
}

// PinyinAdvisor compares texts character by character on tone-marked pinyin
type PinyinAdvisor struct {
	args pinyin.Args
}

// NewPinyinAdvisor creates an advisor. Characters without a reading are
// compared as themselves.
func NewPinyinAdvisor() *PinyinAdvisor {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone
	args.Fallback = func(r rune, a pinyin.Args) []string {
		return []string{string(r)}
	}
	return &PinyinAdvisor{args: args}
}

// Advise lists every position where the readings differ, up to the length of
// the shorter text, with a hint for commonly confused initials
func (p *PinyinAdvisor) Advise(ctx context.Context, wrongText, correctText string) (string, error) {
	wrong := p.readings(wrongText)
	correct := p.readings(correctText)

	n := len(wrong)
	if len(correct) < n {
		n = len(correct)
	}

	var advice []string
	for i := 0; i < n; i++ {
		w, c := wrong[i], correct[i]
		if w == c {
			continue
		}

		advice = append(advice, fmt.Sprintf("第 %d 個字：你唸成了 '%s'，但應該是 '%s'。", i+1, w, c))
		if hint := hintFor(initialOf(c), initialOf(w)); hint != "" {
			advice = append(advice, hint)
		}
	}

	if len(advice) == 0 {
		return SimilarSoundAdvice, nil
	}
	return strings.Join(advice, "\n"), nil
}

// readings returns one reading per character
func (p *PinyinAdvisor) readings(text string) []string {
	var out []string
	for _, r := range text {
		py := pinyin.SinglePinyin(r, p.args)
		if len(py) == 0 {
			out = append(out, string(r))
			continue
		}
		out = append(out, py[0])
	}
	return out
}

func initialOf(syllable string) string {
	for _, initial := range pinyinInitials {
		if strings.HasPrefix(syllable, initial) {
			return initial
		}
	}
	return ""
}

func hintFor(correct, wrong string) string {
	for _, h := range initialHints {
		if h.correct == correct && h.wrong == wrong {
			return h.hint
		}
	}
	return ""
}

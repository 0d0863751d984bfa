// mapper.go maps aligner response words back onto local word indices.

package align

import (
	"strings"

	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/textops"
)

// WindowToken is one local token of the alignment window.
type WindowToken struct {
	WordIndex int
	Text      string
	Segment   int
}

// minSpread is the smallest duration assigned when distributing one aligned
// interval across several local tokens.
const minSpread = 0.01

type localTok struct {
	wordIndex int
	text      string
}

// MapToUpdates pairs the window's tokens with the aligner's words and returns
// timing updates in original-audio time (offset is the clip start). When the
// aligner collapsed the whole window into one token, its interval is spread
// across the local tokens proportional to character length. Otherwise tokens
// are paired through LCS opcodes: equal blocks one-to-one, replace blocks by
// prefix up to the shorter side.
func MapToUpdates(window []WindowToken, resp []RespWord, offset, minDur float64) ([]store.TimingUpdate, int) {
	var newSeq []localTok
	for _, t := range window {
		if s := strings.TrimSpace(t.Text); s != "" {
			newSeq = append(newSeq, localTok{wordIndex: t.WordIndex, text: s})
		}
	}
	var respSeq []RespWord
	for _, w := range resp {
		if s := strings.TrimSpace(w.Word); s != "" {
			w.Word = s
			respSeq = append(respSeq, w)
		}
	}
	if len(newSeq) == 0 || len(respSeq) == 0 {
		return nil, 0
	}

	if len(respSeq) == 1 && len(newSeq) > 1 {
		return spreadSingle(newSeq, respSeq[0], offset), len(newSeq)
	}

	respTime := func(idx int) (float64, float64) {
		rs := respSeq[idx].Start + offset
		re := respSeq[idx].End + offset
		if re > rs {
			return rs, re
		}
		if idx+1 < len(respSeq) {
			if next := respSeq[idx+1].Start + offset; next > rs {
				return rs, next
			}
		}
		return rs, rs + minDur
	}

	newTokens := make([]string, len(newSeq))
	for i, t := range newSeq {
		newTokens[i] = t.text
	}
	respTokens := make([]string, len(respSeq))
	for i, w := range respSeq {
		respTokens[i] = w.Word
	}

	var updates []store.TimingUpdate
	matched := 0
	for _, op := range textops.Opcodes(newTokens, respTokens) {
		var pairs int
		switch op.Tag {
		case "equal":
			pairs = op.I2 - op.I1
		case "replace":
			pairs = op.I2 - op.I1
			if n := op.J2 - op.J1; n < pairs {
				pairs = n
			}
		default:
			continue
		}
		for rel := 0; rel < pairs; rel++ {
			rs, re := respTime(op.J1 + rel)
			updates = append(updates, store.TimingUpdate{
				Start:     rs,
				End:       re,
				WordIndex: newSeq[op.I1+rel].wordIndex,
			})
			matched++
		}
	}
	return updates, matched
}

// spreadSingle distributes one aligned interval across every local token.
func spreadSingle(newSeq []localTok, rw RespWord, offset float64) []store.TimingUpdate {
	rs := rw.Start + offset
	re := rw.End + offset
	if re <= rs {
		re = rs + minSpread
	}
	span := re - rs
	totalChars := 0
	for _, t := range newSeq {
		n := len(t.text)
		if n < 1 {
			n = 1
		}
		totalChars += n
	}

	var updates []store.TimingUpdate
	cur := rs
	for i, t := range newSeq {
		var ns, ne float64
		if i == len(newSeq)-1 {
			ns = cur
			ne = re
			if ne <= ns {
				ne = ns + minSpread
			}
		} else {
			chars := len(t.text)
			if chars < 1 {
				chars = 1
			}
			dur := span * float64(chars) / float64(totalChars)
			if dur < minSpread {
				dur = minSpread
			}
			ns = cur
			ne = ns + dur
			if ne > re {
				ne = re
			}
		}
		updates = append(updates, store.TimingUpdate{Start: ns, End: ne, WordIndex: t.wordIndex})
		cur = ne
	}
	return updates
}

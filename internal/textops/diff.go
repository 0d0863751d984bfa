// diff.go produces the two comparison artifacts persisted with every save:
// a unified text diff for edit-delta rows and LCS opcodes over token
// sequences for timing carry-over and alignment mapping.

package textops

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Opcode describes one block of a token-sequence comparison. Indices follow
// half-open ranges: a[I1:I2] relates to b[J1:J2]. Tag is one of "equal",
// "replace", "delete", "insert".
type Opcode struct {
	Tag            string
	I1, I2, J1, J2 int
}

// Opcodes compares two token sequences and returns LCS-style edit blocks.
// Each distinct token maps to a private rune so the underlying character
// differ works on whole tokens, never substrings.
func Opcodes(a, b []string) []Opcode {
	table := make(map[string]rune)
	next := rune(1)
	encode := func(toks []string) []rune {
		rs := make([]rune, len(toks))
		for i, t := range toks {
			r, ok := table[t]
			if !ok {
				r = next
				next++
				// rune values in the surrogate block do not survive the
				// string round-trip inside the differ.
				if next == 0xD800 {
					next = 0xE000
				}
				table[t] = r
			}
			rs[i] = r
		}
		return rs
	}
	ra := encode(a)
	rb := encode(b)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(ra, rb, false)

	var ops []Opcode
	ai, bi := 0, 0
	for _, d := range diffs {
		n := len([]rune(d.Text))
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			ops = append(ops, Opcode{Tag: "equal", I1: ai, I2: ai + n, J1: bi, J2: bi + n})
			ai += n
			bi += n
		case diffmatchpatch.DiffDelete:
			ops = append(ops, Opcode{Tag: "delete", I1: ai, I2: ai + n, J1: bi, J2: bi})
			ai += n
		case diffmatchpatch.DiffInsert:
			ops = append(ops, Opcode{Tag: "insert", I1: ai, I2: ai, J1: bi, J2: bi + n})
			bi += n
		}
	}
	return mergeReplaces(ops)
}

// mergeReplaces folds adjacent delete+insert (either order) into a single
// replace block.
func mergeReplaces(ops []Opcode) []Opcode {
	var out []Opcode
	for i := 0; i < len(ops); i++ {
		cur := ops[i]
		if i+1 < len(ops) {
			nxt := ops[i+1]
			if (cur.Tag == "delete" && nxt.Tag == "insert") ||
				(cur.Tag == "insert" && nxt.Tag == "delete") {
				del, ins := cur, nxt
				if cur.Tag == "insert" {
					del, ins = nxt, cur
				}
				out = append(out, Opcode{Tag: "replace", I1: del.I1, I2: del.I2, J1: ins.J1, J2: ins.J2})
				i++
				continue
			}
		}
		out = append(out, cur)
	}
	return out
}

// Diff returns a unified diff of a against b with zero lines of context.
// Line-based, endings preserved, deterministic for identical inputs.
func Diff(a, b string) string {
	if a == b {
		return ""
	}
	aLines := splitKeepEnds(a)
	bLines := splitKeepEnds(b)

	ops := Opcodes(aLines, bLines)

	var sb strings.Builder
	sb.WriteString("--- \n+++ \n")
	for _, op := range ops {
		if op.Tag == "equal" {
			continue
		}
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n",
			formatRange(op.I1, op.I2-op.I1),
			formatRange(op.J1, op.J2-op.J1))
		for _, line := range aLines[op.I1:op.I2] {
			sb.WriteString("-" + line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
		for _, line := range bLines[op.J1:op.J2] {
			sb.WriteString("+" + line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// formatRange renders a hunk range the way unified diffs expect: 1-based,
// length omitted when 1, and an empty range anchored on the preceding line.
func formatRange(start, length int) string {
	if length == 1 {
		return fmt.Sprintf("%d", start+1)
	}
	if length == 0 {
		return fmt.Sprintf("%d,0", start)
	}
	return fmt.Sprintf("%d,%d", start+1, length)
}

// splitKeepEnds splits text into lines, each retaining its trailing newline.
// A trailing newline does not produce a final empty line.
func splitKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			return lines
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
		if text == "" {
			return lines
		}
	}
}

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"
	"github.com/OFFIS-RIT/crosscheck/pkg/verify"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	backendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	answerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func renderResponse(w io.Writer, res pipeline.Response) {
	fmt.Fprintln(w, backendStyle.Render(string(res.Backend)), mutedStyle.Render(fmt.Sprintf("(%d chunks)", res.Chunks)))
	fmt.Fprintln(w, answerStyle.Render(res.Answer.Text))
	for _, warn := range res.Warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+warn))
	}
}

func renderConsensus(w io.Writer, res pipeline.Consensus) {
	fmt.Fprintln(w, headerStyle.Render("Answers"))
	for _, id := range sortedKeys(res.Candidates) {
		ans := res.Candidates[id]
		label := string(id)
		switch {
		case ans.Placeholder:
			label += " (failed)"
		case ans.Degraded:
			label += " (partial)"
		}
		fmt.Fprintln(w, backendStyle.Render(label))
		fmt.Fprintln(w, answerStyle.Render(ans.Text))
		renderEvidence(w, res.Evidence[id])
	}

	if len(res.Similarity) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Similarity"))
		for _, pair := range sortedKeys(res.Similarity) {
			fmt.Fprintf(w, "  %-32s %.3f\n", pair, res.Similarity[pair])
		}
	}

	if len(res.Diffs) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Differences"))
		for _, pair := range sortedKeys(res.Diffs) {
			label := pair
			if a, b, ok := strings.Cut(pair, " vs "); ok {
				n := verify.ChangedWords(res.Candidates[common.BackendID(a)].Text, res.Candidates[common.BackendID(b)].Text)
				label = fmt.Sprintf("%s (%d words changed)", pair, n)
			}
			fmt.Fprintln(w, mutedStyle.Render(label))
			fmt.Fprintln(w, "  "+res.Diffs[pair])
		}
	}

	for _, warn := range res.Warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+warn))
	}
	fmt.Fprintln(w, mutedStyle.Render("request "+res.RequestID))
}

func renderEvidence(w io.Writer, facts []common.Triple) {
	if len(facts) == 0 {
		return
	}
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = "  - " + f.String()
	}
	fmt.Fprintln(w, mutedStyle.Render(strings.Join(lines, "\n")))
}

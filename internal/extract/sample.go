package extract

import (
    "strings"

    "golang.org/x/net/html"
)

// DefaultSampleBudget caps the identification sample in characters.
const DefaultSampleBudget = 2000

// Sample concatenates SamplePass text, joined by single spaces, until budget
// characters are collected. The result never exceeds budget; the fragment
// that crosses the limit is cut.
func Sample(root *html.Node, styler Styler, budget int) string {
    if budget <= 0 {
        budget = DefaultSampleBudget
    }
    var b strings.Builder
    used := 0
    for u := range Units(root, SamplePass, styler) {
        sep := 0
        if used > 0 {
            sep = 1
        }
        n := charLen(u.Body)
        if used+sep+n > budget {
            remaining := budget - used - sep
            if remaining > 0 {
                if sep == 1 {
                    b.WriteByte(' ')
                }
                b.WriteString(truncateChars(u.Body, remaining))
            }
            break
        }
        if sep == 1 {
            b.WriteByte(' ')
        }
        b.WriteString(u.Body)
        used += sep + n
    }
    return b.String()
}

func truncateChars(s string, n int) string {
    i := 0
    for pos := range s {
        if i == n {
            return s[:pos]
        }
        i++
    }
    return s
}

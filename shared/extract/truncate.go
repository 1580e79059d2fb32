package extract

import "strings"

// Character budgets per length tier.
const (
	BudgetShort  = 150
	BudgetMedium = 230
	BudgetLong   = 280
)

// Budget maps a length tier name to its character budget. Unknown tiers get
// the long budget, which is the platform ceiling anyway.
func Budget(tier string) int {
	switch tier {
	case "short":
		return BudgetShort
	case "medium":
		return BudgetMedium
	default:
		return BudgetLong
	}
}

// Truncate cuts s to at most max characters, preferring a word boundary when
// backing up to one keeps at least 80% of the budget, and strips dangling
// punctuation left by the cut. Lengths are measured in runes so emoji and
// accented characters count as single units.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	kept := runes[:max]

	// Back up to the previous whitespace when that keeps >= 80% of the budget.
	ws := -1
	for i, r := range kept {
		if r == ' ' || r == '\t' || r == '\n' {
			ws = i
		}
	}
	if ws >= 0 && ws*10 >= max*8 {
		kept = kept[:ws]
	}

	return strings.TrimRight(string(kept), " \t\n,.;:-—")
}

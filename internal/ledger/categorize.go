package ledger

import (
	"strings"
	"unicode"

	"github.com/dukerupert/daybook/internal/model"
)

type keyword struct {
	phrase   string
	category string
}

// SuggestCategory picks a preset category for a transaction from the words
// of its note. Phrases match on word boundaries, first entry wins. It returns
// "" when nothing matches.
func SuggestCategory(typ model.TransactionType, note string) string {
	text := normalize(note)
	if text == "" {
		return ""
	}
	table := expenseKeywords
	if typ == model.Income {
		table = incomeKeywords
	}
	for _, k := range table {
		if strings.Contains(text, " "+k.phrase+" ") {
			return k.category
		}
	}
	return ""
}

// normalize lowercases s, turns punctuation into spaces and pads the result
// so every word is space-delimited.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	fields := strings.Fields(mapped)
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}

// Longer phrases come before the single words they contain.
var expenseKeywords = []keyword{
	{"gas station", "Transport"},
	{"car wash", "Transport"},
	{"phone bill", "Bills"},
	{"water bill", "Bills"},
	{"electric bill", "Bills"},
	{"ice cream", "Food"},

	{"groceries", "Food"},
	{"grocery", "Food"},
	{"supermarket", "Food"},
	{"restaurant", "Food"},
	{"breakfast", "Food"},
	{"lunch", "Food"},
	{"dinner", "Food"},
	{"coffee", "Food"},
	{"cafe", "Food"},
	{"pizza", "Food"},
	{"takeout", "Food"},
	{"bakery", "Food"},
	{"snacks", "Food"},

	{"bus", "Transport"},
	{"train", "Transport"},
	{"metro", "Transport"},
	{"subway", "Transport"},
	{"taxi", "Transport"},
	{"uber", "Transport"},
	{"fuel", "Transport"},
	{"petrol", "Transport"},
	{"parking", "Transport"},
	{"toll", "Transport"},
	{"flight", "Transport"},

	{"rent", "Bills"},
	{"mortgage", "Bills"},
	{"electricity", "Bills"},
	{"internet", "Bills"},
	{"insurance", "Bills"},
	{"utilities", "Bills"},
	{"gas", "Bills"},

	{"netflix", "Entertainment"},
	{"spotify", "Entertainment"},
	{"cinema", "Entertainment"},
	{"movie", "Entertainment"},
	{"movies", "Entertainment"},
	{"concert", "Entertainment"},
	{"theater", "Entertainment"},
	{"games", "Entertainment"},

	{"pharmacy", "Health"},
	{"doctor", "Health"},
	{"dentist", "Health"},
	{"hospital", "Health"},
	{"medicine", "Health"},
	{"prescription", "Health"},
	{"vitamins", "Health"},
	{"gym", "Health"},

	{"clothes", "Shopping"},
	{"shoes", "Shopping"},
	{"amazon", "Shopping"},
	{"electronics", "Shopping"},
	{"furniture", "Shopping"},
	{"books", "Shopping"},
	{"gift", "Shopping"},
}

var incomeKeywords = []keyword{
	{"salary", "Salary"},
	{"paycheck", "Salary"},
	{"payroll", "Salary"},
	{"wages", "Salary"},
	{"bonus", "Salary"},
	{"gift", "Gift"},
	{"present", "Gift"},
	{"birthday", "Gift"},
}

package common

import (
	"fmt"
	"strings"

	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultWidth is the separator width of command reports
const DefaultWidth = 80

// FormatXLM renders an amount with all seven fractional digits and the unit.
func FormatXLM(amount decimal.Decimal) string {
	return models.FormatAmount(amount) + " XLM"
}

func rule(char string, width int) string {
	return strings.Repeat(char, width)
}

func PrintSeparator(char string, width int) {
	fmt.Println(rule(char, width))
}

// PrintSeparatorNewline prints a blank line followed by a separator
func PrintSeparatorNewline(char string, width int) {
	fmt.Println()
	PrintSeparator(char, width)
}

// PrintHeader frames title between two "=" rules
func PrintHeader(title string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter frames a report summary and leaves a trailing blank line
func PrintFooter(summary string, width int) {
	PrintHeader(summary, width)
	fmt.Println()
}

// PrintBoxSeparator opens the detail section of a boxed account listing
func PrintBoxSeparator(width int) {
	fmt.Println("├" + rule("─", width))
}

// BoxPrefix returns the tree prefix of a list item
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix indents lines nested under a list item
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

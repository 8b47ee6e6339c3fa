package pipeline

import "strings"

const (
	colHolds           = "Holds"
	colPregateTicket   = "Pregate Ticket#"
	colTradeType       = "Trade Type"
	colCurrentLoc      = "CurrentLoc"
	colOrigin          = "Origin"
	colDestination     = "Destination"
	colContainerNumber = "Container #"

	colManifested              = "Manifested"
	colFirstApptBefore          = "First Appointment Available (Before)"
	colDepartedTerminal         = "Departed Terminal"
	colFirstApptAfter           = "First Appointment Available (After)"
	colEmptyReceived            = "Empty Received"

	naLiteral = "N/A"

	tradeTypeImport = "IMPORT"
	tradeTypeExport = "EXPORT"

	moveTypePickFull  = "PICK FULL"
	moveTypeDropEmpty = "DROP EMPTY"
	moveTypeDropFull  = "DROP FULL"
)

// appendedColumns are the five output columns stage 2 adds, initialized to
// the literal "N/A" and populated incrementally through stages 3 and 4.
var appendedColumns = []string{
	colManifested,
	colFirstApptBefore,
	colDepartedTerminal,
	colFirstApptAfter,
	colEmptyReceived,
}

// passesFilter implements stage 2's row predicate: Holds must equal "NO"
// case-insensitively, and Pregate Ticket# must contain the substring "N/A"
// case-insensitively.
func passesFilter(holds, pregateTicket string) bool {
	return strings.EqualFold(strings.TrimSpace(holds), "NO") &&
		strings.Contains(strings.ToUpper(pregateTicket), "N/A")
}

// isImport reports whether a Trade Type value denotes an import row.
func isImport(tradeType string) bool {
	return strings.EqualFold(strings.TrimSpace(tradeType), tradeTypeImport)
}

// isExport reports whether a Trade Type value denotes an export row.
func isExport(tradeType string) bool {
	return strings.EqualFold(strings.TrimSpace(tradeType), tradeTypeExport)
}

// resolveTerminalCode picks the raw terminal code per stage 4's fallback
// rule: CurrentLoc preferred, else Origin for imports or Destination for
// exports (the stated variant in the spec's running text, not the §9
// alternate — see SPEC_FULL.md §9).
func resolveTerminalCode(currentLoc, origin, destination string, imported bool) string {
	if currentLoc != "" {
		return currentLoc
	}
	if imported {
		return origin
	}
	return destination
}

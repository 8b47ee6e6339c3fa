package pipeline

// terminalNames maps short upstream terminal codes to their full names.
// Codes absent from this dictionary are passed through as-is.
var terminalNames = map[string]string{
	"TTI":    "Total Terminals International",
	"ITS":    "International Transportation Service",
	"TRP1":   "Trapac Los Angeles",
	"ETSLAX": "Everport Terminal Services Los Angeles",
	"PCT":    "Pacific Container Terminal",
	"HUSKY":  "Husky Terminal",
	"T18":    "Terminal 18",
	"SSA":    "SSA Terminal",
	"SSAT5":  "SSA Terminal 5",
	"SSAT30": "SSA Terminal 30",
	"WUT":    "Washington United Terminals",
	"OICT":   "Oakland International Container Terminal",
	"PACKR":  "Pacific Container Terminal Oakland",
	"PET":    "Pier E Terminal",
	"FIT":    "Fenix Marine Terminal",
	"TRPOAK": "Trapac Oakland",
	"ETSOAK": "Everport Terminal Services Oakland",
	"ETSTAC": "Everport Terminal Services Tacoma",
	"BNLPC":  "Basin Nurseries Long Beach Container Terminal",
	"LPCHI":  "Long Beach Container Terminal",
}

// mapTerminal resolves a raw terminal code to its full name, or returns the
// raw code unchanged if it is not in the dictionary.
func mapTerminal(rawCode string) string {
	if name, ok := terminalNames[rawCode]; ok {
		return name
	}
	return rawCode
}

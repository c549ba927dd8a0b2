package bsdl

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// bsdlLexer tokenizes the VHDL subset BSDL files use. Only the keywords the
// grammar anchors on get their own token types; everything else is an Ident
// or punctuation.
var bsdlLexer = lexer.MustSimple([]lexer.SimpleRule{
	// VHDL comments run to end of line
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},

	{Name: "KwEntity", Pattern: `(?i)\bentity\b`},
	{Name: "KwIs", Pattern: `(?i)\bis\b`},
	{Name: "KwEnd", Pattern: `(?i)\bend\b`},
	{Name: "KwAttribute", Pattern: `(?i)\battribute\b`},
	{Name: "KwOf", Pattern: `(?i)\bof\b`},

	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?([eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9_]*`},

	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Punct", Pattern: `:=|=>|[:,.&*+\-/<>=\[\]]`},
})

package bsdl

import "strings"

// file is the parse tree of a BSDL entity. Only attributes are kept; generic,
// port, use and constant clauses are consumed without interpretation.
type file struct {
	Entity  string  `KwEntity @Ident KwIs`
	Decls   []*decl `@@*`
	EndName string  `KwEnd KwEntity? @Ident? Semicolon`
}

type decl struct {
	Attribute *attribute `  @@`
	Clause    *clause    `| @@`
}

// attribute is e.g. `attribute INSTRUCTION_LENGTH of XC7A35T : entity is 6;`
type attribute struct {
	Name  string      `KwAttribute @Ident`
	Of    string      `KwOf @Ident ":"`
	Class string      `@( KwEntity | Ident )`
	Value *expression `KwIs @@ Semicolon`
}

type expression struct {
	Terms []*term `@@ ( "&" @@ )*`
}

type term struct {
	String *string `  @String`
	Number *string `| @Number`
	Ident  *string `| @Ident`
	Group  *group  `| @@`
}

type clause struct {
	Items []*item `@@+ Semicolon`
}

type item struct {
	Group *group `  @@`
	Token string `| @( Ident | String | Number | Punct | KwEntity | KwIs | KwOf )`
}

type group struct {
	Items []*groupItem `LParen @@* RParen`
}

type groupItem struct {
	Group *group `  @@`
	Token string `| @( Ident | String | Number | Punct | Semicolon | KwEntity | KwIs | KwOf )`
}

// text joins the string literals of a concatenation without their quotes.
func (e *expression) text() string {
	var b strings.Builder
	for _, t := range e.Terms {
		if t.String != nil {
			b.WriteString(strings.Trim(*t.String, `"`))
		}
	}
	return b.String()
}

// number returns the value of a single numeric term.
func (e *expression) number() (string, bool) {
	if len(e.Terms) == 1 && e.Terms[0].Number != nil {
		return *e.Terms[0].Number, true
	}
	return "", false
}

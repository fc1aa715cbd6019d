package sql

import "strings"

// TokenType represents the type of a SQL token.
type TokenType int

const (
	// EOF represents end of input.
	EOF TokenType = iota
	ILLEGAL

	// IDENT represents identifiers like column, table and function names.
	IDENT
	INT    // integers
	FLOAT  // floating point numbers
	STRING // string literals

	// SELECT represents the SELECT keyword.
	SELECT
	FROM
	WHERE
	GROUP
	BY
	HAVING
	ORDER
	LIMIT
	AS
	AND
	OR
	NOT
	IS
	NULL
	TRUE
	FALSE
	CASE
	WHEN
	THEN
	ELSE
	END

	// EQ represents the equals operator (=).
	EQ
	NE    // != or <>
	LT    // <
	LE    // <=
	GT    // >
	GE    // >=
	PLUS  // +
	MINUS // -
	MULT  // *
	DIV   // /

	// COMMA represents the comma delimiter (,).
	COMMA
	SEMICOLON // ;
	LPAREN    // (
	RPAREN    // )
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", ILLEGAL: "illegal", IDENT: "identifier", INT: "integer",
	FLOAT: "float", STRING: "string", EQ: "=", NE: "!=", LT: "<", LE: "<=", GT: ">", GE: ">=",
	PLUS: "+", MINUS: "-", MULT: "*", DIV: "/", COMMA: ",", SEMICOLON: ";", LPAREN: "(", RPAREN: ")",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	for word, tt := range keywords {
		if tt == t {
			return word
		}
	}
	return "unknown"
}

var keywords = map[string]TokenType{
	"SELECT": SELECT,
	"FROM":   FROM,
	"WHERE":  WHERE,
	"GROUP":  GROUP,
	"BY":     BY,
	"HAVING": HAVING,
	"ORDER":  ORDER,
	"LIMIT":  LIMIT,
	"AS":     AS,
	"AND":    AND,
	"OR":     OR,
	"NOT":    NOT,
	"IS":     IS,
	"NULL":   NULL,
	"TRUE":   TRUE,
	"FALSE":  FALSE,
	"CASE":   CASE,
	"WHEN":   WHEN,
	"THEN":   THEN,
	"ELSE":   ELSE,
	"END":    END,
}

// lookupIdent checks if identifier is a keyword.
func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToUpper(ident)]; ok {
		return tok
	}
	return IDENT
}

// Token represents a single SQL token.
type Token struct {
	Type     TokenType
	Literal  string
	Position int
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
}

// NewLexer creates a new lexer instance.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken scans the input and returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	pos := l.position

	single := func(t TokenType) Token {
		tok := Token{Type: t, Literal: string(l.ch), Position: pos}
		l.readChar()
		return tok
	}
	double := func(t TokenType) Token {
		lit := l.input[pos : pos+2]
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Position: pos}
	}

	switch l.ch {
	case 0:
		return Token{Type: EOF, Position: pos}
	case '=':
		if l.peekChar() == '=' {
			return double(EQ)
		}
		return single(EQ)
	case '!':
		if l.peekChar() == '=' {
			return double(NE)
		}
		return single(ILLEGAL)
	case '<':
		switch l.peekChar() {
		case '=':
			return double(LE)
		case '>':
			return double(NE)
		}
		return single(LT)
	case '>':
		if l.peekChar() == '=' {
			return double(GE)
		}
		return single(GT)
	case '+':
		return single(PLUS)
	case '-':
		return single(MINUS)
	case '*':
		return single(MULT)
	case '/':
		return single(DIV)
	case ',':
		return single(COMMA)
	case ';':
		return single(SEMICOLON)
	case '(':
		return single(LPAREN)
	case ')':
		return single(RPAREN)
	case '\'':
		return l.readString()
	case '"':
		tok := l.readString()
		if tok.Type == STRING {
			tok.Type = IDENT
		}
		return tok
	}

	switch {
	case isLetter(l.ch):
		lit := l.readIdentifier()
		return Token{Type: lookupIdent(lit), Literal: lit, Position: pos}
	case isDigit(l.ch):
		t, lit := l.readNumber()
		return Token{Type: t, Literal: lit, Position: pos}
	default:
		return single(ILLEGAL)
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() (TokenType, string) {
	position := l.position
	tokenType := INT

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		tokenType = FLOAT
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return tokenType, l.input[position:l.position]
}

// readString reads a quoted string. A doubled quote inside the string
// stands for one quote character; an unterminated string is ILLEGAL.
func (l *Lexer) readString() Token {
	pos := l.position
	quote := l.ch
	l.readChar()

	var sb strings.Builder
	for {
		switch {
		case l.ch == 0:
			return Token{Type: ILLEGAL, Literal: l.input[pos:], Position: pos}
		case l.ch == quote && l.peekChar() == quote:
			sb.WriteByte(quote)
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar()
			return Token{Type: STRING, Literal: sb.String(), Position: pos}
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

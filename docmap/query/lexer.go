package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type TokenKind int

const (
	TokIdent TokenKind = iota
	TokString
	TokNumber
	TokColon
	TokAnd
	TokOr
	TokNot
	TokLParen
	TokRParen
	TokGt
	TokGte
	TokLt
	TokLte
	TokDotDot
	TokEOF
)

var tokenNames = [...]string{
	TokIdent:  "identifier",
	TokString: "string",
	TokNumber: "number",
	TokColon:  "':'",
	TokAnd:    "AND",
	TokOr:     "OR",
	TokNot:    "NOT",
	TokLParen: "'('",
	TokRParen: "')'",
	TokGt:     "'>'",
	TokGte:    "'>='",
	TokLt:     "'<'",
	TokLte:    "'<='",
	TokDotDot: "'..'",
	TokEOF:    "end of query",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "token(" + strconv.Itoa(int(k)) + ")"
}

// Token is one lexeme of a query string. Pos is the rune offset where it
// starts.
type Token struct {
	Kind  TokenKind
	Value string
	Num   float64
	// IsInt is set for numbers written without a fraction.
	IsInt bool
	Pos   int
}

func (t Token) String() string {
	switch t.Kind {
	case TokIdent, TokString, TokNumber:
		return fmt.Sprintf("%s %q@%d", t.Kind, t.Value, t.Pos)
	default:
		return fmt.Sprintf("%s@%d", t.Kind, t.Pos)
	}
}

// LexError reports the rune offset of malformed input.
type LexError struct {
	Offset int
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Offset)
}

// operators are matched longest first.
var operators = []struct {
	text string
	kind TokenKind
}{
	{">=", TokGte},
	{"<=", TokLte},
	{"..", TokDotDot},
	{":", TokColon},
	{"(", TokLParen},
	{")", TokRParen},
	{"&", TokAnd},
	{"|", TokOr},
	{"!", TokNot},
	{">", TokGt},
	{"<", TokLt},
}

var keywords = map[string]TokenKind{
	"AND": TokAnd,
	"OR":  TokOr,
	"NOT": TokNot,
}

type Lexer struct {
	src []rune
	pos int
}

func NewLexer(input string) *Lexer {
	return &Lexer{src: []rune(input)}
}

// Lex splits input into tokens. The last token is always TokEOF.
func Lex(input string) ([]Token, error) {
	l := NewLexer(input)
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == TokEOF {
			return out, nil
		}
	}
}

func (l *Lexer) Next() (Token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	tok, err := l.scan()
	tok.Pos = start
	return tok, err
}

func (l *Lexer) scan() (Token, error) {
	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF}, nil
	}
	for _, op := range operators {
		if l.hasPrefix(op.text) {
			l.pos += len(op.text)
			return Token{Kind: op.kind}, nil
		}
	}

	ch := l.src[l.pos]
	switch {
	case ch == '"' || ch == '\'':
		return l.quoted(ch)
	case unicode.IsDigit(ch), ch == '-' && unicode.IsDigit(l.at(l.pos+1)):
		return l.number()
	case isWordRune(ch):
		return l.word(), nil
	}
	return Token{}, &LexError{Offset: l.pos, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

func (l *Lexer) at(i int) rune {
	if i < len(l.src) {
		return l.src[i]
	}
	return 0
}

func (l *Lexer) hasPrefix(s string) bool {
	i := l.pos
	for _, r := range s {
		if l.at(i) != r {
			return false
		}
		i++
	}
	return true
}

var unescape = map[rune]rune{'n': '\n', 't': '\t', 'r': '\r'}

// quoted reads a string closed by the same quote rune that opened it.
func (l *Lexer) quoted(q rune) (Token, error) {
	open := l.pos
	l.pos++
	var sb strings.Builder
	for ; l.pos < len(l.src); l.pos++ {
		ch := l.src[l.pos]
		switch {
		case ch == q:
			l.pos++
			return Token{Kind: TokString, Value: sb.String()}, nil
		case ch == '\\' && l.pos+1 < len(l.src):
			l.pos++
			esc := l.src[l.pos]
			if r, ok := unescape[esc]; ok {
				esc = r
			}
			sb.WriteRune(esc)
		default:
			sb.WriteRune(ch)
		}
	}
	return Token{}, &LexError{Offset: open, Msg: "unterminated string"}
}

// number reads an optionally negative decimal. A number running into word
// runes is re-read as a word, so "3d" is an identifier.
func (l *Lexer) number() (Token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	l.digits()
	isInt := true
	if l.at(l.pos) == '.' && l.at(l.pos+1) != '.' {
		isInt = false
		l.pos++
		l.digits()
	}
	if r := l.at(l.pos); r != '.' && isWordRune(r) {
		l.pos = start
		return l.word(), nil
	}
	text := string(l.src[start:l.pos])
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, &LexError{Offset: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	return Token{Kind: TokNumber, Value: text, Num: num, IsInt: isInt}, nil
}

func (l *Lexer) digits() {
	for unicode.IsDigit(l.at(l.pos)) {
		l.pos++
	}
}

// word reads an identifier or keyword. Dots are allowed inside words so
// that flattened names like "owner.name" stay one token, but a ".." range
// operator ends the word.
func (l *Lexer) word() Token {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if r == '.' {
			if l.at(l.pos+1) == '.' {
				break
			}
		} else if !isWordRune(r) {
			break
		}
		l.pos++
	}
	text := string(l.src[start:l.pos])
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		return Token{Kind: kind}
	}
	return Token{Kind: TokIdent, Value: text}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_*/-", r)
}

package main

import (
	"strconv"
	"strings"
)

// formulaTokenType is the kind of a lexical token in a formula expression
type formulaTokenType int

const (
	tokEOF formulaTokenType = iota
	tokNumber
	tokIdent
	tokString
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
)

func (t formulaTokenType) String() string {
	switch t {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokIdent:
		return "name"
	case tokString:
		return "string"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return "token"
	}
}

// formulaToken is one lexical token with its byte offset in the source
type formulaToken struct {
	Type   formulaTokenType
	Lexeme string
	Number float64
	Pos    int
}

// formulaLexer scans an expression into tokens
type formulaLexer struct {
	src string
	cur int
}

func isFormulaDigit(b byte) bool { return b >= '0' && b <= '9' }
func isFormulaAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

// tokenizeFormula returns every token of src, ending with tokEOF
func tokenizeFormula(src string) ([]formulaToken, error) {
	l := &formulaLexer{src: src}
	var toks []formulaToken
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == tokEOF {
			return toks, nil
		}
	}
}

func (l *formulaLexer) errorf(pos int, format string, args ...any) error {
	return formulaErrorf(MalformedExpression, l.src, "at offset %d: "+format, append([]any{pos}, args...)...)
}

func (l *formulaLexer) next() (formulaToken, error) {
	for l.cur < len(l.src) && strings.IndexByte(" \t\r\n", l.src[l.cur]) >= 0 {
		l.cur++
	}
	start := l.cur
	if l.cur >= len(l.src) {
		return formulaToken{Type: tokEOF, Pos: start}, nil
	}

	c := l.src[l.cur]
	single := map[byte]formulaTokenType{
		'+': tokPlus, '-': tokMinus, '*': tokStar, '/': tokSlash,
		'(': tokLParen, ')': tokRParen, ',': tokComma,
	}
	if tt, ok := single[c]; ok {
		l.cur++
		// "**" and "//" are Python operators, not part of this grammar
		if (c == '*' || c == '/') && l.cur < len(l.src) && l.src[l.cur] == c {
			return formulaToken{}, l.errorf(start, "operator %q is not supported", string([]byte{c, c}))
		}
		return formulaToken{Type: tt, Lexeme: string(c), Pos: start}, nil
	}

	switch {
	case isFormulaDigit(c) || (c == '.' && l.cur+1 < len(l.src) && isFormulaDigit(l.src[l.cur+1])):
		return l.scanNumber()
	case isFormulaAlpha(c):
		for l.cur < len(l.src) && (isFormulaAlpha(l.src[l.cur]) || isFormulaDigit(l.src[l.cur])) {
			l.cur++
		}
		return formulaToken{Type: tokIdent, Lexeme: l.src[start:l.cur], Pos: start}, nil
	case c == '\'' || c == '"':
		return l.scanString(c)
	}
	return formulaToken{}, l.errorf(start, "unexpected character %q", string(c))
}

func (l *formulaLexer) scanNumber() (formulaToken, error) {
	start := l.cur
	for l.cur < len(l.src) && isFormulaDigit(l.src[l.cur]) {
		l.cur++
	}
	if l.cur < len(l.src) && l.src[l.cur] == '.' {
		l.cur++
		for l.cur < len(l.src) && isFormulaDigit(l.src[l.cur]) {
			l.cur++
		}
	}
	if l.cur < len(l.src) && (l.src[l.cur] == 'e' || l.src[l.cur] == 'E') {
		l.cur++
		if l.cur < len(l.src) && (l.src[l.cur] == '+' || l.src[l.cur] == '-') {
			l.cur++
		}
		digits := l.cur
		for l.cur < len(l.src) && isFormulaDigit(l.src[l.cur]) {
			l.cur++
		}
		if digits == l.cur {
			return formulaToken{}, l.errorf(start, "malformed exponent in %q", l.src[start:l.cur])
		}
	}
	// A number directly followed by a name or a dot ("2x", "1.2.3") is rejected
	if l.cur < len(l.src) && (isFormulaAlpha(l.src[l.cur]) || l.src[l.cur] == '.') {
		return formulaToken{}, l.errorf(start, "malformed number near %q", l.src[start:l.cur+1])
	}
	lexeme := l.src[start:l.cur]
	v, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return formulaToken{}, l.errorf(start, "malformed number %q", lexeme)
	}
	return formulaToken{Type: tokNumber, Lexeme: lexeme, Number: v, Pos: start}, nil
}

func (l *formulaLexer) scanString(quote byte) (formulaToken, error) {
	start := l.cur
	l.cur++
	var b strings.Builder
	for l.cur < len(l.src) {
		c := l.src[l.cur]
		switch {
		case c == quote:
			l.cur++
			return formulaToken{Type: tokString, Lexeme: b.String(), Pos: start}, nil
		case c == '\\' && l.cur+1 < len(l.src):
			b.WriteByte(l.src[l.cur+1])
			l.cur += 2
		case c == '\n':
			return formulaToken{}, l.errorf(start, "newline in string")
		default:
			b.WriteByte(c)
			l.cur++
		}
	}
	return formulaToken{}, l.errorf(start, "unterminated string")
}

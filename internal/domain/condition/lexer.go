package condition

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokCmp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "field"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokTrue, tokFalse:
		return "boolean"
	case tokCmp:
		return "comparison operator"
	case tokAnd, tokOr:
		return "logical operator"
	case tokNot:
		return "not"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "token"
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"true":  tokTrue,
	"false": tokFalse,
}

// lex splits src into tokens, always ending with tokEOF
func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == '&' || r == '|':
			if i+1 >= len(runes) || runes[i+1] != r {
				return nil, newError(src, i, "unexpected character %q", r)
			}
			kind := tokAnd
			if r == '|' {
				kind = tokOr
			}
			tokens = append(tokens, token{kind: kind, text: string([]rune{r, r}), pos: i})
			i += 2

		case r == '=' || r == '!' || r == '<' || r == '>':
			start := i
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokCmp, text: string(runes[i : i+2]), pos: start})
				i += 2
				continue
			}
			switch r {
			case '<', '>':
				tokens = append(tokens, token{kind: tokCmp, text: string(r), pos: start})
			case '!':
				tokens = append(tokens, token{kind: tokNot, text: "!", pos: start})
			default:
				return nil, newError(src, i, "single '=' is not an operator, use '=='")
			}
			i++

		case r == '"' || r == '\'':
			text, next, err := lexString(src, runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = next

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && (unicode.IsDigit(runes[i+1]) || runes[i+1] == '.')) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || runes[i] == '.' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			word := string(runes[start:i])
			if kind, ok := keywords[strings.ToLower(word)]; ok {
				tokens = append(tokens, token{kind: kind, text: word, pos: start})
				continue
			}
			tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})

		default:
			return nil, newError(src, i, "unexpected character %q", r)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

func lexString(src string, runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var b strings.Builder
	i := start + 1

	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 >= len(runes) {
				return "", 0, newError(src, i, "unterminated escape sequence")
			}
			switch esc := runes[i+1]; esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case '\\', '"', '\'':
				b.WriteRune(esc)
			default:
				return "", 0, newError(src, i, "unknown escape sequence \\%c", esc)
			}
			i += 2
		case r == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteRune(r)
			i++
		}
	}

	return "", 0, newError(src, start, "unterminated string literal")
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tok struct {
	kind  TokenKind
	value string
}

func kinds(t *testing.T, input string) []tok {
	t.Helper()
	tokens, err := Lex(input)
	require.NoError(t, err)
	out := make([]tok, len(tokens))
	for i, tk := range tokens {
		out[i] = tok{tk.Kind, tk.Value}
		if tk.Kind == TokNumber {
			out[i].value = ""
		}
	}
	return out
}

func TestLex(t *testing.T) {
	tests := []struct {
		input string
		want  []tok
	}{
		{"title:test", []tok{{TokIdent, "title"}, {TokColon, ""}, {TokIdent, "test"}, {TokEOF, ""}}},
		{"priority>5 AND active", []tok{{TokIdent, "priority"}, {TokGt, ""}, {TokNumber, ""}, {TokAnd, ""}, {TokIdent, "active"}, {TokEOF, ""}}},
		{"(a or b) & !c", []tok{{TokLParen, ""}, {TokIdent, "a"}, {TokOr, ""}, {TokIdent, "b"}, {TokRParen, ""}, {TokAnd, ""}, {TokNot, ""}, {TokIdent, "c"}, {TokEOF, ""}}},
		{"age:1..10", []tok{{TokIdent, "age"}, {TokColon, ""}, {TokNumber, ""}, {TokDotDot, ""}, {TokNumber, ""}, {TokEOF, ""}}},
		{"a>=1 a<=2 a<3", []tok{{TokIdent, "a"}, {TokGte, ""}, {TokNumber, ""}, {TokIdent, "a"}, {TokLte, ""}, {TokNumber, ""}, {TokIdent, "a"}, {TokLt, ""}, {TokNumber, ""}, {TokEOF, ""}}},
		{"owner.name:kuro", []tok{{TokIdent, "owner.name"}, {TokColon, ""}, {TokIdent, "kuro"}, {TokEOF, ""}}},
		{"code:3d", []tok{{TokIdent, "code"}, {TokColon, ""}, {TokIdent, "3d"}, {TokEOF, ""}}},
		{"*:*", []tok{{TokIdent, "*"}, {TokColon, ""}, {TokIdent, "*"}, {TokEOF, ""}}},
		{`bio:"black cat" 'it''s'`, []tok{{TokIdent, "bio"}, {TokColon, ""}, {TokString, "black cat"}, {TokString, "it"}, {TokString, "s"}, {TokEOF, ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(t, tt.input))
		})
	}
}

func TestLexNumbers(t *testing.T) {
	tokens, err := Lex("3.14 -2 15")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, 3.14, tokens[0].Num)
	assert.False(t, tokens[0].IsInt)
	assert.Equal(t, -2.0, tokens[1].Num)
	assert.True(t, tokens[1].IsInt)
	assert.Equal(t, "15", tokens[2].Value)
	assert.True(t, tokens[2].IsInt)
}

func TestLexEscapes(t *testing.T) {
	tokens, err := Lex(`"hello\nworld \"x\" \\"`)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld \"x\" \\", tokens[0].Value)
}

func TestLexOffsets(t *testing.T) {
	tokens, err := Lex("a AND  b")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 7, 8}, []int{tokens[0].Pos, tokens[1].Pos, tokens[2].Pos, tokens[3].Pos})
}

func TestLexErrors(t *testing.T) {
	_, err := Lex(`name:"abc`)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 5, lexErr.Offset)
	assert.Contains(t, err.Error(), "unterminated string")

	_, err = Lex("a = b")
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 2, lexErr.Offset)
}

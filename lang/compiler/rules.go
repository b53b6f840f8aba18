package compiler

import "github.com/toi-lang/toi/lang/token"

// Precedence levels, low to high (§4.3 "Pratt precedence table").
type Precedence uint8

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecTernary
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecRange
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(s *Session, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.Token]parseRule

func init() {
	rules = map[token.Token]parseRule{
		token.IMPORT:   {importExpr, nil, PrecNone},
		token.LPAREN:   {grouping, call, PrecCall},
		token.LBRACK:   {tableArrayLiteral, index, PrecCall},
		token.LBRACE:   {tableLiteral, metatableApply, PrecCall},
		token.DOT:      {nil, dot, PrecCall},
		token.COLONCOLON: {nil, metaDot, PrecCall},
		token.MINUS:    {unary, binary, PrecTerm},
		token.PLUS:     {nil, binary, PrecTerm},
		token.SLASH:    {nil, binary, PrecFactor},
		token.SLASHSLASH: {nil, binary, PrecFactor},
		token.STAR:     {unary, binary, PrecFactor}, // unary STAR = vararg expand marker
		token.STARSTAR: {nil, binary, PrecUnary},    // right-assoc power, bound tighter than unary below
		token.PERCENT:  {nil, binary, PrecFactor},
		token.POUND:    {unary, nil, PrecUnary},
		token.TILDE:    {unary, nil, PrecUnary},
		token.AMP:      {nil, binary, PrecFactor},
		token.PIPE:     {nil, binary, PrecTerm},
		token.CARET:    {nil, binary, PrecTerm},
		token.LTLT:     {nil, binary, PrecTerm},
		token.GTGT:     {nil, binary, PrecTerm},
		token.BANG:     {unary, nil, PrecUnary},
		token.NOT:      {unary, notIn, PrecComparison},
		token.BANGEQ:   {nil, binary, PrecEquality},
		token.EQEQ:     {nil, binary, PrecEquality},
		token.LT:       {nil, binary, PrecComparison},
		token.GT:       {nil, binary, PrecComparison},
		token.LE:       {nil, binary, PrecComparison},
		token.GE:       {nil, binary, PrecComparison},
		token.IN:       {nil, inOp, PrecComparison},
		token.DOTDOT:   {nil, rangeOp, PrecRange},
		token.AND:      {nil, and_, PrecAnd},
		token.OR:       {nil, or_, PrecOr},
		token.QUESTION: {nil, ternary, PrecTernary},
		token.IDENT:    {variable, nil, PrecNone},
		token.INT:      {number, nil, PrecNone},
		token.FLOAT:    {number, nil, PrecNone},
		token.STRING:   {str, nil, PrecNone},
		token.FSTRING:  {fstringExpr, nil, PrecNone},
		token.TRUE:     {literal, nil, PrecNone},
		token.FALSE:    {literal, nil, PrecNone},
		token.NIL:      {literal, nil, PrecNone},
		token.FN:       {funcLiteral, nil, PrecNone},
		token.YIELD:    {yieldExpr, nil, PrecNone},
	}
}

func getRule(t token.Token) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{}
}

func (s *Session) expression() {
	s.parsePrecedence(PrecAssignment)
}

func (s *Session) parsePrecedence(prec Precedence) {
	s.advance()
	rule := getRule(s.prevTok)
	if rule.prefix == nil {
		s.errorAtPrevious("expected expression")
		return
	}
	canAssign := prec <= PrecAssignment
	rule.prefix(s, canAssign)

	for prec <= getRule(s.curTok).precedence {
		s.advance()
		infix := getRule(s.prevTok).infix
		if infix == nil {
			s.errorAtPrevious("unexpected token in expression")
			return
		}
		infix(s, canAssign)
	}

	if canAssign && s.match(token.EQ) {
		s.errorAtPrevious("invalid assignment target")
	}
}

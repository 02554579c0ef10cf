// Package parser compiles the pipe syntax used on the command line into
// an operation pipeline:
//
//	filter amount > 15 | group name agg sum(amount) as total | sort total desc | limit 3
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/razeghi71/dqserve/ast"
	"github.com/razeghi71/dqserve/lexer"
)

// Parser converts a token stream into a pipeline.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// Parse parses a full pipeline string. An empty string is an empty
// pipeline.
func Parse(input string) (ast.Pipeline, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	p := &Parser{tokens: tokens, pos: 0}
	return p.parsePipeline()
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, fmt.Errorf("expected %s, got %s (%q) at position %d", tt, tok.Type, tok.Val, tok.Pos)
	}
	return tok, nil
}

func (p *Parser) parsePipeline() (ast.Pipeline, error) {
	ops := ast.Pipeline{}
	if p.peek().Type == lexer.TokenEOF {
		return ops, nil
	}
	for {
		op, err := p.parseOp()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if p.peek().Type != lexer.TokenPipe {
			break
		}
		p.advance() // consume |
	}

	if p.peek().Type != lexer.TokenEOF {
		return nil, fmt.Errorf("unexpected token %s (%q) at position %d", p.peek().Type, p.peek().Val, p.peek().Pos)
	}
	return ops, nil
}

func (p *Parser) parseOp() (ast.Op, error) {
	tok := p.peek()
	if tok.Type != lexer.TokenIdent {
		return nil, fmt.Errorf("expected operation name, got %s (%q) at position %d", tok.Type, tok.Val, tok.Pos)
	}

	switch strings.ToLower(tok.Val) {
	case "select":
		return p.parseSelect()
	case "filter":
		return p.parseFilter()
	case "group":
		return p.parseGroup()
	case "sort":
		return p.parseSort()
	case "limit":
		return p.parseLimit()
	case "transform":
		return p.parseTransform()
	default:
		return nil, fmt.Errorf("unknown operation %q at position %d", tok.Val, tok.Pos)
	}
}

func (p *Parser) parseSelect() (ast.Op, error) {
	p.advance() // consume "select"
	cols := p.parseColumnList()
	if len(cols) == 0 {
		return nil, fmt.Errorf("select: expected at least one column")
	}
	return &ast.Select{Columns: cols}, nil
}

var filterOperators = map[lexer.TokenType]ast.FilterOperator{
	lexer.TokenEq:       ast.Eq,
	lexer.TokenNeq:      ast.Ne,
	lexer.TokenGt:       ast.Gt,
	lexer.TokenGte:      ast.Ge,
	lexer.TokenLt:       ast.Lt,
	lexer.TokenLte:      ast.Le,
	lexer.TokenContains: ast.Contains,
}

func (p *Parser) parseFilter() (ast.Op, error) {
	p.advance() // consume "filter"
	col, err := p.parseColumn()
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	opTok := p.advance()
	op, ok := filterOperators[opTok.Type]
	if !ok {
		return nil, fmt.Errorf("filter: expected comparison operator, got %s (%q) at position %d", opTok.Type, opTok.Val, opTok.Pos)
	}

	valTok := p.advance()
	switch valTok.Type {
	case lexer.TokenString, lexer.TokenInt, lexer.TokenFloat, lexer.TokenIdent,
		lexer.TokenBacktickIdent, lexer.TokenTrue, lexer.TokenFalse:
	default:
		return nil, fmt.Errorf("filter: expected value, got %s (%q) at position %d", valTok.Type, valTok.Val, valTok.Pos)
	}
	return &ast.Filter{Column: col, Operator: op, Value: valTok.Val}, nil
}

func (p *Parser) parseGroup() (ast.Op, error) {
	p.advance() // consume "group"
	cols := p.parseColumnList()
	if len(cols) == 0 {
		return nil, fmt.Errorf("group: expected at least one column")
	}
	if _, err := p.expect(lexer.TokenAgg); err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}

	var aggs []ast.Aggregation
	for {
		agg, err := p.parseAggregation()
		if err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
		aggs = append(aggs, agg)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}
	return &ast.GroupBy{Columns: cols, Aggregations: aggs}, nil
}

var aggFuncs = map[string]ast.AggFunc{
	"sum":   ast.Sum,
	"avg":   ast.Avg,
	"mean":  ast.Avg,
	"min":   ast.Min,
	"max":   ast.Max,
	"count": ast.Count,
}

// parseAggregation parses "func(column) [as alias]".
func (p *Parser) parseAggregation() (ast.Aggregation, error) {
	fnTok := p.advance()
	fn, ok := aggFuncs[strings.ToLower(fnTok.Val)]
	if fnTok.Type != lexer.TokenIdent || !ok {
		return ast.Aggregation{}, fmt.Errorf("expected aggregation function (sum, avg, min, max, count), got %q at position %d", fnTok.Val, fnTok.Pos)
	}
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return ast.Aggregation{}, err
	}
	col, err := p.parseColumn()
	if err != nil {
		return ast.Aggregation{}, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return ast.Aggregation{}, err
	}

	agg := ast.Aggregation{Function: fn, Column: col}
	if p.peek().Type == lexer.TokenAs {
		p.advance() // consume "as"
		alias, err := p.parseColumn()
		if err != nil {
			return ast.Aggregation{}, fmt.Errorf("alias: %w", err)
		}
		agg.Alias = ast.Alias(alias)
	}
	return agg, nil
}

func (p *Parser) parseSort() (ast.Op, error) {
	p.advance() // consume "sort"
	col, err := p.parseColumn()
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	asc := true
	switch p.peek().Type {
	case lexer.TokenAsc:
		p.advance()
	case lexer.TokenDesc:
		p.advance()
		asc = false
	}
	return &ast.Sort{Column: col, Ascending: asc}, nil
}

func (p *Parser) parseLimit() (ast.Op, error) {
	p.advance() // consume "limit"
	n, err := p.parseInt()
	if err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("limit: count must be non-negative, got %d", n)
	}
	return &ast.Limit{Count: n}, nil
}

var transformOperations = map[lexer.TokenType]ast.TransformOperation{
	lexer.TokenStar:  ast.Multiply,
	lexer.TokenSlash: ast.Divide,
	lexer.TokenPlus:  ast.Add,
	lexer.TokenMinus: ast.Subtract,
}

// parseTransform parses "transform column op number [as alias]". Without an
// alias the column is replaced.
func (p *Parser) parseTransform() (ast.Op, error) {
	p.advance() // consume "transform"
	col, err := p.parseColumn()
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	opTok := p.advance()
	op, ok := transformOperations[opTok.Type]
	if !ok {
		return nil, fmt.Errorf("transform: expected one of * / + -, got %s (%q) at position %d", opTok.Type, opTok.Val, opTok.Pos)
	}

	numTok := p.advance()
	if numTok.Type != lexer.TokenInt && numTok.Type != lexer.TokenFloat {
		return nil, fmt.Errorf("transform: expected number, got %s (%q) at position %d", numTok.Type, numTok.Val, numTok.Pos)
	}
	value, err := strconv.ParseFloat(numTok.Val, 64)
	if err != nil {
		return nil, fmt.Errorf("transform: invalid number %q: %w", numTok.Val, err)
	}

	alias := col
	if p.peek().Type == lexer.TokenAs {
		p.advance() // consume "as"
		if alias, err = p.parseColumn(); err != nil {
			return nil, fmt.Errorf("transform: alias: %w", err)
		}
	}
	return &ast.Transform{Column: col, Operation: op, Value: value, Alias: alias}, nil
}

// --- Helpers ---

func (p *Parser) parseInt() (int, error) {
	tok := p.advance()
	if tok.Type != lexer.TokenInt {
		return 0, fmt.Errorf("expected integer, got %s (%q) at position %d", tok.Type, tok.Val, tok.Pos)
	}
	n, err := strconv.Atoi(tok.Val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", tok.Val, err)
	}
	return n, nil
}

func isColumnToken(tt lexer.TokenType) bool {
	return tt == lexer.TokenIdent || tt == lexer.TokenBacktickIdent
}

func (p *Parser) parseColumn() (string, error) {
	tok := p.advance()
	if !isColumnToken(tok.Type) {
		return "", fmt.Errorf("expected column name, got %s (%q) at position %d", tok.Type, tok.Val, tok.Pos)
	}
	return tok.Val, nil
}

// parseColumnList reads column names, optionally separated by commas,
// until something that isn't a column name.
func (p *Parser) parseColumnList() []string {
	var cols []string
	for isColumnToken(p.peek().Type) {
		cols = append(cols, p.advance().Val)
		if p.peek().Type == lexer.TokenComma {
			p.advance()
		}
	}
	return cols
}

package anthropic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/vianexus/agent-sdk-go/llm"
)

// Some upstream paths occasionally return tool calls flattened into a text
// block as a stringified block literal, possibly surrounded by prose:
//
//	I'll fetch that now: [ToolUseBlock(id='t1', input={'symbol': 'V'}, name='fetch', type='tool_use')]
//
// RecoverToolUseBlocks scans for that shape anywhere in the text and parses
// the literal back into real tool_use content blocks, keeping surrounding
// prose as text blocks. A JSON parser alone cannot handle the literal because
// keys and string values are single-quoted, so a small recursive-descent
// parser over the literal syntax is used instead. Returns false when the text
// contains no parseable block literal; callers then keep the text as-is.
func RecoverToolUseBlocks(text string) ([]*llm.Content, bool) {
	const marker = "ToolUseBlock("
	idx := strings.Index(text, marker)
	if idx < 0 {
		return nil, false
	}

	// The literal is either a bracketed block list or a bare block. Back up
	// over whitespace to see whether a '[' opens a list.
	start := idx
	bracketed := false
	for i := idx - 1; i >= 0; i-- {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' {
			continue
		}
		if c == '[' {
			bracketed = true
			start = i
		}
		break
	}

	p := &literalParser{input: text, pos: start}
	blocks, err := p.parseBlocks(bracketed)
	if err != nil {
		return nil, false
	}
	recovered, ok := blockContents(blocks)
	if !ok {
		return nil, false
	}

	var contents []*llm.Content
	if lead := strings.TrimSpace(text[:start]); lead != "" {
		contents = append(contents, &llm.Content{Type: llm.ContentTypeText, Text: lead})
	}
	contents = append(contents, recovered...)
	if trail := strings.TrimSpace(text[p.pos:]); trail != "" {
		contents = append(contents, &llm.Content{Type: llm.ContentTypeText, Text: trail})
	}
	return contents, true
}

func blockContents(blocks []map[string]any) ([]*llm.Content, bool) {
	var contents []*llm.Content
	for _, block := range blocks {
		name, _ := block["name"].(string)
		if name == "" {
			return nil, false
		}
		if typ, ok := block["type"].(string); ok && typ != "tool_use" {
			return nil, false
		}
		id, _ := block["id"].(string)
		input := block["input"]
		if input == nil {
			input = map[string]any{}
		}
		rawInput, err := json.Marshal(input)
		if err != nil {
			return nil, false
		}
		contents = append(contents, &llm.Content{
			Type:  llm.ContentTypeToolUse,
			ID:    id,
			Name:  name,
			Input: rawInput,
		})
	}
	return contents, len(contents) > 0
}

type literalParser struct {
	input string
	pos   int
}

// parseBlocks parses "ToolUseBlock(...), ToolUseBlock(...)" into one field
// map per block, with surrounding brackets when bracketed. Parsing stops at
// the end of the literal; anything after it is the caller's concern.
func (p *literalParser) parseBlocks(bracketed bool) ([]map[string]any, error) {
	if bracketed {
		if err := p.expect('['); err != nil {
			return nil, err
		}
	}
	var blocks []map[string]any
	for {
		p.skipSpace()
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
		save := p.pos
		if p.consume(',') {
			p.skipSpace()
			if strings.HasPrefix(p.input[p.pos:], "ToolUseBlock(") {
				continue
			}
			p.pos = save
		}
		break
	}
	if bracketed {
		if err := p.expect(']'); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

func (p *literalParser) parseBlock() (map[string]any, error) {
	const marker = "ToolUseBlock("
	if !strings.HasPrefix(p.input[p.pos:], marker) {
		return nil, fmt.Errorf("expected ToolUseBlock at offset %d", p.pos)
	}
	p.pos += len(marker)
	fields := map[string]any{}
	for {
		p.skipSpace()
		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		fields[key] = value
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *literalParser) parseValue() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch c := p.input[p.pos]; {
	case c == '\'' || c == '"':
		return p.parseString()
	case c == '{':
		return p.parseDict()
	case c == '[':
		return p.parseList()
	case c == '-' || unicode.IsDigit(rune(c)):
		return p.parseNumber()
	default:
		ident, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		switch ident {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected literal %q", ident)
	}
}

func (p *literalParser) parseDict() (map[string]any, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	dict := map[string]any{}
	p.skipSpace()
	if p.consume('}') {
		return dict, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		dict[key] = value
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		break
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return dict, nil
}

func (p *literalParser) parseList() ([]any, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var list []any
	p.skipSpace()
	if p.consume(']') {
		return list, nil
	}
	for {
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, value)
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		break
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *literalParser) parseString() (string, error) {
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("unexpected end of input")
	}
	quote := p.input[p.pos]
	if quote != '\'' && quote != '"' {
		return "", fmt.Errorf("expected quote at offset %d", p.pos)
	}
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", fmt.Errorf("unterminated escape")
			}
			switch esc := p.input[p.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(esc)
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *literalParser) parseNumber() (any, error) {
	start := p.pos
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if unicode.IsDigit(rune(c)) {
			p.pos++
		} else if c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			if c == '.' || c == 'e' || c == 'E' {
				isFloat = true
			}
			p.pos++
		} else {
			break
		}
	}
	token := p.input[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (p *literalParser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := rune(p.input[p.pos])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			p.pos++
		} else {
			break
		}
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at offset %d", start)
	}
	return p.input[start:p.pos], nil
}

func (p *literalParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *literalParser) consume(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

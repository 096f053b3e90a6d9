// Package entities parses the key/value entity text embedded in BSP files.
package entities

import (
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ErrSyntax is the cause of every parse error.
var ErrSyntax = errors.New("entity syntax error")

// Entity is one { "key" "value" ... } record. Later duplicate keys win.
type Entity map[string]string

// Tokenizer splits entity text into braces, quoted strings and bare words.
type Tokenizer struct {
	src string
	pos int
}

func NewTokenizer(src string) *Tokenizer {
	// the lump is NUL terminated
	if i := strings.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return &Tokenizer{src: src}
}

func (t *Tokenizer) skipWhite() bool {
	for {
		for t.pos < len(t.src) && t.src[t.pos] <= ' ' {
			t.pos++
		}
		if t.pos >= len(t.src) {
			return false
		}
		if !strings.HasPrefix(t.src[t.pos:], "//") {
			return true
		}
		for t.pos < len(t.src) && t.src[t.pos] != '\n' {
			t.pos++
		}
	}
}

// Next returns the next token or io.EOF.
func (t *Tokenizer) Next() (string, error) {
	if !t.skipWhite() {
		return "", io.EOF
	}

	c := t.src[t.pos]
	switch c {
	case '{', '}':
		t.pos++
		return string(c), nil

	case '"':
		t.pos++
		var sb strings.Builder
		for t.pos < len(t.src) {
			c = t.src[t.pos]
			t.pos++
			if c == '\\' && t.pos < len(t.src) && t.src[t.pos] == '"' {
				sb.WriteByte('"')
				t.pos++
				continue
			}
			if c == '"' {
				return sb.String(), nil
			}
			sb.WriteByte(c)
		}
		return "", errors.Wrap(ErrSyntax, "unterminated quoted string")
	}

	start := t.pos
	for t.pos < len(t.src) {
		c = t.src[t.pos]
		if c <= ' ' || c == '{' || c == '}' {
			break
		}
		t.pos++
	}
	return t.src[start:t.pos], nil
}

// Parse reads every entity in src. On malformed input it returns the entities
// completed so far together with an error wrapping ErrSyntax.
func Parse(src string) ([]Entity, error) {
	var ents []Entity
	tok := NewTokenizer(src)

	for {
		token, err := tok.Next()
		if err == io.EOF {
			return ents, nil
		}
		if err != nil {
			return ents, errors.Wrapf(err, "entity %d", len(ents))
		}
		if token != "{" {
			return ents, errors.Wrapf(ErrSyntax, "entity %d: expected '{', got %q", len(ents), token)
		}

		ent, err := parseEntity(tok)
		if err != nil {
			return ents, errors.Wrapf(err, "entity %d", len(ents))
		}
		ents = append(ents, ent)
	}
}

func parseEntity(tok *Tokenizer) (Entity, error) {
	ent := make(Entity)
	for {
		key, err := tok.Next()
		if err == io.EOF {
			return nil, errors.Wrap(ErrSyntax, "unexpected end of file")
		}
		if err != nil {
			return nil, err
		}
		if key == "}" {
			return ent, nil
		}

		value, err := tok.Next()
		if err == io.EOF {
			return nil, errors.Wrap(ErrSyntax, "unexpected end of file")
		}
		if err != nil {
			return nil, err
		}
		if value == "}" {
			return nil, errors.Wrapf(ErrSyntax, "unexpected '}' without data after %q", key)
		}

		ent[key] = value
	}
}

// WadNames splits a world-spawn "wad" value into archive file names without directories.
func WadNames(world Entity) []string {
	var names []string
	for _, part := range strings.Split(world["wad"], ";") {
		if part == "" {
			continue
		}
		if i := strings.LastIndexAny(part, `/\`); i >= 0 {
			part = part[i+1:]
		}
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// ModelOrigin returns the submodel referenced as "*N" by the entity's model key
// and its parsed origin. ok is false when either is missing or malformed.
func (e Entity) ModelOrigin() (model int, origin mgl32.Vec3, ok bool) {
	ref := e["model"]
	if !strings.HasPrefix(ref, "*") {
		return 0, origin, false
	}

	model, err := strconv.Atoi(ref[1:])
	if err != nil {
		return 0, origin, false
	}

	fields := strings.Fields(e["origin"])
	if len(fields) < 3 {
		return 0, origin, false
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return 0, origin, false
		}
		origin[i] = float32(f)
	}

	return model, origin, true
}

// ClassName returns the entity's classname.
func (e Entity) ClassName() string {
	return e["classname"]
}

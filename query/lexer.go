/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokParam
	tokNumber
	tokString
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// is reports whether t is the keyword or symbol s, ignoring case.
func (t token) is(s string) bool {
	return (t.kind == tokIdent || t.kind == tokSymbol) && strings.EqualFold(t.text, s)
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isIdentStart(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		case r == ':':
			start := i
			i++
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			if i == start+1 {
				return nil, &SyntaxError{Query: src, Pos: start, Msg: "parameter name expected after ':'"}
			}
			toks = append(toks, token{tokParam, src[start+1 : i], start})
		case r >= '0' && r <= '9':
			start := i
			dot := false
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' && !dot) {
				if src[i] == '.' {
					dot = true
				}
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case r == '\'':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(src) {
				if src[i] == '\'' {
					if i+1 < len(src) && src[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(src[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Query: src, Pos: start, Msg: "unterminated string literal"}
			}
			toks = append(toks, token{tokString, b.String(), start})
		default:
			start := i
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch two {
			case "<>", "!=", "<=", ">=":
				toks = append(toks, token{tokSymbol, two, start})
				i += 2
				continue
			}
			if strings.ContainsRune("(),.=<>+-*/", r) {
				toks = append(toks, token{tokSymbol, string(r), start})
				i += size
				continue
			}
			return nil, &SyntaxError{Query: src, Pos: start, Msg: "unexpected character " + string(r)}
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

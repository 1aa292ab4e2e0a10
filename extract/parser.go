// Copyright 2025 Neuro-Expert Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MasterVVK/neuro-expert/core"
)

// NotFoundValue is the canonical answer when the document set does not
// contain the requested information.
const NotFoundValue = "Информация не найдена"

// Phrases models use to say the information is absent
var notFoundPhrases = []string{
	"информация не найдена",
	"данные не найдены",
	"не удалось найти",
	"отсутствует информация",
	"нет данных",
	"не указан",
	"не определен",
	"информация отсутствует",
}

// Hedging markers that lower plain-text confidence
var uncertaintyPhrases = []string{
	"возможно", "вероятно", "может быть", "предположительно",
	"не ясно", "не уверен", "не определено", "примерно",
	"около", "приблизительно", "предполагается",
}

var (
	resultPrefixRe = regexp.MustCompile(`(?i)(?:результат|ответ|значение):\s*(.+)`)

	jsonBlockRes = []*regexp.Regexp{
		regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```"),
		regexp.MustCompile("(?s)```\\s*(.*?)\\s*```"),
		regexp.MustCompile(`\{[^{}]*\}`),
		regexp.MustCompile(`(?s)\{.*?\}`),
	}

	structuredLineRes = []*regexp.Regexp{
		regexp.MustCompile(`^\d+\.\s*(.+)$`),
		regexp.MustCompile(`^-\s*(.+)$`),
		regexp.MustCompile(`^•\s*(.+)$`),
		regexp.MustCompile(`^\*\s*(.+)$`),
	}
)

// ParseResponse extracts the answer value from a raw model response.
//
// Models answer the same prompt in wildly different shapes, so formats
// are tried from most to least structured: an explicit not-found
// statement, pure JSON, a JSON block inside prose, a "РЕЗУЛЬТАТ:"
// prefix, key-value lines, numbered or bulleted lists, and finally the
// whole response as plain text. Each format carries its own confidence.
func ParseResponse(response, query string) core.ExtractionResult {
	if response == "" {
		return core.ExtractionResult{
			Value:       NotFoundValue,
			Confidence:  0.0,
			Format:      core.FormatEmpty,
			RawResponse: response,
		}
	}

	response = strings.TrimSpace(response)

	if isNotFound(response) {
		return core.ExtractionResult{
			Value:       NotFoundValue,
			Confidence:  0.1,
			Format:      core.FormatNotFound,
			RawResponse: response,
		}
	}

	if result, ok := tryParseJSON(response, query); ok {
		return result
	}
	if result, ok := tryExtractJSONBlock(response, query); ok {
		return result
	}
	if result, ok := tryParseResultPrefix(response); ok {
		return result
	}
	if result, ok := tryParseKeyValue(response, query); ok {
		return result
	}
	if result, ok := tryParseStructured(response, query); ok {
		return result
	}

	return core.ExtractionResult{
		Value:       response,
		Confidence:  plainTextConfidence(response),
		Format:      core.FormatPlainText,
		RawResponse: response,
	}
}

func isNotFound(response string) bool {
	lowered := strings.ToLower(response)
	for _, phrase := range notFoundPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// tryParseJSON treats the whole response as a JSON document.
// A "value" or "result" field wins; otherwise a field matching the
// query, then a sole field, then a single-element array.
func tryParseJSON(response, query string) (core.ExtractionResult, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return core.ExtractionResult{}, false
	}

	switch data := parsed.(type) {
	case map[string]any:
		for _, field := range []string{"value", "result"} {
			if raw, ok := data[field]; ok {
				confidence := 0.9
				if c, ok := jsonNumber(data["confidence"]); ok {
					confidence = c
				}
				return jsonResult(jsonValue(raw), confidence, response), true
			}
		}

		queryLower := strings.ToLower(query)
		for key, raw := range data {
			keyLower := strings.ToLower(key)
			if strings.Contains(queryLower, keyLower) || strings.Contains(keyLower, queryLower) {
				return jsonResult(jsonValue(raw), 0.85, response), true
			}
		}

		if len(data) == 1 {
			for _, raw := range data {
				return jsonResult(jsonValue(raw), 0.8, response), true
			}
		}

	case []any:
		if len(data) == 1 {
			return jsonResult(jsonValue(data[0]), 0.8, response), true
		}
	}

	return core.ExtractionResult{}, false
}

func jsonResult(value string, confidence float64, raw string) core.ExtractionResult {
	return core.ExtractionResult{
		Value:       value,
		Confidence:  confidence,
		Format:      core.FormatJSON,
		RawResponse: raw,
	}
}

// jsonValue renders a decoded JSON value the way the answer should read.
func jsonValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func jsonNumber(raw any) (float64, bool) {
	v, ok := raw.(float64)
	return v, ok
}

// tryExtractJSONBlock looks for JSON embedded in prose, markdown code
// fences first.
func tryExtractJSONBlock(response, query string) (core.ExtractionResult, bool) {
	for _, re := range jsonBlockRes {
		for _, match := range re.FindAllStringSubmatch(response, -1) {
			block := match[0]
			if len(match) > 1 {
				block = match[1]
			}
			if result, ok := tryParseJSON(block, query); ok {
				result.Format = core.FormatJSONBlock
				result.RawResponse = response
				return result, true
			}
		}
	}
	return core.ExtractionResult{}, false
}

func tryParseResultPrefix(response string) (core.ExtractionResult, bool) {
	match := resultPrefixRe.FindStringSubmatch(response)
	if match == nil {
		return core.ExtractionResult{}, false
	}
	return core.ExtractionResult{
		Value:       strings.TrimSpace(match[1]),
		Confidence:  0.9,
		Format:      core.FormatPrefix,
		RawResponse: response,
	}, true
}

// tryParseKeyValue looks for "ключ: значение" lines: an exact query
// match first, then a key sharing words with the query, then a sole
// colon line.
func tryParseKeyValue(response, query string) (core.ExtractionResult, bool) {
	lines := strings.Split(response, "\n")

	exactRe := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(query) + `\s*:\s*(.+)`)
	for _, line := range lines {
		if match := exactRe.FindStringSubmatch(line); match != nil {
			value := strings.TrimSpace(match[1])
			if value != "" && !isNotFound(value) {
				return keyValueResult(value, 0.95, response), true
			}
		}
	}

	queryWords := strings.Fields(strings.ToLower(query))
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" || isNotFound(value) {
			continue
		}
		for _, word := range queryWords {
			if strings.Contains(key, word) {
				return keyValueResult(value, 0.85, response), true
			}
		}
	}

	var colonLines []string
	for _, line := range lines {
		if strings.Contains(line, ":") && strings.TrimSpace(line) != "" {
			colonLines = append(colonLines, line)
		}
	}
	if len(colonLines) == 1 {
		_, value, _ := strings.Cut(colonLines[0], ":")
		value = strings.TrimSpace(value)
		if value != "" && !isNotFound(value) {
			return keyValueResult(value, 0.75, response), true
		}
	}

	return core.ExtractionResult{}, false
}

func keyValueResult(value string, confidence float64, raw string) core.ExtractionResult {
	return core.ExtractionResult{
		Value:       value,
		Confidence:  confidence,
		Format:      core.FormatKeyValue,
		RawResponse: raw,
	}
}

// tryParseStructured collects numbered or bulleted lines that mention
// a query word. Multiple hits are joined with "; ".
func tryParseStructured(response, query string) (core.ExtractionResult, bool) {
	queryWords := strings.Fields(strings.ToLower(query))

	var values []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		for _, re := range structuredLineRes {
			match := re.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			value := strings.TrimSpace(match[1])
			if value == "" || isNotFound(value) {
				break
			}
			valueLower := strings.ToLower(value)
			for _, word := range queryWords {
				if strings.Contains(valueLower, word) {
					values = append(values, value)
					break
				}
			}
			break
		}
	}

	if len(values) == 0 {
		return core.ExtractionResult{}, false
	}

	confidence := 0.85
	if len(values) > 1 {
		confidence = 0.8
	}
	return core.ExtractionResult{
		Value:       strings.Join(values, "; "),
		Confidence:  confidence,
		Format:      core.FormatStructured,
		RawResponse: response,
	}, true
}

// plainTextConfidence starts at 0.7, drops 0.1 per hedging phrase, and
// gains 0.1 for a short direct answer. Clamped to [0.1, 1.0].
func plainTextConfidence(response string) float64 {
	confidence := 0.7
	lowered := strings.ToLower(response)

	hedged := false
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lowered, phrase) {
			confidence -= 0.1
			hedged = true
		}
	}

	if len(response) < 100 && !hedged {
		confidence += 0.1
	}

	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

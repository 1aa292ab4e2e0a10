// Package extract implements the LLM extraction stage: prompt assembly
// with a token-budgeted context, response parsing across the formats
// models actually produce, and an exhaustive full-scan fallback.
package extract

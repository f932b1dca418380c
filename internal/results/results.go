// Package results reads the line-delimited answer files the inference
// runners produce and derives the per-file timing metrics recorded by the
// uploader and the speed analyzer.
package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record is one benchmark question's answer. Only the timing fields are
// interpreted here; generated text stays opaque.
type Record struct {
	QuestionID int      `json:"question_id"`
	Category   string   `json:"category"`
	ModelID    string   `json:"model_id"`
	Choices    []Choice `json:"choices"`
}

type Choice struct {
	WallTime      []float64 `json:"wall_time"`
	DecodingSteps []int     `json:"decoding_steps"`
	NewTokens     []int     `json:"new_tokens"`
	AcceptLengths []float64 `json:"accept_lengths"`
}

// maxLineSize bounds a single answer line; generated text can be long.
const maxLineSize = 16 * 1024 * 1024

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("parse record at line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan results file: %w", err)
	}
	return records, nil
}

// FilterByCategory returns the records whose category matches. An empty
// category selects everything.
func FilterByCategory(records []Record, category string) []Record {
	if category == "" {
		return records
	}
	var out []Record
	for _, r := range records {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// FileStats flattens the per-question timing arrays of the first choice into
// summary metrics, keyed "<prefix>_<metric>".
func FileStats(records []Record, prefix string) map[string]float64 {
	metrics := make(map[string]float64)
	if len(records) == 0 {
		return metrics
	}
	metrics[prefix+"_total_questions"] = float64(len(records))

	var wallTimes, acceptLengths []float64
	var decodingSteps, newTokens []int
	for _, r := range records {
		if len(r.Choices) == 0 {
			continue
		}
		c := r.Choices[0]
		wallTimes = append(wallTimes, c.WallTime...)
		decodingSteps = append(decodingSteps, c.DecodingSteps...)
		newTokens = append(newTokens, c.NewTokens...)
		acceptLengths = append(acceptLengths, c.AcceptLengths...)
	}

	if len(wallTimes) > 0 {
		metrics[prefix+"_avg_wall_time"] = mean(wallTimes)
		metrics[prefix+"_total_wall_time"] = sum(wallTimes)
		metrics[prefix+"_max_wall_time"] = maxOf(wallTimes)
		metrics[prefix+"_min_wall_time"] = minOf(wallTimes)
	}
	if len(decodingSteps) > 0 {
		steps := toFloats(decodingSteps)
		metrics[prefix+"_avg_decoding_steps"] = mean(steps)
		metrics[prefix+"_total_decoding_steps"] = sum(steps)
	}
	if len(newTokens) > 0 {
		tokens := toFloats(newTokens)
		metrics[prefix+"_avg_new_tokens"] = mean(tokens)
		metrics[prefix+"_total_new_tokens"] = sum(tokens)

		if len(wallTimes) == len(newTokens) {
			perSec := make([]float64, len(tokens))
			for i := range tokens {
				if wallTimes[i] > 0 {
					perSec[i] = tokens[i] / wallTimes[i]
				}
			}
			metrics[prefix+"_avg_tokens_per_sec"] = mean(perSec)
			metrics[prefix+"_max_tokens_per_sec"] = maxOf(perSec)
		}
	}
	if len(acceptLengths) > 0 {
		metrics[prefix+"_avg_accept_length"] = mean(acceptLengths)
		metrics[prefix+"_max_accept_length"] = maxOf(acceptLengths)
		metrics[prefix+"_acceptance_rate"] = acceptanceRate(acceptLengths)
	}

	return metrics
}

// Throughput returns total new tokens over total wall time across all
// choices of the given records.
func Throughput(records []Record) (tokensPerSec float64, ok bool) {
	var tokens, seconds float64
	for _, r := range records {
		for _, c := range r.Choices {
			for _, n := range c.NewTokens {
				tokens += float64(n)
			}
			for _, w := range c.WallTime {
				seconds += w
			}
		}
	}
	if seconds <= 0 {
		return 0, false
	}
	return tokens / seconds, true
}

// AcceptLengths collects every accept-length sample across all choices.
func AcceptLengths(records []Record) []float64 {
	var out []float64
	for _, r := range records {
		for _, c := range r.Choices {
			out = append(out, c.AcceptLengths...)
		}
	}
	return out
}

func acceptanceRate(acceptLengths []float64) float64 {
	accepted := 0
	for _, al := range acceptLengths {
		if al > 0 {
			accepted++
		}
	}
	return float64(accepted) / float64(len(acceptLengths))
}

func toFloats(vals []int) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return sum(vals) / float64(len(vals))
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

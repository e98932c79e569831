package inclination

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const separator = ","

// MaxRunLength bounds a single pair's count so a hostile payload cannot make the
// decoder allocate without limit.
const MaxRunLength = 1 << 20

// MaxSamples bounds the decoded series as a whole.
const MaxSamples = 1 << 20

// ErrMalformedPayload is returned when a payload token is not a usable number.
var ErrMalformedPayload = errors.New("malformed inclination payload")

// Pair is one run-length pair: apply Delta Count times.
type Pair struct {
	Count int
	Delta float64
}

// Mode selects how the decoder treats bad tokens.
type Mode int

const (
	// Strict rejects the whole payload on any unusable token.
	Strict Mode = iota
	// Lenient parses bad tokens as NaN, which poisons the running sum for the
	// rest of the pass.
	Lenient
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Decode expands a comma separated (count, delta) payload into absolute
// samples. An empty payload is an empty series.
func Decode(payload string) ([]float64, error) {
	pairs, err := ParsePairs(payload)
	if err != nil {
		return nil, err
	}
	return Expand(pairs), nil
}

// DecodeLenient decodes like Decode but never fails: unparsable tokens become
// NaN, a NaN count contributes nothing and a NaN delta poisons every later sample.
func DecodeLenient(payload string) []float64 {
	tokens := split(payload)
	series := []float64{}
	var last float64
	for i := 0; i < len(tokens)/2; i++ {
		count := runCount(lenientFloat(tokens[2*i]))
		delta := lenientFloat(tokens[2*i+1])
		for j := 0; j < count; j++ {
			if len(series) == MaxSamples {
				return series
			}
			last += delta
			series = append(series, last)
		}
	}
	return series
}

// DecodeMode dispatches to Decode or DecodeLenient.
func DecodeMode(payload string, mode Mode) ([]float64, error) {
	if mode == Lenient {
		return DecodeLenient(payload), nil
	}
	return Decode(payload)
}

// ParsePairs parses a payload into pairs. Every token must be a finite number
// and counts must not exceed MaxRunLength. Counts round down and negative
// counts become zero. A trailing unpaired token is validated and dropped. The
// counts together must not exceed MaxSamples.
func ParsePairs(payload string) ([]Pair, error) {
	tokens := split(payload)
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: token %d %q is not a finite number", ErrMalformedPayload, i, tok)
		}
		values[i] = v
	}

	pairs := make([]Pair, 0, len(values)/2)
	total := 0
	for i := 0; i < len(values)/2; i++ {
		count := values[2*i]
		if count > MaxRunLength {
			return nil, fmt.Errorf("%w: pair %d count %v exceeds %d", ErrMalformedPayload, i, count, MaxRunLength)
		}
		n := runCount(count)
		total += n
		if total > MaxSamples {
			return nil, fmt.Errorf("%w: pair %d takes the series past %d samples", ErrMalformedPayload, i, MaxSamples)
		}
		pairs = append(pairs, Pair{Count: n, Delta: values[2*i+1]})
	}
	return pairs, nil
}

// Expand applies pairs to a running sum that starts at zero. The result is
// cut off at MaxSamples.
func Expand(pairs []Pair) []float64 {
	n := 0
	for _, p := range pairs {
		if p.Count > 0 {
			n += p.Count
		}
		if n >= MaxSamples {
			n = MaxSamples
			break
		}
	}
	series := make([]float64, 0, n)
	var last float64
	for _, p := range pairs {
		for j := 0; j < p.Count; j++ {
			if len(series) == MaxSamples {
				return series
			}
			last += p.Delta
			series = append(series, last)
		}
	}
	return series
}

// Encode turns a series into the run-length payload Decode reverses. The first
// delta is taken from zero.
func Encode(series []float64) string {
	return EncodePairs(Compress(series))
}

// Compress collapses the first differences of series into runs of equal deltas.
func Compress(series []float64) []Pair {
	if len(series) == 0 {
		return nil
	}
	pairs := make([]Pair, 0, 8)
	// prev follows the decoder's running sum, not the input.
	prev := 0.0
	for _, v := range series {
		d := v - prev
		prev += d
		if n := len(pairs); n > 0 && pairs[n-1].Delta == d && pairs[n-1].Count < MaxRunLength {
			pairs[n-1].Count++
			continue
		}
		pairs = append(pairs, Pair{Count: 1, Delta: d})
	}
	return pairs
}

// EncodePairs formats pairs as a flat comma separated list.
func EncodePairs(pairs []Pair) string {
	if len(pairs) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(pairs)*8)
	for i, p := range pairs {
		if i > 0 {
			buf = append(buf, separator...)
		}
		buf = strconv.AppendInt(buf, int64(p.Count), 10)
		buf = append(buf, separator...)
		buf = strconv.AppendFloat(buf, p.Delta, 'g', -1, 64)
	}
	return string(buf)
}

func split(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, separator)
}

// runCount is max(0, floor(count)), capped at MaxRunLength. NaN yields zero.
func runCount(count float64) int {
	if !(count > 0) {
		return 0
	}
	if count > MaxRunLength {
		return MaxRunLength
	}
	return int(math.Floor(count))
}

func lenientFloat(tok string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

package curlfuzz

import (
	"encoding/json"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Mutator turns the original contents of an injection point into a payload.
type Mutator interface {
	Mutate(seed string) string
}

// BuiltinPayloads is the dictionary used when no wordlist or payload directory is configured.
var BuiltinPayloads = []string{
	"'",
	"\"",
	"' OR '1'='1",
	"\" OR \"1\"=\"1",
	"1; DROP TABLE users--",
	"<script>alert(1)</script>",
	"{{7*7}}",
	"${7*7}",
	"../../../../../../etc/passwd",
	"%00",
	"\\",
	"%s%s%s%s%n",
	";id",
	"|id",
	"`id`",
	"$(id)",
	"-1",
	"0",
	"2147483648",
	"null",
	"undefined",
	"NaN",
}

var boundaryNumbers = []json.Number{"0", "-1", "1", "2147483647", "2147483648", "-2147483649", "9223372036854775808", "1e308", "0.0000001"}

// JSONMutator mutates one value of a JSON document per call. Bodies that aren't JSON get a form or plain text mutation.
// Strong mode adds type confusion, oversized values and structural damage to the document itself.
// It is safe for concurrent use.
type JSONMutator struct {
	Strong   bool
	Payloads []string

	mux  sync.Mutex
	rand *rand.Rand
}

// NewJSONMutator returns a JSONMutator drawing from payloads, or BuiltinPayloads when payloads is empty.
func NewJSONMutator(strong bool, payloads []string, seed int64) *JSONMutator {
	if len(payloads) == 0 {
		payloads = BuiltinPayloads
	}
	return &JSONMutator{
		Strong:   strong,
		Payloads: payloads,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Mutate implements Mutator.
func (m *JSONMutator) Mutate(seed string) string {
	m.mux.Lock()
	defer m.mux.Unlock()

	var document interface{}
	decoder := json.NewDecoder(strings.NewReader(seed))
	decoder.UseNumber()
	if strings.TrimSpace(seed) == "" || decoder.Decode(&document) != nil {
		return m.mutateText(seed)
	}

	encoded, err := json.Marshal(m.mutateValue(document))
	if err != nil {
		return m.mutateText(seed)
	}

	if m.Strong && m.rand.Intn(4) == 0 {
		return m.damage(string(encoded))
	}
	return string(encoded)
}

func (m *JSONMutator) payload() string {
	return m.Payloads[m.rand.Intn(len(m.Payloads))]
}

func (m *JSONMutator) mutateValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		mutated := make(map[string]interface{}, len(v)+1)
		for key, item := range v {
			mutated[key] = item
		}
		if len(v) == 0 || (m.Strong && m.rand.Intn(8) == 0) {
			mutated[m.payload()] = m.payload()
			return mutated
		}

		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		key := keys[m.rand.Intn(len(keys))]
		if m.Strong && m.rand.Intn(8) == 0 {
			delete(mutated, key)
			return mutated
		}
		mutated[key] = m.mutateValue(v[key])
		return mutated

	case []interface{}:
		if len(v) == 0 {
			return []interface{}{m.payload()}
		}
		mutated := append([]interface{}{}, v...)
		index := m.rand.Intn(len(v))
		mutated[index] = m.mutateValue(v[index])
		return mutated

	default:
		return m.mutateScalar(v)
	}
}

func (m *JSONMutator) mutateScalar(value interface{}) interface{} {
	if m.Strong && m.rand.Intn(3) == 0 {
		return m.confuse()
	}

	switch v := value.(type) {
	case json.Number:
		return boundaryNumbers[m.rand.Intn(len(boundaryNumbers))]
	case bool:
		return !v
	default:
		return m.payload()
	}
}

// confuse returns a value of an arbitrary type, to find handlers that trust the type of a field.
func (m *JSONMutator) confuse() interface{} {
	switch m.rand.Intn(6) {
	case 0:
		return nil
	case 1:
		return m.rand.Intn(2) == 0
	case 2:
		return []interface{}{m.payload()}
	case 3:
		return map[string]interface{}{"$ne": nil}
	case 4:
		return strings.Repeat("A", 1<<(10+m.rand.Intn(7)))
	default:
		return boundaryNumbers[m.rand.Intn(len(boundaryNumbers))]
	}
}

// damage breaks the syntax of an encoded document.
func (m *JSONMutator) damage(encoded string) string {
	if encoded == "" {
		return m.payload()
	}

	position := m.rand.Intn(len(encoded))
	switch m.rand.Intn(4) {
	case 0:
		return encoded[:position]
	case 1:
		return encoded + encoded[position:]
	case 2:
		return encoded[:position] + string(rune(m.rand.Intn(256))) + encoded[position:]
	default:
		return strings.Repeat("[", 1<<(8+m.rand.Intn(6))) + encoded
	}
}

// mutateText handles form encoded and plain bodies.
func (m *JSONMutator) mutateText(seed string) string {
	if values, err := url.ParseQuery(seed); err == nil && strings.Contains(seed, "=") && len(values) > 0 {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		values.Set(keys[m.rand.Intn(len(keys))], m.payload())
		return values.Encode()
	}

	if m.Strong && seed != "" && m.rand.Intn(2) == 0 {
		return m.damage(seed)
	}
	if seed != "" && m.rand.Intn(2) == 0 {
		return seed + m.payload()
	}
	return m.payload()
}

package space

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Configuration is one assignment of raw values to every parameter of a
// Space, together with its encoded array. Configurations are immutable.
type Configuration struct {
	names  []string
	values map[string]interface{}
	array  []float64
	index  IndexMap
	key    string
}

// Get returns the raw value of the named parameter.
func (c *Configuration) Get(name string) (interface{}, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Names returns the parameter names in space order.
func (c *Configuration) Names() []string {
	return append([]string(nil), c.names...)
}

// Values returns a copy of the name to raw value mapping.
func (c *Configuration) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Array returns a copy of the encoded representation.
func (c *Configuration) Array() []float64 {
	return append([]float64(nil), c.array...)
}

// Key is a canonical string of the raw values. Two configurations of the
// same space have equal keys exactly when all their raw values are equal.
func (c *Configuration) Key() string {
	return c.key
}

// Equal reports raw-domain equality.
func (c *Configuration) Equal(o *Configuration) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.key == o.key
}

// String implements fmt.Stringer.
func (c *Configuration) String() string {
	return "{" + c.key + "}"
}

// MarshalJSON encodes the raw values as a JSON object.
func (c *Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}

func configurationKey(names []string, values map[string]interface{}) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		switch v := values[name].(type) {
		case float64:
			if v == 0 {
				v = 0 // -0
			}
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case bool:
			b.WriteString(strconv.FormatBool(v))
		case string:
			b.WriteString(strconv.Quote(v))
		}
	}
	return b.String()
}

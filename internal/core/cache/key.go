package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Key builds the cache key for endpoint and payload under namespace.
//
// The payload is encoded with sorted field names and every name and value
// length-prefixed, so distinct payloads can never encode to the same bytes.
// The encoding is hashed with 128-bit xxh3.
func Key(namespace, endpoint string, payload map[string]string) string {
	h := xxh3.Hash128([]byte(canonical(endpoint, payload)))
	return fmt.Sprintf("%s%s_%016x%016x", namespace, endpoint, h.Hi, h.Lo)
}

func canonical(endpoint string, payload map[string]string) string {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	writeField(&b, endpoint)
	b.WriteString(strconv.Itoa(len(names)))
	b.WriteByte('#')
	for _, name := range names {
		writeField(&b, name)
		writeField(&b, payload[name])
	}
	return b.String()
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

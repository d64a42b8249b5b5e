package redis

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// buildHashFields flattens an item into hash fields for HSET. Metadata
// values are stored in canonical text form; the kind is recovered on read
// by shape (number, "true"/"false", otherwise string).
func buildHashFields(item store.Item) map[string]string {
	m := make(map[string]string, 2+item.Meta.Len())
	m[fieldContent] = item.Content
	m[fieldVector] = vectorToBytes(item.Vector)
	for _, f := range item.Meta.Fields() {
		if f.Key == fieldContent || f.Key == fieldVector {
			continue
		}
		m[f.Key] = f.Value.String()
	}
	return m
}

// parseKNNResult converts a RESP2 FT.SEARCH reply into hits.
// Layout is 2-stride: [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, keyPrefix string) ([]store.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]store.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		hits = append(hits, parseHit(strings.TrimPrefix(key, keyPrefix), parseFieldPairs(fields)))
	}
	return hits, nil
}

func parseHit(id string, fields map[string]string) store.Hit {
	hit := store.Hit{ID: id}
	for k, v := range fields {
		switch k {
		case fieldContent:
			hit.Content = v
		case fieldVector:
			hit.Vector = bytesToVector(v)
		case scoreField:
			if d, err := strconv.ParseFloat(v, 64); err == nil {
				hit.Distance = d
			}
		default:
			hit.Meta.Set(k, parseMetaValue(v))
		}
	}
	return hit
}

// parseMetaValue recovers a metadata value from its stored text form.
func parseMetaValue(v string) metadata.Value {
	switch v {
	case "true":
		return metadata.Bool(true)
	case "false":
		return metadata.Bool(false)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return metadata.Number(f)
	}
	return metadata.String(v)
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

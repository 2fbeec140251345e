// Package example encodes tagged sentences as tensorflow.SequenceExample
// protocol buffers without depending on generated TensorFlow code.
//
// The encoded message has a context feature "length" (int64) and two feature
// lists, "labels" and "tokens", each holding one bytes feature per position.
package example

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Feature names used in the encoded record.
const (
	FeatureLength = "length"
	FeatureTokens = "tokens"
	FeatureLabels = "labels"
)

var (
	// ErrLengthMismatch is returned when tokens and labels differ in length.
	ErrLengthMismatch = errors.New("token and label sequences differ in length")
	// ErrMalformedRecord is returned by Parse for bytes that do not decode to
	// a well-formed example.
	ErrMalformedRecord = errors.New("malformed sequence example")
)

// Field numbers from tensorflow/core/example/{example,feature}.proto.
const (
	seqExampleContext      protowire.Number = 1
	seqExampleFeatureLists protowire.Number = 2
	mapKey                 protowire.Number = 1
	mapValue               protowire.Number = 2
	featuresFeature        protowire.Number = 1
	featureListsList       protowire.Number = 1
	featureListFeature     protowire.Number = 1
	featureBytesList       protowire.Number = 1
	featureInt64List       protowire.Number = 3
	listValue              protowire.Number = 1
)

// Example is the decoded form of a record.
type Example struct {
	Length int64
	Tokens []string
	Labels []string
}

// Build encodes tokens and labels into a serialized SequenceExample.
func Build(tokens, labels []string) ([]byte, error) {
	if len(tokens) != len(labels) {
		return nil, fmt.Errorf("%w: %d tokens, %d labels", ErrLengthMismatch, len(tokens), len(labels))
	}

	var context []byte
	context = appendMapEntry(context, featuresFeature, FeatureLength, int64Feature(int64(len(tokens))))

	lists := map[string][]byte{
		FeatureTokens: bytesFeatureList(tokens),
		FeatureLabels: bytesFeatureList(labels),
	}
	keys := make([]string, 0, len(lists))
	for k := range lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var featureLists []byte
	for _, k := range keys {
		featureLists = appendMapEntry(featureLists, featureListsList, k, lists[k])
	}

	out := make([]byte, 0, len(context)+len(featureLists)+8)
	out = protowire.AppendTag(out, seqExampleContext, protowire.BytesType)
	out = protowire.AppendBytes(out, context)
	out = protowire.AppendTag(out, seqExampleFeatureLists, protowire.BytesType)
	out = protowire.AppendBytes(out, featureLists)

	return out, nil
}

// Parse decodes a record produced by Build. Unknown fields and features are
// ignored.
func Parse(data []byte) (Example, error) {
	var ex Example
	var haveLength bool

	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case seqExampleContext:
			return walkMap(v, featuresFeature, func(key string, feature []byte) error {
				if key != FeatureLength {
					return nil
				}
				vals, err := parseInt64Feature(feature)
				if err != nil {
					return err
				}
				if len(vals) != 1 {
					return fmt.Errorf("%w: %q has %d values", ErrMalformedRecord, FeatureLength, len(vals))
				}
				ex.Length = vals[0]
				haveLength = true

				return nil
			})
		case seqExampleFeatureLists:
			return walkMap(v, featureListsList, func(key string, list []byte) error {
				var dst *[]string
				switch key {
				case FeatureTokens:
					dst = &ex.Tokens
				case FeatureLabels:
					dst = &ex.Labels
				default:
					return nil
				}

				return parseBytesFeatureList(list, dst)
			})
		}

		return nil
	})
	if err != nil {
		return Example{}, err
	}

	if !haveLength {
		return Example{}, fmt.Errorf("%w: missing %q context feature", ErrMalformedRecord, FeatureLength)
	}
	if int64(len(ex.Tokens)) != ex.Length || int64(len(ex.Labels)) != ex.Length {
		return Example{}, fmt.Errorf("%w: length %d, %d tokens, %d labels",
			ErrLengthMismatch, ex.Length, len(ex.Tokens), len(ex.Labels))
	}

	return ex, nil
}

func int64Feature(v int64) []byte {
	var packed []byte
	packed = protowire.AppendVarint(packed, uint64(v))

	var list []byte
	list = protowire.AppendTag(list, listValue, protowire.BytesType)
	list = protowire.AppendBytes(list, packed)

	var feature []byte
	feature = protowire.AppendTag(feature, featureInt64List, protowire.BytesType)

	return protowire.AppendBytes(feature, list)
}

func bytesFeature(v string) []byte {
	var list []byte
	list = protowire.AppendTag(list, listValue, protowire.BytesType)
	list = protowire.AppendString(list, v)

	var feature []byte
	feature = protowire.AppendTag(feature, featureBytesList, protowire.BytesType)

	return protowire.AppendBytes(feature, list)
}

func bytesFeatureList(values []string) []byte {
	var out []byte
	for _, v := range values {
		out = protowire.AppendTag(out, featureListFeature, protowire.BytesType)
		out = protowire.AppendBytes(out, bytesFeature(v))
	}

	return out
}

func appendMapEntry(b []byte, field protowire.Number, key string, value []byte) []byte {
	var entry []byte
	entry = protowire.AppendTag(entry, mapKey, protowire.BytesType)
	entry = protowire.AppendString(entry, key)
	entry = protowire.AppendTag(entry, mapValue, protowire.BytesType)
	entry = protowire.AppendBytes(entry, value)

	b = protowire.AppendTag(b, field, protowire.BytesType)

	return protowire.AppendBytes(b, entry)
}

// walk calls fn for every top-level field in b. For BytesType fields v holds
// the payload; for VarintType fields x holds the value.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(m))
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[m:]
		case protowire.VarintType:
			x, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(m))
			}
			if err := fn(num, typ, nil, x); err != nil {
				return err
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}

	return nil
}

// walkMap iterates map<string, message> entries stored under field.
func walkMap(b []byte, field protowire.Number, fn func(key string, value []byte) error) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, entry []byte, _ uint64) error {
		if num != field || typ != protowire.BytesType {
			return nil
		}

		var key string
		var value []byte
		err := walk(entry, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
			if typ != protowire.BytesType {
				return nil
			}
			switch num {
			case mapKey:
				key = string(v)
			case mapValue:
				value = v
			}

			return nil
		})
		if err != nil {
			return err
		}

		return fn(key, value)
	})
}

func parseInt64Feature(feature []byte) ([]int64, error) {
	var out []int64
	err := walk(feature, func(num protowire.Number, typ protowire.Type, list []byte, _ uint64) error {
		if num != featureInt64List || typ != protowire.BytesType {
			return nil
		}

		return walk(list, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
			if num != listValue {
				return nil
			}
			switch typ {
			case protowire.VarintType:
				out = append(out, int64(x))
			case protowire.BytesType:
				for len(v) > 0 {
					x, n := protowire.ConsumeVarint(v)
					if n < 0 {
						return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
					}
					out = append(out, int64(x))
					v = v[n:]
				}
			}

			return nil
		})
	})

	return out, err
}

func parseBytesFeatureList(list []byte, dst *[]string) error {
	return walk(list, func(num protowire.Number, typ protowire.Type, feature []byte, _ uint64) error {
		if num != featureListFeature || typ != protowire.BytesType {
			return nil
		}

		var values []string
		err := walk(feature, func(num protowire.Number, typ protowire.Type, bl []byte, _ uint64) error {
			if num != featureBytesList || typ != protowire.BytesType {
				return nil
			}

			return walk(bl, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num == listValue && typ == protowire.BytesType {
					values = append(values, string(v))
				}

				return nil
			})
		})
		if err != nil {
			return err
		}
		if len(values) != 1 {
			return fmt.Errorf("%w: feature list entry has %d values", ErrMalformedRecord, len(values))
		}
		*dst = append(*dst, values[0])

		return nil
	})
}

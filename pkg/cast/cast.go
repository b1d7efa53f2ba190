// Package cast coerces dynamically-typed bencode values (decoded as `any`)
// into the concrete Go types a scrape response projection expects.
package cast

import "fmt"

// ToString coerces v to a string. Bencode byte strings decode as Go
// strings already; []byte is accepted too since some decoders return raw
// bytes for binary-looking values.
func ToString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("cast: %T is not a string", v)
	}
}

// ToInt coerces v to an int64, accepting any of the integer kinds a
// bencode decoder might produce a value as.
func ToInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("cast: %T is not an int", v)
	}
}

package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const maxBodySize = 1 << 20

// fields holds the top-level members of a JSON object, undecoded.
type fields map[string]jx.Raw

// readFields decodes the request body as an object. When the object nests
// its attributes under root, the nested object is returned instead.
func readFields(w http.ResponseWriter, r *http.Request, root string) (fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, &bodyError{err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fields{}, nil
	}

	f, err := decodeObject(body)
	if err != nil {
		return nil, &bodyError{err: err}
	}
	if nested, ok := f[root]; ok && root != "" && nested.Type() == jx.Object {
		if f, err = decodeObject(nested); err != nil {
			return nil, &bodyError{err: err}
		}
	}
	return f, nil
}

func decodeObject(data []byte) (fields, error) {
	f := fields{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		f[key] = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// str returns key as text. Numbers and booleans are returned as written.
// Missing keys and null report ok=false.
func (f fields) str(key string) (s string, ok bool, err error) {
	raw, found := f[key]
	if !found {
		return "", false, nil
	}
	switch raw.Type() {
	case jx.String:
		s, err := jx.DecodeBytes(raw).Str()
		if err != nil {
			return "", false, &bodyError{err: errors.Wrapf(err, "field %q", key)}
		}
		return s, true, nil
	case jx.Number, jx.Bool:
		return strings.TrimSpace(string(raw)), true, nil
	case jx.Null:
		return "", false, nil
	default:
		return "", false, &bodyError{err: errors.Errorf("field %q: unexpected %s", key, raw.Type())}
	}
}

// text is str without presence.
func (f fields) text(key string) (string, error) {
	s, _, err := f.str(key)
	return s, err
}

// int64 reads an integer given as a number or a numeric string.
func (f fields) int64(key string) (v int64, ok bool, err error) {
	s, ok, err := f.str(key)
	if err != nil || !ok || s == "" {
		return 0, false, err
	}
	v, err = strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, &bodyError{err: errors.Wrapf(err, "field %q", key)}
	}
	return v, true, nil
}

// boolean reads true/false, also accepted as strings. Missing keys yield def.
func (f fields) boolean(key string, def bool) (bool, error) {
	s, ok, err := f.str(key)
	if err != nil || !ok {
		return def, err
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return def, &bodyError{err: errors.Errorf("field %q: not a boolean", key)}
	}
}

// objects decodes key as an array of objects.
func (f fields) objects(key string) ([]fields, error) {
	raw, ok := f[key]
	if !ok || raw.Type() == jx.Null {
		return nil, nil
	}
	var out []fields
	err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		elem, err := d.Raw()
		if err != nil {
			return err
		}
		obj, err := decodeObject(elem)
		if err != nil {
			return err
		}
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, &bodyError{err: errors.Wrapf(err, "field %q", key)}
	}
	return out, nil
}

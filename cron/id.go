package cron

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TaskID is the opaque identifier handed to callers. It encodes the native
// key of the issuing backend together with the backend name.
type TaskID string

// KeyKind discriminates the shapes of native keys.
type KeyKind string

const (
	KindString    KeyKind = "string"
	KindInt       KeyKind = "int"
	KindComposite KeyKind = "composite"
)

// Key is a backend-native task key: StringKey, IntKey or CompositeKey.
type Key interface {
	Kind() KeyKind
	String() string
	isKey()
}

// StringKey is a native key that is a single opaque string.
type StringKey string

// IntKey is a native key that is a single integer.
type IntKey int64

// CompositeKey is a native key made of a name and a group.
type CompositeKey struct {
	Name  string
	Group string
}

func (StringKey) Kind() KeyKind    { return KindString }
func (IntKey) Kind() KeyKind       { return KindInt }
func (CompositeKey) Kind() KeyKind { return KindComposite }

func (StringKey) isKey()    {}
func (IntKey) isKey()       {}
func (CompositeKey) isKey() {}

func (k StringKey) String() string    { return string(k) }
func (k IntKey) String() string       { return strconv.FormatInt(int64(k), 10) }
func (k CompositeKey) String() string { return k.Group + "." + k.Name }

type wireID struct {
	Backend string  `json:"b"`
	Kind    KeyKind `json:"k"`
	S       *string `json:"s,omitempty"`
	I       *int64  `json:"i,omitempty"`
	N       *string `json:"n,omitempty"`
	G       *string `json:"g,omitempty"`
}

// Codec converts native keys of one backend to and from TaskIDs.
type Codec struct {
	backend string
}

// NewCodec returns the codec for backend.
func NewCodec(backend string) Codec {
	return Codec{backend: backend}
}

// Backend returns the backend name written into every id.
func (c Codec) Backend() string {
	return c.backend
}

// Encode returns the TaskID for k.
func (c Codec) Encode(k Key) TaskID {
	w := wireID{Backend: c.backend, Kind: k.Kind()}
	switch key := k.(type) {
	case StringKey:
		s := string(key)
		w.S = &s
	case IntKey:
		i := int64(key)
		w.I = &i
	case CompositeKey:
		w.N, w.G = &key.Name, &key.Group
	}
	b, err := json.Marshal(w)
	if err != nil {
		panic(fmt.Sprintf("cron: encode key: %v", err))
	}
	return TaskID(b)
}

// Decode returns the native key carried by id. It fails with
// ErrInvalidIdentifier when id does not parse and with ErrBackendMismatch
// when id was issued by another backend.
func (c Codec) Decode(id TaskID) (Key, error) {
	var w wireID
	dec := json.NewDecoder(bytes.NewReader([]byte(id)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, ErrMalformedID(id, err.Error())
	}
	if dec.More() {
		return nil, ErrMalformedID(id, "trailing data")
	}
	if w.Backend == "" {
		return nil, ErrMalformedID(id, "missing backend")
	}
	if w.Backend != c.backend {
		return nil, ErrForeignID(id, w.Backend, c.backend)
	}

	switch w.Kind {
	case KindString:
		if w.S == nil || w.I != nil || w.N != nil || w.G != nil {
			return nil, ErrMalformedID(id, "string key requires exactly field s")
		}
		return StringKey(*w.S), nil
	case KindInt:
		if w.I == nil || w.S != nil || w.N != nil || w.G != nil {
			return nil, ErrMalformedID(id, "int key requires exactly field i")
		}
		return IntKey(*w.I), nil
	case KindComposite:
		if w.N == nil || w.G == nil || w.S != nil || w.I != nil {
			return nil, ErrMalformedID(id, "composite key requires exactly fields n and g")
		}
		return CompositeKey{Name: *w.N, Group: *w.G}, nil
	default:
		return nil, ErrMalformedID(id, fmt.Sprintf("unknown key kind %q", w.Kind))
	}
}

// DecodeString decodes id and requires a StringKey.
func (c Codec) DecodeString(id TaskID) (StringKey, error) {
	k, err := c.Decode(id)
	if err != nil {
		return "", err
	}
	key, ok := k.(StringKey)
	if !ok {
		return "", ErrMalformedID(id, fmt.Sprintf("want %s key, got %s", KindString, k.Kind()))
	}
	return key, nil
}

// DecodeInt decodes id and requires an IntKey.
func (c Codec) DecodeInt(id TaskID) (IntKey, error) {
	k, err := c.Decode(id)
	if err != nil {
		return 0, err
	}
	key, ok := k.(IntKey)
	if !ok {
		return 0, ErrMalformedID(id, fmt.Sprintf("want %s key, got %s", KindInt, k.Kind()))
	}
	return key, nil
}

// DecodeComposite decodes id and requires a CompositeKey.
func (c Codec) DecodeComposite(id TaskID) (CompositeKey, error) {
	k, err := c.Decode(id)
	if err != nil {
		return CompositeKey{}, err
	}
	key, ok := k.(CompositeKey)
	if !ok {
		return CompositeKey{}, ErrMalformedID(id, fmt.Sprintf("want %s key, got %s", KindComposite, k.Kind()))
	}
	return key, nil
}

// BackendOf returns the backend that issued id without decoding its key.
func BackendOf(id TaskID) (string, error) {
	var w struct {
		Backend string `json:"b"`
	}
	if err := json.Unmarshal([]byte(id), &w); err != nil {
		return "", ErrMalformedID(id, err.Error())
	}
	if w.Backend == "" {
		return "", ErrMalformedID(id, "missing backend")
	}
	return w.Backend, nil
}

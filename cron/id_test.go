package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec("crontab")
	keys := []Key{
		StringKey("7f3c-uuid"),
		StringKey(""),
		IntKey(42),
		IntKey(-1),
		CompositeKey{Name: "report", Group: "DEFAULT"},
		CompositeKey{Name: `we"ird`, Group: "g\n"},
	}
	for _, k := range keys {
		got, err := c.Decode(c.Encode(k))
		require.NoError(t, err, "key %v", k)
		assert.Equal(t, k, got)
	}
}

func TestCodec_WireFormat(t *testing.T) {
	c := NewCodec("minimal")
	assert.Equal(t, TaskID(`{"b":"minimal","k":"string","s":"abc"}`), c.Encode(StringKey("abc")))
	assert.Equal(t, TaskID(`{"b":"minimal","k":"int","i":7}`), c.Encode(IntKey(7)))
	assert.Equal(t, TaskID(`{"b":"minimal","k":"composite","n":"a","g":"b"}`), c.Encode(CompositeKey{Name: "a", Group: "b"}))
}

func TestCodec_DistinctKeysDistinctIDs(t *testing.T) {
	c := NewCodec("x")
	assert.NotEqual(t, c.Encode(StringKey("1")), c.Encode(IntKey(1)))
	assert.NotEqual(t,
		c.Encode(CompositeKey{Name: "a.b", Group: "c"}),
		c.Encode(CompositeKey{Name: "b", Group: "c.a"}),
	)
}

func TestCodec_DecodeRejectsMalformed(t *testing.T) {
	c := NewCodec("crontab")
	cases := map[string]TaskID{
		"empty":          "",
		"not json":       "garbage",
		"missing b":      `{"k":"int","i":1}`,
		"unknown kind":   `{"b":"crontab","k":"float","i":1}`,
		"unknown field":  `{"b":"crontab","k":"int","i":1,"x":2}`,
		"trailing data":  `{"b":"crontab","k":"int","i":1}{}`,
		"kind mismatch":  `{"b":"crontab","k":"int","s":"1"}`,
		"extra field":    `{"b":"crontab","k":"string","s":"a","i":1}`,
		"half composite": `{"b":"crontab","k":"composite","n":"a"}`,
		"int overflow":   `{"b":"crontab","k":"int","i":99999999999999999999}`,
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(id)
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}
}

func TestCodec_BackendMismatch(t *testing.T) {
	id := NewCodec("enterprise").Encode(StringKey("a"))
	_, err := NewCodec("crontab").Decode(id)
	assert.ErrorIs(t, err, ErrBackendMismatch)
	assert.NotErrorIs(t, err, ErrInvalidIdentifier)
}

func TestCodec_TypedDecoders(t *testing.T) {
	c := NewCodec("b")
	s, err := c.DecodeString(c.Encode(StringKey("x")))
	require.NoError(t, err)
	assert.Equal(t, StringKey("x"), s)

	_, err = c.DecodeInt(c.Encode(StringKey("x")))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = c.DecodeComposite(c.Encode(IntKey(1)))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = c.DecodeString(c.Encode(CompositeKey{Name: "n", Group: "g"}))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestBackendOf(t *testing.T) {
	b, err := BackendOf(NewCodec("platform").Encode(StringKey("k")))
	require.NoError(t, err)
	assert.Equal(t, "platform", b)

	_, err = BackendOf("nope")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = BackendOf(`{"k":"int","i":1}`)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

package secure

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealReveal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "plain value", value: "p@ss"},
		{name: "empty value", value: ""},
		{name: "binary value", value: string([]byte{0x00, 0xFF, 0x10, 0x20})},
		{name: "multiline value", value: "-----BEGIN KEY-----\nabc\n-----END KEY-----"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sealed := Seal(tt.value)
			defer sealed.Destroy()

			var got string
			err := sealed.Reveal(func(v string) error {
				got = v
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Equal(t, len(tt.value), sealed.Size())
		})
	}
}

func TestSealed_MultipleReveals(t *testing.T) {
	t.Parallel()

	sealed := Seal("super-secret-data")
	defer sealed.Destroy()

	for i := 0; i < 3; i++ {
		err := sealed.Reveal(func(v string) error {
			assert.Equal(t, "super-secret-data", v)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestSealed_RevealPropagatesError(t *testing.T) {
	t.Parallel()

	sealed := Seal("value")
	defer sealed.Destroy()

	want := errors.New("write failed")
	err := sealed.Reveal(func(string) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestSealed_Destroy(t *testing.T) {
	t.Parallel()

	sealed := Seal("value")
	sealed.Destroy()
	sealed.Destroy()

	called := false
	err := sealed.Reveal(func(string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.False(t, called)
	assert.Zero(t, sealed.Size())
}

func TestSealed_ConcurrentReveal(t *testing.T) {
	t.Parallel()

	sealed := Seal("concurrent-secret")
	defer sealed.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sealed.Reveal(func(v string) error {
				if v != "concurrent-secret" {
					return errors.New("mismatch")
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

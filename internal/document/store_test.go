package document

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitpass/pkg/platform/sentinel"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Aadhaar Card.PDF", "aadhaar_card.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\asha\ID Proof.png`, "id_proof.png"},
		{"..", "document"},
		{"", "document"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestFileStore_SaveAndOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ref, err := s.Save(ctx, strings.NewReader("%PDF-1.7"), "My ID.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "_my_id.pdf"))

	other, err := s.Save(ctx, strings.NewReader("again"), "My ID.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, ref, other, "same name never collides")

	f, err := s.Open(ctx, ref)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))
}

func TestFileStore_OpenRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../secret", "a/b", ".env", "missing"} {
		_, err := s.Open(context.Background(), ref)
		assert.ErrorIs(t, err, sentinel.ErrNotFound, ref)
	}
}

func TestFileStore_Remove(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ref, err := s.Save(ctx, strings.NewReader("%PDF-1.7"), "id.pdf")
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, ref))

	_, err = s.Open(ctx, ref)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, s.Remove(ctx, ref), "removing twice is a no-op")
	assert.ErrorIs(t, s.Remove(ctx, "../secret"), sentinel.ErrNotFound)
}

func TestFileStore_RejectsOversizedUploads(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), bytes.NewReader(make([]byte, MaxSize+1)), "big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)
}

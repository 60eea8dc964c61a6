package tlscert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateCAPersistsAndReuses(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	first, err := s.LoadOrCreateCA()
	require.NoError(t, err)

	second, err := s.LoadOrCreateCA()
	require.NoError(t, err)

	require.Equal(t, first.Cert.SerialNumber, second.Cert.SerialNumber)
	require.Equal(t, first.Cert.NotAfter.Unix(), second.Cert.NotAfter.Unix())
}

func TestLoadOrCreateCARegeneratesPastExpiry(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	ca, err := generateCAWithExpiry(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.persist(ca))

	fresh, err := s.LoadOrCreateCA()
	require.NoError(t, err)
	require.NotEqual(t, ca.Cert.SerialNumber, fresh.Cert.SerialNumber)
	require.True(t, fresh.Cert.NotAfter.After(time.Now()))
}

func TestLeafForWildcardIsSignedByCA(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	ca, err := s.LoadOrCreateCA()
	require.NoError(t, err)

	leaf, err := s.LeafForWildcard(ca, "riptide.test")
	require.NoError(t, err)
	require.Contains(t, leaf.Leaf.DNSNames, "riptide.test")
	require.Contains(t, leaf.Leaf.DNSNames, "*.riptide.test")
	require.Len(t, leaf.Certificate, 2) // leaf + CA chain
}

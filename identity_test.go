package denkmit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

func TestSignVerify(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	id, err := NewIdentity(ctx, blocks)
	require.NoError(t, err)

	env, err := id.Sign([]byte("payload"))
	require.NoError(t, err)
	payload, creator, err := NewVerifier(blocks, 4).Verify(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
	assert.Equal(t, id.ID(), creator)

	var msg cose.Sign1Message
	require.NoError(t, msg.UnmarshalCBOR(env))
	msg.Payload = []byte("forged")
	forged, err := msg.MarshalCBOR()
	require.NoError(t, err)
	_, _, err = NewVerifier(blocks, 4).Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidStructure)

	_, _, err = NewVerifier(blocks, 4).Verify(ctx, []byte("not cose"))
	assert.ErrorIs(t, err, ErrInvalidStructure)

	// the signer's identity block must be reachable
	_, _, err = NewVerifier(testBlocks(), 4).Verify(ctx, env)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecords(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	alice, err := NewIdentity(ctx, blocks)
	require.NoError(t, err)
	bob, err := NewIdentity(ctx, blocks)
	require.NoError(t, err)
	recs := records{blocks: blocks, verifier: NewVerifier(blocks, 4)}

	e := &Entry{Version: EntryVersion, Timestamp: 42, Key: "k", Value: []byte("v")}
	require.NoError(t, recs.putEntry(ctx, alice, e))
	got, err := recs.entry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, []byte("v"), got.Value)
	assert.Equal(t, int64(42), got.Timestamp)
	assert.Equal(t, alice.ID(), got.Creator)

	h := &Head{Version: HeadVersion, Root: ID{1}, LayersCount: 1, Size: 1, Creator: alice.ID()}
	require.NoError(t, recs.putHead(ctx, alice, h))
	fetched, err := FetchHead(ctx, blocks, recs.verifier, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Root, fetched.Root)

	// a head signed by one identity claiming another
	claim := &Head{Version: HeadVersion, Root: ID{1}, Creator: alice.ID()}
	require.NoError(t, recs.putHead(ctx, bob, claim))
	_, err = recs.head(ctx, claim.ID)
	assert.ErrorIs(t, err, ErrInvalidStructure)

	m := &Manifest{Version: ManifestVersion, Name: "m", Type: DatasetType, Order: 3, Hash: DefaultHash}
	require.NoError(t, recs.putManifest(ctx, bob, m))
	gotM, err := FetchManifest(ctx, blocks, recs.verifier, m.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID(), gotM.Creator)
	assert.Equal(t, 3, gotM.Order)

	parsed, err := ParseAddress(m.Address())
	require.NoError(t, err)
	assert.Equal(t, m.ID, parsed)
	_, err = ParseAddress("denkmitdb/" + m.ID.String())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = recs.entry(ctx, ID(blake2bSum([]byte("absent"))))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlocksRejectMismatchedContent(t *testing.T) {
	t.Parallel()
	persist := NewInMemoryStore()
	blocks := NewBlocks(persist, nil, nil)
	id := ID(blake2bSum([]byte("real")))
	require.NoError(t, persist.Store(ctx, id.String(), []byte("swapped")))
	_, err := blocks.Get(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidStructure)

	id, err = blocks.Put(ctx, []byte("real"))
	require.NoError(t, err)
	data, err := blocks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("real"), data)
}

func TestKeyPEM(t *testing.T) {
	t.Parallel()
	priv, err := GenerateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, SaveKeyPEM(path, priv))
	loaded, err := LoadKeyPEM(path)
	require.NoError(t, err)
	assert.True(t, priv.Equal(loaded))

	blocks := testBlocks()
	a, err := IdentityFromKey(ctx, blocks, priv)
	require.NoError(t, err)
	b, err := IdentityFromKey(ctx, blocks, loaded)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), b.ID())

	_, err = LoadKeyPEM(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

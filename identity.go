package denkmit

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/veraison/go-cose"
)

const IdentityVersion = 1

type identityRecord struct {
	Version   int    `cbor:"version"`
	PublicKey []byte `cbor:"publicKey"`
}

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Identity is a signing key whose public half is stored as a block. The id of
// that block is the creator id carried by everything the identity signs.
type Identity struct {
	id     ID
	priv   *ecdsa.PrivateKey
	signer cose.Signer
}

// GenerateKey returns a new P-384 signing key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return priv, nil
}

// NewIdentity generates a key and publishes its identity block.
func NewIdentity(ctx context.Context, blocks *Blocks) (*Identity, error) {
	priv, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return IdentityFromKey(ctx, blocks, priv)
}

// IdentityFromKey publishes the identity block for an existing P-384 key.
func IdentityFromKey(ctx context.Context, blocks *Blocks, priv *ecdsa.PrivateKey) (*Identity, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES384, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	rec, err := cborEnc.Marshal(identityRecord{Version: IdentityVersion, PublicKey: der})
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}
	id, err := blocks.Put(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("store identity: %w", err)
	}
	return &Identity{id: id, priv: priv, signer: signer}, nil
}

func (i *Identity) ID() ID { return i.id }

func (i *Identity) PublicKey() *ecdsa.PublicKey { return &i.priv.PublicKey }

// Sign wraps payload in a COSE_Sign1 envelope whose kid is the identity id.
func (i *Identity) Sign(payload []byte) ([]byte, error) {
	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES384)
	msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(i.id)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, i.signer); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return msg.MarshalCBOR()
}

// Verifier checks signed envelopes against identity blocks.
type Verifier struct {
	blocks *Blocks
	keys   *lru.Cache
}

func NewVerifier(blocks *Blocks, cacheSize int) *Verifier {
	keys, err := lru.New(cacheSize)
	if err != nil {
		panic(err)
	}
	return &Verifier{blocks: blocks, keys: keys}
}

// Verify checks envelope and returns its payload and the creator id.
func (v *Verifier) Verify(ctx context.Context, envelope []byte) ([]byte, ID, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: envelope: %v", ErrInvalidStructure, err)
	}
	kid, ok := msg.Headers.Protected[cose.HeaderLabelKeyID].([]byte)
	if !ok || len(kid) == 0 {
		return nil, nil, fmt.Errorf("%w: envelope without key id", ErrInvalidStructure)
	}
	creator := ID(kid)
	pub, err := v.publicKey(ctx, creator)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, pub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: identity %s: %v", ErrInvalidStructure, creator, err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, nil, fmt.Errorf("%w: signature by %s: %v", ErrInvalidStructure, creator, err)
	}
	return msg.Payload, creator, nil
}

func (v *Verifier) publicKey(ctx context.Context, id ID) (*ecdsa.PublicKey, error) {
	if k, ok := v.keys.Get(string(id)); ok {
		return k.(*ecdsa.PublicKey), nil
	}
	data, err := v.blocks.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", id, err)
	}
	var rec identityRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: identity %s: %v", ErrInvalidStructure, id, err)
	}
	key, err := x509.ParsePKIXPublicKey(rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: identity %s: %v", ErrInvalidStructure, id, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: identity %s is not an ECDSA key", ErrInvalidStructure, id)
	}
	v.keys.Add(string(id), pub)
	return pub, nil
}

// LoadKeyPEM reads an EC private key written by SaveKeyPEM.
func LoadKeyPEM(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in " + path)
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// SaveKeyPEM writes priv to path with owner-only permissions.
func SaveKeyPEM(path string, priv *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return err
	}
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600)
}

func putSigned(ctx context.Context, blocks *Blocks, identity *Identity, v any) (ID, error) {
	payload, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	envelope, err := identity.Sign(payload)
	if err != nil {
		return nil, err
	}
	return blocks.Put(ctx, envelope)
}

func getSigned(ctx context.Context, blocks *Blocks, verifier *Verifier, id ID, v any) (ID, error) {
	envelope, err := blocks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, creator, err := verifier.Verify(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("%w: %T %s: %v", ErrInvalidStructure, v, id, err)
	}
	return creator, nil
}

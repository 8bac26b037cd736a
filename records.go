package denkmit

import (
	"context"
	"fmt"
	"strings"
)

const (
	EntryVersion     = 1
	HeadVersion      = 1
	ManifestVersion  = 1
	ConsensusVersion = 1
)

// AddressPrefix starts every dataset address; the rest is the manifest id.
const AddressPrefix = "/denkmitdb/"

// DatasetType is the manifest type of a key-value dataset.
const DatasetType = "denkmit-database-key-value"

// Entry is one signed key/value write.
type Entry struct {
	Version   int    `cbor:"version"`
	Timestamp int64  `cbor:"timestamp"`
	Key       string `cbor:"key"`
	Value     []byte `cbor:"value"`

	ID      ID `cbor:"-"`
	Creator ID `cbor:"-"`
}

// Head describes a forest root at a point in time.
type Head struct {
	Version     int   `cbor:"version"`
	Manifest    ID    `cbor:"manifest"`
	Root        ID    `cbor:"root"`
	Timestamp   int64 `cbor:"timestamp"`
	LayersCount int   `cbor:"layersCount"`
	Size        int   `cbor:"size"`
	Creator     ID    `cbor:"creator"`

	ID ID `cbor:"-"`
}

// Manifest is the immutable description of a dataset.
type Manifest struct {
	Version   int               `cbor:"version"`
	Timestamp int64             `cbor:"timestamp"`
	Name      string            `cbor:"name"`
	Type      string            `cbor:"type"`
	Order     int               `cbor:"order"`
	Hash      string            `cbor:"hash"`
	Consensus ID                `cbor:"consensus"`
	Access    string            `cbor:"access"`
	Meta      map[string]string `cbor:"meta,omitempty"`

	ID      ID `cbor:"-"`
	Creator ID `cbor:"-"`
}

// Address is the string form used to open the dataset elsewhere.
func (m *Manifest) Address() string {
	return AddressPrefix + m.ID.String()
}

// ParseAddress returns the manifest id named by a dataset address.
func ParseAddress(address string) (ID, error) {
	rest, ok := strings.CutPrefix(address, AddressPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: address %q lacks prefix %s", ErrConfiguration, address, AddressPrefix)
	}
	return ParseID(rest)
}

// ConsensusRecord holds the JSON-logic rule that authorizes entries.
type ConsensusRecord struct {
	Version     int    `cbor:"version"`
	Name        string `cbor:"name"`
	Description string `cbor:"description"`
	Logic       []byte `cbor:"logic"`

	ID      ID `cbor:"-"`
	Creator ID `cbor:"-"`
}

// records stores and fetches the signed records of one dataset.
type records struct {
	blocks   *Blocks
	verifier *Verifier
}

func (r records) putEntry(ctx context.Context, identity *Identity, e *Entry) error {
	id, err := putSigned(ctx, r.blocks, identity, e)
	if err != nil {
		return fmt.Errorf("store entry %q: %w", e.Key, err)
	}
	e.ID, e.Creator = id, identity.ID()
	return nil
}

func (r records) entry(ctx context.Context, id ID) (*Entry, error) {
	var e Entry
	creator, err := getSigned(ctx, r.blocks, r.verifier, id, &e)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	e.ID, e.Creator = id, creator
	return &e, nil
}

func (r records) putHead(ctx context.Context, identity *Identity, h *Head) error {
	id, err := putSigned(ctx, r.blocks, identity, h)
	if err != nil {
		return fmt.Errorf("store head: %w", err)
	}
	h.ID = id
	return nil
}

// head fetches and verifies a head. The signer must match the recorded creator.
func (r records) head(ctx context.Context, id ID) (*Head, error) {
	var h Head
	creator, err := getSigned(ctx, r.blocks, r.verifier, id, &h)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", id, err)
	}
	if h.Version != HeadVersion {
		return nil, fmt.Errorf("%w: head %s version %d", ErrInvalidStructure, id, h.Version)
	}
	if !creator.Equal(h.Creator) {
		return nil, fmt.Errorf("%w: head %s signed by %s, claims %s", ErrInvalidStructure, id, creator, h.Creator)
	}
	h.ID = id
	return &h, nil
}

func (r records) putManifest(ctx context.Context, identity *Identity, m *Manifest) error {
	id, err := putSigned(ctx, r.blocks, identity, m)
	if err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	m.ID, m.Creator = id, identity.ID()
	return nil
}

func (r records) manifest(ctx context.Context, id ID) (*Manifest, error) {
	var m Manifest
	creator, err := getSigned(ctx, r.blocks, r.verifier, id, &m)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", id, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: manifest %s version %d", ErrInvalidStructure, id, m.Version)
	}
	m.ID, m.Creator = id, creator
	return &m, nil
}

func (r records) putConsensus(ctx context.Context, identity *Identity, c *ConsensusRecord) error {
	id, err := putSigned(ctx, r.blocks, identity, c)
	if err != nil {
		return fmt.Errorf("store consensus: %w", err)
	}
	c.ID, c.Creator = id, identity.ID()
	return nil
}

func (r records) consensus(ctx context.Context, id ID) (*ConsensusRecord, error) {
	var c ConsensusRecord
	creator, err := getSigned(ctx, r.blocks, r.verifier, id, &c)
	if err != nil {
		return nil, fmt.Errorf("consensus %s: %w", id, err)
	}
	c.ID, c.Creator = id, creator
	return &c, nil
}

// FetchHead loads and verifies the head with the given id.
func FetchHead(ctx context.Context, blocks *Blocks, verifier *Verifier, id ID) (*Head, error) {
	return records{blocks: blocks, verifier: verifier}.head(ctx, id)
}

// FetchManifest loads and verifies the manifest with the given id.
func FetchManifest(ctx context.Context, blocks *Blocks, verifier *Verifier, id ID) (*Manifest, error) {
	return records{blocks: blocks, verifier: verifier}.manifest(ctx, id)
}

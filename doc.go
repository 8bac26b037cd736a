/*
Package denkmit provides a replicated key-value dataset whose entries are
indexed by a Merkle forest. Replicas converge by exchanging signed heads
and comparing their forests, so only the Pollards that differ are fetched.

Pollards

A Pollard is a fixed-size binary hash tree of 2^order leaves. Leaves are
appended left to right; the layers above hold hashes of sibling pairs and
the Pollard's id is the hash of its canonical encoding. Ids are stable
across processes, which makes Pollards safe to store in any
content-addressed backend and to compare by id.

Forest

The live entries of a dataset are kept sorted by timestamp (ties broken by
key) in a SortedItemsStore. Layer 0 of the Forest packs them into Pollards
of SortedEntry leaves; every layer above packs links to the layer below,
until a single root remains. Since writes mostly carry the newest
timestamp, a write usually rehashes only the rightmost path.

Replication

Each write is a signed Entry block. A Head names a root, the number of
layers and the dataset's Manifest, and is announced over Gossip. A replica
receiving a head compares the two forests top-down, fetches only differing
Pollards, checks every unknown entry against the dataset's consensus rule
and merges the newer ones (last writer wins per key). An empty replica
loads the whole tree instead.

Storage

Blocks are stored through the Persist interface. The persist/ packages
provide file, S3, bbolt, LevelDB and Pebble backends; NewInMemoryStore is
useful for tests and for replicas sharing one process.
*/
package denkmit

package cli

import (
	"crypto/ecdsa"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/denkmit/denkmit"
	"github.com/denkmit/denkmit/persist/bolt"
	"github.com/denkmit/denkmit/persist/file"
	"github.com/denkmit/denkmit/persist/leveldb"
	"github.com/denkmit/denkmit/persist/pebble"
	s3Persist "github.com/denkmit/denkmit/persist/s3"
)

const (
	storeMemory  = "memory"
	storeFile    = "file"
	storeBolt    = "bolt"
	storeLevelDB = "leveldb"
	storePebble  = "pebble"
	storeS3      = "s3"
)

func noClose() error { return nil }

// openPersist opens the configured block backend. The returned func
// releases it.
func openPersist(c Config) (denkmit.Persist, func() error, error) {
	switch c.Store {
	case storeFile:
		p, err := file.NewPersistForPath(filepath.Join(c.DataDir, "blocks"))
		return p, noClose, err
	case storeBolt:
		p, err := bolt.Open(filepath.Join(c.DataDir, "blocks.bolt"))
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case storeLevelDB:
		p, err := leveldb.Open(filepath.Join(c.DataDir, "leveldb"), leveldb.Options{})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case storePebble:
		p, err := pebble.Open(filepath.Join(c.DataDir, "pebble"), true)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case storeS3:
		cfg := &aws.Config{S3ForcePathStyle: aws.Bool(c.S3.Endpoint != "")}
		if c.S3.Region != "" {
			cfg.Region = aws.String(c.S3.Region)
		}
		if c.S3.Endpoint != "" {
			cfg.Endpoint = aws.String(c.S3.Endpoint)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s3Persist.NewPersist(s3.New(sess), c.S3.Bucket, c.S3.Prefix), noClose, nil
	default:
		return denkmit.NewInMemoryStore(), noClose, nil
	}
}

// loadOrCreateKey reads the signing key at path, generating and saving one
// when the file does not exist. An empty path yields a nil key, so the
// dataset generates an ephemeral one.
func loadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	key, err := denkmit.LoadKeyPEM(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	key, err = denkmit.GenerateKey()
	if err != nil {
		return nil, err
	}
	return key, denkmit.SaveKeyPEM(path, key)
}

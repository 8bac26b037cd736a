package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/denkmit/denkmit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var InspectCmd = &cobra.Command{
	Use:     "inspect <head-id>",
	Short:   "Print a head, its manifest and optionally its entries",
	Long:    `Verify and print the head with the given id and the manifest of its dataset as YAML, reading blocks from the configured store. With --entries the tree is loaded and every live entry is listed.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runInspect,
}

func init() {
	addStoreFlags(InspectCmd)
	key := "hash"
	InspectCmd.Flags().String(key, denkmit.DefaultHash, WrapString("Hash function of the dataset"))
	key = "entries"
	InspectCmd.Flags().Bool(key, false, WrapString("Load the tree and list its entries"))
}

type inspectReport struct {
	Head     inspectHead     `yaml:"head"`
	Manifest inspectManifest `yaml:"manifest"`
	Entries  []inspectEntry  `yaml:"entries,omitempty"`
}

type inspectHead struct {
	ID      string    `yaml:"id"`
	Root    string    `yaml:"root"`
	Layers  int       `yaml:"layers"`
	Size    int       `yaml:"size"`
	Time    time.Time `yaml:"time"`
	Creator string    `yaml:"creator"`
}

type inspectManifest struct {
	Address   string            `yaml:"address"`
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Order     int               `yaml:"order"`
	Hash      string            `yaml:"hash"`
	Consensus string            `yaml:"consensus"`
	Access    string            `yaml:"access"`
	Creator   string            `yaml:"creator"`
	Meta      map[string]string `yaml:"meta,omitempty"`
}

type inspectEntry struct {
	Key     string    `yaml:"key"`
	Time    time.Time `yaml:"time"`
	Entry   string    `yaml:"entry"`
	Creator string    `yaml:"creator"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := configFromViper()
	if err := cfg.validate(); err != nil {
		return err
	}
	id, err := denkmit.ParseID(args[0])
	if err != nil {
		return err
	}
	persist, closePersist, err := openPersist(cfg)
	if err != nil {
		return err
	}
	defer closePersist()
	return inspect(cmd.Context(), cmd.OutOrStdout(), persist, cfg.Hash, id, viper.GetBool("entries"))
}

func inspect(ctx context.Context, w io.Writer, persist denkmit.Persist, hashName string, id denkmit.ID, entries bool) error {
	hash, err := denkmit.HashFuncByName(hashName)
	if err != nil {
		return err
	}
	blocks := denkmit.NewBlocks(persist, hash, nil)
	verifier := denkmit.NewVerifier(blocks, 16)
	head, err := denkmit.FetchHead(ctx, blocks, verifier, id)
	if err != nil {
		return err
	}
	m, err := denkmit.FetchManifest(ctx, blocks, verifier, head.Manifest)
	if err != nil {
		return err
	}
	report := inspectReport{
		Head: inspectHead{
			ID:      head.ID.String(),
			Root:    head.Root.String(),
			Layers:  head.LayersCount,
			Size:    head.Size,
			Time:    time.UnixMilli(head.Timestamp).UTC(),
			Creator: head.Creator.String(),
		},
		Manifest: inspectManifest{
			Address:   m.Address(),
			Name:      m.Name,
			Type:      m.Type,
			Order:     m.Order,
			Hash:      m.Hash,
			Consensus: m.Consensus.String(),
			Access:    m.Access,
			Creator:   m.Creator.String(),
			Meta:      m.Meta,
		},
	}
	if entries {
		db, err := denkmit.Open[[]byte](ctx, m.Address(), denkmit.Config{Persist: persist, Hash: hashName}, denkmit.BytesCodec{})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Load(ctx, head); err != nil {
			return fmt.Errorf("load %s: %w", head.ID, err)
		}
		for _, it := range db.Items() {
			report.Entries = append(report.Entries, inspectEntry{
				Key:     it.Key,
				Time:    time.UnixMilli(it.SortKey).UTC(),
				Entry:   it.CID.String(),
				Creator: it.Creator.String(),
			})
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// Command vectorstore is a thin CLI over the embeddable store: put,
// get, del, scan, the three KNN variants, and reset, all rooted at a
// --data directory. Out of scope for the core library itself (spec.md
// §1); this is the ambient consumer the teacher ships as a desktop
// app and vectorstore ships as a command line tool instead.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"vectorstore/internal/config"
	"vectorstore/internal/embed"
	"vectorstore/internal/knn"
	"vectorstore/internal/store"
	"vectorstore/internal/vserrors"
)

func openStore(c *cli.Command) (*store.Store, error) {
	dir := c.String("data")
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dim := c.Int("dim"); dim > 0 {
		cfg.Vector.Dim = uint64(dim)
	}
	return store.Open(dir, cfg, embed.NewHashEmbedder(int(cfg.Vector.Dim)))
}

func main() {
	app := &cli.Command{
		Name:  "vectorstore",
		Usage: "persistent key-value store with HNSW nearest-neighbor search",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Value: "./data", Usage: "store root directory"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./vectorstore.json", Usage: "JSON config file"},
			&cli.IntFlag{Name: "dim", Usage: "override configured vector dimension"},
		},
		Commands: []*cli.Command{
			putCommand(),
			getCommand(),
			delCommand(),
			scanCommand(),
			knnCommand("knn", "brute-force KNN search over the vector cache"),
			knnCommand("knn-parallel", "map-reduce parallel KNN search"),
			knnCommand("knn-hnsw", "HNSW-accelerated KNN search"),
			resetCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "vectorstore: %v\n", err)
		os.Exit(1)
	}
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "store a value under a key",
		ArgsUsage: "<key> <value>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("put requires <key> <value>")
			}
			key, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Put(key, []byte(c.Args().Get(1))); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "put %d\n", key)
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "read the value stored under a key",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("get requires <key>")
			}
			key, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()
			v, err := s.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, string(v))
			return nil
		},
	}
}

func delCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete the value stored under a key",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("del requires <key>")
			}
			key, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()
			existed, err := s.Del(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "deleted=%v\n", existed)
			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "list live entries with keys in [lo, hi]",
		ArgsUsage: "<lo> <hi>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("scan requires <lo> <hi>")
			}
			lo, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lo: %w", err)
			}
			hi, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid hi: %w", err)
			}
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := s.Scan(lo, hi)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(c.Root().Writer, "%d\t%s\n", e.Key, e.Value)
			}
			return nil
		},
	}
}

func knnCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<query text>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "k", Value: 10, Usage: "number of neighbors to return"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("%s requires <query text>", name)
			}
			query := strings.Join(c.Args().Slice(), " ")
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.IsEmpty() {
				return vserrors.ErrEmptyIndex
			}

			k := int(c.Int("k"))
			var results []knn.Result
			switch name {
			case "knn":
				results, err = s.SearchKNN(query, k)
			case "knn-parallel":
				results, err = s.SearchKNNParallel(query, k)
			case "knn-hnsw":
				results, err = s.SearchKNNHNSW(query, k)
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d\t%.4f\t%s\n", r.Key, r.Similarity, r.Value)
			}
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "erase all data: every key, the HNSW index, and both caches",
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStore(c)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, "reset complete")
			return nil
		},
	}
}

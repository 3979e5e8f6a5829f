package cmd

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/tickflow/internal/entities"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Work with memory images",
}

var snapshotWriteCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Write a synthetic entity image for run --snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotWrite,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotWriteCmd)

	snapshotWriteCmd.Flags().Int("count", 32, "Number of entities")
	snapshotWriteCmd.Flags().Uint64("base", 0x10000, "Address the image is mapped at")
	snapshotWriteCmd.Flags().Int64("seed", 1, "Random seed for entity fields")
}

func runSnapshotWrite(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	base, _ := cmd.Flags().GetUint64("base")
	seed, _ := cmd.Flags().GetInt64("seed")
	if count < 0 || count > entities.MaxEntities {
		return fmt.Errorf("count must be in [0, %d]", entities.MaxEntities)
	}

	data := entities.BuildImage(base, syntheticEntities(count, seed))
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entities (%d bytes) to %s, base %#x\n", count, len(data), args[0], base)
	return nil
}

func syntheticEntities(n int, seed int64) []entities.Entity {
	rng := rand.New(rand.NewSource(seed))
	out := make([]entities.Entity, n)
	for i := range out {
		out[i] = entities.Entity{
			ID:     uint32(i + 1),
			Health: float32(rng.Intn(101)),
			X:      rng.Float32() * 1000,
			Y:      rng.Float32() * 1000,
		}
	}
	return out
}

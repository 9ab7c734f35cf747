package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the disk cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show disk cache usage",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached file",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	c, err := openDiskCache()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Directory: %s\n", c.Dir())
	fmt.Fprintf(out, "Entries:   %d\n", c.Len())
	fmt.Fprintf(out, "Size:      %s of %s\n",
		humanize.IBytes(uint64(c.Size())), humanize.IBytes(uint64(c.MaxBytes())))
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	c, err := openDiskCache()
	if err != nil {
		return err
	}
	n, size := c.Len(), c.Size()
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files (%s) from %s\n", n, humanize.IBytes(uint64(size)), c.Dir())
	return nil
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diffsight/diffsight-go/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the artifact cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache hit/miss counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c := cache.New(cmd.Context(), cfg.Cache)
		defer c.Close()

		out, err := json.MarshalIndent(c.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var cacheHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity of the distributed cache tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c := cache.New(cmd.Context(), cfg.Cache)
		defer c.Close()

		if err := c.HealthCheck(cmd.Context()); err != nil {
			return fmt.Errorf("distributed tier unhealthy: %w", err)
		}
		fmt.Println("distributed tier healthy")
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <repo-url>",
	Short: "Remove every cached artifact for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c := cache.New(cmd.Context(), cfg.Cache)
		defer c.Close()

		removed := c.InvalidateRepo(cmd.Context(), args[0])
		fmt.Printf("removed %d cached entries for %s\n", removed, args[0])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheHealthCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/zimage"
	"github.com/unkn0wn-root/zimage/diskcache"
	zimagelogrus "github.com/unkn0wn-root/zimage/log/logrus"
	zimageslog "github.com/unkn0wn-root/zimage/log/slog"
	zimagezap "github.com/unkn0wn-root/zimage/log/zap"
	"github.com/unkn0wn-root/zimage/memcache"
	"github.com/unkn0wn-root/zimage/memcache/bigcache"
	"github.com/unkn0wn-root/zimage/memcache/ristretto"
)

// budget for the ristretto and bigcache backends when memory-cache-bytes is unset
const defaultBackendBytes = 64 << 20

var rootCmd = &cobra.Command{
	Use:   "zimage",
	Short: "Image loading pipeline CLI",
	Long:  "CLI for fetching images through the zimage caches and managing the disk cache.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ~/.config/zimage/config.yaml)")
	pf.String("disk-cache-dir", "", "disk cache directory (default: <user cache dir>/zImage)")
	pf.Int64("disk-cache-bytes", 0, "disk cache budget in bytes (default: 100 MiB)")
	pf.Int64("memory-cache-bytes", 0, "memory cache budget in bytes (default: heap cap / 8)")
	pf.Int("download-pool-size", 0, "download and cached pool size (default: 3)")
	pf.Bool("deny-network", false, "refuse http(s) downloads")
	pf.Bool("slow-network", false, "tolerate short reads from http(s) streams")
	pf.String("memory-backend", "lru", "memory cache backend: lru, ristretto or bigcache")
	pf.String("log-format", "zap", "logger: zap, logrus or slog")
	pf.BoolP("verbose", "v", false, "debug logging")

	viper.BindPFlag("disk_cache_dir", pf.Lookup("disk-cache-dir"))
	viper.BindPFlag("disk_cache_bytes", pf.Lookup("disk-cache-bytes"))
	viper.BindPFlag("memory_cache_bytes", pf.Lookup("memory-cache-bytes"))
	viper.BindPFlag("download_pool_size", pf.Lookup("download-pool-size"))
	viper.BindPFlag("deny_network", pf.Lookup("deny-network"))
	viper.BindPFlag("slow_network", pf.Lookup("slow-network"))
	viper.BindPFlag("memory_backend", pf.Lookup("memory-backend"))
	viper.BindPFlag("log_format", pf.Lookup("log-format"))
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ZIMAGE")
	viper.AutomaticEnv()
	viper.SetDefault("disk_cache_dir", defaultDiskCacheDir())
	viper.SetDefault("disk_cache_bytes", diskcache.DefaultMaxBytes)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "zimage")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "zimage")
	}
	return ".zimage"
}

func defaultDiskCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "zImage")
	}
	return ".zimage-cache"
}

// newLogger builds the configured logger. sync flushes it.
func newLogger(w io.Writer) (log zimage.Logger, sync func(), err error) {
	verbose := viper.GetBool("verbose")
	switch format := viper.GetString("log_format"); format {
	case "", "zap":
		var zl *zap.Logger
		if verbose {
			zl, err = zap.NewDevelopment()
		} else {
			zl, err = zap.NewProduction()
		}
		if err != nil {
			return nil, nil, err
		}
		return zimagezap.New(zl), func() { _ = zl.Sync() }, nil
	case "logrus":
		lr := logrus.New()
		lr.SetOutput(w)
		if verbose {
			lr.SetLevel(logrus.DebugLevel)
		}
		return zimagelogrus.New(lr), func() {}, nil
	case "slog":
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		sl := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
		return zimageslog.New(sl), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}
}

// newMemoryCache builds the configured memory backend. A nil cache leaves
// the loader on its default LRU. closeFn releases an injected backend, which
// the loader does not own.
func newMemoryCache() (c memcache.Cache, closeFn func(), err error) {
	maxBytes := viper.GetInt64("memory_cache_bytes")
	switch backend := viper.GetString("memory_backend"); backend {
	case "", "lru":
		return nil, func() {}, nil
	case "ristretto":
		rc, err := ristretto.New(ristretto.Config{MaxBytes: cmpOr(maxBytes, defaultBackendBytes)})
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	case "bigcache":
		bc, err := bigcache.New(bigcache.Config{MaxBytes: cmpOr(maxBytes, defaultBackendBytes)})
		if err != nil {
			return nil, nil, err
		}
		return bc, func() { _ = bc.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", backend)
	}
}

func cmpOr(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// loaderOptions maps the effective configuration onto zimage.Options.
func loaderOptions(log zimage.Logger, mem memcache.Cache) zimage.Options {
	return zimage.Options{
		DiskCacheDir:     viper.GetString("disk_cache_dir"),
		DiskCacheBytes:   viper.GetInt64("disk_cache_bytes"),
		MemoryCacheBytes: viper.GetInt64("memory_cache_bytes"),
		MemoryCache:      mem,
		DownloadPoolSize: viper.GetInt("download_pool_size"),
		DenyNetwork:      viper.GetBool("deny_network"),
		SlowNetwork:      viper.GetBool("slow_network"),
		Logger:           log,
	}
}

func openDiskCache() (*diskcache.Cache, error) {
	return diskcache.Open(viper.GetString("disk_cache_dir"),
		diskcache.WithMaxBytes(viper.GetInt64("disk_cache_bytes")))
}

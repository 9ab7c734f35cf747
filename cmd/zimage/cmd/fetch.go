package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/zimage"
	asynchook "github.com/unkn0wn-root/zimage/hooks/async"
	"github.com/unkn0wn-root/zimage/internal/keys"
	"github.com/unkn0wn-root/zimage/sloghooks"
	"github.com/unkn0wn-root/zimage/ui"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <uri>...",
	Short: "Load images through the caches",
	Long:  "Load each URI through the memory cache, the disk cache and the network, and report the decoded size.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.Int("width", 0, "target width (default: half the screen or 540)")
	f.Int("height", 0, "target height (default: half the screen or 960)")
	f.Bool("compress", false, "subsample toward the target size while decoding")
	f.String("out", "", "write decoded images as PNG into this directory")
	f.Int("concurrency", 4, "URIs in flight at once")
	f.Duration("timeout", time.Minute, "per-URI timeout")
	rootCmd.AddCommand(fetchCmd)
}

// headless is a Widget with no screen behind it.
type headless struct {
	id   int
	w, h int

	mu  sync.Mutex
	img image.Image
}

func (h *headless) ID() int            { return h.id }
func (h *headless) Bounds() (int, int) { return 0, 0 }
func (h *headless) Layout() (int, int) { return h.w, h.h }

func (h *headless) SetImage(img image.Image) {
	h.mu.Lock()
	h.img = img
	h.mu.Unlock()
}

func (h *headless) SetPlaceholder(image.Image) {}

var errCancelled = errors.New("cancelled")

type fetchResult struct {
	img image.Image
	err error
}

func runFetch(cmd *cobra.Command, args []string) (err error) {
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	compress, _ := cmd.Flags().GetBool("compress")
	out, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	log, syncLog, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer syncLog()
	mem, closeMem, err := newMemoryCache()
	if err != nil {
		return err
	}
	defer closeMem()

	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
	}

	loop := ui.NewLoop(0)
	defer loop.Close()
	opts := loaderOptions(log, mem)
	opts.UI = loop
	if viper.GetBool("verbose") {
		sl := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := asynchook.New(sloghooks.New(sl, sloghooks.Options{}), 1, 1024)
		defer hooks.Close()
		opts.Hooks = hooks
	}
	l, err := zimage.New(opts)
	if err != nil {
		return err
	}
	defer l.Destroy()

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, concurrency))
	for i, uri := range args {
		g.Go(func() error {
			w := &headless{id: i + 1, w: width, h: height}
			start := time.Now()
			img, err := fetchOne(ctx, l, w, uri, compress, timeout)
			if err != nil {
				failed.Add(1)
				log.Warn("fetch failed", zimage.Fields{"uri": uri, "err": err})
				fmt.Fprintf(cmd.ErrOrStderr(), "%s\terror: %v\n", uri, err)
				return nil
			}
			b := img.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%dx%d\t%s\n", uri, b.Dx(), b.Dy(), time.Since(start).Round(time.Millisecond))
			if out != "" {
				return writePNG(filepath.Join(out, keys.Disk(uri)+".png"), img)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d fetches failed", n, len(args))
	}
	return nil
}

func fetchOne(ctx context.Context, l zimage.Loader, w *headless, uri string, compress bool, timeout time.Duration) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	listener := zimage.ListenerFuncs{
		Complete:  func(_ string, _ *zimage.Sink, img image.Image) { done <- fetchResult{img: img} },
		Failed:    func(_ string, _ *zimage.Sink, r *zimage.FailReason) { done <- fetchResult{err: r} },
		Cancelled: func(string, *zimage.Sink) { done <- fetchResult{err: errCancelled} },
	}
	s := zimage.NewSink(w, uri, zimage.WithCompress(compress))
	if err := l.Display(ui.WithThread(ctx), s, listener); err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		if r.err == nil && r.img == nil {
			return nil, errors.New("empty uri")
		}
		return r.img, r.err
	case <-ctx.Done():
		l.CancelDisplayTask(s)
		return nil, ctx.Err()
	}
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}

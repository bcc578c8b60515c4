package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/vidcap/pkg/vidcap"
)

type captureFlags struct {
	fourcc   string
	width    int
	height   int
	fps      string
	frames   int
	duration time.Duration
	output   string
	rescale  bool
}

// requested builds the format to bind. Unset fields are taken from the
// source's first advertised format; with no fields set, nil is returned
// and the bind picks that format itself.
func (f *captureFlags) requested(src *vidcap.Source) (*vidcap.Format, error) {
	if f.fourcc == "" && f.width == 0 && f.height == 0 && f.fps == "" {
		return nil, nil
	}
	base, ok := src.FormatEnumerate(0)
	if !ok {
		base = vidcap.Format{FPSNumerator: 30, FPSDenominator: 1}
	}
	if f.fourcc != "" {
		fourcc, err := vidcap.ParseFourcc(f.fourcc)
		if err != nil {
			return nil, err
		}
		base.Fourcc = fourcc
	}
	if f.width > 0 {
		base.Width = f.width
	}
	if f.height > 0 {
		base.Height = f.height
	}
	if f.fps != "" {
		num, den, err := parseRate(f.fps)
		if err != nil {
			return nil, err
		}
		base.FPSNumerator, base.FPSDenominator = num, den
	}
	return &base, nil
}

// frameSink counts frames and optionally writes them out. It is driven
// from the capture callback.
type frameSink struct {
	limit int
	w     *bufio.Writer

	mu     sync.Mutex
	frames int
	bytes  int64
	status int
	err    error
	first  time.Time
	last   time.Time
	done   chan struct{}
	once   sync.Once
}

func (s *frameSink) finish() { s.once.Do(func() { close(s.done) }) }

func (s *frameSink) deliver(_ *vidcap.Source, _ any, info *vidcap.CaptureInfo) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info.ErrorStatus != 0 {
		s.status = info.ErrorStatus
		s.finish()
		return 0
	}
	if s.limit > 0 && s.frames >= s.limit {
		return 1
	}

	ts := time.Unix(info.TimestampSec, info.TimestampUsec*1000)
	if s.frames == 0 {
		s.first = ts
	}
	s.last = ts
	s.frames++
	s.bytes += int64(info.Size)

	if s.w != nil {
		if _, err := s.w.Write(info.Data); err != nil {
			s.err = err
			s.finish()
			return 1
		}
	}
	if s.limit > 0 && s.frames >= s.limit {
		s.finish()
		return 1
	}
	return 0
}

func (s *frameSink) summary(w io.Writer, f vidcap.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(w, "captured %d frames (%d bytes) as %s", s.frames, s.bytes, f)
	if s.frames > 1 {
		if span := s.last.Sub(s.first); span > 0 {
			fmt.Fprintf(w, ", %.2f fps", float64(s.frames-1)/span.Seconds())
		}
	}
	fmt.Fprintln(w)
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var flags contextFlags
	var cf captureFlags

	cmd := &cobra.Command{
		Use:   "capture <backend> <source>",
		Short: "Capture frames from a source",
		Long: `Binds a format on a source and captures until the frame limit, the ` +
			`duration, an interrupt or a device error. Frames can be written raw to a file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cf.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cf.duration)
				defer cancel()
			}

			vc, err := flags.open(args[0], func(o *vidcap.Options) { o.PermitRescale = cf.rescale })
			if err != nil {
				return err
			}
			b, err := acquireBackend(vc, args[0])
			if err != nil {
				_ = vc.Destroy()
				return err
			}
			src, err := acquireSource(ctx, b, args[1])
			if err != nil {
				_ = releaseAll(nil, b, vc)
				return err
			}
			defer func() { _ = releaseAll(src, b, vc) }()

			want, err := cf.requested(src)
			if err != nil {
				return err
			}
			if err := src.FormatBind(want); err != nil {
				return err
			}
			bound, err := src.FormatInfoGet()
			if err != nil {
				return err
			}

			sink := &frameSink{limit: cf.frames, done: make(chan struct{})}
			if cf.output != "" {
				file, err := os.Create(cf.output)
				if err != nil {
					return err
				}
				defer file.Close()
				sink.w = bufio.NewWriterSize(file, 1<<20)
			}

			if err := src.CaptureStart(sink.deliver, nil); err != nil {
				return err
			}

			select {
			case <-sink.done:
			case <-ctx.Done():
			}
			// Stop before flushing so the callback no longer writes.
			if err := src.CaptureStop(); err != nil && !isStopped(err) {
				return err
			}

			sink.summary(cmd.OutOrStdout(), bound)
			if sink.w != nil {
				if err := sink.w.Flush(); err != nil {
					return err
				}
			}
			if sink.err != nil {
				return fmt.Errorf("write frames: %w", sink.err)
			}
			if sink.status != 0 {
				return fmt.Errorf("capture ended with status %d", sink.status)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&cf.fourcc, "fourcc", "f", "", "Pixel encoding (i420, yuy2, rgb32, ...)")
	cmd.Flags().IntVarP(&cf.width, "width", "W", 0, "Frame width")
	cmd.Flags().IntVarP(&cf.height, "height", "H", 0, "Frame height")
	cmd.Flags().StringVarP(&cf.fps, "fps", "r", "", "Frame rate, e.g. 15 or 30000/1001")
	cmd.Flags().IntVarP(&cf.frames, "frames", "n", 0, "Stop after this many frames (0 = unlimited)")
	cmd.Flags().DurationVarP(&cf.duration, "duration", "d", 0, "Stop after this long (0 = unlimited)")
	cmd.Flags().StringVarP(&cf.output, "output", "o", "", "Write raw frames to this file")
	cmd.Flags().BoolVar(&cf.rescale, "rescale", false, "Allow software rescaling when no native format fits")
	return cmd
}

// isStopped reports a stop that found the capture already ended by the
// callback or a device error.
func isStopped(err error) bool { return errors.Is(err, vidcap.ErrInvalidStateTransition) }

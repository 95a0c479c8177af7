package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/gazepoint/internal/config"
	"github.com/teslashibe/gazepoint/internal/log"
	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/sensor"
)

func newCalibrateCmd(a *app) *cobra.Command {
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate from the terminal and save the set",
		Long: `Calibrate walks through the nine anchors in order. For each one, look
at the anchor, type its trigger key and press Enter, hold the fixation,
then press Enter again to seal it. The finished set is saved to the
configured store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.calibrate(cmd, poll)
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 10*time.Millisecond, "sensor poll interval while collecting")
	return cmd
}

func (a *app) calibrate(cmd *cobra.Command, poll time.Duration) error {
	if a.cfg.Sensor.Source == config.SourceIngest {
		return errors.New("calibrate needs a sensor to read from; with the ingest source calibrate through the web API")
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	src, mock, runSource := a.buildSource(nil)
	var lookAt func(calibration.Anchor)
	if mock != nil {
		lookAt = func(an calibration.Anchor) {
			mock.LookAt(sensor.MockGaze(an))
			mock.Emit()
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runSource(gctx) })

	out := cmd.OutOrStdout()
	set, err := calibrateInteractive(gctx, cmd.InOrStdin(), out, src, lookAt, poll, log.Named("calibration"))
	cancel()
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	if err != nil {
		return err
	}

	model, err := calibration.NewModel(set, a.cfg.Screen)
	if err != nil {
		return err
	}
	if err := st.Save(cmd.Context(), set); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %d anchors to %s\nModel: %s\n", len(set), a.cfg.Calibration.Path, model)
	return nil
}

// calibrateInteractive runs one session, reading operator input line by
// line from in. lookAt, when set, is called once an anchor opens.
func calibrateInteractive(ctx context.Context, in io.Reader, out io.Writer, src sensor.Source,
	lookAt func(calibration.Anchor), poll time.Duration, logger *zap.Logger) (calibration.Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sess := calibration.NewSession(logger)
	quit := make(chan struct{})
	defer close(quit)
	lines := scanLines(in, quit)
	next := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", io.ErrUnexpectedEOF
			}
			return line, nil
		}
	}

	for !sess.Done() {
		an, _ := sess.Current()
		step, total := sess.Progress()
		fmt.Fprintf(out, "[%d/%d] Look at %s and type %c\n", step, total, an.Name, rune(an.Trigger))

		line, err := next()
		if err != nil {
			return nil, err
		}
		key, _ := utf8.DecodeRuneInString(strings.TrimSpace(line))
		if _, err := sess.Trigger(key); err != nil {
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}

		base := latestSeq(src)
		if lookAt != nil {
			lookAt(an)
		}
		fmt.Fprintln(out, "  Collecting, press Enter when done")

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			collect(sess, src, base, stop, poll, logger)
			close(done)
		}()
		_, err = next()
		close(stop)
		<-done
		if err != nil {
			return nil, err
		}

		rec, err := sess.Finish()
		if err != nil {
			fmt.Fprintf(out, "  %v, redo %s\n", err, an.Name)
			continue
		}
		fmt.Fprintf(out, "  %s: %d frames, avg dx=%.4f dy=%.4f width=%.2f\n",
			rec.Anchor, rec.Count, rec.MeanDX, rec.MeanDY, rec.MeanWidth)
	}
	return sess.Set()
}

// collect feeds every new reading after seq base into sess until stop is
// closed. It always polls once before checking stop.
func collect(sess *calibration.Session, src sensor.Source, base uint64, stop <-chan struct{},
	poll time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := base
	for {
		if r, ok := src.Latest(); ok && r.Seq != last {
			last = r.Seq
			if err := sess.AddSample(r.Sample); err != nil {
				logger.Debug("calibration sample rejected", zap.Uint64("seq", r.Seq), zap.Error(err))
			}
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func latestSeq(src sensor.Source) uint64 {
	if r, ok := src.Latest(); ok {
		return r.Seq
	}
	return 0
}

// scanLines delivers lines from r until EOF or until quit is closed. A
// read already blocked on r returns only once r does.
func scanLines(r io.Reader, quit <-chan struct{}) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-quit:
				return
			}
		}
	}()
	return ch
}

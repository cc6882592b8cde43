package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/himanishpuri/sonicres/internal/decode"
	"github.com/himanishpuri/sonicres/internal/match"
	"github.com/himanishpuri/sonicres/internal/observe"
	"github.com/himanishpuri/sonicres/pkg/logger"
	"github.com/himanishpuri/sonicres/pkg/models"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

const (
	msgNoAudio      = "No audio data received"
	msgDecodeFailed = "Audio decoding failed"
	msgTimedOut     = "Audio processing timed out"
	msgNoMatch      = "No match found"
	msgProcessing   = "Audio processing error: "
)

// stageGrace bounds how long teardown waits for a decode or match call that
// is still running after its deadline.
const stageGrace = 2 * time.Second

// Job decodes and identifies one finalized session, delivers the outcome,
// then releases every resource the session held. A Job owns Buffer from the
// moment it is constructed.
type Job struct {
	SessionID string
	Buffer    *Buffer
	Conn      Conn

	Decoder decode.Decoder
	Matcher match.Matcher

	TempDir       string
	DecodeTimeout time.Duration
	MatchTimeout  time.Duration

	Metrics *observe.Metrics
	Log     *logger.Logger

	stages       sync.WaitGroup
	teardownOnce sync.Once
}

// Run never panics and never returns before teardown has happened.
func (j *Job) Run(ctx context.Context) Outcome {
	start := time.Now()
	var wavPath string
	// Safety net; teardown runs once.
	defer j.teardown(&wavPath)

	out := j.process(ctx, &wavPath)
	j.deliver(out)
	j.teardown(&wavPath)
	if j.Conn.IsOpen() {
		if err := j.Conn.Close(websocket.CloseNormalClosure, ""); err != nil {
			j.Log.Debugf("close after delivery: %v", err)
		}
	}

	if j.Metrics != nil {
		j.Metrics.RecordOutcome(ctx, out.Code())
		j.Metrics.JobDuration.Record(ctx, time.Since(start).Seconds())
	}
	return out
}

// process runs the pipeline and converts every failure, panics included,
// into an Outcome.
func (j *Job) process(ctx context.Context, wavPath *string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			j.Log.Errorf("processing panicked: %v", r)
			out = Failure(CodeMatchFailed, fmt.Sprintf("%s%v", msgProcessing, r), fmt.Errorf("panic: %v", r))
		}
	}()

	art, err := j.Buffer.Finalize()
	if err != nil {
		return Failure(CodeResource, msgProcessing+"could not read recorded audio", err)
	}
	if art.Size == 0 {
		return Failure(CodeEmptyInput, msgNoAudio, nil)
	}
	j.Log.Infof("processing %s of audio", humanize.Bytes(uint64(art.Size)))

	f, err := os.CreateTemp(j.TempDir, "audio-wav-*.wav")
	if err != nil {
		return Failure(CodeResource, msgProcessing+"could not allocate decode output", err)
	}
	*wavPath = f.Name()
	f.Close()

	decodeStart := time.Now()
	pcm, err := withDeadline(ctx, j.DecodeTimeout, &j.stages, func(ctx context.Context) (models.PCM, error) {
		return j.Decoder.Decode(ctx, art.Path, *wavPath, models.CanonicalProfile)
	})
	if j.Metrics != nil {
		j.Metrics.DecodeDuration.Record(ctx, time.Since(decodeStart).Seconds())
	}
	if err != nil {
		if isTimeout(err) {
			return Failure(CodeTimeout, msgTimedOut, err)
		}
		return Failure(CodeDecodeFailed, msgDecodeFailed, err)
	}
	if len(pcm.Data) == 0 || pcm.Profile != models.CanonicalProfile {
		return Failure(CodeDecodeFailed, msgDecodeFailed,
			fmt.Errorf("decoder returned %d bytes as %s", len(pcm.Data), pcm.Profile))
	}
	j.Log.Debugf("decoded %v of audio", pcm.Duration())

	matchStart := time.Now()
	id, err := withDeadline(ctx, j.MatchTimeout, &j.stages, func(ctx context.Context) (models.Identification, error) {
		return j.Matcher.Match(ctx, pcm)
	})
	if j.Metrics != nil {
		j.Metrics.MatchDuration.Record(ctx, time.Since(matchStart).Seconds())
	}
	switch {
	case err == nil:
		return Success(id)
	case isTimeout(err):
		return Failure(CodeTimeout, msgTimedOut, err)
	case errors.Is(err, match.ErrNoMatch):
		return Failure(CodeMatchFailed, msgNoMatch, err)
	default:
		return Failure(CodeMatchFailed, msgProcessing+err.Error(), err)
	}
}

func (j *Job) deliver(out Outcome) {
	if !j.Conn.IsOpen() {
		j.Log.Warnf("client gone before outcome %s could be delivered", out.Code())
		return
	}
	if err := j.Conn.Send(out.Message()); err != nil {
		j.Log.Warnf("%v", newError(CodeDeliveryFailed, "outcome delivery failed", err))
		return
	}
	if out.OK() {
		id := out.Identification()
		j.Log.Infof("identified %q by %q (confidence %.2f)", id.TrackName, id.Artist, id.Confidence)
	} else {
		j.Log.Infof("delivered error outcome: %v", out.Err())
	}
}

func (j *Job) teardown(wavPath *string) {
	j.teardownOnce.Do(func() {
		j.awaitStages()
		if err := j.Buffer.Discard(); err != nil {
			j.Log.Warnf("discarding session buffer: %v", err)
		}
		if err := utils.DeleteFile(*wavPath); err != nil {
			j.Log.Warnf("removing decoded audio: %v", err)
		}
	})
}

// awaitStages waits up to stageGrace for abandoned stage calls so that a
// late write to the decode output happens before the file is removed.
func (j *Job) awaitStages() {
	done := make(chan struct{})
	go func() {
		j.stages.Wait()
		close(done)
	}()
	t := time.NewTimer(stageGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		j.Log.Warnf("stage still running %v after its deadline", stageGrace)
	}
}

var errDeadline = &Error{Code: CodeTimeout, Message: "stage deadline exceeded", Err: context.DeadlineExceeded}

// withDeadline runs fn under a timeout and stops waiting when it expires,
// even if fn ignores its context. wg tracks fn until it actually returns.
func withDeadline[T any](ctx context.Context, d time.Duration, wg *sync.WaitGroup, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var (
		v   T
		err error
		p   any
	)
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			p = recover()
			close(done)
		}()
		v, err = fn(ctx)
	}()

	select {
	case <-done:
		if p != nil {
			panic(p)
		}
		return v, err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, errDeadline
		}
		return zero, ctx.Err()
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

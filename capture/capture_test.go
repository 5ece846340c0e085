// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/lib/testutil"
	"github.com/telescreen-dev/telescreen/video"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// solidFrame returns a width x height frame filled with one color so
// tests can recognize which frame came back by its first pixel.
func solidFrame(width, height int, r, g, b byte) *video.Frame {
	frame := video.NewFrame(width, height)
	for i := 0; i < len(frame.Pixels); i += video.BytesPerPixel {
		frame.Pixels[i] = r
		frame.Pixels[i+1] = g
		frame.Pixels[i+2] = b
	}
	return frame
}

// readResult scripts one ReadFrame outcome on a fakeDevice.
type readResult struct {
	frame *video.Frame
	err   error
}

// fakeDevice plays back a scripted sequence of read results. Once the
// script is exhausted every further read returns defaultFrame.
type fakeDevice struct {
	format       Format
	script       []readResult
	defaultFrame *video.Frame
	reads        int
	closed       bool
}

func newFakeDevice(width, height int) *fakeDevice {
	return &fakeDevice{
		format:       Format{Width: width, Height: height},
		defaultFrame: solidFrame(width, height, 1, 2, 3),
	}
}

func (d *fakeDevice) ReadFrame(ctx context.Context) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.reads++
	if len(d.script) > 0 {
		result := d.script[0]
		d.script = d.script[1:]
		return result.frame, result.err
	}
	return d.defaultFrame, nil
}

func (d *fakeDevice) Format() Format { return d.format }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// fakeOpener dispatches opens through a function and records every
// candidate it was asked for.
type fakeOpener struct {
	open  func(c Candidate) (Device, error)
	calls []Candidate
}

func (o *fakeOpener) Open(ctx context.Context, c Candidate) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.calls = append(o.calls, c)
	return o.open(c)
}

var errTransient = errors.New("Hardware MFT failed to start streaming (0xC00D3704)")

func TestDefaultLadderOrder(t *testing.T) {
	t.Parallel()

	ladder := DefaultLadder([]int{0, 1})
	if got, want := len(ladder), 10; got != want {
		t.Fatalf("ladder length = %d, want %d", got, want)
	}
	// Cheapest tier covers every index before the next tier starts.
	first := Candidate{DeviceIndex: 0, Width: 320, Height: 240, PixelFormat: "YUY2"}
	second := Candidate{DeviceIndex: 1, Width: 320, Height: 240, PixelFormat: "YUY2"}
	if ladder[0] != first || ladder[1] != second {
		t.Errorf("ladder head = %v, %v; want %v, %v", ladder[0], ladder[1], first, second)
	}
	// The final rungs are unconstrained, one per index.
	last := ladder[len(ladder)-1]
	if last.PixelFormat != "" || last.Width != 0 || last.DeviceIndex != 1 {
		t.Errorf("ladder tail = %v, want unconstrained device 1", last)
	}
}

func TestOpenFirstCandidate(t *testing.T) {
	t.Parallel()

	device := newFakeDevice(320, 240)
	opener := &fakeOpener{open: func(Candidate) (Device, error) { return device, nil }}
	clk := clock.Fake(time.Unix(0, 0))

	source, err := Open(context.Background(), opener, Config{}, clk, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer source.Close()

	if got, want := len(opener.calls), 1; got != want {
		t.Errorf("open calls = %d, want %d", got, want)
	}
	if got, want := source.Format(), (Format{Width: 320, Height: 240}); got != want {
		t.Errorf("Format() = %v, want %v", got, want)
	}
	if !source.Healthy() {
		t.Error("fresh source should be healthy")
	}
	// The probe consumed one read.
	if got, want := device.reads, 1; got != want {
		t.Errorf("device reads = %d, want %d", got, want)
	}
}

func TestOpenWalksLadder(t *testing.T) {
	t.Parallel()

	ladder := []Candidate{
		{DeviceIndex: 0, Width: 320, Height: 240, PixelFormat: "YUY2"},
		{DeviceIndex: 1, Width: 320, Height: 240, PixelFormat: "YUY2"},
		{DeviceIndex: 0},
	}
	device := newFakeDevice(640, 480)
	opener := &fakeOpener{open: func(c Candidate) (Device, error) {
		if c.PixelFormat != "" {
			return nil, fmt.Errorf("format %s not supported", c.PixelFormat)
		}
		return device, nil
	}}
	clk := clock.Fake(time.Unix(0, 0))

	source, err := Open(context.Background(), opener, Config{Ladder: ladder, OpenAttempts: 1}, clk, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer source.Close()

	if got, want := len(opener.calls), 3; got != want {
		t.Fatalf("open calls = %d, want %d", got, want)
	}
	if got, want := opener.calls[2], ladder[2]; got != want {
		t.Errorf("winning candidate = %v, want %v", got, want)
	}
	if got, want := source.Format(), (Format{Width: 640, Height: 480}); got != want {
		t.Errorf("Format() = %v, want %v", got, want)
	}
}

func TestOpenRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	attempts := 0
	device := newFakeDevice(320, 240)
	opener := &fakeOpener{open: func(Candidate) (Device, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("device busy")
		}
		return device, nil
	}}
	clk := clock.Fake(time.Unix(0, 0))
	cfg := Config{
		Ladder:       []Candidate{{DeviceIndex: 0}},
		OpenAttempts: 3,
		OpenBackoff:  300 * time.Millisecond,
	}

	type result struct {
		source *Source
		err    error
	}
	done := make(chan result, 1)
	go func() {
		source, err := Open(context.Background(), opener, cfg, clk, testLogger())
		done <- result{source, err}
	}()

	// Two failed attempts, each followed by one backoff sleep.
	for i := 0; i < 2; i++ {
		clk.WaitForTimers(1)
		clk.Advance(300 * time.Millisecond)
	}

	got := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Open")
	if got.err != nil {
		t.Fatalf("Open: %v", got.err)
	}
	defer got.source.Close()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestOpenAllCandidatesFail(t *testing.T) {
	t.Parallel()

	ladder := []Candidate{
		{DeviceIndex: 0, Width: 320, Height: 240, PixelFormat: "YUY2"},
		{DeviceIndex: 1},
	}
	opener := &fakeOpener{open: func(c Candidate) (Device, error) {
		return nil, fmt.Errorf("no such device %d", c.DeviceIndex)
	}}
	clk := clock.Fake(time.Unix(0, 0))

	_, err := Open(context.Background(), opener, Config{Ladder: ladder, OpenAttempts: 1}, clk, testLogger())
	if err == nil {
		t.Fatal("Open succeeded, want error")
	}
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error type = %T, want *OpenError", err)
	}
	if got, want := len(openErr.Failures), 2; got != want {
		t.Fatalf("failures = %d, want %d", got, want)
	}
	text := err.Error()
	for _, want := range []string{"no camera could be opened", "device 0 320x240 YUY2", "device 1 (native)"} {
		if !strings.Contains(text, want) {
			t.Errorf("error %q missing %q", text, want)
		}
	}
}

func TestOpenProbeFailureClosesDevice(t *testing.T) {
	t.Parallel()

	device := newFakeDevice(320, 240)
	device.script = []readResult{{err: errors.New("select timeout")}}
	opener := &fakeOpener{open: func(Candidate) (Device, error) { return device, nil }}
	clk := clock.Fake(time.Unix(0, 0))

	_, err := Open(context.Background(), opener, Config{
		Ladder:       []Candidate{{DeviceIndex: 0}},
		OpenAttempts: 1,
	}, clk, testLogger())
	if err == nil {
		t.Fatal("Open succeeded, want probe failure")
	}
	if !device.closed {
		t.Error("device not closed after failed probe")
	}
	if !strings.Contains(err.Error(), "probe read") {
		t.Errorf("error %q missing probe context", err)
	}
}

// openSource builds a Source around a scripted device, consuming the
// probe read.
func openSource(t *testing.T, device *fakeDevice) *Source {
	t.Helper()
	opener := &fakeOpener{open: func(Candidate) (Device, error) { return device, nil }}
	source, err := Open(context.Background(), opener, Config{
		Ladder:       []Candidate{{DeviceIndex: 0}},
		OpenAttempts: 1,
	}, clock.Fake(time.Unix(0, 0)), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { source.Close() })
	return source
}

func TestFrameTransientErrorServesBackup(t *testing.T) {
	t.Parallel()

	probeFrame := solidFrame(4, 4, 10, 20, 30)
	device := newFakeDevice(4, 4)
	device.script = []readResult{
		{frame: probeFrame},
		{err: errTransient},
	}
	source := openSource(t, device)

	frame, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(frame.Pixels, probeFrame.Pixels) {
		t.Error("backup frame is not byte-identical to the last good frame")
	}
	// Transient errors get no retry: probe + one failed read.
	if got, want := device.reads, 2; got != want {
		t.Errorf("device reads = %d, want %d", got, want)
	}
	if !source.Healthy() {
		t.Error("one transient failure should not mark the source unhealthy")
	}
}

func TestFrameNonTransientErrorRetriesOnce(t *testing.T) {
	t.Parallel()

	replacement := solidFrame(4, 4, 200, 0, 0)
	device := newFakeDevice(4, 4)
	device.script = []readResult{
		{frame: solidFrame(4, 4, 10, 20, 30)},
		{err: errors.New("EBUSY")},
		{frame: replacement},
	}
	source := openSource(t, device)

	frame, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(frame.Pixels, replacement.Pixels) {
		t.Error("retry result not returned")
	}
	if got, want := device.reads, 3; got != want {
		t.Errorf("device reads = %d, want %d", got, want)
	}
}

func TestFrameNonTransientRetryFailureServesBackup(t *testing.T) {
	t.Parallel()

	probeFrame := solidFrame(4, 4, 10, 20, 30)
	device := newFakeDevice(4, 4)
	device.script = []readResult{
		{frame: probeFrame},
		{err: errors.New("EBUSY")},
		{err: errors.New("EBUSY")},
	}
	source := openSource(t, device)

	frame, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(frame.Pixels, probeFrame.Pixels) {
		t.Error("backup frame not served after retry failure")
	}
	if got, want := device.reads, 3; got != want {
		t.Errorf("device reads = %d, want %d", got, want)
	}
}

func TestUnhealthyAfterFailureRun(t *testing.T) {
	t.Parallel()

	device := newFakeDevice(4, 4)
	device.script = []readResult{{frame: solidFrame(4, 4, 10, 20, 30)}}
	for i := 0; i < 12; i++ {
		device.script = append(device.script, readResult{err: errTransient})
	}
	source := openSource(t, device)

	// Five consecutive failures are tolerated at full health.
	for i := 0; i < 5; i++ {
		if _, err := source.Frame(context.Background()); err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
	}
	if !source.Healthy() {
		t.Fatal("source unhealthy after 5 failures, want healthy")
	}

	// The sixth failure crosses the line.
	if _, err := source.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if source.Healthy() {
		t.Fatal("source healthy after 6 consecutive failures, want unhealthy")
	}

	// Unhealthy mode touches the device only every other call.
	readsBefore := device.reads
	if _, err := source.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if device.reads != readsBefore {
		t.Errorf("first unhealthy call read the device (reads %d -> %d)", readsBefore, device.reads)
	}
	if _, err := source.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if device.reads != readsBefore+1 {
		t.Errorf("second unhealthy call did not read the device (reads %d -> %d)", readsBefore, device.reads)
	}
}

func TestSingleSuccessRestoresHealth(t *testing.T) {
	t.Parallel()

	recovered := solidFrame(4, 4, 0, 255, 0)
	device := newFakeDevice(4, 4)
	device.script = []readResult{{frame: solidFrame(4, 4, 10, 20, 30)}}
	for i := 0; i < 6; i++ {
		device.script = append(device.script, readResult{err: errTransient})
	}
	device.script = append(device.script, readResult{frame: recovered})
	source := openSource(t, device)

	for i := 0; i < 6; i++ {
		if _, err := source.Frame(context.Background()); err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
	}
	if source.Healthy() {
		t.Fatal("want unhealthy after failure run")
	}

	// First unhealthy call is backup-only; the second reads the device
	// and succeeds.
	if _, err := source.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	frame, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(frame.Pixels, recovered.Pixels) {
		t.Error("recovered frame not returned")
	}
	if !source.Healthy() {
		t.Error("one success should fully restore health")
	}
}

func TestFramePoolRotation(t *testing.T) {
	t.Parallel()

	device := newFakeDevice(4, 4)
	device.script = []readResult{
		{frame: solidFrame(4, 4, 10, 20, 30)},
		{frame: solidFrame(4, 4, 1, 0, 0)},
		{frame: solidFrame(4, 4, 2, 0, 0)},
		{frame: solidFrame(4, 4, 3, 0, 0)},
		{frame: solidFrame(4, 4, 4, 0, 0)},
	}
	source := openSource(t, device)

	frames := make([]*video.Frame, 4)
	for i := range frames {
		frame, err := source.Frame(context.Background())
		if err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
		frames[i] = frame
	}

	// Three distinct buffers, then the first one comes around again.
	if &frames[0].Pixels[0] == &frames[1].Pixels[0] {
		t.Error("consecutive reads share a buffer")
	}
	if &frames[0].Pixels[0] == &frames[2].Pixels[0] {
		t.Error("reads two apart share a buffer")
	}
	if &frames[0].Pixels[0] != &frames[3].Pixels[0] {
		t.Error("fourth read did not reuse the first buffer")
	}
	if got, want := frames[3].Pixels[0], byte(4); got != want {
		t.Errorf("reused buffer pixel = %d, want %d", got, want)
	}
}

func TestBackupUnaffectedByCallerWrites(t *testing.T) {
	t.Parallel()

	goodFrame := solidFrame(4, 4, 10, 20, 30)
	device := newFakeDevice(4, 4)
	device.script = []readResult{
		{frame: goodFrame},
		{frame: goodFrame},
		{err: errTransient},
	}
	source := openSource(t, device)

	frame, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	// Scribble over the returned pool buffer.
	for i := range frame.Pixels {
		frame.Pixels[i] = 0xFF
	}

	backup, err := source.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !bytes.Equal(backup.Pixels, goodFrame.Pixels) {
		t.Error("caller writes to a returned frame leaked into the backup")
	}
}

func TestFrameContextCanceled(t *testing.T) {
	t.Parallel()

	device := newFakeDevice(4, 4)
	source := openSource(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.Frame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Frame error = %v, want context.Canceled", err)
	}
	if !source.Healthy() {
		t.Error("cancellation must not count as a device failure")
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mf_error_code", errors.New("IMFMediaSource error 0xC00D3704"), true},
		{"mft_start", errors.New("Hardware MFT failed to start streaming"), true},
		{"bare_mft", errors.New("could not lock MFT"), true},
		{"hardware", errors.New("HARDWARE fault on stream"), true},
		{"permission", errors.New("permission denied"), false},
		{"timeout", errors.New("read timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

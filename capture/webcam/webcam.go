// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package webcam opens V4L2 cameras through GStreamer and adapts them
// to the capture.Device interface.
//
// Each open builds a short pipeline: v4l2src, an optional source
// capsfilter pinning the camera mode the candidate asks for (plus
// jpegdec for MJPG), then videoconvert and videoscale into a final
// capsfilter that locks the output to packed RGB at known dimensions.
// Scaling at the sink end means the output size is always known even
// for unconstrained candidates, where the camera negotiates whatever
// native mode it prefers.
//
// The appsink runs with sync=false, max-buffers=1, drop=true so the
// pipeline always holds the freshest frame and never blocks on a slow
// reader. Building this package requires the GStreamer C libraries.
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/telescreen-dev/telescreen/capture"
	"github.com/telescreen-dev/telescreen/video"
)

const (
	// defaultReadTimeout bounds one ReadFrame wait. A healthy camera
	// delivers frames every 30-40ms; two seconds of silence means the
	// device has stalled.
	defaultReadTimeout = 2 * time.Second

	// openTimeout bounds the wait for the first frame after the
	// pipeline reaches PLAYING, so ladder walking fails fast on a
	// camera that negotiates caps but never streams.
	openTimeout = 5 * time.Second

	// Output dimensions for candidates that do not constrain the
	// source. The sink-side videoscale produces these regardless of
	// the camera's native mode.
	fallbackWidth  = 640
	fallbackHeight = 480
)

var initOnce sync.Once

// Opener opens cameras by building one GStreamer pipeline per
// candidate. The zero value is usable.
type Opener struct {
	// Logger receives pipeline diagnostics. Nil uses slog.Default.
	Logger *slog.Logger

	// ReadTimeout overrides the per-read stall timeout.
	ReadTimeout time.Duration
}

var _ capture.Opener = Opener{}

// Open satisfies capture.Opener. It returns once the pipeline has
// produced its first frame, or an error if the candidate's mode
// cannot be negotiated or the camera stays silent.
func (o Opener) Open(ctx context.Context, c capture.Candidate) (capture.Device, error) {
	initOnce.Do(func() { gst.Init(nil) })

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readTimeout := o.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	width, height := c.Width, c.Height
	if width <= 0 || height <= 0 {
		width, height = fallbackWidth, fallbackHeight
	}

	d := &device{
		format:      capture.Format{Width: width, Height: height},
		frameLength: video.PixelLength(width, height),
		samples:     make(chan []byte, 1),
		errs:        make(chan error, 1),
		stop:        make(chan struct{}),
		readTimeout: readTimeout,
		logger:      logger,
	}

	pipeline, sink, err := buildPipeline(c, width, height)
	if err != nil {
		return nil, err
	}
	d.pipeline = pipeline
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: d.onNewSample})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("start pipeline for %s: %w", c, err)
	}
	go d.watchBus()

	select {
	case pixels := <-d.samples:
		// Requeue so the caller's probe read sees it immediately.
		select {
		case d.samples <- pixels:
		default:
		}
	case err := <-d.errs:
		d.Close()
		return nil, err
	case <-time.After(openTimeout):
		d.Close()
		return nil, fmt.Errorf("no frame within %v from %s", openTimeout, c)
	case <-ctx.Done():
		d.Close()
		return nil, ctx.Err()
	}
	return d, nil
}

// buildPipeline assembles v4l2src through appsink for one candidate.
func buildPipeline(c capture.Candidate, outWidth, outHeight int) (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: %w", err)
	}

	source, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("create v4l2src: %w", err)
	}
	source.SetProperty("device", fmt.Sprintf("/dev/video%d", c.DeviceIndex))

	elements := []*gst.Element{source}

	if caps := sourceCaps(c); caps != "" {
		filter, err := gst.NewElement("capsfilter")
		if err != nil {
			return nil, nil, fmt.Errorf("create source capsfilter: %w", err)
		}
		filter.SetProperty("caps", gst.NewCapsFromString(caps))
		elements = append(elements, filter)
	}
	if c.PixelFormat == "MJPG" {
		decoder, err := gst.NewElement("jpegdec")
		if err != nil {
			return nil, nil, fmt.Errorf("create jpegdec: %w", err)
		}
		elements = append(elements, decoder)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoscale: %w", err)
	}
	outFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("create output capsfilter: %w", err)
	}
	outCaps := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", outWidth, outHeight)
	outFilter.SetProperty("caps", gst.NewCapsFromString(outCaps))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	elements = append(elements, converter, scaler, outFilter, sink.Element)
	pipeline.AddMany(elements...)
	if err := gst.ElementLinkMany(elements...); err != nil {
		return nil, nil, fmt.Errorf("link pipeline for %s: %w", c, err)
	}
	return pipeline, sink, nil
}

// sourceCaps returns the caps string constraining the camera's native
// mode, or "" for unconstrained candidates.
func sourceCaps(c capture.Candidate) string {
	switch c.PixelFormat {
	case "":
		return ""
	case "MJPG":
		return fmt.Sprintf("image/jpeg,width=%d,height=%d", c.Width, c.Height)
	default:
		return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d", c.PixelFormat, c.Width, c.Height)
	}
}

type device struct {
	pipeline    *gst.Pipeline
	format      capture.Format
	frameLength int
	samples     chan []byte
	errs        chan error
	stop        chan struct{}
	closeOnce   sync.Once
	readTimeout time.Duration
	logger      *slog.Logger
}

var _ capture.Device = (*device)(nil)

// onNewSample runs on the GStreamer streaming thread. It copies the
// sample out (GStreamer reuses the buffer) and hands it to ReadFrame,
// replacing any frame the reader has not collected yet.
func (d *device) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) != d.frameLength {
		buffer.Unmap()
		d.logger.Debug("webcam sample size mismatch",
			"got", len(data),
			"want", d.frameLength)
		return gst.FlowOK
	}
	pixels := make([]byte, len(data))
	copy(pixels, data)
	buffer.Unmap()

	select {
	case d.samples <- pixels:
	default:
		// Reader is behind: replace the stale frame with this one.
		select {
		case <-d.samples:
		default:
		}
		select {
		case d.samples <- pixels:
		default:
		}
	}
	return gst.FlowOK
}

// watchBus surfaces pipeline errors to ReadFrame. It exits on Close
// or when the pipeline reports end of stream.
func (d *device) watchBus() {
	bus := d.pipeline.GetPipelineBus()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			d.logger.Warn("webcam pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString())
			select {
			case d.errs <- fmt.Errorf("pipeline error: %s", gerr.Error()):
			default:
			}
		case gst.MessageEOS:
			select {
			case d.errs <- fmt.Errorf("pipeline end of stream"):
			default:
			}
			return
		}
	}
}

func (d *device) ReadFrame(ctx context.Context) (*video.Frame, error) {
	select {
	case pixels := <-d.samples:
		return &video.Frame{
			Width:  d.format.Width,
			Height: d.format.Height,
			Pixels: pixels,
		}, nil
	case err := <-d.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d.readTimeout):
		return nil, fmt.Errorf("no frame within %v", d.readTimeout)
	}
}

func (d *device) Format() capture.Format {
	return d.format
}

func (d *device) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.pipeline.SetState(gst.StateNull)
	})
	return nil
}

// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/video"
)

const (
	// fallbackWidth and fallbackHeight stand in when the terminal size
	// cannot be read (no tty, pipe, broken ioctl).
	fallbackWidth  = 120
	fallbackHeight = 40

	// writeBufferSize matches one frame of escape-heavy output so most
	// frames flush in a single write.
	writeBufferSize = 32 * 1024

	// minScale keeps at least a 2x reduction so full-resolution camera
	// frames never hit the terminal one pixel per cell.
	minScale = 2

	// asciiRamp maps top-pixel brightness to glyphs on colorless
	// terminals, darkest first.
	asciiRamp = " .:+#"
)

const halfBlock = "▀"

// Config assembles a Pipeline.
type Config struct {
	// Output receives the escape stream. Defaults to os.Stdout.
	Output io.Writer

	// Profile selects the palette. The zero value is termenv's
	// TrueColor; callers wiring a real terminal should pass
	// termenv.ColorProfile() so pipes and dumb terminals degrade to
	// the ASCII ramp.
	Profile termenv.Profile

	// Size reports the terminal dimensions in cells. Defaults to
	// querying Output's file descriptor, falling back to 120x40.
	Size func() (width, height int, err error)

	// Self is the local identity shown in the status line.
	Self gossip.PeerID

	// Clock feeds the frame-rate estimate. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives render diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// Pipeline renders decoded frames and the status line. Create one with
// NewPipeline and Close it to restore the cursor.
type Pipeline struct {
	out     *bufio.Writer
	profile termenv.Profile
	size    func() (int, int, error)
	clock   clock.Clock
	logger  *slog.Logger

	camWidth  int
	camHeight int

	termWidth  int
	termHeight int

	displayWidth  int
	displayHeight int
	scale         int
	padLeft       int
	padTop        int

	redraw bool

	frame []byte

	selfShort      string
	peerShort      string
	lastChat       string
	cameraDegraded bool

	frameCount  int
	windowStart time.Time
	fpsText     string

	resized atomic.Bool
	signals chan os.Signal
	stop    chan struct{}
}

// NewPipeline hides the cursor and starts watching for window size
// changes. The terminal stays in its altered state until Close.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Size == nil {
		cfg.Size = sizeOf(cfg.Output)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{
		out:       bufio.NewWriterSize(cfg.Output, writeBufferSize),
		profile:   cfg.Profile,
		size:      cfg.Size,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		selfShort: cfg.Self.Short(),
		fpsText:   "--",
		signals:   make(chan os.Signal, 1),
		stop:      make(chan struct{}),
	}

	if _, err := p.out.WriteString("\x1b[?25l"); err != nil {
		return nil, fmt.Errorf("render: hide cursor: %w", err)
	}
	if err := p.out.Flush(); err != nil {
		return nil, fmt.Errorf("render: hide cursor: %w", err)
	}

	signal.Notify(p.signals, unix.SIGWINCH)
	go p.watchResize()
	return p, nil
}

// sizeOf builds a size query for the writer, or the fallback when the
// writer has no queryable descriptor.
func sizeOf(w io.Writer) func() (int, int, error) {
	file, ok := w.(*os.File)
	if !ok {
		return func() (int, int, error) { return fallbackWidth, fallbackHeight, nil }
	}
	fd := int(file.Fd())
	return func() (int, int, error) {
		return term.GetSize(fd)
	}
}

func (p *Pipeline) watchResize() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.signals:
			p.resized.Store(true)
		}
	}
}

// Close restores the cursor and colors and stops the resize watcher.
func (p *Pipeline) Close() error {
	signal.Stop(p.signals)
	close(p.stop)
	if _, err := p.out.WriteString("\x1b[?25h\x1b[0m"); err != nil {
		return fmt.Errorf("render: restore cursor: %w", err)
	}
	if err := p.out.Flush(); err != nil {
		return fmt.Errorf("render: restore cursor: %w", err)
	}
	return nil
}

// SetPeer records the admitted peer for the status line.
func (p *Pipeline) SetPeer(id gossip.PeerID) {
	p.peerShort = id.Short()
	p.refreshStatus()
}

// ShowChat records the latest chat line and repaints the status row.
func (p *Pipeline) ShowChat(from gossip.PeerID, text string) {
	p.lastChat = from.Short() + ": " + text
	p.refreshStatus()
}

// SetCameraHealthy flags the local capture device's health in the
// status line. Frames keep flowing either way; a degraded camera is
// serving its backup frame.
func (p *Pipeline) SetCameraHealthy(healthy bool) {
	if p.cameraDegraded == !healthy {
		return
	}
	p.cameraDegraded = !healthy
	p.refreshStatus()
}

// ShowFrame paints one frame. Pixels is packed RGB, width*height*3
// bytes; the layout is rebuilt when the frame geometry or the terminal
// size changes.
func (p *Pipeline) ShowFrame(pixels []byte, width, height int) error {
	if width <= 0 || height <= 0 || len(pixels) != video.PixelLength(width, height) {
		return fmt.Errorf("render: frame geometry %dx%d does not match %d bytes", width, height, len(pixels))
	}

	if p.resized.Swap(false) {
		p.redraw = true
	}
	termWidth, termHeight := p.readSize()
	if termWidth != p.termWidth || termHeight != p.termHeight {
		p.termWidth = termWidth
		p.termHeight = termHeight
		p.redraw = true
	}
	if width != p.camWidth || height != p.camHeight {
		p.camWidth = width
		p.camHeight = height
		p.redraw = true
	}
	if p.redraw {
		p.calcLayout()
	}

	p.observeFrame()
	p.renderBlocks(pixels)
	p.appendStatus()

	if _, err := p.out.Write(p.frame); err != nil {
		return fmt.Errorf("render: write frame: %w", err)
	}
	if err := p.out.Flush(); err != nil {
		return fmt.Errorf("render: write frame: %w", err)
	}
	return nil
}

func (p *Pipeline) readSize() (int, int) {
	width, height, err := p.size()
	if err != nil || width <= 0 || height <= 0 {
		return fallbackWidth, fallbackHeight
	}
	return width, height
}

// calcLayout fits the camera geometry into the terminal: two rows are
// reserved for margins, three total with the status line, and the
// integer scale shrinks the frame until it fits, never below 2x. Each
// display row covers scale*2 camera rows because a cell holds two
// pixels vertically.
func (p *Pipeline) calcLayout() {
	maxWidth := p.termWidth - 2
	if maxWidth < 1 {
		maxWidth = 1
	}
	maxRows := p.termHeight - 3
	if maxRows < 1 {
		maxRows = 1
	}

	scaleX := ceilDiv(p.camWidth, maxWidth)
	scaleY := ceilDiv(p.camHeight, maxRows*2)
	p.scale = max(scaleX, scaleY, minScale)

	p.displayWidth = max(p.camWidth/p.scale, 1)
	p.displayHeight = max(p.camHeight/(p.scale*2), 1)

	p.padLeft = max(p.termWidth-p.displayWidth, 0) / 2
	p.padTop = max(p.termHeight-p.displayHeight-2, 0) / 2

	if cap(p.frame) == 0 {
		p.frame = make([]byte, 0, p.displayWidth*p.displayHeight*50+1000)
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// renderBlocks assembles the frame's escape stream into p.frame.
func (p *Pipeline) renderBlocks(pixels []byte) {
	p.frame = p.frame[:0]
	if p.redraw {
		p.frame = append(p.frame, "\x1b[2J\x1b[H"...)
		p.redraw = false
	} else {
		p.frame = append(p.frame, "\x1b[H"...)
	}

	for i := 0; i < p.padTop; i++ {
		p.frame = append(p.frame, '\n')
	}

	pixelCount := len(pixels) / video.BytesPerPixel
	var lastTop, lastBottom [3]byte
	for y := 0; y < p.displayHeight; y++ {
		for i := 0; i < p.padLeft; i++ {
			p.frame = append(p.frame, ' ')
		}

		// The emitted color state is unknown at the start of every
		// row: the row below ends with a reset.
		colorValid := false
		for x := 0; x < p.displayWidth; x++ {
			srcX := min(x*p.scale, p.camWidth-1)
			srcYTop := min(y*p.scale*2, p.camHeight-1)
			srcYBottom := min(y*p.scale*2+p.scale, p.camHeight-1)

			topIndex := srcYTop*p.camWidth + srcX
			bottomIndex := srcYBottom*p.camWidth + srcX
			if topIndex >= pixelCount || bottomIndex >= pixelCount {
				p.frame = append(p.frame, ' ')
				continue
			}

			top := pixelAt(pixels, topIndex)
			bottom := pixelAt(pixels, bottomIndex)

			if p.profile == termenv.Ascii {
				p.frame = append(p.frame, rampGlyph(top))
				continue
			}
			if !colorValid || top != lastTop || bottom != lastBottom {
				p.appendColorPair(top, bottom)
				lastTop = top
				lastBottom = bottom
				colorValid = true
			}
			p.frame = append(p.frame, halfBlock...)
		}

		p.frame = append(p.frame, "\x1b[0m\n"...)
	}
}

func pixelAt(pixels []byte, index int) [3]byte {
	offset := index * video.BytesPerPixel
	return [3]byte{pixels[offset], pixels[offset+1], pixels[offset+2]}
}

// rampGlyph maps brightness of the top sample onto the ASCII ramp.
func rampGlyph(top [3]byte) byte {
	brightness := (int(top[0]) + int(top[1]) + int(top[2])) / 3
	index := brightness * len(asciiRamp) / 256
	if index >= len(asciiRamp) {
		index = len(asciiRamp) - 1
	}
	return asciiRamp[index]
}

// appendColorPair emits the foreground/background pair for one cell.
// Truecolor writes 24-bit SGR directly; lesser color profiles go
// through termenv quantization.
func (p *Pipeline) appendColorPair(top, bottom [3]byte) {
	if p.profile == termenv.TrueColor {
		p.frame = appendRGB(p.frame, "\x1b[38;2;", top)
		p.frame = appendRGB(p.frame, "\x1b[48;2;", bottom)
		return
	}
	p.frame = append(p.frame, "\x1b["...)
	p.frame = append(p.frame, p.profile.Convert(rgbColor(top)).Sequence(false)...)
	p.frame = append(p.frame, "m\x1b["...)
	p.frame = append(p.frame, p.profile.Convert(rgbColor(bottom)).Sequence(true)...)
	p.frame = append(p.frame, 'm')
}

func appendRGB(buf []byte, prefix string, c [3]byte) []byte {
	buf = append(buf, prefix...)
	buf = strconv.AppendUint(buf, uint64(c[0]), 10)
	buf = append(buf, ';')
	buf = strconv.AppendUint(buf, uint64(c[1]), 10)
	buf = append(buf, ';')
	buf = strconv.AppendUint(buf, uint64(c[2]), 10)
	buf = append(buf, 'm')
	return buf
}

func rgbColor(c [3]byte) termenv.RGBColor {
	return termenv.RGBColor(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

// observeFrame feeds the frame-rate estimate, recomputed once a
// second.
func (p *Pipeline) observeFrame() {
	now := p.clock.Now()
	if p.windowStart.IsZero() {
		p.windowStart = now
	}
	p.frameCount++
	elapsed := now.Sub(p.windowStart)
	if elapsed >= time.Second {
		p.fpsText = strconv.FormatFloat(float64(p.frameCount)/elapsed.Seconds(), 'f', 1, 64)
		p.frameCount = 0
		p.windowStart = now
	}
}

// appendStatus writes the bottom status row into the frame buffer.
func (p *Pipeline) appendStatus() {
	parts := []string{"you " + p.selfShort}
	if p.peerShort != "" {
		parts = append(parts, "peer "+p.peerShort)
	}
	if p.cameraDegraded {
		parts = append(parts, "camera degraded")
	}
	parts = append(parts, p.fpsText+" fps")
	if p.lastChat != "" {
		parts = append(parts, p.lastChat)
	}
	status := ansi.Truncate(strings.Join(parts, " · "), p.termWidth, "…")

	p.frame = append(p.frame, "\x1b["...)
	p.frame = strconv.AppendInt(p.frame, int64(p.termHeight), 10)
	p.frame = append(p.frame, ";1H\x1b[2K"...)
	p.frame = append(p.frame, status...)
}

// refreshStatus repaints only the status row, for updates that arrive
// between frames.
func (p *Pipeline) refreshStatus() {
	if p.termWidth == 0 {
		p.termWidth, p.termHeight = p.readSize()
	}
	p.frame = p.frame[:0]
	p.appendStatus()
	if _, err := p.out.Write(p.frame); err != nil {
		p.logger.Warn("status write failed", "error", err)
		return
	}
	if err := p.out.Flush(); err != nil {
		p.logger.Warn("status write failed", "error", err)
	}
}

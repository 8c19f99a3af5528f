// Package console is a terminal front end for build mode: a top-down map
// around the viewer, a status line, and single-key commands.
package console

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/model"
	"github.com/signalsfoundry/wallstream/timectrl"
)

const (
	defaultStep          = 10.0
	defaultScale         = 5.0
	defaultFrameInterval = 50 * time.Millisecond
	helpLine             = "arrows move  a add  u undo  b break  c clear  f finish  +/- zoom  q quit"
)

var (
	styleDefault    = tcell.StyleDefault
	styleViewer     = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleWall       = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleGhost      = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleWaypoint   = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleRunning    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleStatusLine = tcell.StyleDefault.Reverse(true)
)

// Options wires the console to the streaming engine.
type Options struct {
	Manager *core.WallManager
	Viewer  *core.SurfaceViewer
	Backend *render.MemoryBackend
	Clock   *timectrl.TimeController
	Logger  logging.Logger

	// Step is how far one arrow press walks the viewer, in metres.
	Step float64
	// Scale is metres per terminal column. Rows cover twice as much.
	Scale         float64
	FrameInterval time.Duration
}

// Console owns the screen and runs every engine call on its loop goroutine.
type Console struct {
	screen  tcell.Screen
	manager *core.WallManager
	viewer  *core.SurfaceViewer
	backend *render.MemoryBackend
	clock   *timectrl.TimeController
	log     logging.Logger

	step, scale float64
	interval    time.Duration
	message     string
}

// New builds a console on an initialised screen.
func New(screen tcell.Screen, opts Options) *Console {
	c := &Console{
		screen:   screen,
		manager:  opts.Manager,
		viewer:   opts.Viewer,
		backend:  opts.Backend,
		clock:    opts.Clock,
		log:      opts.Logger,
		step:     opts.Step,
		scale:    opts.Scale,
		interval: opts.FrameInterval,
	}
	if c.log == nil {
		c.log = logging.Noop()
	}
	if c.step <= 0 {
		c.step = defaultStep
	}
	if c.scale <= 0 {
		c.scale = defaultScale
	}
	if c.interval <= 0 {
		c.interval = defaultFrameInterval
	}
	return c
}

// Run polls input and draws frames until q/Esc or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 64)
	done := make(chan struct{})
	defer close(done)
	go c.pollEvents(events, done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Frame()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !c.HandleEvent(ctx, ev) {
				return nil
			}
			c.draw()
		case <-ticker.C:
			c.Frame()
		}
	}
}

// pollEvents forwards screen events until the screen is finalised or done
// is closed.
func (c *Console) pollEvents(events chan<- tcell.Event, done <-chan struct{}) {
	defer close(events)
	for {
		ev := c.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// Frame advances the clock by one tick and redraws.
func (c *Console) Frame() {
	if c.clock != nil {
		c.clock.Advance()
	}
	c.draw()
}

// HandleEvent reacts to a terminal event. It returns false when the user
// asked to quit.
func (c *Console) HandleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return c.HandleKey(ctx, ev.Key(), ev.Rune())
	case *tcell.EventResize:
		c.screen.Sync()
	}
	return true
}

// HandleKey applies one command key.
func (c *Console) HandleKey(ctx context.Context, key tcell.Key, r rune) bool {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		c.viewer.Move(c.step, 0)
	case tcell.KeyDown:
		c.viewer.Move(-c.step, 0)
	case tcell.KeyRight:
		c.viewer.Move(0, c.step)
	case tcell.KeyLeft:
		c.viewer.Move(0, -c.step)
	case tcell.KeyRune:
		return c.handleRune(ctx, r)
	}
	return true
}

func (c *Console) handleRune(ctx context.Context, r rune) bool {
	switch r {
	case 'q', 'Q':
		return false
	case 'a':
		id, err := c.manager.AddWaypoint(ctx)
		switch {
		case err != nil:
			c.fail("add waypoint", err)
		case id == uuid.Nil:
			c.message = "waypoint set"
		default:
			c.message = "wall added"
		}
	case 'u':
		if _, ok := c.manager.RemoveLast(); ok {
			c.message = "removed last wall"
		} else {
			c.message = "nothing to remove"
		}
	case 'b':
		c.manager.Break()
		c.message = "wall broken"
	case 'c':
		c.manager.Clear()
		c.message = "all walls cleared"
	case 'f':
		if err := c.manager.Finish(ctx); err != nil {
			c.fail("finish", err)
		} else {
			c.message = fmt.Sprintf("saved %d walls", c.manager.Len())
		}
	case '+', '=':
		c.scale = math.Max(0.5, c.scale/2)
	case '-':
		c.scale = math.Min(5000, c.scale*2)
	}
	return true
}

func (c *Console) fail(action string, err error) {
	switch {
	case errors.Is(err, core.ErrNotBuildMode):
		c.message = action + ": not in build mode"
	case errors.Is(err, core.ErrViewerNotReady):
		c.message = action + ": viewer not ready"
	default:
		c.message = action + ": " + err.Error()
	}
	c.log.Warn(context.Background(), "console command failed", logging.String("action", action), logging.Err(err))
}

// Message returns the result of the last command.
func (c *Console) Message() string { return c.message }

// Scale returns the current zoom in metres per column.
func (c *Console) Scale() float64 { return c.scale }

// StatusLine renders the counters shown at the bottom of the screen.
func (c *Console) StatusLine() string {
	st := c.manager.Stats()
	mode := "view"
	if c.manager.BuildMode() {
		mode = "build"
	}
	g := c.viewer.Geo()
	name := ""
	if b := c.viewer.CurrentBody(); b != nil {
		name = b.Name
	}
	return fmt.Sprintf("%s %s | chains %d visible %d segments %d | %s",
		name, g, st.Chains, st.Visible, st.Segments, mode)
}

func (c *Console) draw() {
	c.screen.Clear()
	w, h := c.screen.Size()
	if w <= 0 || h < 3 {
		c.screen.Show()
		return
	}
	mapH := h - 2
	cx, cy := w/2, mapH/2

	if body := c.viewer.CurrentBody(); body != nil {
		origin := c.viewer.Geo()
		plot := func(g model.GeoCoordinate, ch rune, style tcell.Style) {
			x, y := Project(body, origin, g, c.scale)
			x, y = x+cx, y+cy
			if x >= 0 && x < w && y >= 0 && y < mapH {
				c.screen.SetContent(x, y, ch, nil, style)
			}
		}

		if c.backend != nil {
			for _, n := range c.backend.Nodes() {
				if !n.Placed {
					continue
				}
				ch, style := '=', styleGhost
				if n.Collider != nil {
					ch, style = '#', styleWall
				}
				plot(core.ToGeo(body, n.Transform.Position), ch, style)
			}
		}
		for _, p := range c.manager.Pairs() {
			if p.BodyName != body.Name {
				continue
			}
			plot(p.Start, 'o', styleWaypoint)
			plot(p.End, 'o', styleWaypoint)
		}
		if name, g, ok := c.manager.RunningPosition(); ok && name == body.Name {
			plot(g, '*', styleRunning)
		}
	}
	c.screen.SetContent(cx, cy, '@', nil, styleViewer)

	c.drawText(0, h-2, c.StatusLine(), styleStatusLine, w)
	bottom := helpLine
	if c.message != "" {
		bottom = c.message + "  |  " + helpLine
	}
	c.drawText(0, h-1, bottom, styleDefault, w)
	c.screen.Show()
}

func (c *Console) drawText(x, y int, s string, style tcell.Style, width int) {
	for _, r := range s {
		if x >= width {
			return
		}
		c.screen.SetContent(x, y, r, nil, style)
		x++
	}
	for ; x < width && style != styleDefault; x++ {
		c.screen.SetContent(x, y, ' ', nil, style)
	}
}

// Project maps g to a cell offset from origin on a north-up map where one
// column spans scale metres and one row spans 2*scale.
func Project(body *model.Body, origin, g model.GeoCoordinate, scale float64) (int, int) {
	r := body.Shape.EquatorialRadius
	dLon := g.Longitude - origin.Longitude
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}
	north := mgl64.DegToRad(g.Latitude-origin.Latitude) * r
	east := mgl64.DegToRad(dLon) * r * math.Cos(mgl64.DegToRad(origin.Latitude))
	x := int(math.Round(east / scale))
	y := int(math.Round(-north / (2 * scale)))
	return x, y
}

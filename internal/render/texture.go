package render

import (
	"context"
	"image/color"
	"sync"

	"github.com/signalsfoundry/wallstream/internal/logging"
)

// DefaultWallTexture is the texture name walls look up first.
const DefaultWallTexture = "BuildTheWall/wall"

// WarningRed is the fallback colour used when the wall texture is missing.
var WarningRed = color.RGBA{R: 255, A: 255}

// SharedTexture is a process-wide texture resolved on first use and
// read-only afterwards.
type SharedTexture struct {
	provider TextureProvider
	name     string
	log      logging.Logger

	once     sync.Once
	handle   TextureHandle
	fallback bool
}

// NewSharedTexture prepares a lazily resolved texture. Nothing is looked up
// until Handle is first called.
func NewSharedTexture(provider TextureProvider, name string, log logging.Logger) *SharedTexture {
	if log == nil {
		log = logging.Noop()
	}
	if name == "" {
		name = DefaultWallTexture
	}
	return &SharedTexture{provider: provider, name: name, log: log}
}

// Handle returns the texture, resolving it on the first call. A missing
// texture yields a 1x1 warning-red texture instead of an error.
func (s *SharedTexture) Handle() TextureHandle {
	s.once.Do(func() {
		ctx := context.Background()
		if s.provider == nil {
			s.log.Warn(ctx, "no texture provider; walls render untextured", logging.String("texture", s.name))
			s.fallback = true
			return
		}
		if h, ok := s.provider.LookupTexture(s.name); ok {
			s.log.Info(ctx, "using wall texture", logging.String("texture", s.name))
			s.handle = h
			return
		}
		s.log.Warn(ctx, "wall texture missing; using red texture", logging.String("texture", s.name))
		s.handle = s.provider.SolidTexture(WarningRed)
		s.fallback = true
	})
	return s.handle
}

// IsFallback reports whether the resolved texture is the warning colour.
// It resolves the texture if that has not happened yet.
func (s *SharedTexture) IsFallback() bool {
	s.Handle()
	return s.fallback
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/aurora/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Surface holds the presentable images of the window and a view of
// each. Every rebuild increments the generation.
type Surface struct {
	ctx        *DeviceContext
	lifetime   *DeletionQueue
	fallback   gfx.Extent2D
	imageCount uint32

	swapchain  gfx.Swapchain
	images     []gfx.ImageResource
	views      []gfx.ImageView
	extent     gfx.Extent2D
	format     gfx.Format
	generation uint64
	release    *surfaceRelease
}

// errEmptySurface means the surface has no area, as when the window
// is minimized.
var errEmptySurface = errors.New("empty extent")

// NewSurface builds the swapchain for the current surface extent. The
// fallback extent is used when the platform does not dictate one.
// Teardown of the live generation is registered once with the lifetime
// queue.
func NewSurface(ctx *DeviceContext, lifetime *DeletionQueue, fallback gfx.Extent2D, imageCount uint32) (*Surface, error) {
	s := &Surface{
		ctx:        ctx,
		lifetime:   lifetime,
		fallback:   fallback,
		imageCount: imageCount,
	}
	if err := s.build(nil); err != nil {
		return nil, err
	}
	return s, nil
}

// CurrentExtent queries the extent a rebuilt swapchain would have.
func (s *Surface) CurrentExtent() (gfx.Extent2D, error) {
	extent, err := s.ctx.Device.SurfaceExtent()
	if err != nil {
		return gfx.Extent2D{}, errors.Wrap(err, "surface extent")
	}
	if extent == gfx.ExtentUndefined {
		extent = s.fallback
	}
	return extent, nil
}

// SetFallbackExtent changes the extent used when the platform does not
// dictate one, such as after the window was resized.
func (s *Surface) SetFallbackExtent(extent gfx.Extent2D) {
	s.fallback = extent
}

func (s *Surface) build(old gfx.Swapchain) error {
	extent, err := s.CurrentExtent()
	if err != nil {
		return err
	}
	if extent.Empty() {
		return errors.Wrapf(errEmptySurface, "build surface: %dx%d", extent.Width, extent.Height)
	}

	sc, err := s.ctx.Device.NewSwapchain(extent, s.imageCount, old)
	if err != nil {
		return errors.Wrap(err, "build surface: swapchain")
	}
	images := sc.Images()
	views := make([]gfx.ImageView, 0, len(images))
	for idx, img := range images {
		view, err := s.ctx.Device.NewImageView(img, sc.Format(), gfx.AspectColor)
		if err != nil {
			for _, v := range views {
				v.Destroy()
			}
			sc.Destroy()
			return errors.Wrapf(err, "build surface: view of image %d", idx)
		}
		views = append(views, view)
	}

	s.swapchain = sc
	s.images = images
	s.views = views
	s.extent = sc.Extent()
	s.format = sc.Format()
	if s.release == nil {
		s.release = &surfaceRelease{surface: s}
		s.lifetime.Push(s.release)
	}
	s.release.generation = s.generation

	s.ctx.Log.WithFields(log.Fields{
		"generation": s.generation,
		"width":      s.extent.Width,
		"height":     s.extent.Height,
		"format":     s.format,
		"images":     len(images),
	}).Debug("surface built")
	return nil
}

// teardown destroys the views and, unless kept, the swapchain of the
// live generation.
func (s *Surface) teardown(keepSwapchain bool) {
	for _, v := range s.views {
		v.Destroy()
	}
	s.views = nil
	s.images = nil
	if !keepSwapchain && s.swapchain != nil {
		s.swapchain.Destroy()
		s.swapchain = nil
	}
}

// Regenerate idles the device and rebuilds the swapchain for the current
// surface extent. The old swapchain is handed to the platform for reuse
// and destroyed once the new one exists.
func (s *Surface) Regenerate() error {
	if err := s.ctx.Device.WaitIdle(); err != nil {
		return errors.Wrap(err, "regenerate surface: wait idle")
	}
	old := s.swapchain
	s.teardown(true)
	s.swapchain = nil
	s.generation++

	err := s.build(old)
	if old != nil {
		old.Destroy()
	}
	if err != nil {
		s.ctx.Log.WithError(err).WithField("generation", s.generation).Error("surface regeneration failed")
		return err
	}
	return nil
}

// Swapchain returns the live swapchain.
func (s *Surface) Swapchain() gfx.Swapchain {
	return s.swapchain
}

// Generation returns the number of times the surface was rebuilt.
func (s *Surface) Generation() uint64 {
	return s.generation
}

// Extent returns the extent of the live swapchain.
func (s *Surface) Extent() gfx.Extent2D {
	return s.extent
}

// Format returns the format of the presentable images.
func (s *Surface) Format() gfx.Format {
	return s.format
}

// Len returns the number of presentable images.
func (s *Surface) Len() int {
	return len(s.images)
}

// Image returns the presentable image at idx.
func (s *Surface) Image(idx uint32) gfx.ImageResource {
	return s.images[idx]
}

// View returns the view of the presentable image at idx.
func (s *Surface) View(idx uint32) gfx.ImageView {
	return s.views[idx]
}

// surfaceRelease tears down the generation it is tagged with. Every
// rebuild retags it, and it does nothing once its generation is gone.
type surfaceRelease struct {
	surface    *Surface
	generation uint64
}

func (r *surfaceRelease) Release() {
	if r.surface.generation != r.generation {
		return
	}
	r.surface.teardown(false)
}

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

// Buffer is a device buffer together with its memory. The zero
// value is an absent buffer.
type Buffer struct {
	alloc    gfx.BufferAllocation
	location gfx.MemoryLocation
	usage    gfx.BufferUsage
}

// CreateBuffer allocates a buffer of size bytes.
func CreateBuffer(ctx *DeviceContext, loc gfx.MemoryLocation, size uint64, usage gfx.BufferUsage) (Buffer, error) {
	if size == 0 {
		return Buffer{}, errors.New("create buffer: zero size")
	}
	alloc, err := ctx.Device.AllocateBuffer(loc, size, usage)
	if err != nil {
		return Buffer{}, errors.Wrapf(err, "create buffer: %d bytes in %s memory", size, loc)
	}
	ctx.Log.WithFields(log.Fields{
		"size":     size,
		"location": loc,
		"usage":    usage,
	}).Trace("buffer created")
	return Buffer{alloc: alloc, location: loc, usage: usage}, nil
}

// Valid reports whether the buffer holds a live allocation.
func (b Buffer) Valid() bool {
	return b.alloc != nil
}

// Size returns the size of the buffer in bytes.
func (b Buffer) Size() uint64 {
	if b.alloc == nil {
		return 0
	}
	return b.alloc.Size()
}

// Location returns the memory location the buffer was allocated in.
func (b Buffer) Location() gfx.MemoryLocation {
	return b.location
}

// Usage returns the usage flags the buffer was created with.
func (b Buffer) Usage() gfx.BufferUsage {
	return b.usage
}

// Mapped returns the host mapping of a host visible buffer, or nil.
func (b Buffer) Mapped() []byte {
	if b.alloc == nil {
		return nil
	}
	return b.alloc.Mapped()
}

// Resource returns the raw buffer for use in commands.
func (b Buffer) Resource() gfx.BufferResource {
	return b.alloc
}

// Release frees the buffer and its memory. The buffer must not be
// in use by the GPU; use a deletion queue to defer it otherwise.
func (b Buffer) Release() {
	if b.alloc != nil {
		b.alloc.Destroy()
	}
}

// Image is a device image, its memory and a view covering all of it.
// The zero value is an absent image.
type Image struct {
	alloc  gfx.ImageAllocation
	view   gfx.ImageView
	format gfx.Format
	extent gfx.Extent3D
	usage  gfx.ImageUsage
	aspect gfx.Aspect
}

// CreateImage allocates a 2D image and a view of the given aspect.
// Nothing is left allocated when an error is returned.
func CreateImage(ctx *DeviceContext, loc gfx.MemoryLocation, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage, aspect gfx.Aspect) (Image, error) {
	if extent.Width == 0 || extent.Height == 0 || extent.Depth == 0 {
		return Image{}, errors.Errorf("create image: empty extent %dx%dx%d", extent.Width, extent.Height, extent.Depth)
	}
	alloc, err := ctx.Device.AllocateImage(loc, format, extent, usage)
	if err != nil {
		return Image{}, errors.Wrapf(err, "create image: %dx%d format %d", extent.Width, extent.Height, format)
	}
	view, err := ctx.Device.NewImageView(alloc, format, aspect)
	if err != nil {
		alloc.Destroy()
		return Image{}, errors.Wrap(err, "create image: view")
	}
	ctx.Log.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"format": format,
		"aspect": aspect,
	}).Trace("image created")
	return Image{
		alloc:  alloc,
		view:   view,
		format: format,
		extent: extent,
		usage:  usage,
		aspect: aspect,
	}, nil
}

// Valid reports whether the image holds a live allocation.
func (i Image) Valid() bool {
	return i.alloc != nil
}

// Format returns the texel format.
func (i Image) Format() gfx.Format {
	return i.format
}

// Extent returns the size of the image.
func (i Image) Extent() gfx.Extent3D {
	return i.extent
}

// Usage returns the usage flags the image was created with.
func (i Image) Usage() gfx.ImageUsage {
	return i.usage
}

// Aspect returns the aspect of the image view. Barriers on the image
// use the same aspect.
func (i Image) Aspect() gfx.Aspect {
	return i.aspect
}

// Resource returns the raw image for use in commands.
func (i Image) Resource() gfx.ImageResource {
	return i.alloc
}

// View returns the view covering the whole image.
func (i Image) View() gfx.ImageView {
	return i.view
}

// Release frees the view, the image and its memory.
func (i Image) Release() {
	if i.view != nil {
		i.view.Destroy()
	}
	if i.alloc != nil {
		i.alloc.Destroy()
	}
}

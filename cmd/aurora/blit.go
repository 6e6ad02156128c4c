// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"image"
	"math"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/aurora/core"
	"github.com/devblok/aurora/gfx"
)

// blitRenderer copies a texture into the acquired swapchain image,
// cropped to the aspect ratio of the window and slowly panning across.
type blitRenderer struct {
	texture core.Image
	phase   float32
	speed   float32
}

func newBlitRenderer(engine *core.Engine, img image.Image) (*blitRenderer, error) {
	texture, err := engine.UploadTexture(img, gfx.ImageUsageTransferSrc|gfx.ImageUsageSampled)
	if err != nil {
		return nil, errors.Wrap(err, "upload texture")
	}
	err = engine.RunImmediate(func(cb gfx.CommandBuffer) error {
		cb.TransitionImage(texture.Resource(), texture.Aspect(), gfx.LayoutShaderReadOnlyOptimal, gfx.LayoutTransferSrcOptimal)
		return nil
	})
	if err != nil {
		engine.DestroyImage(texture)
		return nil, errors.Wrap(err, "prepare texture")
	}
	return &blitRenderer{texture: texture, speed: 0.01}, nil
}

func (b *blitRenderer) Render(frame *core.Frame) error {
	cb := frame.Commands
	extent := b.texture.Extent()
	src := coverRect(gfx.Extent2D{Width: extent.Width, Height: extent.Height}, frame.Extent, b.pan())
	dst := gfx.Rect{Extent: frame.Extent}

	cb.TransitionImage(frame.Image, gfx.AspectColor, gfx.LayoutUndefined, gfx.LayoutTransferDstOptimal)
	cb.BlitImage(b.texture.Resource(), src, frame.Image, dst, gfx.AspectColor)
	cb.TransitionImage(frame.Image, gfx.AspectColor, gfx.LayoutTransferDstOptimal, gfx.LayoutPresentSrc)

	b.phase += b.speed
	return nil
}

// pan oscillates between 0 and 1.
func (b *blitRenderer) pan() float32 {
	return 0.5 - 0.5*float32(math.Cos(float64(b.phase)))
}

func (b *blitRenderer) Release() {
	b.texture.Release()
}

// coverRect returns the largest region of src with the aspect ratio of dst.
// The region slides along the cropped axis as pan goes from 0 to 1.
func coverRect(src, dst gfx.Extent2D, pan float32) gfx.Rect {
	if src.Empty() || dst.Empty() {
		return gfx.Rect{}
	}
	size := glm.Vec2{float32(src.Width), float32(src.Height)}
	target := glm.Vec2{float32(dst.Width), float32(dst.Height)}

	scale := size.X() / target.X()
	if s := size.Y() / target.Y(); s < scale {
		scale = s
	}
	crop := target.Mul(scale)
	slack := size.Sub(crop)
	offset := slack.Mul(glm.Clamp(pan, 0, 1))

	return gfx.Rect{
		Offset: gfx.Offset2D{X: int32(offset.X()), Y: int32(offset.Y())},
		Extent: gfx.Extent2D{
			Width:  clampUint32(uint32(glm.Round(crop.X(), 0)), 1, src.Width),
			Height: clampUint32(uint32(glm.Round(crop.Y(), 0)), 1, src.Height),
		},
	}
}

func clampUint32(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"image"

	"github.com/devblok/aurora/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// stage copies the payloads back to back into a new host visible
// buffer usable as a transfer source.
func stage(ctx *DeviceContext, payloads ...[]byte) (Buffer, error) {
	var size uint64
	for _, p := range payloads {
		size += uint64(len(p))
	}
	staging, err := CreateBuffer(ctx, gfx.MemoryCPUOnly, size, gfx.BufferUsageTransferSrc)
	if err != nil {
		return Buffer{}, errors.Wrap(err, "staging buffer")
	}
	mapped := staging.Mapped()
	if uint64(len(mapped)) < size {
		staging.Release()
		return Buffer{}, errors.New("staging buffer is not mapped")
	}
	var offset int
	for _, p := range payloads {
		offset += copy(mapped[offset:], p)
	}
	return staging, nil
}

// UploadBuffer creates a device local buffer holding data. The staging
// buffer is freed before returning.
func UploadBuffer(ctx *DeviceContext, imm *Immediate, data []byte, usage gfx.BufferUsage) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, errors.New("upload buffer: no data")
	}
	size := uint64(len(data))

	buf, err := CreateBuffer(ctx, gfx.MemoryGPUOnly, size, usage|gfx.BufferUsageTransferDst)
	if err != nil {
		return Buffer{}, errors.Wrap(err, "upload buffer")
	}
	staging, err := stage(ctx, data)
	if err != nil {
		buf.Release()
		return Buffer{}, errors.Wrap(err, "upload buffer")
	}
	defer staging.Release()

	if err := imm.Run(func(cb gfx.CommandBuffer) error {
		cb.CopyBuffer(staging.Resource(), buf.Resource(), gfx.BufferCopy{Size: size})
		return nil
	}); err != nil {
		buf.Release()
		return Buffer{}, errors.Wrap(err, "upload buffer")
	}
	return buf, nil
}

// UploadImage creates a device local image holding the tightly packed
// texels in data and leaves it ready for sampling.
func UploadImage(ctx *DeviceContext, imm *Immediate, data []byte, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage, aspect gfx.Aspect) (Image, error) {
	texel := format.TexelSize()
	if texel == 0 {
		return Image{}, errors.Errorf("upload image: unsupported format %d", format)
	}
	want := uint64(extent.Width) * uint64(extent.Height) * uint64(extent.Depth) * texel
	if uint64(len(data)) != want {
		return Image{}, errors.Errorf("upload image: have %d bytes, %dx%dx%d needs %d", len(data), extent.Width, extent.Height, extent.Depth, want)
	}

	img, err := CreateImage(ctx, gfx.MemoryGPUOnly, format, extent, usage|gfx.ImageUsageTransferDst, aspect)
	if err != nil {
		return Image{}, errors.Wrap(err, "upload image")
	}
	staging, err := stage(ctx, data)
	if err != nil {
		img.Release()
		return Image{}, errors.Wrap(err, "upload image")
	}
	defer staging.Release()

	if err := imm.Run(func(cb gfx.CommandBuffer) error {
		cb.TransitionImage(img.Resource(), img.Aspect(), gfx.LayoutUndefined, gfx.LayoutTransferDstOptimal)
		cb.CopyBufferToImage(staging.Resource(), img.Resource(), gfx.LayoutTransferDstOptimal, gfx.BufferImageCopy{
			Aspect: img.Aspect(),
			Extent: extent,
		})
		cb.TransitionImage(img.Resource(), img.Aspect(), gfx.LayoutTransferDstOptimal, gfx.LayoutShaderReadOnlyOptimal)
		return nil
	}); err != nil {
		img.Release()
		return Image{}, errors.Wrap(err, "upload image")
	}
	return img, nil
}

// Mesh is an indexed vertex buffer pair.
type Mesh struct {
	Vertices   Buffer
	Indices    Buffer
	IndexCount uint32
}

// Release frees both buffers.
func (m Mesh) Release() {
	m.Indices.Release()
	m.Vertices.Release()
}

// UploadMesh creates device local vertex and index buffers. Both payloads
// go through a single staging buffer and a single submission.
func UploadMesh(ctx *DeviceContext, imm *Immediate, vertices []byte, indices []uint32) (Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return Mesh{}, errors.New("upload mesh: empty mesh")
	}
	indexData := BytesUint32(indices)
	vsize, isize := uint64(len(vertices)), uint64(len(indexData))

	vbuf, err := CreateBuffer(ctx, gfx.MemoryGPUOnly, vsize, gfx.BufferUsageVertex|gfx.BufferUsageTransferDst)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "upload mesh: vertices")
	}
	ibuf, err := CreateBuffer(ctx, gfx.MemoryGPUOnly, isize, gfx.BufferUsageIndex|gfx.BufferUsageTransferDst)
	if err != nil {
		vbuf.Release()
		return Mesh{}, errors.Wrap(err, "upload mesh: indices")
	}
	staging, err := stage(ctx, vertices, indexData)
	if err != nil {
		ibuf.Release()
		vbuf.Release()
		return Mesh{}, errors.Wrap(err, "upload mesh")
	}
	defer staging.Release()

	if err := imm.Run(func(cb gfx.CommandBuffer) error {
		cb.CopyBuffer(staging.Resource(), vbuf.Resource(), gfx.BufferCopy{Size: vsize})
		cb.CopyBuffer(staging.Resource(), ibuf.Resource(), gfx.BufferCopy{SrcOffset: vsize, Size: isize})
		return nil
	}); err != nil {
		ibuf.Release()
		vbuf.Release()
		return Mesh{}, errors.Wrap(err, "upload mesh")
	}

	ctx.Log.WithFields(log.Fields{
		"vertexBytes": vsize,
		"indices":     len(indices),
	}).Debug("mesh uploaded")
	return Mesh{Vertices: vbuf, Indices: ibuf, IndexCount: uint32(len(indices))}, nil
}

// UploadTexture converts img to RGBA and uploads it as a sampled color image.
func UploadTexture(ctx *DeviceContext, imm *Immediate, img image.Image, usage gfx.ImageUsage) (Image, error) {
	pixels, err := GetPixels(img)
	if err != nil {
		return Image{}, errors.Wrap(err, "upload texture")
	}
	b := img.Bounds()
	extent := gfx.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Depth: 1}
	return UploadImage(ctx, imm, pixels, gfx.FormatR8G8B8A8Srgb, extent, usage|gfx.ImageUsageSampled, gfx.AspectColor)
}

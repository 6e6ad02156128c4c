// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/devblok/vulkan"
)

// Buffer is a Vulkan buffer with dedicated memory bound to it.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory Memory
	size   uint64
}

// Size implements gfx.BufferResource
func (b *Buffer) Size() uint64 {
	return b.size
}

// Inner returns the vk.Buffer
func (b *Buffer) Inner() interface{} {
	return b.buffer
}

// Mapped implements gfx.BufferAllocation
func (b *Buffer) Mapped() []byte {
	if b.memory.mapped == nil {
		return nil
	}
	return b.memory.mapped[:b.size]
}

// Destroy implements gfx.BufferAllocation
func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// Image is a Vulkan image with dedicated memory bound to it.
type Image struct {
	device vk.Device
	image  vk.Image
	memory Memory
}

// Inner returns the vk.Image
func (i *Image) Inner() interface{} {
	return i.image
}

// Destroy implements gfx.ImageAllocation
func (i *Image) Destroy() {
	vk.DestroyImage(i.device, i.image, nil)
	i.memory.Release()
}

// swapchainImage is owned by its swapchain and never destroyed on its own.
type swapchainImage struct {
	image vk.Image
}

func (i swapchainImage) Inner() interface{} {
	return i.image
}

// ImageView is a Vulkan image view.
type ImageView struct {
	device vk.Device
	view   vk.ImageView
}

// Inner returns the vk.ImageView
func (v *ImageView) Inner() interface{} {
	return v.view
}

// Destroy implements gfx.ImageView
func (v *ImageView) Destroy() {
	vk.DestroyImageView(v.device, v.view, nil)
}

func bufferHandle(b interface{ Inner() interface{} }) vk.Buffer {
	return b.Inner().(vk.Buffer)
}

func imageHandle(i interface{ Inner() interface{} }) vk.Image {
	return i.Inner().(vk.Image)
}

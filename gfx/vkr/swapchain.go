// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/aurora/gfx"
	vk "github.com/devblok/vulkan"
)

// Swapchain is a Vulkan swapchain and the images it owns.
type Swapchain struct {
	device    vk.Device
	swapchain vk.Swapchain
	extent    gfx.Extent2D
	format    gfx.Format
	images    []gfx.ImageResource
}

// Extent implements gfx.Swapchain
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.extent
}

// Format implements gfx.Swapchain
func (s *Swapchain) Format() gfx.Format {
	return s.format
}

// Images implements gfx.Swapchain
func (s *Swapchain) Images() []gfx.ImageResource {
	return s.images
}

// Acquire implements gfx.Swapchain
func (s *Swapchain) Acquire(signal gfx.Semaphore, timeout uint64) (uint32, error) {
	var sem vk.Semaphore
	if h := semaphoreHandles(signal); h != nil {
		sem = h[0]
	}
	var idx uint32
	err := result("vk.AcquireNextImage", vk.AcquireNextImage(s.device, s.swapchain, uint(timeout), sem, vk.NullFence, &idx))
	return idx, err
}

// Destroy implements gfx.Swapchain
func (s *Swapchain) Destroy() {
	vk.DestroySwapchain(s.device, s.swapchain, nil)
	s.images = nil
}

func swapchainHandle(sc gfx.Swapchain) vk.Swapchain {
	if sc, ok := sc.(*Swapchain); ok && sc != nil {
		return sc.swapchain
	}
	return nil
}

// clampExtent fits the wanted extent into what the surface supports.
func clampExtent(want gfx.Extent2D, min, max vk.Extent2D) gfx.Extent2D {
	return gfx.Extent2D{
		Width:  clamp(want.Width, min.Width, max.Width),
		Height: clamp(want.Height, min.Height, max.Height),
	}
}

// clampImageCount fits the wanted image count into the surface limits,
// where a max of zero means there is no upper limit.
func clampImageCount(want, min, max uint32) uint32 {
	if max == 0 {
		max = ^uint32(0)
	}
	return clamp(want, min, max)
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

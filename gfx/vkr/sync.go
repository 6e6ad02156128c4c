// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/devblok/vulkan"
)

// Fence is a Vulkan fence.
type Fence struct {
	device vk.Device
	fence  vk.Fence
}

// Wait implements gfx.Fence
func (f *Fence) Wait(timeout uint64) error {
	return result("vk.WaitForFences", vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, uint(timeout)))
}

// Reset implements gfx.Fence
func (f *Fence) Reset() error {
	return result("vk.ResetFences", vk.ResetFences(f.device, 1, []vk.Fence{f.fence}))
}

// Destroy implements gfx.Fence
func (f *Fence) Destroy() {
	vk.DestroyFence(f.device, f.fence, nil)
}

// Semaphore is a Vulkan binary semaphore.
type Semaphore struct {
	device    vk.Device
	semaphore vk.Semaphore
}

// Destroy implements gfx.Semaphore
func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.device, s.semaphore, nil)
}

func fenceHandle(f interface{}) vk.Fence {
	if f, ok := f.(*Fence); ok && f != nil {
		return f.fence
	}
	return vk.NullFence
}

func semaphoreHandles(s interface{}) []vk.Semaphore {
	if s, ok := s.(*Semaphore); ok && s != nil {
		return []vk.Semaphore{s.semaphore}
	}
	return nil
}

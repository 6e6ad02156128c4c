// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/devblok/aurora/gfx"
	vk "github.com/devblok/vulkan"
)

// Memory defines a usable memory region.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
	size   uint64
	mapped []byte
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Mapped returns the host mapping, nil if the memory is not mapped.
func (m *Memory) Mapped() []byte {
	return m.mapped
}

// Map maps the entire memory region for the lifetime of the memory.
func (m *Memory) Map() error {
	if m.mapped != nil {
		return nil
	}
	var memMapped unsafe.Pointer
	if err := vk.Error(vk.MapMemory(m.device, m.memory, 0, vk.DeviceSize(m.size), 0, &memMapped)); err != nil {
		return errors.New("vk.MapMemory(): " + err.Error())
	}
	m.mapped = unsafe.Slice((*byte)(memMapped), m.size)
	return nil
}

// Release frees memory after unmapping it if previously mapped.
func (m *Memory) Release() {
	if m.mapped != nil {
		vk.UnmapMemory(m.device, m.memory)
		m.mapped = nil
	}
	vk.FreeMemory(m.device, m.memory, nil)
}

// memoryFlags returns the property flags a memory location requires,
// and the flags it would rather have on top.
func memoryFlags(loc gfx.MemoryLocation) (required, preferred vk.MemoryPropertyFlags) {
	switch loc {
	case gfx.MemoryGPUOnly:
		required = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	case gfx.MemoryCPUToGPU:
		required = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
		preferred = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	case gfx.MemoryGPUToCPU:
		required = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
		preferred = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
	default:
		required = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return required, required | preferred
}

// NewMemoryAllocator creates a new memory allocator. Allocates for the logical device,
// reads memory properties of the physical device to influence allocation.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	types := make([]vk.MemoryPropertyFlags, memProperties.MemoryTypeCount)
	for idx := range types {
		memProperties.MemoryTypes[idx].Deref()
		types[idx] = memProperties.MemoryTypes[idx].PropertyFlags
	}

	return &MemoryAllocator{
		device: device,
		types:  types,
	}
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device vk.Device
	types  []vk.MemoryPropertyFlags
}

// Malloc returns a memory chunk satisfying req in the given location.
// Host visible memory comes back mapped.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, loc gfx.MemoryLocation) (Memory, error) {
	required, preferred := memoryFlags(loc)
	memTypeIdx, err := findMemoryType(ma.types, req.MemoryTypeBits, required, preferred)
	if err != nil {
		return Memory{}, fmt.Errorf("%s memory: %s", loc, err)
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, fmt.Errorf("vk.AllocateMemory(): %s", err.Error())
	}
	mem := Memory{
		device: ma.device,
		memory: memory,
		size:   uint64(req.Size),
	}
	if loc.HostVisible() {
		if err := mem.Map(); err != nil {
			mem.Release()
			return Memory{}, err
		}
	}
	return mem, nil
}

// findMemoryType picks the first type allowed by filter that has every
// preferred flag, or failing that every required flag.
func findMemoryType(types []vk.MemoryPropertyFlags, filter uint32, required, preferred vk.MemoryPropertyFlags) (uint32, error) {
	for _, want := range []vk.MemoryPropertyFlags{preferred, required} {
		for idx, flags := range types {
			if filter&(1<<uint(idx)) != 0 && flags&want == want {
				return uint32(idx), nil
			}
		}
	}
	return 0, errors.New("suitable memory type not found")
}

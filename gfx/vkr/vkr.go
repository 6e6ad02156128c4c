// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx on top of Vulkan.
package vkr

import (
	"errors"
	"fmt"

	"github.com/devblok/aurora/gfx"
	vk "github.com/devblok/vulkan"
)

// result converts a Vulkan result code of the named call into an error.
// Out of date surfaces, suboptimal surfaces and timeouts map to the gfx
// sentinels, anything else that is not a success is reported verbatim.
func result(call string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate:
		return gfx.ErrSurfaceStale
	case vk.Suboptimal:
		return gfx.ErrSuboptimal
	case vk.Timeout:
		return gfx.ErrTimeout
	}
	if err := vk.Error(res); err != nil {
		return errors.New(call + "(): " + err.Error())
	}
	return fmt.Errorf("%s(): unexpected result %d", call, res)
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

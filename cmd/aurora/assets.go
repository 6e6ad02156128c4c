// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"image"
	"image/color"
	_ "image/png"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobuffalo/packd"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// loadTextures decodes every image in the box, sorted by name.
func loadTextures(box packd.Walkable) ([]image.Image, error) {
	type named struct {
		name string
		img  image.Image
	}
	var found []named
	err := box.Walk(func(path string, f packd.File) error {
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		img, format, err := image.Decode(f)
		if err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
		log.WithFields(log.Fields{
			"texture": path,
			"format":  format,
			"size":    img.Bounds().Size(),
		}).Debug("texture decoded")
		found = append(found, named{name: path, img: img})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })

	images := make([]image.Image, len(found))
	for i, n := range found {
		images[i] = n.img
	}
	return images, nil
}

// builtinTextures returns the textures shipped with the binary,
// or a generated checkerboard if there are none.
func builtinTextures() []image.Image {
	images, err := loadTextures(packr.NewBox("./assets"))
	if err != nil {
		log.WithError(err).Warn("built-in textures unavailable")
	}
	if len(images) == 0 {
		images = append(images, checkerboard(256, 32))
	}
	return images
}

func checkerboard(size, cell int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	light := color.NRGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	dark := color.NRGBA{R: 0x30, G: 0x30, B: 0x40, A: 0xff}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetNRGBA(x, y, light)
			} else {
				img.SetNRGBA(x, y, dark)
			}
		}
	}
	return img
}

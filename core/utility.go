package core

import (
	"errors"
	"image"
	"unsafe"

	"golang.org/x/image/draw"
)

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// BytesUint32 reslices indices into bytes without copying, that is used
// to stage index data for upload
func BytesUint32(data []uint32) []byte {
	if len(data) == 0 {
		return nil
	}
	const m = 0x7fffffff
	return (*[m]byte)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[: len(data)*4 : len(data)*4]
}

// GetPixels transforms a given image into tightly packed RGBA pixels
// by drawing the decoded image onto a controlled RGBA canvas
func GetPixels(img image.Image) ([]uint8, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*b.Dx() {
		return rgba.Pix[:4*b.Dx()*b.Dy()], nil
	}
	newImg := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(newImg, newImg.Bounds(), img, b.Min, draw.Src)
	return newImg.Pix, nil
}

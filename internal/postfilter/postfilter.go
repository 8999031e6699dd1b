// Package postfilter implements the optional mask cleanup steps the
// original background subtractor treats as external collaborators
// rather than part of the core classification pipeline: morphological
// open/close and connected-component area thresholding. Nothing in the
// engine imports this package; callers apply it to an already-produced
// mask (see cmd/imbs-mt for an example).
package postfilter

const hardForeground = 255

// MorphOpen applies a binary morphological opening (erosion then
// dilation) to the hard-foreground (255) pixels of mask, using a full
// 3x3 structuring element, matching the original's
// cv::morphologyEx(..., MORPH_OPEN, element3) call on its filtered
// foreground mask. Pixels not equal to 255 (shadow and persistence
// labels included) are 0 in the returned copy; mask is not modified.
func MorphOpen(mask []byte, w, h int) []byte {
	return dilate(erode(binarize(mask, w, h), w, h), w, h)
}

// MorphClose applies a binary morphological closing (dilation then
// erosion), matching the original's immediately-following
// cv::morphologyEx(..., MORPH_CLOSE, element3) call.
func MorphClose(mask []byte, w, h int) []byte {
	return erode(dilate(binarize(mask, w, h), w, h), w, h)
}

// binarize returns a copy with only the hard-foreground value
// preserved (255 where mask==255, 0 elsewhere) for the morphological
// operators, which in the original only ever run on the binary
// fgfiltered image, never on shadow or persistence labels.
func binarize(mask []byte, w, h int) []byte {
	out := make([]byte, w*h)
	for i, v := range mask {
		if v == hardForeground {
			out[i] = hardForeground
		}
	}
	return out
}

func erode(bin []byte, w, h int) []byte {
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if bin[i] != hardForeground {
				continue
			}
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w || bin[ny*w+nx] != hardForeground {
						keep = false
						break
					}
				}
			}
			if keep {
				out[i] = hardForeground
			}
		}
	}
	return out
}

func dilate(bin []byte, w, h int) []byte {
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin[y*w+x] == hardForeground {
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						ny, nx := y+dy, x+dx
						if ny < 0 || ny >= h || nx < 0 || nx >= w {
							continue
						}
						out[ny*w+nx] = hardForeground
					}
				}
			}
		}
	}
	return out
}

// FilterMask zeroes every hard-foreground (255) connected component
// (8-connectivity) whose pixel area is below minArea or at or above
// 0.6*w*h, matching areaThresholding's "area < minArea || area >=
// maxArea" rule with maxArea fixed at 60% of the frame. Components are
// cleared to Background (0); all other label values (Shadow,
// Persistence) pass through unchanged. mask is not modified; a new
// slice is returned.
func FilterMask(mask []byte, w, h, minArea int) []byte {
	out := make([]byte, len(mask))
	copy(out, mask)

	maxArea := int(0.6 * float64(w*h))
	visited := make([]bool, w*h)

	var stack []int
	for start := 0; start < w*h; start++ {
		if visited[start] || mask[start] != hardForeground {
			continue
		}

		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true
		members := []int{start}

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			y, x := i/w, i%w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dy == 0 && dx == 0 {
						continue
					}
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if visited[j] || mask[j] != hardForeground {
						continue
					}
					visited[j] = true
					stack = append(stack, j)
					members = append(members, j)
				}
			}
		}

		area := len(members)
		if area < minArea || area >= maxArea {
			for _, j := range members {
				out[j] = 0
			}
		}
	}

	return out
}

package processing

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

// Overlay styling for detection boxes
var (
	BoxColor = color.NRGBA{0, 255, 0, 255} // lime
)

const (
	boxStroke   = 5
	labelOffset = 15
)

// DrawDetections returns a copy of img with an outlined box and a
// "<class> <confidence>" caption above every detection.
func DrawDetections(img image.Image, detections []types.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := float64(dc.Width()), float64(dc.Height())

	dc.SetColor(BoxColor)
	dc.SetLineWidth(boxStroke)
	for _, d := range detections {
		box := types.BBox{
			clamp(d.BBox.Left(), 0, w),
			clamp(d.BBox.Top(), 0, h),
			clamp(d.BBox.Right(), 0, w),
			clamp(d.BBox.Bottom(), 0, h),
		}

		dc.DrawRectangle(box.Left(), box.Top(), box.Width(), box.Height())
		dc.Stroke()

		// caption's top-left corner sits labelOffset pixels above the box
		dc.DrawStringAnchored(fmt.Sprintf("%s %.2f", d.Class, d.Confidence), box.Left(), box.Top()-labelOffset, 0, 1)
	}

	return dc.Image()
}

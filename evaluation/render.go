package evaluation

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// ColoredVertexCloud flattens the collection's mesh vertices into a point
// cloud carrying the stored vertex colors, for rendering.
func ColoredVertexCloud(c *submap.Collection) pointcloud.PointCloud {
	out := pointcloud.New()
	for _, s := range c.Submaps() {
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			mesh, _ := s.Meshes.MeshByIndex(idx)
			for i, vertex := range mesh.Vertices {
				vc := color.NRGBA{A: 255}
				if i < len(mesh.Colors) {
					vc = mesh.Colors[i]
				}
				//nolint:errcheck
				out.Set(vertex, pointcloud.NewColoredData(vc))
			}
		}
	}
	return out
}

// RenderTopDown draws an orthographic top-down image of a colored point
// cloud, one pixel per point, at the given resolution in pixels per length
// unit.
func RenderTopDown(cloud pointcloud.PointCloud, pixelsPerUnit float64) (image.Image, error) {
	if cloud.Size() == 0 {
		return nil, errors.New("cannot render an empty point cloud")
	}
	meta := cloud.MetaData()
	width := int((meta.MaxX-meta.MinX)*pixelsPerUnit) + 1
	height := int((meta.MaxY-meta.MinY)*pixelsPerUnit) + 1

	dc := gg.NewContext(width, height)
	dc.SetColor(color.NRGBA{A: 255})
	dc.Clear()

	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if d != nil && d.HasColor() {
			r, g, b := d.RGB255()
			c = color.NRGBA{R: r, G: g, B: b, A: 255}
		}
		dc.SetColor(c)
		x := (p.X - meta.MinX) * pixelsPerUnit
		// Image rows grow downward.
		y := (meta.MaxY - p.Y) * pixelsPerUnit
		dc.SetPixel(int(x), int(y))
		return true
	})
	return dc.Image(), nil
}

// WriteTopDownPNG renders the cloud and writes it to path as a PNG.
func WriteTopDownPNG(cloud pointcloud.PointCloud, path string, pixelsPerUnit float64) error {
	img, err := RenderTopDown(cloud, pixelsPerUnit)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}

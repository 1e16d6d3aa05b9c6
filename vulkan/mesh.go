package vulkan

import (
	"io"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Vertex is the vertex layout consumed by the graphics pipeline.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// LoadMesh decodes a Wavefront OBJ mesh. Polygons are split into triangle fans and vertices
// take the diffuse color of their face's material, or white. mtl may be nil.
func LoadMesh(objReader, mtl io.Reader) (Mesh, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objReader, mtl)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "decoding obj")
	}

	var mesh Mesh
	uniqueVertices := make(map[vertexKey]uint32)

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			color := mgl32.Vec3{1, 1, 1}
			if material, ok := decoder.Materials[face.Material]; ok {
				color = mgl32.Vec3{material.Diffuse.R, material.Diffuse.G, material.Diffuse.B}
			}

			for i := 2; i < len(face.Vertices); i++ {
				mesh.addVertex(decoder, uniqueVertices, face.Vertices[0], color)
				mesh.addVertex(decoder, uniqueVertices, face.Vertices[i-1], color)
				mesh.addVertex(decoder, uniqueVertices, face.Vertices[i], color)
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return Mesh{}, errors.New("mesh has no triangles")
	}
	return mesh, nil
}

type vertexKey struct {
	position int
	color    mgl32.Vec3
}

func (m *Mesh) addVertex(decoder *obj.Decoder, uniqueVertices map[vertexKey]uint32, vertInd int, color mgl32.Vec3) {
	key := vertexKey{position: vertInd, color: color}
	index, vertexExists := uniqueVertices[key]

	if !vertexExists {
		index = uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, Vertex{
			Position: mgl32.Vec3{
				decoder.Vertices[vertInd*3],
				decoder.Vertices[vertInd*3+1],
				decoder.Vertices[vertInd*3+2],
			},
			Color: color,
		})
		uniqueVertices[key] = index
	}

	m.Indices = append(m.Indices, index)
}
